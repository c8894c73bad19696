// Package normalize turns raw answer lines and clues into the forms the
// deduplication engine compares: a compact blocking key and a word bag.
//
// Both NormalizeKey and NormalizeBody are pure and idempotent. Coercion of
// missing input to sentinel text is a separate step (Coerce) so that the
// normalizers themselves stay idempotent on every string.
package normalize

import (
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxKeyLength caps normalized keys (in runes).
const DefaultMaxKeyLength = 50

// Sentinels substituted for missing keys and bodies before normalization.
const (
	MissingKey  = "MISSING ANSWER"
	MissingBody = "MISSING CLUE"
)

// missingMarker is how upstream exports mark an absent answer or clue.
const missingMarker = "[MISSING]"

var (
	// rejectClause finds the start of a "do not accept"/"reject" instruction.
	// Everything from there on lists disallowed answers.
	rejectClause = regexp.MustCompile(`(?i)\b(?:do\s+not|don['’]t)\s+(?:accept|prompt|take)\s|\breject\s`)

	closedBrackets   = regexp.MustCompile(`\[[^\[\]]*\]|\([^()]*\)`)
	unclosedBrackets = regexp.MustCompile(`(?s)[\[(].*$`)
)

// transliterate handles letters that have no canonical decomposition and
// therefore survive NFD mark stripping.
var transliterate = strings.NewReplacer(
	"ß", "ss", "æ", "ae", "ø", "o", "œ", "oe", "ł", "l",
	"đ", "d", "ð", "d", "þ", "th", "ı", "i",
)

// transform.Chain keeps state, so each goroutine takes its own from the pool.
var foldPool = sync.Pool{
	New: func() any {
		return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	},
}

// Coerce replaces missing input (blank or the [MISSING] marker) with sentinel.
func Coerce(text, sentinel string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.EqualFold(trimmed, missingMarker) {
		return sentinel
	}
	return text
}

// NormalizeKey reduces an answer line to its blocking key.
//
// The line is cut at any reject/do-not-accept clause, bracketed segments are
// removed, the text is case- and diacritic-folded, punctuation is dropped,
// stopwords are removed and the remaining tokens are concatenated without a
// separator. The result is truncated to maxLen runes (no cap when maxLen <= 0).
func NormalizeKey(text string, maxLen int) string {
	if loc := rejectClause.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	text = stripPunctuation(fold(stripBrackets(text)))

	var b strings.Builder
	for _, tok := range strings.Fields(text) {
		if isKeyStopword(tok) {
			continue
		}
		b.WriteString(tok)
	}

	key := truncateRunes(b.String(), maxLen)
	// "t he" joins to "the"; dropping it here keeps the function idempotent.
	if isKeyStopword(key) {
		return ""
	}
	return key
}

// NormalizeBody reduces a clue to its sorted set of distinct content words.
// stem may be nil. A stemmer must be idempotent for NormalizeBody to be.
func NormalizeBody(text string, stem Stemmer) []string {
	text = stripPunctuation(fold(stripBrackets(text)))

	fields := strings.Fields(text)
	seen := make(map[string]struct{}, len(fields))
	bag := make([]string, 0, len(fields))
	for _, tok := range fields {
		if isBodyStopword(tok) {
			continue
		}
		// checked again after stemming so that "this" cannot become "thi"
		if stem != nil {
			tok = stem(tok)
			if tok == "" || isBodyStopword(tok) {
				continue
			}
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		bag = append(bag, tok)
	}
	slices.Sort(bag)
	return bag
}

func isKeyStopword(tok string) bool {
	if _, ok := keyStopwords[tok]; ok {
		return true
	}
	_, ok := answerStopwords[tok]
	return ok
}

func isBodyStopword(tok string) bool {
	_, ok := bodyStopwords[tok]
	return ok
}

func stripBrackets(s string) string {
	for {
		next := closedBrackets.ReplaceAllString(s, " ")
		if next == s {
			break
		}
		s = next
	}
	return unclosedBrackets.ReplaceAllString(s, "")
}

func fold(s string) string {
	s = strings.ToLower(s)
	if isASCII(s) {
		return s
	}
	t := foldPool.Get().(transform.Transformer)
	defer foldPool.Put(t)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return transliterate.Replace(out)
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
}

func truncateRunes(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i]
		}
		n++
	}
	return s
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
