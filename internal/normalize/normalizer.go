package normalize

import (
	"fmt"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Stemmer maps a folded token to its canonical form. Implementations must be
// idempotent: stem(stem(x)) == stem(x).
type Stemmer func(string) string

// PluralStemmer strips one trailing "s" from tokens longer than three runes
// that do not end in "ss" ("requiems" -> "requiem", "glass" stays).
func PluralStemmer(tok string) string {
	if utf8.RuneCountInString(tok) <= 3 || !strings.HasSuffix(tok, "s") || strings.HasSuffix(tok, "ss") {
		return tok
	}
	return tok[:len(tok)-1]
}

// StemmerByName resolves a configured stemming strategy. "" and "none" mean
// no stemming (nil).
func StemmerByName(name string) (Stemmer, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "plural":
		return PluralStemmer, nil
	default:
		return nil, fmt.Errorf("unknown stemmer %q (want none or plural)", name)
	}
}

// Normalized is the engine-owned derived form of one record.
type Normalized struct {
	ID   int
	Key  string
	Bag  []string
	Body string // raw body, kept only as the secondary sort key
}

// DegenerateKey reports whether the key normalized to nothing.
func (n Normalized) DegenerateKey() bool { return n.Key == "" }

// DegenerateBody reports whether the body bag is empty.
func (n Normalized) DegenerateBody() bool { return len(n.Bag) == 0 }

// Options configures a Normalizer.
type Options struct {
	MaxKeyLength int
	Stemmer      Stemmer
	// KeyCacheSize bounds the raw-answer -> key memo. 0 disables caching.
	KeyCacheSize int
}

// Normalizer applies coercion and normalization to whole records. It is safe
// for concurrent use.
type Normalizer struct {
	maxKeyLength int
	stemmer      Stemmer
	keyCache     *lru.Cache[string, string]
}

// New creates a Normalizer.
func New(opts Options) (*Normalizer, error) {
	if opts.MaxKeyLength <= 0 {
		return nil, fmt.Errorf("max key length must be positive (got %d)", opts.MaxKeyLength)
	}
	n := &Normalizer{
		maxKeyLength: opts.MaxKeyLength,
		stemmer:      opts.Stemmer,
	}
	if opts.KeyCacheSize > 0 {
		cache, err := lru.New[string, string](opts.KeyCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create key cache: %w", err)
		}
		n.keyCache = cache
	}
	return n, nil
}

// Key normalizes an answer line, coercing missing input first.
func (n *Normalizer) Key(raw string) string {
	raw = Coerce(raw, MissingKey)
	if n.keyCache != nil {
		if key, ok := n.keyCache.Get(raw); ok {
			return key
		}
	}
	key := NormalizeKey(raw, n.maxKeyLength)
	if n.keyCache != nil {
		n.keyCache.Add(raw, key)
	}
	return key
}

// Body normalizes a clue, coercing missing input first.
func (n *Normalizer) Body(raw string) []string {
	return NormalizeBody(Coerce(raw, MissingBody), n.stemmer)
}

// Record derives the normalized form of one record.
func (n *Normalizer) Record(id int, key, body string) Normalized {
	return Normalized{
		ID:   id,
		Key:  n.Key(key),
		Bag:  n.Body(body),
		Body: body,
	}
}
