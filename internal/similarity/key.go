// Package similarity scores pairs of normalized records: keys with a
// Jaro-family string similarity and bodies with a set overlap.
//
// Both sides have a batch form for the hot loop. KeyMatcher compares one
// pivot key against many keys behind a cheap upper-bound prefilter, and
// OverlapScorer compares one pivot bag against many interned bags without
// per-pair setup.
package similarity

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Epsilon is the tolerance applied when comparing a score to a threshold.
const Epsilon = 1e-9

// Meets reports whether score reaches threshold.
func Meets(score, threshold float64) bool {
	return score >= threshold-Epsilon
}

// KeyMetric selects the key similarity function.
type KeyMetric string

const (
	JaroWinkler KeyMetric = "jaro_winkler"
	Jaro        KeyMetric = "jaro"
)

// ParseKeyMetric validates a configured metric name.
func ParseKeyMetric(s string) (KeyMetric, error) {
	switch m := KeyMetric(s); m {
	case JaroWinkler, Jaro:
		return m, nil
	case "":
		return JaroWinkler, nil
	default:
		return "", fmt.Errorf("unknown key metric %q (want jaro_winkler or jaro)", s)
	}
}

// KeySimilarity scores two normalized keys in [0,1]. Identical keys
// (including two empty keys) score 1.
func KeySimilarity(a, b string, metric KeyMetric) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}
	if metric == Jaro {
		return matchr.Jaro(a, b)
	}
	return matchr.JaroWinkler(a, b, false)
}

const histBuckets = 64

// KeyProfile is a key with the rune statistics the prefilter needs.
type KeyProfile struct {
	Key  string
	Len  int
	hist [histBuckets]uint16
}

// NewKeyProfile builds the profile of a normalized key.
func NewKeyProfile(key string) KeyProfile {
	p := KeyProfile{Key: key, Len: utf8.RuneCountInString(key)}
	for _, r := range key {
		b := int(r) % histBuckets
		if p.hist[b] < ^uint16(0) {
			p.hist[b]++
		}
	}
	return p
}

// commonUpperBound bounds the number of matching runes between two keys:
// equal runes always share a bucket.
func commonUpperBound(a, b *KeyProfile) int {
	m := 0
	for i := range a.hist {
		m += int(min(a.hist[i], b.hist[i]))
	}
	return m
}

// upperBound returns a value no smaller than KeySimilarity(a.Key, b.Key).
// Jaro is at most (m/|a| + m/|b| + 1)/3 for m matching runes, and the
// Winkler prefix boost adds at most 0.4 of the remaining distance.
func upperBound(a, b *KeyProfile, metric KeyMetric) float64 {
	if a.Len == 0 || b.Len == 0 {
		return 1.0
	}
	return jaroBound(min(commonUpperBound(a, b), a.Len, b.Len), a.Len, b.Len, metric)
}

func jaroBound(common, la, lb int, metric KeyMetric) float64 {
	if common == 0 {
		return 0
	}
	m := float64(common)
	jaro := (m/float64(la) + m/float64(lb) + 1) / 3
	if metric == Jaro {
		return jaro
	}
	return 0.6*jaro + 0.4
}

// KeyMatcher batches key comparisons for one metric. It is stateless and
// safe for concurrent use.
type KeyMatcher struct {
	metric KeyMetric
}

// NewKeyMatcher creates a matcher for metric.
func NewKeyMatcher(metric KeyMetric) (*KeyMatcher, error) {
	if _, err := ParseKeyMetric(string(metric)); err != nil {
		return nil, err
	}
	if metric == "" {
		metric = JaroWinkler
	}
	return &KeyMatcher{metric: metric}, nil
}

// Metric returns the matcher's metric.
func (m *KeyMatcher) Metric() KeyMetric { return m.metric }

// Matches reports whether the similarity of a and b reaches threshold.
func (m *KeyMatcher) Matches(a, b *KeyProfile, threshold float64) bool {
	if a.Key == b.Key {
		return true
	}
	if a.Len == 0 || b.Len == 0 {
		return false
	}
	// lengths alone rule out most pairs before the histogram is touched
	if !Meets(jaroBound(min(a.Len, b.Len), a.Len, b.Len, m.metric), threshold) {
		return false
	}
	if !Meets(upperBound(a, b, m.metric), threshold) {
		return false
	}
	return Meets(KeySimilarity(a.Key, b.Key, m.metric), threshold)
}

// MatchBatch keeps the candidates whose similarity to pivot reaches
// threshold. candidates index into profiles; the kept ones are compacted to
// the front of candidates, in order, and returned.
func (m *KeyMatcher) MatchBatch(pivot *KeyProfile, profiles []KeyProfile, candidates []int, threshold float64) []int {
	kept := candidates[:0]
	for _, c := range candidates {
		if m.Matches(pivot, &profiles[c], threshold) {
			kept = append(kept, c)
		}
	}
	return kept
}

// minJaro is the smallest Jaro score that can still reach threshold under
// the matcher's metric. The Winkler boost only applies above 0.7 and adds at
// most 0.4 of the remaining distance.
func (m *KeyMatcher) minJaro(threshold float64) float64 {
	t := threshold - Epsilon
	if m.metric == Jaro || t <= 0.7 {
		return t
	}
	return min(t, max(0.7, (t-0.4)/0.6))
}

// MinCommonRunes returns the fewest runes that keys of la and lb runes must
// have in common (as multisets) for their similarity to reach threshold.
// Keys with no rune in common score 0, so the result is at least 1 unless
// threshold is effectively 0, in which case it is 0 and nothing is ruled out.
func (m *KeyMatcher) MinCommonRunes(threshold float64, la, lb int) int {
	if threshold-Epsilon <= 0 || la == 0 || lb == 0 {
		return 0
	}
	// jaro <= (c/la + c/lb + 1)/3 for c common runes
	j := m.minJaro(threshold)
	need := (3*j - 1) * float64(la) * float64(lb) / float64(la+lb)
	return max(int(math.Ceil(need-1e-6)), 1)
}
