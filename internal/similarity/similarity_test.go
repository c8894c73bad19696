package similarity

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySimilarity(t *testing.T) {
	assert.InDelta(t, 0.9611, KeySimilarity("martha", "marhta", JaroWinkler), 1e-4)
	assert.InDelta(t, 0.9444, KeySimilarity("martha", "marhta", Jaro), 1e-4)

	assert.Equal(t, 1.0, KeySimilarity("mozart", "mozart", JaroWinkler))
	assert.Equal(t, 1.0, KeySimilarity("", "", Jaro))
	assert.Equal(t, 0.0, KeySimilarity("", "mozart", JaroWinkler))
	assert.Equal(t, 0.0, KeySimilarity("abc", "xyz", JaroWinkler))

	assert.GreaterOrEqual(t, KeySimilarity("mozart", "wamozart", JaroWinkler), 0.8)
	assert.Less(t, KeySimilarity("mozart", "liszt", JaroWinkler), 0.8)
}

func TestKeySimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{{"mozart", "wamozart"}, {"dvorak", "dvorjak"}, {"bach", "offenbach"}}
	for _, p := range pairs {
		for _, m := range []KeyMetric{JaroWinkler, Jaro} {
			assert.InDelta(t, KeySimilarity(p[0], p[1], m), KeySimilarity(p[1], p[0], m), 1e-12, "%v %s", p, m)
		}
	}
}

func TestParseMetrics(t *testing.T) {
	m, err := ParseKeyMetric("")
	require.NoError(t, err)
	assert.Equal(t, JaroWinkler, m)

	_, err = ParseKeyMetric("levenshtein")
	assert.Error(t, err)

	b, err := ParseBodyMetric("jaccard")
	require.NoError(t, err)
	assert.Equal(t, Jaccard, b)

	_, err = ParseBodyMetric("cosine")
	assert.Error(t, err)
}

func randomKey(rng *rand.Rand) string {
	const alphabet = "abcdeilmnorstz0"
	n := rng.Intn(14)
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}

func TestUpperBound_NeverBelowSimilarity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		a, b := NewKeyProfile(randomKey(rng)), NewKeyProfile(randomKey(rng))
		for _, m := range []KeyMetric{JaroWinkler, Jaro} {
			assert.GreaterOrEqual(t, upperBound(&a, &b, m)+1e-12, KeySimilarity(a.Key, b.Key, m),
				"%q vs %q (%s)", a.Key, b.Key, m)
		}
	}
}

func TestKeyMatcher_AgreesWithDirectComparison(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	matcher, err := NewKeyMatcher(JaroWinkler)
	require.NoError(t, err)

	candidates := make([]KeyProfile, 300)
	for i := range candidates {
		candidates[i] = NewKeyProfile(randomKey(rng))
	}

	for _, threshold := range []float64{0.7, 0.8, 0.9, 1.0} {
		pivot := NewKeyProfile(randomKey(rng) + "mozart")
		all := make([]int, len(candidates))
		for i := range all {
			all[i] = i
		}
		got := matcher.MatchBatch(&pivot, candidates, all, threshold)
		if len(got) == 0 {
			got = nil
		}

		var want []int
		for i, c := range candidates {
			if Meets(KeySimilarity(pivot.Key, c.Key, JaroWinkler), threshold) {
				want = append(want, i)
			}
		}
		assert.Equal(t, want, got, "threshold %.2f", threshold)
	}
}

// sharedRunes counts runes common to a and b as multisets.
func sharedRunes(a, b string) int {
	counts := make(map[rune]int)
	for _, r := range a {
		counts[r]++
	}
	n := 0
	for _, r := range b {
		if counts[r] > 0 {
			counts[r]--
			n++
		}
	}
	return n
}

func TestMinCommonRunes_NeverRulesOutAMatch(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, metric := range []KeyMetric{JaroWinkler, Jaro} {
		matcher, err := NewKeyMatcher(metric)
		require.NoError(t, err)
		for i := 0; i < 5000; i++ {
			a := randomKey(rng) + "x"
			b := a
			// mutate a copy so that close pairs are common
			for n := rng.Intn(4); n > 0 && len(b) > 1; n-- {
				j := rng.Intn(len(b) - 1)
				b = b[:j] + b[j+1:j+2] + b[j:j+1] + b[j+2:]
				if rng.Intn(2) == 0 {
					b = b[:j] + "q" + b[j+1:]
				}
			}
			if rng.Intn(3) == 0 {
				b = randomKey(rng) + "y"
			}
			score := KeySimilarity(a, b, metric)
			for _, threshold := range []float64{0.3, 0.6, 0.7, 0.73, 0.75, 0.8, 0.85, 0.9, 1.0} {
				if !Meets(score, threshold) {
					continue
				}
				la, lb := len([]rune(a)), len([]rune(b))
				assert.GreaterOrEqual(t, sharedRunes(a, b), matcher.MinCommonRunes(threshold, la, lb),
					"%q vs %q scores %.4f (%s, threshold %.2f)", a, b, score, metric, threshold)
			}
		}
	}
}

func TestMinCommonRunes(t *testing.T) {
	jw, err := NewKeyMatcher(JaroWinkler)
	require.NoError(t, err)
	jaro, err := NewKeyMatcher(Jaro)
	require.NoError(t, err)

	// jaro >= 0.7 needs 1.1 * 10*10/20 = 5.5 common runes
	assert.Equal(t, 6, jw.MinCommonRunes(0.8, 10, 10))
	assert.Equal(t, 6, jw.MinCommonRunes(0.7, 10, 10))
	// plain jaro gets no prefix boost: 1.4 * 5 = 7
	assert.Equal(t, 7, jaro.MinCommonRunes(0.8, 10, 10))
	assert.Equal(t, 10, jaro.MinCommonRunes(1.0, 10, 10))

	assert.Equal(t, 1, jw.MinCommonRunes(0.2, 4, 9))
	assert.Equal(t, 0, jw.MinCommonRunes(0, 4, 9))
	assert.Equal(t, 0, jw.MinCommonRunes(0.8, 0, 9))
}

func TestKeyProfile(t *testing.T) {
	p := NewKeyProfile("dvořák")
	assert.Equal(t, 6, p.Len)

	a, b := NewKeyProfile("abc"), NewKeyProfile("abd")
	assert.Equal(t, 2, commonUpperBound(&a, &b))

	c, d := NewKeyProfile("aab"), NewKeyProfile("ab")
	assert.Equal(t, 2, commonUpperBound(&c, &d))
}

func TestBodyOverlap(t *testing.T) {
	small := []string{"composed", "requiem", "vienna"}
	big := []string{"1791", "composed", "requiem", "vienna"}

	assert.Equal(t, 1.0, BodyOverlap(small, big))
	assert.Equal(t, 0.75, BodyJaccard(small, big))
	assert.Equal(t, 0.0, BodyOverlap([]string{"a"}, []string{"b"}))
	assert.InDelta(t, 0.5, BodyOverlap([]string{"a", "b"}, []string{"b", "c", "d"}), 1e-12)

	// empty bags are maximally similar to anything
	assert.Equal(t, 1.0, BodyOverlap(nil, big))
	assert.Equal(t, 1.0, BodyOverlap([]string{}, []string{}))
	assert.Equal(t, 1.0, BodyJaccard(small, nil))
}

func randomBag(rng *rand.Rand, words []string) []string {
	n := rng.Intn(8)
	seen := map[string]bool{}
	var bag []string
	for i := 0; i < n; i++ {
		w := words[rng.Intn(len(words))]
		if !seen[w] {
			seen[w] = true
			bag = append(bag, w)
		}
	}
	slices.Sort(bag)
	return bag
}

func TestOverlapScorer_MatchesPairwise(t *testing.T) {
	words := []string{"sonata", "piano", "vienna", "requiem", "opera", "1791", "salzburg", "magic", "flute", "symphony"}
	rng := rand.New(rand.NewSource(3))

	for _, metric := range []BodyMetric{Overlap, Jaccard} {
		vocab := NewVocabulary()
		bags := make([][]string, 60)
		ids := make([][]uint32, len(bags))
		for i := range bags {
			bags[i] = randomBag(rng, words)
			ids[i] = vocab.Intern(bags[i])
		}
		assert.LessOrEqual(t, vocab.Len(), len(words))

		scorer := NewOverlapScorer(metric, vocab.Len())
		var scores []float64
		for i := range bags {
			scorer.Load(ids[i])
			scores = scorer.ScoreBatch(scores, ids)
			for j := range bags {
				want := BodyOverlap(bags[i], bags[j])
				if metric == Jaccard {
					want = BodyJaccard(bags[i], bags[j])
				}
				assert.InDelta(t, want, scores[j], 1e-12, "%v vs %v", bags[i], bags[j])
			}
		}
	}
}

func TestOverlapScorer_GenerationWrap(t *testing.T) {
	vocab := NewVocabulary()
	a := vocab.Intern([]string{"x", "y"})
	b := vocab.Intern([]string{"z"})

	s := NewOverlapScorer(Overlap, vocab.Len())
	s.Load(a)
	s.gen = ^uint32(0)
	s.stamps[b[0]] = 0 // would match generation 0 after a naive wrap
	s.Load(a)
	assert.Equal(t, uint32(1), s.gen)
	assert.Equal(t, 0.0, s.Score(b))
	assert.Equal(t, 1.0, s.Score(a))
}
