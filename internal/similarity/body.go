package similarity

import "fmt"

// BodyMetric selects the word-bag similarity function.
type BodyMetric string

const (
	// Overlap is the overlap coefficient |a∩b| / min(|a|,|b|).
	Overlap BodyMetric = "overlap"
	// Jaccard is |a∩b| / |a∪b|.
	Jaccard BodyMetric = "jaccard"
)

// ParseBodyMetric validates a configured metric name.
func ParseBodyMetric(s string) (BodyMetric, error) {
	switch m := BodyMetric(s); m {
	case Overlap, Jaccard:
		return m, nil
	case "":
		return Overlap, nil
	default:
		return "", fmt.Errorf("unknown body metric %q (want overlap or jaccard)", s)
	}
}

// score turns an intersection size into the metric value. Either bag being
// empty scores 1: an empty body carries nothing that could tell it apart.
func score(metric BodyMetric, shared, na, nb int) float64 {
	if na == 0 || nb == 0 {
		return 1.0
	}
	if metric == Jaccard {
		return float64(shared) / float64(na+nb-shared)
	}
	return float64(shared) / float64(min(na, nb))
}

// intersect counts common elements of two sorted, distinct slices.
func intersect(a, b []string) int {
	n, i, j := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			n++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return n
}

// BodyOverlap is the overlap coefficient of two sorted, distinct bags.
func BodyOverlap(a, b []string) float64 {
	return score(Overlap, intersect(a, b), len(a), len(b))
}

// BodyJaccard is the Jaccard index of two sorted, distinct bags.
func BodyJaccard(a, b []string) float64 {
	return score(Jaccard, intersect(a, b), len(a), len(b))
}

// Vocabulary interns tokens to dense ids. It is not safe for concurrent
// writes; intern every bag before scoring starts.
type Vocabulary struct {
	ids map[string]uint32
}

// NewVocabulary creates an empty vocabulary.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{ids: make(map[string]uint32)}
}

// Intern maps a bag of distinct tokens to ids, assigning new ids as needed.
func (v *Vocabulary) Intern(bag []string) []uint32 {
	out := make([]uint32, len(bag))
	for i, tok := range bag {
		id, ok := v.ids[tok]
		if !ok {
			id = uint32(len(v.ids))
			v.ids[tok] = id
		}
		out[i] = id
	}
	return out
}

// Len returns the number of distinct tokens seen.
func (v *Vocabulary) Len() int { return len(v.ids) }

// OverlapScorer scores one pivot bag against many candidate bags. Loading a
// pivot stamps its token ids with a fresh generation, so a candidate is
// scored in O(|candidate|) with no clearing between pivots.
//
// A scorer holds mutable state; use one per goroutine.
type OverlapScorer struct {
	metric   BodyMetric
	stamps   []uint32
	gen      uint32
	pivotLen int
}

// NewOverlapScorer creates a scorer for a vocabulary of vocabSize tokens.
func NewOverlapScorer(metric BodyMetric, vocabSize int) *OverlapScorer {
	if metric == "" {
		metric = Overlap
	}
	return &OverlapScorer{metric: metric, stamps: make([]uint32, vocabSize)}
}

// Load makes bag the pivot for subsequent Score calls.
func (s *OverlapScorer) Load(bag []uint32) {
	s.gen++
	if s.gen == 0 {
		// wrapped: stale stamps could collide with the new generation
		clear(s.stamps)
		s.gen = 1
	}
	for _, id := range bag {
		s.stamps[id] = s.gen
	}
	s.pivotLen = len(bag)
}

// Score returns the similarity between the loaded pivot and bag.
func (s *OverlapScorer) Score(bag []uint32) float64 {
	shared := 0
	for _, id := range bag {
		if s.stamps[id] == s.gen {
			shared++
		}
	}
	return score(s.metric, shared, s.pivotLen, len(bag))
}

// ScoreBatch writes the score of every candidate into dst, reusing its
// storage, and returns it.
func (s *OverlapScorer) ScoreBatch(dst []float64, candidates [][]uint32) []float64 {
	dst = dst[:0]
	for _, c := range candidates {
		dst = append(dst, s.Score(c))
	}
	return dst
}
