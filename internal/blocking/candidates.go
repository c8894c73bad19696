package blocking

import (
	"cmp"
	"slices"
	"sync"

	"github.com/steveyegge/cluedup/internal/similarity"
)

// runeToken is a key rune numbered by its occurrence, so "anna" holds a#1,
// n#1, n#2 and a#2. Two keys share exactly as many tokens as they share
// runes counted as multisets, which bounds the Jaro common-rune count.
type runeToken struct {
	r   rune
	nth int32
}

// posting is one key block containing a token.
type posting struct {
	block int32
	pos   int32 // position of the token in the block's rarest-first list
}

// postingKey splits posting lists by key length, so a lookup only walks
// blocks whose length can still reach the threshold.
type postingKey struct {
	token  int32
	length int32
}

// keyIndex is an inverted index from rune tokens to key blocks. Lookups use
// prefix filtering: with tokens in one global rarest-first order, keys
// sharing at least k tokens must share one among the first len-k+1 tokens of
// each. Survivors are then checked against the full shared-token count.
type keyIndex struct {
	tokens   [][]int32 // per block, token ranks in ascending order
	postings map[postingKey][]posting
	lengths  []int // distinct non-empty key lengths, ascending
	scratch  sync.Pool
}

type lookupScratch struct {
	seen []uint32
	gen  uint32
}

func (s *lookupScratch) reset() {
	s.gen++
	if s.gen == 0 {
		clear(s.seen)
		s.gen = 1
	}
}

func newKeyIndex(blocks []Block) *keyIndex {
	ids := make(map[runeToken]int32)
	var df []int
	tokens := make([][]int32, len(blocks))
	counts := make(map[rune]int32)
	for b := range blocks {
		clear(counts)
		for _, r := range blocks[b].Key {
			counts[r]++
			tok := runeToken{r: r, nth: counts[r]}
			id, ok := ids[tok]
			if !ok {
				id = int32(len(df))
				ids[tok] = id
				df = append(df, 0)
			}
			df[id]++
			tokens[b] = append(tokens[b], id)
		}
	}

	// rarest first, so prefixes hold the most selective tokens
	order := make([]int32, len(df))
	for i := range order {
		order[i] = int32(i)
	}
	slices.SortFunc(order, func(a, b int32) int {
		return cmp.Or(cmp.Compare(df[a], df[b]), cmp.Compare(a, b))
	})
	rank := make([]int32, len(df))
	for r, id := range order {
		rank[id] = int32(r)
	}

	ki := &keyIndex{tokens: tokens, postings: make(map[postingKey][]posting)}
	seenLen := make(map[int]bool)
	for b, toks := range tokens {
		if len(toks) == 0 {
			continue
		}
		for i, id := range toks {
			toks[i] = rank[id]
		}
		slices.Sort(toks)
		if !seenLen[len(toks)] {
			seenLen[len(toks)] = true
			ki.lengths = append(ki.lengths, len(toks))
		}
		for pos, tok := range toks {
			k := postingKey{token: tok, length: int32(len(toks))}
			ki.postings[k] = append(ki.postings[k], posting{block: int32(b), pos: int32(pos)})
		}
	}
	slices.Sort(ki.lengths)

	n := len(blocks)
	ki.scratch.New = func() any { return &lookupScratch{seen: make([]uint32, n)} }
	return ki
}

// candidates appends to dst, in ascending order, every block after b that
// shares enough runes with block b for its key to possibly reach threshold.
// Blocks rejected by eligible are skipped. Posting lists are in block order,
// so each walk starts just past b.
func (ki *keyIndex) candidates(dst []int, b int, threshold float64, m *similarity.KeyMatcher, eligible func(int) bool) []int {
	pivot := ki.tokens[b]
	la := len(pivot)
	if la == 0 {
		return dst
	}
	s := ki.scratch.Get().(*lookupScratch)
	defer ki.scratch.Put(s)
	s.reset()

	start := len(dst)
	after := int32(b + 1)
	for _, lb := range ki.lengths {
		need := m.MinCommonRunes(threshold, la, lb)
		if need > min(la, lb) {
			continue
		}
		for _, tok := range pivot[:la-need+1] {
			list := ki.postings[postingKey{token: tok, length: int32(lb)}]
			i, _ := slices.BinarySearchFunc(list, after, func(p posting, target int32) int {
				return cmp.Compare(p.block, target)
			})
			for _, p := range list[i:] {
				c := int(p.block)
				if int(p.pos) > lb-need || s.seen[c] == s.gen {
					continue
				}
				s.seen[c] = s.gen
				if eligible != nil && !eligible(c) {
					continue
				}
				if sharedTokens(pivot, ki.tokens[c]) < need {
					continue
				}
				dst = append(dst, c)
			}
		}
	}
	slices.Sort(dst[start:])
	return dst
}

// sharedTokens counts the tokens two ascending token lists have in common.
func sharedTokens(a, b []int32) int {
	n := 0
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			n++
			i++
			j++
		}
	}
	return n
}
