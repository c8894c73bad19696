// Package blocking sorts normalized records into key blocks and answers
// "which later keys are similar enough to this one" through an inverted
// index over key runes.
package blocking

import (
	"cmp"
	"slices"
	"strings"

	"github.com/steveyegge/cluedup/internal/normalize"
	"github.com/steveyegge/cluedup/internal/similarity"
)

// Block is a maximal run of sorted positions sharing one normalized key.
type Block struct {
	Key   string
	Len   int // key length in runes
	Start int // first position
	End   int // one past the last position
}

// Size is the number of records in the block.
func (b Block) Size() int { return b.End - b.Start }

// Index holds records in processing order together with their interned
// body bags and block boundaries. It is read-only once built.
type Index struct {
	entries  []normalize.Normalized
	bags     [][]uint32
	blocks   []Block
	profiles []similarity.KeyProfile
	keys     *keyIndex
	vocab    *similarity.Vocabulary
}

// Build sorts records by key (ascending unless descending is set), then raw
// body, then ID, and groups them into blocks. records is not modified.
func Build(records []normalize.Normalized, ascending bool) *Index {
	entries := slices.Clone(records)
	slices.SortFunc(entries, func(a, b normalize.Normalized) int {
		c := strings.Compare(a.Key, b.Key)
		if !ascending {
			c = -c
		}
		if c != 0 {
			return c
		}
		if c := strings.Compare(a.Body, b.Body); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	ix := &Index{
		entries: entries,
		bags:    make([][]uint32, len(entries)),
		vocab:   similarity.NewVocabulary(),
	}
	for pos := range entries {
		ix.bags[pos] = ix.vocab.Intern(entries[pos].Bag)
		if pos == 0 || entries[pos].Key != entries[pos-1].Key {
			profile := similarity.NewKeyProfile(entries[pos].Key)
			ix.profiles = append(ix.profiles, profile)
			ix.blocks = append(ix.blocks, Block{Key: profile.Key, Len: profile.Len, Start: pos})
		}
		ix.blocks[len(ix.blocks)-1].End = pos + 1
	}
	ix.keys = newKeyIndex(ix.blocks)
	return ix
}

// Len is the number of indexed records.
func (ix *Index) Len() int { return len(ix.entries) }

// Entry returns the record at a sorted position.
func (ix *Index) Entry(pos int) *normalize.Normalized { return &ix.entries[pos] }

// Bag returns the interned body bag at a sorted position.
func (ix *Index) Bag(pos int) []uint32 { return ix.bags[pos] }

// BagSize returns the number of distinct body tokens at a sorted position.
func (ix *Index) BagSize(pos int) int { return len(ix.bags[pos]) }

// NumBlocks is the number of distinct keys.
func (ix *Index) NumBlocks() int { return len(ix.blocks) }

// Block returns block b.
func (ix *Index) Block(b int) *Block { return &ix.blocks[b] }

// VocabularySize is the number of distinct body tokens across the index.
func (ix *Index) VocabularySize() int { return ix.vocab.Len() }

// SimilarBlocks appends to dst the blocks after b whose key similarity to
// block b's key reaches threshold, in sort order. eligible, when non-nil,
// excludes blocks from consideration. It returns the extended slice and the
// number of keys handed to the matcher after the rune index filtered out
// blocks that cannot reach threshold.
func (ix *Index) SimilarBlocks(dst []int, b int, threshold float64, m *similarity.KeyMatcher, eligible func(int) bool) ([]int, int) {
	start := len(dst)
	if m.MinCommonRunes(threshold, 1, 1) == 0 {
		// a zero threshold matches keys with nothing in common
		for c := b + 1; c < len(ix.blocks); c++ {
			if eligible == nil || eligible(c) {
				dst = append(dst, c)
			}
		}
	} else {
		dst = ix.keys.candidates(dst, b, threshold, m, eligible)
	}
	compared := len(dst) - start
	kept := m.MatchBatch(&ix.profiles[b], ix.profiles, dst[start:], threshold)
	return dst[:start+len(kept)], compared
}
