package deduplication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/cluedup/internal/types"
)

func TestDeletionSet_MarkIsMonotonic(t *testing.T) {
	s := NewDeletionSet(4)

	assert.True(t, s.Mark(2, 3, types.ReasonSmallerBody))
	assert.False(t, s.Mark(2, 1, types.ReasonTieBreak), "second mark must be a no-op")
	assert.True(t, s.Has(2))
	assert.False(t, s.Has(1))
	assert.Equal(t, 1, s.Len())

	// first reason wins
	assert.Equal(t, []types.Deletion{{RecordID: 2, SupersededBy: 3, Reason: types.ReasonSmallerBody}}, s.Deletions())
}

func TestDeletionSet_DrainAndUndrain(t *testing.T) {
	s := NewDeletionSet(5)
	s.Mark(0, 1, types.ReasonSmallerBody)
	s.Mark(3, 4, types.ReasonPivotSuperseded)

	first := s.Drain()
	require.Len(t, first, 2)
	assert.Empty(t, s.Drain())

	s.Mark(2, 4, types.ReasonTieBreak)
	pending := s.Drain()
	require.Len(t, pending, 1)

	// a failed save puts the pending deletions back
	s.Undrain(len(pending))
	assert.Equal(t, pending, s.Drain())

	s.Undrain(100)
	assert.Len(t, s.Drain(), 3)
}

func TestDeletionSet_Restore(t *testing.T) {
	t.Run("valid checkpoint", func(t *testing.T) {
		s := NewDeletionSet(3)
		require.NoError(t, s.Restore([]types.Deletion{
			{RecordID: 1, SupersededBy: 0, Reason: types.ReasonSmallerBody},
		}))
		assert.True(t, s.Has(1))
		assert.Empty(t, s.Drain(), "restored deletions are already persisted")
	})

	tests := []struct {
		name      string
		deletions []types.Deletion
	}{
		{
			name:      "out of range",
			deletions: []types.Deletion{{RecordID: 7, SupersededBy: 0, Reason: types.ReasonSmallerBody}},
		},
		{
			name:      "invalid reason",
			deletions: []types.Deletion{{RecordID: 1, SupersededBy: 0, Reason: "vibes"}},
		},
		{
			name: "deleted twice",
			deletions: []types.Deletion{
				{RecordID: 1, SupersededBy: 0, Reason: types.ReasonSmallerBody},
				{RecordID: 1, SupersededBy: 2, Reason: types.ReasonSmallerBody},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, NewDeletionSet(3).Restore(tt.deletions))
		})
	}
}
