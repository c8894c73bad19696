package deduplication

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/cluedup/internal/normalize"
	"github.com/steveyegge/cluedup/internal/similarity"
	"github.com/steveyegge/cluedup/internal/storage/memory"
	"github.com/steveyegge/cluedup/internal/threshold"
	"github.com/steveyegge/cluedup/internal/types"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 2
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, store *memory.Store) *Engine {
	t.Helper()
	var e *Engine
	var err error
	if store == nil {
		e, err = NewEngine(cfg, nil, zerolog.Nop())
	} else {
		e, err = NewEngine(cfg, store, zerolog.Nop())
	}
	require.NoError(t, err)
	return e
}

func survivorIDs(r *Result) []int {
	ids := make([]int, len(r.Survivors))
	for i, s := range r.Survivors {
		ids[i] = s.ID
	}
	return ids
}

func TestEngine_Scenarios(t *testing.T) {
	tests := []struct {
		name          string
		records       []types.Record
		modify        func(*Config)
		wantSurvivors []int
		wantDeletions []types.Deletion
	}{
		{
			name: "smaller bag under a similar key is deleted",
			records: types.NewRecords(
				[2]string{"Mozart", "composed requiem vienna"},
				[2]string{"W.A. Mozart", "composed requiem vienna 1791"},
			),
			wantSurvivors: []int{1},
			wantDeletions: []types.Deletion{
				{RecordID: 0, SupersededBy: 1, Reason: types.ReasonPivotSuperseded},
			},
		},
		{
			name: "pivot with the bigger bag deletes the later record",
			records: types.NewRecords(
				[2]string{"Mozart", "composed requiem vienna 1791"},
				[2]string{"W.A. Mozart", "composed requiem vienna"},
			),
			wantSurvivors: []int{0},
			wantDeletions: []types.Deletion{
				{RecordID: 1, SupersededBy: 0, Reason: types.ReasonSmallerBody},
			},
		},
		{
			name: "distinct keys are never merged",
			records: types.NewRecords(
				[2]string{"Mozart", "composed requiem vienna"},
				[2]string{"Liszt", "composed requiem vienna 1791"},
			),
			wantSurvivors: []int{0, 1},
		},
		{
			name: "two equal bags on top of a smaller one both survive",
			records: types.NewRecords(
				[2]string{"Chopin", "nocturnes polonaises mazurkas"},
				[2]string{"Chopin", "nocturnes polonaises"},
				[2]string{"Chopin", "polonaises mazurkas nocturnes"},
			),
			wantSurvivors: []int{0, 2},
			wantDeletions: []types.Deletion{
				{RecordID: 1, SupersededBy: 0, Reason: types.ReasonPivotSuperseded},
			},
		},
		{
			name: "empty bags under matching keys tie",
			records: types.NewRecords(
				[2]string{"Bach", "the"},
				[2]string{"Bach", "this is it"},
			),
			wantSurvivors: []int{0, 1},
		},
		{
			name: "identical records tie",
			records: types.NewRecords(
				[2]string{"Haydn", "wrote the surprise symphony"},
				[2]string{"Haydn", "wrote the surprise symphony"},
			),
			wantSurvivors: []int{0, 1},
		},
		{
			name: "keep_pivot collapses identical records to the first in sort order",
			records: types.NewRecords(
				[2]string{"Haydn", "wrote the surprise symphony"},
				[2]string{"Haydn", "wrote the surprise symphony"},
			),
			modify:        func(c *Config) { c.TieBreak = TieKeepPivot },
			wantSurvivors: []int{0},
			wantDeletions: []types.Deletion{
				{RecordID: 1, SupersededBy: 0, Reason: types.ReasonTieBreak},
			},
		},
		{
			name: "keep_pivot does not apply when the pivot is superseded",
			records: types.NewRecords(
				[2]string{"Chopin", "nocturnes polonaises"},
				[2]string{"Chopin", "polonaises nocturnes"},
				[2]string{"Chopin", "nocturnes polonaises mazurkas"},
			),
			modify:        func(c *Config) { c.TieBreak = TieKeepPivot },
			wantSurvivors: []int{2},
			wantDeletions: []types.Deletion{
				// record 0 is the pivot; 2 sorts between 0 and 1 by raw body
				{RecordID: 0, SupersededBy: 2, Reason: types.ReasonPivotSuperseded},
				{RecordID: 1, SupersededBy: 2, Reason: types.ReasonSmallerBody},
			},
		},
		{
			name: "partial overlap below the majority is kept",
			records: types.NewRecords(
				[2]string{"Verdi", "aida rigoletto traviata otello"},
				[2]string{"Verdi", "aida falstaff nabucco macbeth"},
			),
			wantSurvivors: []int{0, 1},
		},
		{
			name: "majority overlap on larger bags is a duplicate",
			records: types.NewRecords(
				[2]string{"Verdi", "aida rigoletto traviata otello"},
				[2]string{"Verdi", "aida rigoletto traviata falstaff nabucco"},
			),
			wantSurvivors: []int{1},
			wantDeletions: []types.Deletion{
				{RecordID: 0, SupersededBy: 1, Reason: types.ReasonSmallerBody},
			},
		},
		{
			name: "jaccard is stricter than overlap",
			records: types.NewRecords(
				[2]string{"Verdi", "aida rigoletto traviata otello"},
				[2]string{"Verdi", "aida rigoletto traviata falstaff nabucco"},
			),
			modify:        func(c *Config) { c.BodyMetric = similarity.Jaccard },
			wantSurvivors: []int{0, 1},
		},
		{
			name: "fixed body rule",
			records: types.NewRecords(
				[2]string{"Verdi", "aida rigoletto"},
				[2]string{"Verdi", "aida falstaff nabucco"},
			),
			modify:        func(c *Config) { c.BodyThreshold = threshold.FixedRule(0.5) },
			wantSurvivors: []int{1},
			wantDeletions: []types.Deletion{
				{RecordID: 0, SupersededBy: 1, Reason: types.ReasonSmallerBody},
			},
		},
		{
			name: "reject clause does not affect the key",
			records: types.NewRecords(
				[2]string{"Mozart [do not accept Salieri]", "composed requiem vienna"},
				[2]string{"Mozart; do not accept Salieri", "composed requiem vienna 1791"},
			),
			wantSurvivors: []int{1},
			wantDeletions: []types.Deletion{
				{RecordID: 0, SupersededBy: 1, Reason: types.ReasonPivotSuperseded},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.modify != nil {
				tt.modify(&cfg)
			}
			result, err := newTestEngine(t, cfg, nil).Deduplicate(context.Background(), tt.records)
			require.NoError(t, err)
			require.NoError(t, result.Validate())

			assert.Equal(t, tt.wantSurvivors, survivorIDs(result))
			if tt.wantDeletions == nil {
				assert.Empty(t, result.Deletions)
			} else {
				assert.Equal(t, tt.wantDeletions, result.Deletions)
			}
			assert.Empty(t, result.RunID, "no store, no run id")
		})
	}
}

func TestEngine_DegenerateRecordsAreKept(t *testing.T) {
	records := types.NewRecords(
		[2]string{"", "the"},
		[2]string{"Ravel", "bolero"},
		[2]string{"the", "figures"},
	)
	result, err := newTestEngine(t, testConfig(), nil).Deduplicate(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, survivorIDs(result))
	assert.Equal(t, 1, result.Stats.DegenerateKeys, "a missing key is coerced, a stopword key is empty")
	assert.Equal(t, 2, result.Stats.DegenerateBodies)
}

func TestEngine_EmptyBagLosesToAnyMatch(t *testing.T) {
	records := types.NewRecords(
		[2]string{"[MISSING]", "the"},
		[2]string{"", ""},
	)
	result, err := newTestEngine(t, testConfig(), nil).Deduplicate(context.Background(), records)
	require.NoError(t, err)

	// both keys coerce to the same sentinel; the empty body clue sorts first
	// and its "missing clue" bag overlaps the empty bag fully
	assert.Equal(t, []int{1}, survivorIDs(result))
	assert.Equal(t, []types.Deletion{
		{RecordID: 0, SupersededBy: 1, Reason: types.ReasonSmallerBody},
	}, result.Deletions)
}

func TestEngine_PassthroughAndOrder(t *testing.T) {
	records := []types.Record{
		{ID: 0, Key: "Liszt", Body: "hungarian rhapsodies", Fields: []string{"music", "t1"}},
		{ID: 1, Key: "Mozart", Body: "composed requiem vienna", Fields: []string{"music", "t2"}},
		{ID: 2, Key: "Bach", Body: "goldberg variations", Fields: []string{"music", "t3"}},
		{ID: 3, Key: "W.A. Mozart", Body: "composed requiem vienna 1791", Fields: []string{"music", "t4"}},
	}
	result, err := newTestEngine(t, testConfig(), nil).Deduplicate(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, []types.Record{records[0], records[2], records[3]}, result.Survivors)
	assert.Equal(t, 4, result.Stats.TotalRecords)
	assert.Equal(t, 4, result.Stats.ComparedRecords)
	assert.Equal(t, 4, result.Stats.Blocks)
}

func TestEngine_InputShape(t *testing.T) {
	records := types.NewRecords([2]string{"a", "b"}, [2]string{"c", "d"})
	records[1].ID = 5

	_, err := newTestEngine(t, testConfig(), nil).Deduplicate(context.Background(), records)
	var shape *InputShapeError
	require.True(t, errors.As(err, &shape), "got %v", err)
	assert.Equal(t, 5, shape.RecordID)
}

func TestEngine_RestrictFilters(t *testing.T) {
	records := types.NewRecords(
		[2]string{"Mozart", "composed requiem vienna"},
		[2]string{"W.A. Mozart", "composed requiem vienna 1791"},
		[2]string{"Chopin", "nocturnes polonaises"},
		[2]string{"Chopin", "nocturnes polonaises mazurkas"},
	)

	t.Run("key", func(t *testing.T) {
		cfg := testConfig()
		cfg.RestrictKeySubstring = "CHOPIN"
		result, err := newTestEngine(t, cfg, nil).Deduplicate(context.Background(), records)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 3}, survivorIDs(result))
		assert.Equal(t, 2, result.Stats.ComparedRecords)
	})

	t.Run("body", func(t *testing.T) {
		cfg := testConfig()
		cfg.RestrictBodySubstring = "Requiem"
		result, err := newTestEngine(t, cfg, nil).Deduplicate(context.Background(), records)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, survivorIDs(result))
	})

	t.Run("both", func(t *testing.T) {
		cfg := testConfig()
		cfg.RestrictKeySubstring = "chopin"
		cfg.RestrictBodySubstring = "requiem"
		result, err := newTestEngine(t, cfg, nil).Deduplicate(context.Background(), records)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2, 3}, survivorIDs(result))
		assert.Equal(t, 0, result.Stats.ComparedRecords)
	})
}

func TestEngine_MinBlockFrequency(t *testing.T) {
	records := types.NewRecords(
		[2]string{"Mozart", "composed requiem vienna"},
		[2]string{"W.A. Mozart", "composed requiem vienna 1791"},
		[2]string{"Mozart", "composed requiem"},
	)

	cfg := testConfig()
	result, err := newTestEngine(t, cfg, nil).Deduplicate(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, survivorIDs(result))

	// "wamozart" occurs once, so it is only compared within its own block
	cfg.MinBlockFrequency = 2
	result, err = newTestEngine(t, cfg, nil).Deduplicate(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, survivorIDs(result))
	assert.Equal(t, 1, result.Stats.RareBlocks)
	assert.Equal(t, int64(0), result.Stats.KeyComparisons)
}

func TestEngine_SortDirection(t *testing.T) {
	// "wamozart" is the pivot when sorting descending
	records := types.NewRecords(
		[2]string{"Mozart", "composed requiem vienna"},
		[2]string{"W.A. Mozart", "composed requiem vienna 1791"},
	)
	cfg := testConfig()
	cfg.SortAscending = false
	result, err := newTestEngine(t, cfg, nil).Deduplicate(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, []types.Deletion{
		{RecordID: 0, SupersededBy: 1, Reason: types.ReasonSmallerBody},
	}, result.Deletions)
}

// corpus builds a deterministic corpus with many near-duplicates.
func corpus(n int, seed uint64) []types.Record {
	keys := []string{
		"Mozart", "W.A. Mozart", "Mozrat", "Liszt", "Franz Liszt", "Bach",
		"J.S. Bach", "Chopin", "Frederic Chopin", "Chopine", "the Danube",
		"Danube River", "Ravel", "Verdi", "", "[MISSING]",
	}
	vocab := strings.Fields("requiem vienna opera symphony nocturne river concerto piano " +
		"violin sonata fugue waltz ballet bolero aria 1791 1810 salzburg warsaw paris the this")
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	records := make([]types.Record, n)
	for i := range records {
		words := make([]string, rng.IntN(6))
		for j := range words {
			words[j] = vocab[rng.IntN(len(vocab))]
		}
		records[i] = types.Record{
			ID:   i,
			Key:  keys[rng.IntN(len(keys))],
			Body: strings.Join(words, " "),
		}
	}
	return records
}

// bruteForce scans every later record for every active pivot, with no
// blocking or prefiltering.
func bruteForce(t *testing.T, records []types.Record, tie TieBreak) []types.Deletion {
	t.Helper()
	type entry struct {
		id   int
		key  string
		body string
		bag  []string
	}
	entries := make([]entry, len(records))
	for i, r := range records {
		entries[i] = entry{
			id:   r.ID,
			key:  normalize.NormalizeKey(normalize.Coerce(r.Key, normalize.MissingKey), normalize.DefaultMaxKeyLength),
			body: r.Body,
			bag:  normalize.NormalizeBody(normalize.Coerce(r.Body, normalize.MissingBody), nil),
		}
	}
	slices.SortFunc(entries, func(a, b entry) int {
		return cmp.Or(strings.Compare(a.key, b.key), strings.Compare(a.body, b.body), cmp.Compare(a.id, b.id))
	})

	policy := threshold.DefaultPolicy()
	deleted := NewDeletionSet(len(records))
	for i, p := range entries {
		if deleted.Has(p.id) {
			continue
		}
		keyT := 1.0
		if p.key != "" {
			var err error
			keyT, err = policy.KeyThreshold(len([]rune(p.key)))
			require.NoError(t, err)
		}
		bodyT := 1.0
		if len(p.bag) > 0 {
			var err error
			bodyT, err = policy.BodyThreshold(len(p.bag))
			require.NoError(t, err)
		}
		bigger := -1
		var ties []int
		for _, c := range entries[i+1:] {
			if deleted.Has(c.id) {
				continue
			}
			if p.key != c.key && (p.key == "" || !similarity.Meets(similarity.KeySimilarity(p.key, c.key, similarity.JaroWinkler), keyT)) {
				continue
			}
			if !similarity.Meets(similarity.BodyOverlap(p.bag, c.bag), bodyT) {
				continue
			}
			switch {
			case len(c.bag) < len(p.bag):
				deleted.Mark(c.id, p.id, types.ReasonSmallerBody)
			case len(c.bag) > len(p.bag):
				if bigger < 0 {
					bigger = c.id
				}
			case tie == TieKeepPivot:
				ties = append(ties, c.id)
			}
		}
		if bigger >= 0 {
			deleted.Mark(p.id, bigger, types.ReasonPivotSuperseded)
			continue
		}
		for _, id := range ties {
			deleted.Mark(id, p.id, types.ReasonTieBreak)
		}
	}

	out := slices.Clone(deleted.Deletions())
	slices.SortFunc(out, func(a, b types.Deletion) int { return cmp.Compare(a.RecordID, b.RecordID) })
	return out
}

func TestEngine_MatchesBruteForce(t *testing.T) {
	for _, tie := range []TieBreak{TieKeepBoth, TieKeepPivot} {
		for seed := uint64(1); seed <= 5; seed++ {
			t.Run(fmt.Sprintf("%s/seed%d", tie, seed), func(t *testing.T) {
				records := corpus(400, seed)
				cfg := testConfig()
				cfg.TieBreak = tie
				result, err := newTestEngine(t, cfg, nil).Deduplicate(context.Background(), records)
				require.NoError(t, err)
				require.NoError(t, result.Validate())

				want := bruteForce(t, records, tie)
				if len(want) == 0 {
					want = nil
				}
				got := result.Deletions
				if len(got) == 0 {
					got = nil
				}
				assert.Equal(t, want, got)
				assert.NotEmpty(t, got, "corpus should contain duplicates")
			})
		}
	}
}

func TestEngine_Properties(t *testing.T) {
	records := corpus(1500, 42)
	result, err := newTestEngine(t, testConfig(), nil).Deduplicate(context.Background(), records)
	require.NoError(t, err)
	require.NoError(t, result.Validate())

	assert.LessOrEqual(t, len(result.Survivors), len(records))

	deleted := make(map[int]types.Deletion)
	for _, d := range result.Deletions {
		assert.NotEqual(t, d.RecordID, d.SupersededBy, "record %d deleted itself", d.RecordID)
		deleted[d.RecordID] = d
	}
	// smaller-body and pivot-superseded never both fire for one ordered pair
	for _, d := range result.Deletions {
		if back, ok := deleted[d.SupersededBy]; ok && back.SupersededBy == d.RecordID {
			t.Errorf("records %d and %d deleted each other", d.RecordID, d.SupersededBy)
		}
	}
}

func TestEngine_ParallelMatchesSerial(t *testing.T) {
	records := corpus(2000, 7)

	serial := testConfig()
	serial.Workers = 1
	serial.BlockBatchSize = 1
	want, err := newTestEngine(t, serial, nil).Deduplicate(context.Background(), records)
	require.NoError(t, err)

	for _, batch := range []int{2, 3, 1024} {
		parallel := testConfig()
		parallel.Workers = 8
		parallel.BlockBatchSize = batch
		got, err := newTestEngine(t, parallel, nil).Deduplicate(context.Background(), records)
		require.NoError(t, err)
		assert.Equal(t, want.Deletions, got.Deletions, "batch size %d", batch)
		assert.Equal(t, want.Stats.KeyComparisons, got.Stats.KeyComparisons)
		assert.Equal(t, want.Stats.BodyComparisons, got.Stats.BodyComparisons)
	}
}

// distinctKeyCorpus gives every record its own random answer drawn from a
// wide alphabet, plus one lightly edited copy for every tenth record.
func distinctKeyCorpus(n int, seed uint64) []types.Record {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	var records []types.Record
	for len(records) < n {
		key := make([]rune, 6+rng.IntN(10))
		for i := range key {
			key[i] = rune(0x4e00 + rng.IntN(3000))
		}
		records = append(records, types.Record{ID: len(records), Key: string(key), Body: "requiem vienna"})
		if len(records)%10 == 1 && len(records) < n {
			key[rng.IntN(len(key))] = 'x'
			records = append(records, types.Record{ID: len(records), Key: string(key), Body: "requiem"})
		}
	}
	return records
}

func TestEngine_KeyComparisonsTrackNearPairs(t *testing.T) {
	run := func(n int) Stats {
		result, err := newTestEngine(t, testConfig(), nil).Deduplicate(context.Background(), distinctKeyCorpus(n, uint64(n)))
		require.NoError(t, err)
		return result.Stats
	}

	small := run(3000)
	large := run(6000)
	for _, s := range []Stats{small, large} {
		allPairs := int64(s.Blocks) * int64(s.Blocks-1) / 2
		assert.Less(t, s.KeyComparisons, allPairs/100, "%d keys", s.Blocks)
		// each edited copy is still compared with its original
		assert.GreaterOrEqual(t, s.KeyComparisons, int64(s.TotalRecords/12))
	}
	assert.Less(t, float64(large.KeyComparisons), 3*float64(small.KeyComparisons),
		"compared %d then %d keys", small.KeyComparisons, large.KeyComparisons)
}

func TestEngine_CheckpointAndResume(t *testing.T) {
	records := corpus(800, 3)
	cfg := testConfig()
	cfg.BlockBatchSize = 2
	cfg.CheckpointInterval = 0

	want, err := newTestEngine(t, cfg, nil).Deduplicate(context.Background(), records)
	require.NoError(t, err)

	store := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.SaveHook = func(id string, nextBlock int, complete bool) error {
		if nextBlock >= 4 {
			cancel()
		}
		return nil
	}

	_, err = newTestEngine(t, cfg, store).Deduplicate(ctx, records)
	var interrupted *InterruptedError
	require.True(t, errors.As(err, &interrupted), "got %v", err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.GreaterOrEqual(t, interrupted.NextBlock, 4)

	run, err := store.GetRun(context.Background(), interrupted.RunID)
	require.NoError(t, err)
	assert.False(t, run.Complete)
	assert.Equal(t, interrupted.NextBlock, run.NextBlock)

	store.SaveHook = nil
	got, err := newTestEngine(t, cfg, store).Resume(context.Background(), interrupted.RunID, records)
	require.NoError(t, err)
	require.NoError(t, got.Validate())
	assert.True(t, got.Stats.Resumed)
	assert.Equal(t, interrupted.RunID, got.RunID)
	assert.Equal(t, want.Deletions, got.Deletions)
	assert.Equal(t, want.Survivors, got.Survivors)

	run, err = store.GetRun(context.Background(), interrupted.RunID)
	require.NoError(t, err)
	assert.True(t, run.Complete)
	assert.Equal(t, len(want.Deletions), run.Deleted)

	// a completed run resumes without scanning
	again, err := newTestEngine(t, cfg, store).Resume(context.Background(), interrupted.RunID, records)
	require.NoError(t, err)
	assert.Equal(t, want.Deletions, again.Deletions)
	assert.Equal(t, int64(0), again.Stats.BodyComparisons)
}

func TestEngine_ResumeRejectsDifferentInput(t *testing.T) {
	records := corpus(100, 9)
	store := memory.New()
	cfg := testConfig()

	result, err := newTestEngine(t, cfg, store).Deduplicate(context.Background(), records)
	require.NoError(t, err)
	require.NotEmpty(t, result.RunID)

	changed := slices.Clone(records)
	changed[10].Body += " extra"
	_, err = newTestEngine(t, cfg, store).Resume(context.Background(), result.RunID, changed)
	assert.True(t, errors.Is(err, ErrFingerprintMismatch), "got %v", err)

	other := cfg
	other.TieBreak = TieKeepPivot
	_, err = newTestEngine(t, other, store).Resume(context.Background(), result.RunID, records)
	assert.True(t, errors.Is(err, ErrFingerprintMismatch), "got %v", err)

	// worker count is not semantic
	same := cfg
	same.Workers = 5
	_, err = newTestEngine(t, same, store).Resume(context.Background(), result.RunID, records)
	assert.NoError(t, err)
}

func TestEngine_ResumeErrors(t *testing.T) {
	records := corpus(10, 1)

	_, err := newTestEngine(t, testConfig(), nil).Resume(context.Background(), "r1", records)
	assert.True(t, errors.Is(err, ErrNoCheckpointStore))

	_, err = newTestEngine(t, testConfig(), memory.New()).Resume(context.Background(), "missing", records)
	assert.Error(t, err)
}

func TestEngine_CancelWithoutStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(t, testConfig(), nil).Deduplicate(ctx, corpus(100, 2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	var interrupted *InterruptedError
	assert.False(t, errors.As(err, &interrupted))
}

func TestEngine_SaveFailure(t *testing.T) {
	store := memory.New()
	store.SaveHook = func(string, int, bool) error { return errors.New("disk full") }

	_, err := newTestEngine(t, testConfig(), store).Deduplicate(context.Background(), corpus(50, 4))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 0
	_, err := NewEngine(cfg, nil, zerolog.Nop())
	assert.Error(t, err)
}
