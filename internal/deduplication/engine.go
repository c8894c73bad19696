package deduplication

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/steveyegge/cluedup/internal/blocking"
	"github.com/steveyegge/cluedup/internal/normalize"
	"github.com/steveyegge/cluedup/internal/similarity"
	"github.com/steveyegge/cluedup/internal/storage"
	"github.com/steveyegge/cluedup/internal/threshold"
	"github.com/steveyegge/cluedup/internal/types"
)

const (
	logKeyRunID        = "run_id"
	logKeyRecordID     = "record_id"
	logKeySupersededBy = "superseded_by"

	// normalizeChunk is the number of records one normalization task handles.
	normalizeChunk = 4096

	// checkpointSaveTimeout bounds the final save after cancellation.
	checkpointSaveTimeout = 10 * time.Second
)

// Engine is the batch deduplicator: it normalizes records, blocks them by
// key, and runs the forward deletion scan over the blocks.
type Engine struct {
	cfg        Config
	store      storage.CheckpointStore
	logger     zerolog.Logger
	policy     *threshold.Policy
	matcher    *similarity.KeyMatcher
	bodyMetric similarity.BodyMetric
	normalizer *normalize.Normalizer
}

var _ Deduplicator = (*Engine)(nil)

// NewEngine creates an engine. store may be nil, in which case runs are not
// checkpointed and cannot be resumed.
func NewEngine(cfg Config, store storage.CheckpointStore, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	policy, err := threshold.NewPolicy(cfg.KeyThresholds, cfg.BodyThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to build threshold policy: %w", err)
	}
	keyMetric, err := similarity.ParseKeyMetric(string(cfg.KeyMetric))
	if err != nil {
		return nil, err
	}
	bodyMetric, err := similarity.ParseBodyMetric(string(cfg.BodyMetric))
	if err != nil {
		return nil, err
	}
	matcher, err := similarity.NewKeyMatcher(keyMetric)
	if err != nil {
		return nil, err
	}
	stemmer, err := normalize.StemmerByName(cfg.Stemming)
	if err != nil {
		return nil, err
	}
	normalizer, err := normalize.New(normalize.Options{
		MaxKeyLength: cfg.MaxKeyLength,
		Stemmer:      stemmer,
		KeyCacheSize: cfg.KeyCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create normalizer: %w", err)
	}

	// canonical names keep fingerprints stable across equivalent configs
	cfg.KeyMetric = keyMetric
	cfg.BodyMetric = bodyMetric
	if cfg.Stemming == "" {
		cfg.Stemming = "none"
	}

	return &Engine{
		cfg:        cfg,
		store:      store,
		logger:     logger,
		policy:     policy,
		matcher:    matcher,
		bodyMetric: bodyMetric,
		normalizer: normalizer,
	}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Deduplicate runs a fresh deduplication. With a checkpoint store the run is
// registered under a new id that is reported in Result.RunID.
func (e *Engine) Deduplicate(ctx context.Context, records []types.Record) (*Result, error) {
	return e.execute(ctx, records, "")
}

// Resume continues a checkpointed run. records must be the same records, and
// the engine the same semantic configuration, as the interrupted run.
// Resuming a completed run rebuilds its result without scanning.
func (e *Engine) Resume(ctx context.Context, runID string, records []types.Record) (*Result, error) {
	if e.store == nil {
		return nil, ErrNoCheckpointStore
	}
	if runID == "" {
		return nil, fmt.Errorf("run id is required to resume")
	}
	return e.execute(ctx, records, runID)
}

// prepared is the derived state of one run.
type prepared struct {
	index *blocking.Index
	rare  []bool // by block
	stats Stats
}

func (e *Engine) execute(ctx context.Context, records []types.Record, resumeID string) (*Result, error) {
	started := time.Now()

	if err := types.ValidateOrdinals(records); err != nil {
		return nil, err
	}

	prep, err := e.prepare(ctx, records)
	if err != nil {
		return nil, err
	}
	stats := &prep.stats
	stats.Resumed = resumeID != ""

	deleted := NewDeletionSet(len(records))
	runID, firstBlock, err := e.openRun(ctx, records, prep.index.NumBlocks(), resumeID, deleted)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With().Str(logKeyRunID, runID).Logger()
	logger.Info().
		Int("records", stats.TotalRecords).
		Int("compared", stats.ComparedRecords).
		Int("blocks", stats.Blocks).
		Int("first_block", firstBlock).
		Bool("resumed", stats.Resumed).
		Msg("Deduplication started")

	if err := e.scan(ctx, logger, prep, deleted, firstBlock, runID); err != nil {
		return nil, err
	}

	result := assemble(records, deleted, *stats)
	result.RunID = runID
	result.Stats.ProcessingTimeMs = time.Since(started).Milliseconds()

	logger.Info().
		Int("survivors", result.Stats.SurvivorCount).
		Int("deleted", result.Stats.DeletedCount).
		Int64("key_comparisons", result.Stats.KeyComparisons).
		Int64("body_comparisons", result.Stats.BodyComparisons).
		Int64("duration_ms", result.Stats.ProcessingTimeMs).
		Msg("Deduplication finished")

	return result, nil
}

// prepare normalizes the records that pass the restrict filters and builds
// the block index over them.
func (e *Engine) prepare(ctx context.Context, records []types.Record) (*prepared, error) {
	ids := make([]int, 0, len(records))
	for i := range records {
		if e.selected(&records[i]) {
			ids = append(ids, i)
		}
	}

	normalized := make([]normalize.Normalized, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for lo := 0; lo < len(ids); lo += normalizeChunk {
		start, end := lo, min(lo+normalizeChunk, len(ids))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				r := &records[ids[i]]
				normalized[i] = e.normalizer.Record(r.ID, r.Key, r.Body)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("normalization interrupted: %w", err)
	}

	prep := &prepared{
		stats: Stats{TotalRecords: len(records), ComparedRecords: len(ids)},
	}
	for i := range normalized {
		n := &normalized[i]
		if n.DegenerateKey() {
			prep.stats.DegenerateKeys++
			e.logger.Debug().Int(logKeyRecordID, n.ID).Str("key", records[n.ID].Key).Msg("Key normalized to nothing")
		}
		if n.DegenerateBody() {
			prep.stats.DegenerateBodies++
			e.logger.Debug().Int(logKeyRecordID, n.ID).Msg("Body normalized to an empty bag")
		}
	}
	if prep.stats.DegenerateKeys > 0 || prep.stats.DegenerateBodies > 0 {
		e.logger.Warn().
			Int("empty_keys", prep.stats.DegenerateKeys).
			Int("empty_bodies", prep.stats.DegenerateBodies).
			Msg("Some records normalized to degenerate forms; they are kept and compared as is")
	}

	prep.index = blocking.Build(normalized, e.cfg.SortAscending)
	prep.stats.Blocks = prep.index.NumBlocks()
	prep.rare = make([]bool, prep.index.NumBlocks())
	if e.cfg.MinBlockFrequency > 0 {
		for b := range prep.rare {
			if prep.index.Block(b).Size() < e.cfg.MinBlockFrequency {
				prep.rare[b] = true
				prep.stats.RareBlocks++
			}
		}
	}
	return prep, nil
}

// selected reports whether a record passes the restrict filters.
func (e *Engine) selected(r *types.Record) bool {
	if s := e.cfg.RestrictKeySubstring; s != "" && !containsFold(r.Key, s) {
		return false
	}
	if s := e.cfg.RestrictBodySubstring; s != "" && !containsFold(r.Body, s) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// openRun registers a new checkpointed run or restores an existing one.
// It returns the run id ("" without a store) and the first block to scan.
func (e *Engine) openRun(ctx context.Context, records []types.Record, numBlocks int, resumeID string, deleted *DeletionSet) (string, int, error) {
	if e.store == nil {
		return "", 0, nil
	}
	fingerprint := e.fingerprint(records)

	if resumeID == "" {
		run := &storage.Run{
			ID:           uuid.NewString(),
			Fingerprint:  fingerprint,
			TotalRecords: len(records),
			TotalBlocks:  numBlocks,
		}
		if err := e.store.CreateRun(ctx, run); err != nil {
			return "", 0, fmt.Errorf("failed to register run: %w", err)
		}
		return run.ID, 0, nil
	}

	run, err := e.store.GetRun(ctx, resumeID)
	if err != nil {
		return "", 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if run.Fingerprint != fingerprint || run.TotalRecords != len(records) || run.TotalBlocks != numBlocks {
		return "", 0, fmt.Errorf("%w: run %s", ErrFingerprintMismatch, resumeID)
	}
	stored, err := e.store.LoadDeletions(ctx, resumeID)
	if err != nil {
		return "", 0, fmt.Errorf("failed to load checkpoint deletions: %w", err)
	}
	if err := deleted.Restore(stored); err != nil {
		return "", 0, fmt.Errorf("corrupt checkpoint for run %s: %w", resumeID, err)
	}

	first := run.NextBlock
	if run.Complete {
		first = numBlocks
	}
	return run.ID, first, nil
}

// fingerprint hashes everything that determines the outcome of a run: the
// semantic configuration and every record's id, key and body.
func (e *Engine) fingerprint(records []types.Record) string {
	c := e.cfg
	h := sha256.New()
	fmt.Fprintf(h, "cluedup/v1|%v|%v|%d|%t|%d|%q|%q|%s|%s|%s|%s\n",
		c.KeyThresholds, c.BodyThreshold, c.MaxKeyLength, c.SortAscending, c.MinBlockFrequency,
		c.RestrictKeySubstring, c.RestrictBodySubstring, c.KeyMetric, c.BodyMetric, c.TieBreak, c.Stemming)
	for i := range records {
		r := &records[i]
		fmt.Fprintf(h, "%d|%d:%s|%d:%s\n", r.ID, len(r.Key), r.Key, len(r.Body), r.Body)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// scan runs the deletion scan from block first to the end, one batch of
// blocks at a time. Candidate blocks for a batch are generated in parallel;
// deletions are applied serially in sort order.
func (e *Engine) scan(ctx context.Context, logger zerolog.Logger, prep *prepared, deleted *DeletionSet, first int, runID string) error {
	ix := prep.index
	numBlocks := ix.NumBlocks()
	batch := e.cfg.BlockBatchSize

	scorer := similarity.NewOverlapScorer(e.bodyMetric, ix.VocabularySize())
	candidates := make([][]int, batch)
	compared := make([]int, batch)
	progress := rate.Sometimes{First: 1, Interval: 10 * time.Second}
	lastSave := time.Now()

	for lo := first; lo < numBlocks; lo += batch {
		hi := min(lo+batch, numBlocks)

		if err := e.generateCandidates(ctx, prep, lo, hi, candidates, compared); err != nil {
			if ctx.Err() != nil {
				return e.interrupt(ctx, logger, runID, lo, deleted)
			}
			return err
		}

		for b := lo; b < hi; b++ {
			prep.stats.KeyComparisons += int64(compared[b-lo])
			if err := e.resolveBlock(logger, prep, b, candidates[b-lo], deleted, scorer); err != nil {
				return err
			}
		}

		progress.Do(func() {
			logger.Info().
				Int("block", hi).
				Int("blocks", numBlocks).
				Int("deleted", deleted.Len()).
				Msg("Deduplication progress")
		})

		if ctx.Err() != nil {
			return e.interrupt(ctx, logger, runID, hi, deleted)
		}
		if e.store != nil && hi < numBlocks && time.Since(lastSave) >= e.cfg.CheckpointInterval {
			if err := e.saveProgress(ctx, logger, runID, hi, false, deleted); err != nil {
				return err
			}
			lastSave = time.Now()
		}
	}

	if e.store != nil {
		return e.saveProgress(ctx, logger, runID, numBlocks, true, deleted)
	}
	return nil
}

// generateCandidates fills candidates[b-lo] with the later blocks whose keys
// match block b's key, for every b in [lo, hi). It depends only on keys, so
// blocks are processed independently.
func (e *Engine) generateCandidates(ctx context.Context, prep *prepared, lo, hi int, candidates [][]int, compared []int) error {
	ix := prep.index
	var eligible func(int) bool
	if prep.stats.RareBlocks > 0 {
		eligible = func(c int) bool { return !prep.rare[c] }
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for b := lo; b < hi; b++ {
		slot := b - lo
		candidates[slot] = candidates[slot][:0]
		compared[slot] = 0

		blk := ix.Block(b)
		// an empty key has no threshold and rare keys stay in their own block
		if blk.Len == 0 || prep.rare[b] {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t, err := e.policy.KeyThreshold(blk.Len)
			if err != nil {
				return fmt.Errorf("block %d: %w", b, err)
			}
			candidates[slot], compared[slot] = ix.SimilarBlocks(candidates[slot], b, t, e.matcher, eligible)
			return nil
		})
	}
	return g.Wait()
}

// resolveBlock runs every active pivot of block b against the later records
// of its own block and the records of its candidate blocks.
func (e *Engine) resolveBlock(logger zerolog.Logger, prep *prepared, b int, later []int, deleted *DeletionSet, scorer *similarity.OverlapScorer) error {
	ix := prep.index
	blk := ix.Block(b)
	var (
		ties      []int
		positions []int
		bags      [][]uint32
		scores    []float64
	)

	for p := blk.Start; p < blk.End; p++ {
		pivot := ix.Entry(p)
		if deleted.Has(pivot.ID) {
			continue
		}

		pivotSize := ix.BagSize(p)
		bodyThreshold := 1.0
		if pivotSize > 0 {
			t, err := e.policy.BodyThreshold(pivotSize)
			if err != nil {
				return fmt.Errorf("record %d: %w", pivot.ID, err)
			}
			bodyThreshold = t
		}
		scorer.Load(ix.Bag(p))

		// the active set is fixed for this pivot: marks below only touch
		// candidates already scored
		positions = positions[:0]
		bags = bags[:0]
		collect := func(c int) {
			if deleted.Has(ix.Entry(c).ID) {
				return
			}
			positions = append(positions, c)
			bags = append(bags, ix.Bag(c))
		}
		for c := p + 1; c < blk.End; c++ {
			collect(c)
		}
		for _, ob := range later {
			other := ix.Block(ob)
			for c := other.Start; c < other.End; c++ {
				collect(c)
			}
		}
		prep.stats.BodyComparisons += int64(len(positions))
		scores = scorer.ScoreBatch(scores, bags)

		bigger := -1
		ties = ties[:0]
		for i, c := range positions {
			if !similarity.Meets(scores[i], bodyThreshold) {
				continue
			}
			cand := ix.Entry(c)
			switch size := ix.BagSize(c); {
			case size < pivotSize:
				e.mark(logger, deleted, cand.ID, pivot.ID, types.ReasonSmallerBody)
			case size > pivotSize:
				if bigger < 0 {
					bigger = cand.ID
				}
			case e.cfg.TieBreak == TieKeepPivot:
				ties = append(ties, cand.ID)
			}
		}

		if bigger >= 0 {
			e.mark(logger, deleted, pivot.ID, bigger, types.ReasonPivotSuperseded)
			continue
		}
		for _, id := range ties {
			e.mark(logger, deleted, id, pivot.ID, types.ReasonTieBreak)
		}
	}
	return nil
}

func (e *Engine) mark(logger zerolog.Logger, deleted *DeletionSet, id, by int, reason types.DeletionReason) {
	if deleted.Mark(id, by, reason) {
		logger.Debug().
			Int(logKeyRecordID, id).
			Int(logKeySupersededBy, by).
			Str("reason", string(reason)).
			Msg("Deleting duplicate")
	}
}

// saveProgress writes deletions made since the last save and advances the
// run to next.
func (e *Engine) saveProgress(ctx context.Context, logger zerolog.Logger, runID string, next int, complete bool, deleted *DeletionSet) error {
	pending := deleted.Drain()
	if err := e.store.SaveProgress(ctx, runID, next, complete, pending); err != nil {
		deleted.Undrain(len(pending))
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	logger.Info().
		Int("next_block", next).
		Bool("complete", complete).
		Int("new_deletions", len(pending)).
		Int("deleted", deleted.Len()).
		Msg("Checkpoint saved")
	return nil
}

// interrupt checkpoints at block next after ctx was canceled.
func (e *Engine) interrupt(ctx context.Context, logger zerolog.Logger, runID string, next int, deleted *DeletionSet) error {
	cause := ctx.Err()
	if e.store == nil {
		return fmt.Errorf("deduplication interrupted: %w", cause)
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkpointSaveTimeout)
	defer cancel()
	if err := e.saveProgress(saveCtx, logger, runID, next, false, deleted); err != nil {
		return fmt.Errorf("deduplication interrupted and checkpoint failed: %w", errors.Join(cause, err))
	}
	logger.Warn().Int("next_block", next).Msg("Deduplication interrupted; resume with this run id")
	return &InterruptedError{RunID: runID, NextBlock: next, Err: cause}
}

// assemble projects the surviving records in input order and the audit
// trail ordered by record id.
func assemble(records []types.Record, deleted *DeletionSet, stats Stats) *Result {
	survivors := make([]types.Record, 0, len(records)-deleted.Len())
	for i := range records {
		if !deleted.Has(records[i].ID) {
			survivors = append(survivors, records[i])
		}
	}

	deletions := slices.Clone(deleted.Deletions())
	slices.SortFunc(deletions, func(a, b types.Deletion) int {
		return cmp.Compare(a.RecordID, b.RecordID)
	})

	stats.SurvivorCount = len(survivors)
	stats.DeletedCount = len(deletions)
	return &Result{
		Survivors: survivors,
		Deletions: deletions,
		Stats:     stats,
	}
}
