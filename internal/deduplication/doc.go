// Package deduplication collapses clusters of near-duplicate clue/answer
// records down to their most informative member.
//
// # Overview
//
// A record is a (key, body) pair: the answer line and the clue. Two records
// are duplicates when their normalized keys are fuzzy-equal and their body
// word bags substantially overlap. Of two duplicates the one with the larger
// bag survives; equal-sized duplicates are both kept unless the tie-break
// extension is enabled.
//
// # Algorithm
//
// The engine runs one deterministic forward pass:
//
//  1. Records passing the restrict filters are normalized in parallel.
//  2. They are sorted by normalized key (then raw body, then id) and grouped
//     into key blocks. Every record in a block shares one key.
//  3. For each block, the later blocks whose key similarity reaches the
//     length-dependent key threshold are found once. Candidate generation
//     depends only on keys, so it runs in parallel over a batch of blocks.
//  4. Each still-active pivot in the block is scored against the active
//     records after it: the rest of its own block, then its candidate blocks.
//     Matching candidates with smaller bags are deleted. If any matching
//     candidate has a bigger bag, the pivot itself is deleted in favor of
//     the first one found.
//
// Deletions are applied serially in sort order, so the result does not
// depend on the number of workers.
//
// # Checkpointing
//
// With a storage.CheckpointStore the engine registers every run and saves
// the deletion set and the next block to scan at batch boundaries, at most
// once per CheckpointInterval. Canceling the context saves a final
// checkpoint and returns an *InterruptedError carrying the run id. Resume
// verifies that the records and semantic configuration hash to the same
// fingerprint, restores the deletions and continues from the saved block.
//
// # Configuration
//
// See DefaultConfig() for default values and ApplyEnv for the CLUEDUP_*
// environment variables.
//
// # Usage
//
//	engine, err := deduplication.NewEngine(cfg, store, log.Logger)
//	if err != nil {
//	    return err
//	}
//	result, err := engine.Deduplicate(ctx, records)
//	var interrupted *deduplication.InterruptedError
//	if errors.As(err, &interrupted) {
//	    // later: engine.Resume(ctx, interrupted.RunID, records)
//	}
package deduplication
