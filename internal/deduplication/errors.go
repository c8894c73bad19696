package deduplication

import (
	"errors"
	"fmt"

	"github.com/steveyegge/cluedup/internal/types"
)

var (
	// ErrFingerprintMismatch means a checkpoint was taken over different
	// records or a different semantic configuration than the resume call.
	ErrFingerprintMismatch = errors.New("checkpoint does not match input records and configuration")

	// ErrNoCheckpointStore is returned by Resume on an engine without a store.
	ErrNoCheckpointStore = errors.New("no checkpoint store configured")
)

// InputShapeError reports a violated pairing or ordering precondition.
type InputShapeError = types.InputShapeError

// InterruptedError is returned when the context is canceled mid-run after
// progress was checkpointed. Resume with RunID to continue from NextBlock.
type InterruptedError struct {
	RunID     string
	NextBlock int
	Err       error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("deduplication interrupted before block %d (resume run %s): %v", e.NextBlock, e.RunID, e.Err)
}

func (e *InterruptedError) Unwrap() error { return e.Err }
