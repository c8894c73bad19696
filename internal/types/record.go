package types

import (
	"fmt"
	"strings"
)

// Record is one input unit for deduplication: an answer line (Key), a clue
// (Body), and passthrough Fields that are carried through untouched.
//
// ID is the record's ordinal position in the input (0..n-1). It is assigned
// by NewRecords and by the tabular reader, and the
// engine rejects batches whose IDs are out of order.
type Record struct {
	ID     int      `json:"id"`
	Key    string   `json:"key"`
	Body   string   `json:"body"`
	Fields []string `json:"fields,omitempty"`
}

// NewRecords builds records from (key, body) pairs, numbering them in order.
func NewRecords(pairs ...[2]string) []Record {
	records := make([]Record, len(pairs))
	for i, p := range pairs {
		records[i] = Record{ID: i, Key: p[0], Body: p[1]}
	}
	return records
}

// ValidateOrdinals checks that records[i].ID == i for every record.
func ValidateOrdinals(records []Record) error {
	for i := range records {
		if records[i].ID != i {
			return &InputShapeError{
				RecordID: records[i].ID,
				Reason:   fmt.Sprintf("record at position %d has id %d (ids must be 0..n-1 in input order)", i, records[i].ID),
			}
		}
	}
	return nil
}

// InputShapeError reports a violated pairing or ordering precondition.
// It is always fatal for the batch.
type InputShapeError struct {
	// RecordID is the id (or data row index) of the first offending record,
	// or -1 when no single record can be blamed.
	RecordID int
	Reason   string
}

func (e *InputShapeError) Error() string {
	if e.RecordID < 0 {
		return "input shape error: " + e.Reason
	}
	return fmt.Sprintf("input shape error at record %d: %s", e.RecordID, e.Reason)
}

// DeletionReason records which rule removed a record.
type DeletionReason string

const (
	// ReasonSmallerBody: the record was a strictly smaller-bodied duplicate of
	// the pivot that superseded it.
	ReasonSmallerBody DeletionReason = "smaller_body"
	// ReasonPivotSuperseded: the record was the pivot and a later duplicate had
	// a strictly larger body.
	ReasonPivotSuperseded DeletionReason = "pivot_superseded"
	// ReasonTieBreak: equal-sized duplicate removed by the keep_pivot tie-break.
	ReasonTieBreak DeletionReason = "tie_break"
)

// IsValid checks if the reason is one of the known values
func (r DeletionReason) IsValid() bool {
	switch r {
	case ReasonSmallerBody, ReasonPivotSuperseded, ReasonTieBreak:
		return true
	}
	return false
}

// ParseDeletionReason parses a stored reason string.
func ParseDeletionReason(s string) (DeletionReason, error) {
	r := DeletionReason(strings.TrimSpace(s))
	if !r.IsValid() {
		return "", fmt.Errorf("invalid deletion reason: %q", s)
	}
	return r, nil
}

// Deletion is one entry of the audit trail: RecordID was removed because
// SupersededBy is a duplicate at least as informative.
type Deletion struct {
	RecordID     int            `json:"record_id"`
	SupersededBy int            `json:"superseded_by"`
	Reason       DeletionReason `json:"reason"`
}

// Validate checks if the deletion has valid field values
func (d Deletion) Validate() error {
	if d.RecordID < 0 {
		return fmt.Errorf("record_id cannot be negative (got %d)", d.RecordID)
	}
	if d.SupersededBy < 0 {
		return fmt.Errorf("superseded_by cannot be negative (got %d)", d.SupersededBy)
	}
	if d.RecordID == d.SupersededBy {
		return fmt.Errorf("record %d cannot supersede itself", d.RecordID)
	}
	if !d.Reason.IsValid() {
		return fmt.Errorf("invalid deletion reason: %s", d.Reason)
	}
	return nil
}
