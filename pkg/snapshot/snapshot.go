// Package snapshot materializes a finished crawl into a caller-owned value.
package snapshot

import (
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	errs "zester/pkg/errors"
	"zester/pkg/soundcloud"
)

// Snapshot is a complete copy of one collection at one point in time.
// Records keep the order the server returned them in.
type Snapshot struct {
	RunID     string              `json:"run_id" yaml:"run_id"`
	Kind      soundcloud.Kind     `json:"collection_kind" yaml:"collection_kind"`
	Count     int                 `json:"count" yaml:"count"`
	FetchedAt time.Time           `json:"fetched_at" yaml:"fetched_at"`
	Records   []soundcloud.Record `json:"records" yaml:"records"`
}

// Assembler drains record sequences into snapshots
type Assembler struct {
	// RunID tags every snapshot of one archive run; a new one is generated
	// when empty
	RunID string
	// Now supplies the completion time; defaults to time.Now
	Now func() time.Time
}

// NewAssembler creates an assembler with a fresh run id
func NewAssembler() *Assembler {
	return &Assembler{RunID: uuid.NewString()}
}

// Assemble consumes seq to the end. Any error, a record of another kind or
// a repeated id discards everything gathered so far and no snapshot is
// returned.
func (a *Assembler) Assemble(seq iter.Seq2[soundcloud.Record, error], kind soundcloud.Kind) (*Snapshot, error) {
	var records []soundcloud.Record
	seen := make(map[int64]struct{})

	for record, err := range seq {
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, errs.NewDecodeError(fmt.Sprintf("nil record in %s sequence", kind), nil)
		}
		if record.RecordKind() != kind {
			return nil, errs.NewDecodeError(
				fmt.Sprintf("%s record in %s snapshot", record.RecordKind(), kind), nil)
		}
		if _, dup := seen[record.RecordID()]; dup {
			return nil, errs.NewDecodeError(
				fmt.Sprintf("record id %d repeats in %s snapshot", record.RecordID(), kind), nil)
		}
		seen[record.RecordID()] = struct{}{}
		records = append(records, record)
	}

	if records == nil {
		records = []soundcloud.Record{}
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	runID := a.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	return &Snapshot{
		RunID:     runID,
		Kind:      kind,
		Count:     len(records),
		FetchedAt: now().UTC(),
		Records:   records,
	}, nil
}

// IDs returns the record ids in order
func (s *Snapshot) IDs() []int64 {
	ids := make([]int64, len(s.Records))
	for i, r := range s.Records {
		ids[i] = r.RecordID()
	}
	return ids
}
