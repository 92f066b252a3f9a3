// Package journal records the progress of task flow runs so an interrupted
// run can be resumed from the last task that completed.
package journal

import (
	"errors"
	"time"
)

// Store persists journal records. Each run is an ordered sequence of
// records, one per completed step.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores the record of one step. Saving the same (runID, sequence)
	// twice overwrites the earlier record.
	Save(runID string, sequence int, task string, data []byte) error

	// Load returns the record at sequence, or ErrNotFound.
	Load(runID string, sequence int) ([]byte, error)

	// Latest returns the record with the highest sequence, or ErrNotFound.
	Latest(runID string) ([]byte, error)

	// List returns metadata for every record of a run ordered by sequence.
	// A run without records yields an empty slice.
	List(runID string) ([]Info, error)

	// Runs returns the ids of all runs with at least one record, sorted.
	Runs() ([]string, error)

	// DeleteRun removes every record of a run. Unknown runs are not an error.
	DeleteRun(runID string) error

	// Close releases resources. Further calls return ErrStoreClosed.
	Close() error
}

// Info describes a stored record without its payload.
type Info struct {
	RunID     string
	Task      string
	Sequence  int
	Timestamp time.Time
	Size      int64
}

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("journal record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("journal store closed")
)
