package journal

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the record format version. Records with another version are
// refused on resume.
const Version = 1

// Record is the persisted state after one completed step.
type Record struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Task      string    `json:"task"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	// Payload is the JSON encoding of the value the step returned.
	Payload json.RawMessage `json:"payload"`

	// NextTask is where the run continues. Empty means the run finished.
	NextTask string `json:"next_task"`

	// UnhandledRouted is set once the run has been sent to the
	// unhandled-exception task.
	UnhandledRouted bool `json:"unhandled_routed,omitempty"`
}

// NewRecord builds a record for a step. payload must already be JSON.
func NewRecord(runID, task string, sequence int, payload []byte, next string) *Record {
	return &Record{
		Version:   Version,
		RunID:     runID,
		Task:      task,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		NextTask:  next,
	}
}

// WithUnhandledRouted marks the record as taken after the run was routed to
// the unhandled-exception task.
func (r *Record) WithUnhandledRouted(routed bool) *Record {
	r.UnhandledRouted = routed
	return r
}

// Marshal encodes the record.
func (r *Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal decodes a record.
func Unmarshal(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode journal record: %w", err)
	}
	return &r, nil
}

// Append encodes rec and saves it under its run and sequence.
// It returns the encoded size.
func Append(s Store, rec *Record) (int, error) {
	data, err := rec.Marshal()
	if err != nil {
		return 0, fmt.Errorf("encode journal record: %w", err)
	}
	if err := s.Save(rec.RunID, rec.Sequence, rec.Task, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// LoadLatest returns the decoded latest record of a run.
func LoadLatest(s Store, runID string) (*Record, error) {
	data, err := s.Latest(runID)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
