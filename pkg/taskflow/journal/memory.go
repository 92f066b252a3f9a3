package journal

import (
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	task      string
	data      []byte
	timestamp time.Time
}

// MemoryStore keeps records in process memory. Useful for tests and for
// resuming within one process.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]map[int]memoryEntry
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]map[int]memoryEntry)}
}

// Save implements Store.
func (s *MemoryStore) Save(runID string, sequence int, task string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	records, ok := s.runs[runID]
	if !ok {
		records = make(map[int]memoryEntry)
		s.runs[runID] = records
	}

	// Copy so callers can reuse their buffer.
	buf := make([]byte, len(data))
	copy(buf, data)
	records[sequence] = memoryEntry{task: task, data: buf, timestamp: time.Now().UTC()}
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(runID string, sequence int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	entry, ok := s.runs[runID][sequence]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(entry.data), nil
}

// Latest implements Store.
func (s *MemoryStore) Latest(runID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	records := s.runs[runID]
	if len(records) == 0 {
		return nil, ErrNotFound
	}

	latest := -1
	for seq := range records {
		if latest < 0 || seq > latest {
			latest = seq
		}
	}
	return cloneBytes(records[latest].data), nil
}

// List implements Store.
func (s *MemoryStore) List(runID string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	infos := make([]Info, 0, len(s.runs[runID]))
	for seq, entry := range s.runs[runID] {
		infos = append(infos, Info{
			RunID:     runID,
			Task:      entry.task,
			Sequence:  seq,
			Timestamp: entry.timestamp,
			Size:      int64(len(entry.data)),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Sequence < infos[j].Sequence })
	return infos, nil
}

// Runs implements Store.
func (s *MemoryStore) Runs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	ids := make([]string, 0, len(s.runs))
	for id, records := range s.runs {
		if len(records) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteRun implements Store.
func (s *MemoryStore) DeleteRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	delete(s.runs, runID)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.runs = nil
	return nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
