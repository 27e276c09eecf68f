package journal

import (
	"context"
	"sync"
)

type MemoryJournal struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[string]Entry)}
}

func (j *MemoryJournal) Begin(_ context.Context, e Entry) (Entry, error) {
	e = prepare(e)
	j.mu.Lock()
	j.entries[e.ID] = e
	j.mu.Unlock()
	return e, nil
}

func (j *MemoryJournal) Fail(_ context.Context, id string, cause error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, ok := j.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	e.Attempts++
	if cause != nil {
		e.LastError = cause.Error()
	}
	j.entries[id] = e
	return nil
}

func (j *MemoryJournal) Complete(_ context.Context, id string) error {
	j.mu.Lock()
	delete(j.entries, id)
	j.mu.Unlock()
	return nil
}

func (j *MemoryJournal) Pending(_ context.Context) ([]Entry, error) {
	j.mu.Lock()
	entries := make([]Entry, 0, len(j.entries))
	for _, e := range j.entries {
		entries = append(entries, e)
	}
	j.mu.Unlock()

	sortByStart(entries)
	return entries, nil
}

func (j *MemoryJournal) Close() error { return nil }
