// Package journal records subtree propagations that have started but not
// finished, so a crash or a failed batch leaves a resumable entry behind
// instead of a silently partial subtree.
package journal

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindShare   Kind = "share"
	KindUnshare Kind = "unshare"
	KindTrash   Kind = "trash"
	KindRestore Kind = "restore"
)

var ErrEntryNotFound = errors.New("journal entry not found")

// Entry describes one pending propagation. Re-running it must reproduce the
// same mutation, so everything the mutation depends on is stored here.
type Entry struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	RootID    string     `json:"root_id"`
	GroupID   *string    `json:"group_id,omitempty"`
	At        *time.Time `json:"at,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
}

type Journal interface {
	// Begin persists e, assigning an id when it has none.
	Begin(ctx context.Context, e Entry) (Entry, error)
	// Fail records a failed attempt; the entry stays pending.
	Fail(ctx context.Context, id string, cause error) error
	Complete(ctx context.Context, id string) error
	// Pending lists unfinished entries, oldest first.
	Pending(ctx context.Context) ([]Entry, error)
	Close() error
}

func prepare(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	return e
}

func sortByStart(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartedAt.Before(entries[j].StartedAt)
	})
}

// SameField reports whether two kinds write the same node field, so a newer
// entry of one supersedes a pending entry of the other on the same root.
func SameField(a, b Kind) bool {
	return isScope(a) == isScope(b)
}

func isScope(k Kind) bool {
	return k == KindShare || k == KindUnshare
}
