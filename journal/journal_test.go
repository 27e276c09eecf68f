package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openJournals(t *testing.T) map[string]Journal {
	t.Helper()
	bj, err := OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bj.Close() })

	return map[string]Journal{
		"badger": bj,
		"memory": NewMemoryJournal(),
	}
}

func TestJournal_Lifecycle(t *testing.T) {
	for name, j := range openJournals(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			group := "g1"

			first, err := j.Begin(ctx, Entry{Kind: KindShare, RootID: "r1", GroupID: &group})
			require.NoError(t, err)
			assert.NotEmpty(t, first.ID)
			assert.False(t, first.StartedAt.IsZero())

			second, err := j.Begin(ctx, Entry{
				Kind:      KindTrash,
				RootID:    "r2",
				StartedAt: first.StartedAt.Add(time.Second),
			})
			require.NoError(t, err)

			pending, err := j.Pending(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 2)
			assert.Equal(t, first.ID, pending[0].ID)
			assert.Equal(t, second.ID, pending[1].ID)
			require.NotNil(t, pending[0].GroupID)
			assert.Equal(t, "g1", *pending[0].GroupID)

			require.NoError(t, j.Fail(ctx, first.ID, errors.New("batch 2 failed")))
			pending, err = j.Pending(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, pending[0].Attempts)
			assert.Equal(t, "batch 2 failed", pending[0].LastError)

			require.NoError(t, j.Complete(ctx, first.ID))
			require.NoError(t, j.Complete(ctx, second.ID))
			pending, err = j.Pending(ctx)
			require.NoError(t, err)
			assert.Empty(t, pending)

			assert.ErrorIs(t, j.Fail(ctx, first.ID, nil), ErrEntryNotFound)
		})
	}
}
