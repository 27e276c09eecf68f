package jobs

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"groupdrive/journal"
	"groupdrive/models"
	"groupdrive/services"
	"groupdrive/storage"
	"groupdrive/store"
	"groupdrive/utils"
)

func init() {
	utils.SetLogger(zap.NewNop())
}

type harness struct {
	nodes   *services.NodeService
	trash   *services.TrashService
	journal *journal.MemoryJournal
	cleaner *TrashCleaner
	objects *storage.MemoryStore
}

func newHarness(retention time.Duration) *harness {
	st := store.NewMemoryStore(0)
	objects := storage.NewMemoryStore()
	j := journal.NewMemoryJournal()
	nodes := services.NewNodeService(st, objects, services.NewPermissionService(), 0)
	propagator := services.NewPropagator(st, j)
	trash := services.NewTrashService(nodes, propagator, services.PolicyRequireEmpty, retention)
	return &harness{
		nodes:   nodes,
		trash:   trash,
		journal: j,
		cleaner: NewTrashCleaner(trash, propagator, time.Hour),
		objects: objects,
	}
}

func TestRunOnce_ResumesPendingPropagation(t *testing.T) {
	h := newHarness(time.Hour)
	ctx := context.Background()
	owner := models.Identity{UID: "u1"}

	docs, err := h.nodes.CreateFolder(ctx, owner, "docs", "/")
	require.NoError(t, err)
	file, err := h.nodes.CreateFile(ctx, owner, "a.txt", "/docs/", 1, bytes.NewBufferString("a"))
	require.NoError(t, err)

	group := "g1"
	_, err = h.journal.Begin(ctx, journal.Entry{Kind: journal.KindShare, RootID: docs.ID.Hex(), GroupID: &group})
	require.NoError(t, err)

	report := h.cleaner.RunOnce(ctx)
	assert.Equal(t, 1, report.Resumed)
	assert.Zero(t, report.ResumeFailed)
	assert.Zero(t, report.Purged)

	reloaded, err := h.nodes.GetFile(ctx, file.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.GroupID)
	assert.Equal(t, "g1", *reloaded.GroupID)

	pending, err := h.journal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunOnce_PurgesExpiredTrash(t *testing.T) {
	h := newHarness(time.Millisecond)
	ctx := context.Background()
	owner := models.Identity{UID: "u1"}

	file, err := h.nodes.CreateFile(ctx, owner, "old.txt", "/", 3, bytes.NewBufferString("old"))
	require.NoError(t, err)
	_, err = h.trash.SoftDelete(ctx, owner, file.ID)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	report := h.cleaner.RunOnce(ctx)
	assert.Equal(t, 1, report.Purged)
	assert.Zero(t, report.PurgeFailures)
	assert.Equal(t, 0, h.objects.Len())

	_, err = h.nodes.GetFile(ctx, file.ID)
	assert.ErrorIs(t, err, services.ErrNodeNotFound)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.cleaner.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cleaner did not stop after cancel")
	}
}
