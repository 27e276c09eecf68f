package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"groupdrive/journal"
	"groupdrive/models"
	"groupdrive/storage"
	"groupdrive/store"
	"groupdrive/utils"
)

func init() {
	utils.SetLogger(zap.NewNop())
}

type fixture struct {
	store      *store.MemoryStore
	objects    *storage.MemoryStore
	journal    *journal.MemoryJournal
	nodes      *NodeService
	propagator *Propagator
	shares     *ShareService
	trash      *TrashService
}

func newFixture(t *testing.T, maxBatch int, policy TrashPolicy) *fixture {
	t.Helper()
	st := store.NewMemoryStore(maxBatch)
	objects := storage.NewMemoryStore()
	j := journal.NewMemoryJournal()
	perm := NewPermissionService()
	nodes := NewNodeService(st, objects, perm, 0)
	propagator := NewPropagator(st, j)

	return &fixture{
		store:      st,
		objects:    objects,
		journal:    j,
		nodes:      nodes,
		propagator: propagator,
		shares:     NewShareService(nodes, propagator, perm),
		trash:      NewTrashService(nodes, propagator, policy, 0),
	}
}

func user(uid string, groupID ...string) models.Identity {
	id := models.Identity{UID: uid}
	if len(groupID) > 0 {
		g := groupID[0]
		id.GroupID = &g
	}
	return id
}

func (f *fixture) folder(t *testing.T, owner models.Identity, name, directory string) *models.Folder {
	t.Helper()
	folder, err := f.nodes.CreateFolder(context.Background(), owner, name, directory)
	require.NoError(t, err)
	return folder
}

func (f *fixture) file(t *testing.T, owner models.Identity, name, directory, content string) *models.File {
	t.Helper()
	file, err := f.nodes.CreateFile(context.Background(), owner, name, directory, int64(len(content)), bytes.NewBufferString(content))
	require.NoError(t, err)
	return file
}

func (f *fixture) reloadFolder(t *testing.T, id primitive.ObjectID) *models.Folder {
	t.Helper()
	folder, err := f.nodes.GetFolder(context.Background(), id)
	require.NoError(t, err)
	return folder
}

func (f *fixture) reloadFile(t *testing.T, id primitive.ObjectID) *models.File {
	t.Helper()
	file, err := f.nodes.GetFile(context.Background(), id)
	require.NoError(t, err)
	return file
}

// allNodes returns every stored node, folders first.
func (f *fixture) allNodes(t *testing.T) []models.Node {
	t.Helper()
	ctx := context.Background()
	var folders []*models.Folder
	require.NoError(t, f.store.Find(ctx, store.Query{Collection: models.FoldersCollection, Filter: bson.M{}}, &folders))
	var files []*models.File
	require.NoError(t, f.store.Find(ctx, store.Query{Collection: models.FilesCollection, Filter: bson.M{}}, &files))

	nodes := make([]models.Node, 0, len(folders)+len(files))
	for _, n := range folders {
		nodes = append(nodes, n)
	}
	for _, n := range files {
		nodes = append(nodes, n)
	}
	return nodes
}

// wideTree builds /root with three subfolders holding two files each: ten
// nodes in total.
func (f *fixture) wideTree(t *testing.T, owner models.Identity) *models.Folder {
	t.Helper()
	root := f.folder(t, owner, "root", "/")
	for _, name := range []string{"a", "b", "c"} {
		sub := f.folder(t, owner, name, "/root/")
		dir := utils.ChildDirectory(sub.FolderPath)
		f.file(t, owner, name+"1.txt", dir, "one")
		f.file(t, owner, name+"2.txt", dir, "two")
	}
	return root
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
