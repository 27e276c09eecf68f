package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type testDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Directory string             `bson:"directory"`
	GroupID   *string            `bson:"group_id"`
	IsDeleted bool               `bson:"is_deleted"`
	DeletedAt *time.Time         `bson:"deleted_at"`
	Size      int64              `bson:"size"`
}

func strPtr(s string) *string { return &s }

func seed(t *testing.T, s *MemoryStore, docs ...testDoc) []primitive.ObjectID {
	t.Helper()
	ids := make([]primitive.ObjectID, 0, len(docs))
	for _, d := range docs {
		if d.ID.IsZero() {
			d.ID = primitive.NewObjectID()
		}
		require.NoError(t, s.InsertOne(context.Background(), "docs", d))
		ids = append(ids, d.ID)
	}
	return ids
}

func TestMemoryStore_FindEqualityAndNull(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	seed(t, s,
		testDoc{Name: "a", Directory: "/"},
		testDoc{Name: "b", Directory: "/", GroupID: strPtr("g1")},
		testDoc{Name: "c", Directory: "/x/"},
	)

	var private []testDoc
	require.NoError(t, s.Find(ctx, Query{Collection: "docs", Filter: bson.M{"directory": "/", "group_id": nil}}, &private))
	require.Len(t, private, 1)
	assert.Equal(t, "a", private[0].Name)

	var shared []*testDoc
	require.NoError(t, s.Find(ctx, Query{Collection: "docs", Filter: bson.M{"group_id": "g1"}}, &shared))
	require.Len(t, shared, 1)
	assert.Equal(t, "b", shared[0].Name)
	require.NotNil(t, shared[0].GroupID)
	assert.Equal(t, "g1", *shared[0].GroupID)
}

func TestMemoryStore_FindOperatorsSortAndPaging(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	old := now.Add(-48 * time.Hour)
	seed(t, s,
		testDoc{Name: "c", IsDeleted: true, DeletedAt: &old},
		testDoc{Name: "a", IsDeleted: true, DeletedAt: &now},
		testDoc{Name: "b"},
	)

	var expired []testDoc
	cutoff := now.Add(-24 * time.Hour)
	require.NoError(t, s.Find(ctx, Query{
		Collection: "docs",
		Filter:     bson.M{"is_deleted": true, "deleted_at": bson.M{"$lte": cutoff}},
	}, &expired))
	require.Len(t, expired, 1)
	assert.Equal(t, "c", expired[0].Name)

	var trashed []testDoc
	require.NoError(t, s.Find(ctx, Query{Collection: "docs", Filter: bson.M{"deleted_at": bson.M{"$ne": nil}}}, &trashed))
	assert.Len(t, trashed, 2)

	var page []testDoc
	require.NoError(t, s.Find(ctx, Query{
		Collection: "docs",
		Sort:       bson.D{{Key: "name", Value: 1}},
		Skip:       1,
		Limit:      1,
	}, &page))
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].Name)
}

func TestMemoryStore_FindIn(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	seed(t, s,
		testDoc{Name: "a", GroupID: strPtr("g1")},
		testDoc{Name: "b", GroupID: strPtr("g2")},
		testDoc{Name: "c"},
	)

	var found []testDoc
	require.NoError(t, s.Find(ctx, Query{
		Collection: "docs",
		Filter:     bson.M{"group_id": bson.M{"$in": bson.A{"g2", "g3"}}},
	}, &found))
	require.Len(t, found, 1)
	assert.Equal(t, "b", found[0].Name)

	found = nil
	require.NoError(t, s.Find(ctx, Query{
		Collection: "docs",
		Filter:     bson.M{"group_id": bson.M{"$in": bson.A{}}},
	}, &found))
	assert.Empty(t, found)
}

func TestMemoryStore_UpdateDeleteNotFound(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	ids := seed(t, s, testDoc{Name: "a", Directory: "/"})

	require.NoError(t, s.UpdateOne(ctx, "docs", ids[0], bson.M{"group_id": "g2", "size": int64(7)}))

	var got testDoc
	require.NoError(t, s.FindOne(ctx, "docs", bson.M{"_id": ids[0]}, &got))
	require.NotNil(t, got.GroupID)
	assert.Equal(t, "g2", *got.GroupID)
	assert.Equal(t, int64(7), got.Size)

	require.NoError(t, s.UpdateOne(ctx, "docs", ids[0], bson.M{"group_id": nil}))
	require.NoError(t, s.FindOne(ctx, "docs", bson.M{"_id": ids[0], "group_id": nil}, &got))
	assert.Nil(t, got.GroupID)

	require.NoError(t, s.DeleteOne(ctx, "docs", ids[0]))
	assert.ErrorIs(t, s.DeleteOne(ctx, "docs", ids[0]), ErrNotFound)
	assert.ErrorIs(t, s.UpdateOne(ctx, "docs", ids[0], bson.M{"name": "x"}), ErrNotFound)
	assert.ErrorIs(t, s.FindOne(ctx, "docs", bson.M{"_id": ids[0]}, &got), ErrNotFound)
}

func TestMemoryStore_BatchCommitAndHook(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()
	ids := seed(t, s, testDoc{Name: "a"}, testDoc{Name: "b"})

	assert.Equal(t, 2, s.MaxBatchSize())

	batch := s.NewBatch()
	batch.Update("docs", ids[0], bson.M{"is_deleted": true})
	batch.Update("docs", ids[1], bson.M{"is_deleted": true})
	batch.Update("docs", primitive.NewObjectID(), bson.M{"is_deleted": true})
	assert.Equal(t, 3, batch.Len())
	require.NoError(t, batch.Commit(ctx))
	assert.Equal(t, 1, s.Commits())
	assert.Equal(t, 3, s.LargestBatch())

	var deleted []testDoc
	require.NoError(t, s.Find(ctx, Query{Collection: "docs", Filter: bson.M{"is_deleted": true}}, &deleted))
	assert.Len(t, deleted, 2)

	boom := errors.New("boom")
	s.CommitHook = func([]primitive.ObjectID) error { return boom }
	failing := s.NewBatch()
	failing.Update("docs", ids[0], bson.M{"is_deleted": false})
	assert.ErrorIs(t, failing.Commit(ctx), boom)
	assert.Equal(t, []primitive.ObjectID{ids[0]}, failing.IDs())

	var still testDoc
	require.NoError(t, s.FindOne(ctx, "docs", bson.M{"_id": ids[0]}, &still))
	assert.True(t, still.IsDeleted)
}

func TestMemoryStore_FindRejectsNonSlice(t *testing.T) {
	s := NewMemoryStore(0)
	var single testDoc
	assert.Error(t, s.Find(context.Background(), Query{Collection: "docs"}, &single))
}

func TestMemoryStore_StringIDs(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	require.NoError(t, s.InsertOne(ctx, "users", bson.M{"_id": "u1", "group_id": "g1"}))
	assert.Error(t, s.InsertOne(ctx, "users", bson.M{"_id": "u1"}))

	var got bson.M
	require.NoError(t, s.FindOne(ctx, "users", bson.M{"_id": "u1"}, &got))
	assert.Equal(t, "g1", got["group_id"])
	assert.Equal(t, 1, s.Count("users"))
}
