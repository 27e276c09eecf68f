package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupdrive/models"
	"groupdrive/store"
)

func TestMembershipService_Resolve(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(0)
	g1 := "g1"
	require.NoError(t, st.InsertOne(ctx, models.UsersCollection, models.User{ID: "u1", GroupID: &g1}))
	require.NoError(t, st.InsertOne(ctx, models.UsersCollection, models.User{ID: "u2"}))

	cache := NewMemoryGroupCache(time.Minute)
	svc := NewMembershipService(st, cache)

	id, err := svc.Resolve(ctx, models.Identity{UID: "u1"})
	require.NoError(t, err)
	require.NotNil(t, id.GroupID)
	assert.Equal(t, "g1", *id.GroupID)

	cached, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "g1", *cached)

	id, err = svc.Resolve(ctx, models.Identity{UID: "u2"})
	require.NoError(t, err)
	assert.Nil(t, id.GroupID)

	id, err = svc.Resolve(ctx, models.Identity{UID: "ghost"})
	require.NoError(t, err)
	assert.Nil(t, id.GroupID)

	claim := "g9"
	id, err = svc.Resolve(ctx, models.Identity{UID: "u1", GroupID: &claim})
	require.NoError(t, err)
	assert.Equal(t, "g9", *id.GroupID)

	_, err = svc.Resolve(ctx, models.Identity{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestMemoryGroupCache_Expiry(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryGroupCache(time.Millisecond)
	g := "g1"
	require.NoError(t, cache.Set(ctx, "u1", &g))
	time.Sleep(5 * time.Millisecond)

	_, err := cache.Get(ctx, "u1")
	assert.ErrorIs(t, err, errCacheMiss)

	require.NoError(t, cache.Set(ctx, "u1", nil))
	require.NoError(t, cache.Invalidate(ctx, "u1"))
	_, err = cache.Get(ctx, "u1")
	assert.ErrorIs(t, err, errCacheMiss)
}
