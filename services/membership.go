package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"groupdrive/models"
	"groupdrive/store"
	"groupdrive/utils"
)

const DefaultMembershipTTL = 5 * time.Minute

// noGroup marks a cached lookup for a user without a group, so that
// membership misses are cached as well.
const noGroup = "-"

var errCacheMiss = errors.New("membership cache miss")

// GroupCache caches a user's group id. A nil group is a valid cached value.
type GroupCache interface {
	Get(ctx context.Context, uid string) (*string, error)
	Set(ctx context.Context, uid string, groupID *string) error
	Invalidate(ctx context.Context, uid string) error
}

type RedisGroupCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisGroupCache(client *redis.Client, ttl time.Duration) *RedisGroupCache {
	if ttl <= 0 {
		ttl = DefaultMembershipTTL
	}
	return &RedisGroupCache{redis: client, ttl: ttl}
}

func groupKey(uid string) string {
	return fmt.Sprintf("groupdrive:group:%s", uid)
}

func (c *RedisGroupCache) Get(ctx context.Context, uid string) (*string, error) {
	value, err := c.redis.Get(ctx, groupKey(uid)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, errCacheMiss
	}
	if err != nil {
		return nil, err
	}
	if value == noGroup {
		return nil, nil
	}
	return &value, nil
}

func (c *RedisGroupCache) Set(ctx context.Context, uid string, groupID *string) error {
	value := noGroup
	if groupID != nil {
		value = *groupID
	}
	return c.redis.Set(ctx, groupKey(uid), value, c.ttl).Err()
}

func (c *RedisGroupCache) Invalidate(ctx context.Context, uid string) error {
	return c.redis.Del(ctx, groupKey(uid)).Err()
}

// MemoryGroupCache is the in-process cache used when no Redis address is
// configured.
type MemoryGroupCache struct {
	mu      sync.RWMutex
	entries map[string]memoryGroupEntry
	ttl     time.Duration
}

type memoryGroupEntry struct {
	groupID *string
	expires time.Time
}

func NewMemoryGroupCache(ttl time.Duration) *MemoryGroupCache {
	if ttl <= 0 {
		ttl = DefaultMembershipTTL
	}
	return &MemoryGroupCache{entries: make(map[string]memoryGroupEntry), ttl: ttl}
}

func (c *MemoryGroupCache) Get(_ context.Context, uid string) (*string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[uid]
	if !ok || time.Now().After(e.expires) {
		return nil, errCacheMiss
	}
	return e.groupID, nil
}

func (c *MemoryGroupCache) Set(_ context.Context, uid string, groupID *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[uid] = memoryGroupEntry{groupID: groupID, expires: time.Now().Add(c.ttl)}
	return nil
}

func (c *MemoryGroupCache) Invalidate(_ context.Context, uid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, uid)
	return nil
}

// MembershipService resolves a caller's group from the users collection when
// the bearer token does not carry one.
type MembershipService struct {
	store store.DocumentStore
	cache GroupCache
}

func NewMembershipService(st store.DocumentStore, cache GroupCache) *MembershipService {
	return &MembershipService{store: st, cache: cache}
}

// GroupFor returns uid's group, or nil when the user has none or is unknown.
func (s *MembershipService) GroupFor(ctx context.Context, uid string) (*string, error) {
	if s.cache != nil {
		groupID, err := s.cache.Get(ctx, uid)
		if err == nil {
			return groupID, nil
		}
		if !errors.Is(err, errCacheMiss) {
			utils.LogWarning("membership cache unavailable", zap.String("user_id", uid), zap.Error(err))
		}
	}

	var user models.User
	err := s.store.FindOne(ctx, models.UsersCollection, bson.M{"_id": uid}, &user)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up membership: %w", err)
	}
	groupID := user.GroupID
	if groupID != nil && *groupID == "" {
		groupID = nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, uid, groupID); err != nil {
			utils.LogWarning("failed to cache membership", zap.String("user_id", uid), zap.Error(err))
		}
	}
	return groupID, nil
}

// Resolve fills in the identity's group when the token left it empty.
func (s *MembershipService) Resolve(ctx context.Context, identity models.Identity) (models.Identity, error) {
	if identity.UID == "" {
		return identity, ErrNotAuthenticated
	}
	if identity.GroupID != nil {
		return identity, nil
	}
	groupID, err := s.GroupFor(ctx, identity.UID)
	if err != nil {
		return identity, err
	}
	identity.GroupID = groupID
	return identity, nil
}
