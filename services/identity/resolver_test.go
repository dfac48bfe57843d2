package identity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"smallbiznis-challenge/services/testutil"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type lookupFunc func(ctx context.Context, userID string) (*Profile, error)

func (f lookupFunc) Lookup(ctx context.Context, userID string) (*Profile, error) {
	return f(ctx, userID)
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]string
	err   error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string]string{}}
}

func (c *memoryCache) Get(_ context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return redis.NewStringResult("", c.err)
	}
	v, ok := c.items[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		c.items[key] = string(v)
	case string:
		c.items[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func TestDirectoryLookup(t *testing.T) {
	db := testutil.NewTestDB(t, &UserProfile{})
	require.NoError(t, db.Create(&UserProfile{
		UserID: "u-1", Username: "ayu", DisplayName: "Ayu", AvatarURL: "https://cdn/a.png", Verified: true,
	}).Error)

	dir := NewDirectory(db)

	p, err := dir.Lookup(context.Background(), "u-1")
	require.NoError(t, err)
	require.Equal(t, &Profile{UserID: "u-1", Username: "ayu", DisplayName: "Ayu", AvatarURL: "https://cdn/a.png", Verified: true}, p)

	p, err = dir.Lookup(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestResolveUsesCache(t *testing.T) {
	var calls int32
	source := lookupFunc(func(_ context.Context, userID string) (*Profile, error) {
		atomic.AddInt32(&calls, 1)
		return &Profile{UserID: userID, Username: "budi"}, nil
	})
	cache := newMemoryCache()
	r := NewCachedResolver(source, cache, time.Minute)

	first := r.Resolve(context.Background(), "u-2")
	second := r.Resolve(context.Background(), "u-2")

	require.Equal(t, "budi", first.Username)
	require.Equal(t, first, second)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var cached Profile
	require.NoError(t, json.Unmarshal([]byte(cache.items["identity:profile:u-2"]), &cached))
	require.Equal(t, first, cached)
}

func TestResolveFallsBackToDefaults(t *testing.T) {
	failing := lookupFunc(func(context.Context, string) (*Profile, error) {
		return nil, errors.New("identity db down")
	})
	r := NewCachedResolver(failing, nil, 0)
	require.Equal(t, Profile{UserID: "u-3"}, r.Resolve(context.Background(), "u-3"))

	unknown := lookupFunc(func(context.Context, string) (*Profile, error) { return nil, nil })
	r = NewCachedResolver(unknown, nil, 0)
	require.Equal(t, Profile{UserID: "u-4"}, r.Resolve(context.Background(), "u-4"))

	require.Equal(t, Profile{}, r.Resolve(context.Background(), ""))
}

func TestResolveIgnoresBrokenCache(t *testing.T) {
	source := lookupFunc(func(_ context.Context, userID string) (*Profile, error) {
		return &Profile{UserID: userID, DisplayName: "Citra"}, nil
	})
	cache := newMemoryCache()
	cache.err = errors.New("redis: connection refused")

	r := NewCachedResolver(source, cache, time.Minute)
	require.Equal(t, "Citra", r.Resolve(context.Background(), "u-5").DisplayName)
}

func TestResolveManyDeduplicates(t *testing.T) {
	var calls int32
	source := lookupFunc(func(_ context.Context, userID string) (*Profile, error) {
		atomic.AddInt32(&calls, 1)
		return &Profile{UserID: userID, Username: "user-" + userID}, nil
	})
	r := NewCachedResolver(source, nil, 0)

	out := r.ResolveMany(context.Background(), []string{"a", "b", "a", "c", "b"})

	require.Len(t, out, 3)
	require.Equal(t, "user-a", out["a"].Username)
	require.Equal(t, "user-c", out["c"].Username)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
