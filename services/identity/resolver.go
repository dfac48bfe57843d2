package identity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"smallbiznis-challenge/pkg/logger"
	"smallbiznis-challenge/pkg/metrics"
	"smallbiznis-challenge/pkg/rediskey"
	"smallbiznis-challenge/pkg/repository"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Resolver decorates challenges and submissions with user display data.
// Lookups never fail: missing or unreachable profiles yield empty defaults.
type Resolver interface {
	Resolve(ctx context.Context, userID string) Profile
	ResolveMany(ctx context.Context, userIDs []string) map[string]Profile
}

// Lookup fetches one profile from the source of truth. A nil profile means unknown user.
type Lookup interface {
	Lookup(ctx context.Context, userID string) (*Profile, error)
}

type Directory struct {
	profiles repository.Repository[UserProfile]
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{profiles: repository.ProvideStore[UserProfile](db)}
}

func (d *Directory) Lookup(ctx context.Context, userID string) (*Profile, error) {
	row, err := d.profiles.FindOne(ctx, &UserProfile{UserID: userID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	p := row.toProfile()
	return &p, nil
}

// Cache is the subset of the redis client used for profile caching.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

const resolveConcurrency = 8

type CachedResolver struct {
	source Lookup
	cache  Cache
	ttl    time.Duration
	group  singleflight.Group
}

// NewCachedResolver wraps source with a redis read-through cache. cache may be nil.
func NewCachedResolver(source Lookup, cache Cache, ttl time.Duration) *CachedResolver {
	return &CachedResolver{source: source, cache: cache, ttl: ttl}
}

func (r *CachedResolver) Resolve(ctx context.Context, userID string) Profile {
	if userID == "" {
		return Profile{}
	}

	key := rediskey.BuildProfileKey(userID)
	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, key).Bytes(); err == nil {
			var p Profile
			if err := json.Unmarshal(raw, &p); err == nil {
				metrics.CacheLookups.WithLabelValues("identity", metrics.ResultHit).Inc()
				return p
			}
		} else if !errors.Is(err, redis.Nil) {
			logger.Ctx(ctx).Warn("profile cache unavailable", zap.Error(err))
		}
		metrics.CacheLookups.WithLabelValues("identity", metrics.ResultMiss).Inc()
	}

	v, err, _ := r.group.Do(userID, func() (interface{}, error) {
		return r.source.Lookup(ctx, userID)
	})
	if err != nil {
		logger.Ctx(ctx).Warn("profile lookup failed, using defaults", zap.String("user_id", userID), zap.Error(err))
		return Profile{UserID: userID}
	}

	p := Profile{UserID: userID}
	if found, _ := v.(*Profile); found != nil {
		p = *found
	}

	if r.cache != nil && r.ttl > 0 {
		if raw, err := json.Marshal(p); err == nil {
			if err := r.cache.Set(ctx, key, raw, r.ttl).Err(); err != nil {
				logger.Ctx(ctx).Warn("failed to cache profile", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}

	return p
}

func (r *CachedResolver) ResolveMany(ctx context.Context, userIDs []string) map[string]Profile {
	unique := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	out := make(map[string]Profile, len(unique))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)

	for _, id := range unique {
		g.Go(func() error {
			p := r.Resolve(gctx, id)
			mu.Lock()
			out[id] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out
}
