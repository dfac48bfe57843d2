package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"smallbiznis-challenge/pkg/logger"
	"smallbiznis-challenge/pkg/metrics"
	"smallbiznis-challenge/pkg/rediskey"
	"smallbiznis-challenge/services/submission"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheName = "leaderboard"

// Cache is the subset of the redis client used for leaderboard pages.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

type page struct {
	Positions   []int                    `json:"positions"`
	Submissions []*submission.Submission `json:"submissions"`
}

// version returns the current page generation of the challenge. Pages are
// keyed by generation, so a page loaded before an invalidation is written
// under a key no reader asks for again. ok is false when the cache is unusable.
func (s *Service) version(ctx context.Context, challengeID string) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	v, err := s.cache.Get(ctx, rediskey.BuildLeaderboardVersionKey(challengeID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, true
		}
		logger.Ctx(ctx).Warn("leaderboard cache version read failed", zap.String("challenge_id", challengeID), zap.Error(err))
		return 0, false
	}
	return v, true
}

func (s *Service) cached(ctx context.Context, challengeID string, version int64, limit int) (*page, bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, rediskey.BuildLeaderboardKey(challengeID, version, limit)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Ctx(ctx).Warn("leaderboard cache read failed", zap.String("challenge_id", challengeID), zap.Error(err))
		}
		metrics.CacheLookups.WithLabelValues(cacheName, metrics.ResultMiss).Inc()
		return nil, false
	}

	var p page
	if err := json.Unmarshal(raw, &p); err != nil || len(p.Positions) != len(p.Submissions) {
		metrics.CacheLookups.WithLabelValues(cacheName, metrics.ResultMiss).Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues(cacheName, metrics.ResultHit).Inc()
	return &p, true
}

func (s *Service) store(ctx context.Context, challengeID string, version int64, limit int, p *page) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, rediskey.BuildLeaderboardKey(challengeID, version, limit), raw, s.ttl).Err(); err != nil {
		logger.Ctx(ctx).Warn("leaderboard cache write failed", zap.String("challenge_id", challengeID), zap.Error(err))
	}
}

// Invalidate bumps the page generation of the challenge and drops the pages
// cached so far.
func (s *Service) Invalidate(ctx context.Context, challengeID string) {
	if s.cache == nil {
		return
	}

	log := logger.Ctx(ctx, zap.String("challenge_id", challengeID))
	if err := s.cache.Incr(ctx, rediskey.BuildLeaderboardVersionKey(challengeID)).Err(); err != nil {
		log.Warn("leaderboard cache version bump failed", zap.Error(err))
	}

	match := rediskey.BuildLeaderboardPattern(challengeID) + ":*"

	var cursor uint64
	for {
		keys, next, err := s.cache.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			log.Warn("leaderboard cache scan failed", zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := s.cache.Del(ctx, keys...).Err(); err != nil {
				log.Warn("leaderboard cache invalidation failed", zap.Error(err))
				return
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}
