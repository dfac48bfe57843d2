package leaderboard

import (
	"context"
	"time"

	"smallbiznis-challenge/pkg/celengine"
	"smallbiznis-challenge/pkg/config"
	"smallbiznis-challenge/pkg/errutil"
	"smallbiznis-challenge/pkg/logger"
	"smallbiznis-challenge/services/challenge"
	"smallbiznis-challenge/services/identity"
	"smallbiznis-challenge/services/submission"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const fallbackLimit = 50

// Eligibility evaluates a challenge's eligibility expression against one submission.
type Eligibility interface {
	Eligible(expr string, in celengine.Engagement) (bool, error)
}

// Service ranks submissions and finalizes challenge results.
type Service struct {
	db           *gorm.DB
	challenges   *challenge.Repository
	submissions  *submission.Repository
	identity     identity.Resolver
	eligibility  Eligibility
	cache        Cache
	ttl          time.Duration
	defaultLimit int
	now          func() time.Time
}

type ServiceParams struct {
	fx.In
	DB          *gorm.DB
	Config      *config.Config
	Identity    identity.Resolver
	Redis       *redis.Client     `optional:"true"`
	Eligibility *celengine.Engine `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		db:           p.DB,
		challenges:   challenge.NewRepository(p.DB),
		submissions:  submission.NewRepository(p.DB),
		identity:     p.Identity,
		ttl:          p.Config.Challenge.LeaderboardCacheTTL,
		defaultLimit: p.Config.Challenge.LeaderboardDefaultLimit,
		now:          time.Now,
	}
	if s.defaultLimit <= 0 {
		s.defaultLimit = fallbackLimit
	}
	if p.Redis != nil {
		s.cache = p.Redis
	}
	if p.Eligibility != nil {
		s.eligibility = p.Eligibility
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithCache(cache Cache, ttl time.Duration) *Service {
	s.cache = cache
	s.ttl = ttl
	return s
}

func (s *Service) WithEligibility(e Eligibility) *Service {
	s.eligibility = e
	return s
}

// Rank returns the top limit submissions of a challenge. Before finalization
// the order is score descending, earlier submission first on ties, then id.
// After finalization the stored rankings are returned and disqualified
// submissions are left out.
func (s *Service) Rank(ctx context.Context, challengeID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}

	var (
		p   *page
		hit bool
	)
	version, cacheable := s.version(ctx, challengeID)
	if cacheable {
		p, hit = s.cached(ctx, challengeID, version, limit)
	}
	if !hit {
		var err error
		if p, err = s.load(ctx, challengeID, limit); err != nil {
			return nil, err
		}
		if cacheable {
			s.store(ctx, challengeID, version, limit, p)
		}
	}

	userIDs := make([]string, 0, len(p.Submissions))
	for _, sub := range p.Submissions {
		userIDs = append(userIDs, sub.UserID)
	}
	profiles := s.identity.ResolveMany(ctx, userIDs)

	out := make([]*Entry, 0, len(p.Submissions))
	for i, sub := range p.Submissions {
		out = append(out, &Entry{Position: p.Positions[i], Submission: sub, User: profiles[sub.UserID]})
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, challengeID string, limit int) (*page, error) {
	c, err := s.challenges.FindByID(ctx, challengeID)
	if err != nil {
		logger.Ctx(ctx).Error("failed to load challenge", zap.String("challenge_id", challengeID), zap.Error(err))
		return nil, errutil.Internal("failed to load challenge", err)
	}
	if c == nil {
		return nil, challenge.ErrNotFound
	}

	p := &page{}
	if c.Finalized() {
		if p.Submissions, err = s.submissions.ListFinalized(ctx, challengeID, limit); err != nil {
			return nil, errutil.Internal("failed to load leaderboard", err)
		}
		for _, sub := range p.Submissions {
			p.Positions = append(p.Positions, *sub.Ranking)
		}
		return p, nil
	}

	if p.Submissions, err = s.submissions.ListRanked(ctx, challengeID, limit); err != nil {
		return nil, errutil.Internal("failed to load leaderboard", err)
	}
	for i := range p.Submissions {
		p.Positions = append(p.Positions, i+1)
	}
	return p, nil
}
