package submission

import (
	"context"
	"errors"
	"strings"
	"time"

	"smallbiznis-challenge/pkg/config"
	"smallbiznis-challenge/pkg/errutil"
	"smallbiznis-challenge/pkg/featureflags"
	"smallbiznis-challenge/pkg/logger"
	"smallbiznis-challenge/pkg/metrics"
	"smallbiznis-challenge/services/challenge"
	"smallbiznis-challenge/services/identity"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errutil.NotFound("submission not found", nil)
	ErrNotAccepting = errutil.Conflict("challenge not accepting submissions", nil)
	ErrDuplicate    = errutil.Conflict("submission already exists", nil)
)

// Invalidator is notified whenever a challenge's ranking inputs change.
type Invalidator interface {
	Invalidate(ctx context.Context, challengeID string)
}

// Service is the submission tracker.
type Service struct {
	db          *gorm.DB
	node        *snowflake.Node
	repo        *Repository
	challenges  *challenge.Repository
	identity    identity.Resolver
	flags       featureflags.FeatureFlag
	invalidator Invalidator
	single      bool
	now         func() time.Time
}

type ServiceParams struct {
	fx.In
	DB          *gorm.DB
	Node        *snowflake.Node
	Config      *config.Config
	Identity    identity.Resolver
	Flags       featureflags.FeatureFlag `optional:"true"`
	Invalidator Invalidator              `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		repo:        NewRepository(p.DB),
		challenges:  challenge.NewRepository(p.DB),
		identity:    p.Identity,
		flags:       p.Flags,
		invalidator: p.Invalidator,
		single:      p.Config.Challenge.SingleSubmissionPerUser,
		now:         time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Repository() *Repository {
	return s.repo
}

// CountByChallenge lets the challenge registry refuse deleting entered challenges.
func (s *Service) CountByChallenge(ctx context.Context, challengeID string) (int64, error) {
	return s.repo.CountByChallenge(ctx, challengeID)
}

func (s *Service) singleSubmission(ctx context.Context, userID string) bool {
	if s.flags == nil {
		return s.single
	}
	return s.flags.Enabled(ctx, featureflags.SingleSubmissionPerUser, userID, s.single)
}

// Submit enters postID into the challenge on behalf of userID. The challenge
// must be active. The submission row and the challenge counter are written in
// one transaction that holds the challenge row lock.
func (s *Service) Submit(ctx context.Context, challengeID, postID, userID string) (*View, error) {
	log := logger.Ctx(ctx,
		zap.String("challenge_id", challengeID),
		zap.String("user_id", userID),
		zap.String("post_id", postID),
	)

	var violations []errutil.Detail
	if strings.TrimSpace(postID) == "" {
		violations = append(violations, errutil.Detail{Field: "post_id", Message: "post is required"})
	}
	if strings.TrimSpace(userID) == "" {
		violations = append(violations, errutil.Detail{Field: "user_id", Message: "user is required"})
	}
	if len(violations) > 0 {
		metrics.Submissions.WithLabelValues(metrics.ResultRejected).Inc()
		return nil, errutil.ValidationFailed("invalid submission", nil, errutil.WithDetails(violations...))
	}

	single := s.singleSubmission(ctx, userID)

	var created *Submission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		challenges := s.challenges.WithTrx(tx)
		repo := s.repo.WithTrx(tx)

		c, err := challenges.FindByIDForUpdate(ctx, challengeID)
		if err != nil {
			return errutil.Internal("failed to load challenge", err)
		}
		if c == nil {
			return challenge.ErrNotFound
		}

		now := s.now()
		if c.StatusAt(now) != challenge.StatusActive {
			return ErrNotAccepting
		}

		if existing, err := repo.FindByChallengeAndPost(ctx, challengeID, postID); err != nil {
			return errutil.Internal("failed to check submission", err)
		} else if existing != nil {
			return errutil.Conflict("post already submitted to this challenge", nil)
		}

		sub := &Submission{
			ID:          s.node.Generate().String(),
			ChallengeID: challengeID,
			PostID:      postID,
			UserID:      userID,
			Status:      StatusSubmitted,
			SubmittedAt: now.UTC(),
		}
		if single {
			if existing, err := repo.FindByChallengeAndUser(ctx, challengeID, userID); err != nil {
				return errutil.Internal("failed to check submission", err)
			} else if existing != nil {
				return errutil.Conflict("user already submitted to this challenge", nil)
			}
			key := challengeID + ":" + userID
			sub.DedupeKey = &key
		}

		if err := repo.Create(ctx, sub); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicate
			}
			return errutil.Internal("failed to create submission", err)
		}
		if err := challenges.IncrementSubmissions(ctx, challengeID, 1); err != nil {
			return errutil.Internal("failed to count submission", err)
		}

		created = sub
		return nil
	})
	if err != nil {
		result := metrics.ResultRejected
		if errutil.Is(err, errutil.StatusInternal) {
			result = metrics.ResultError
			log.Error("submission failed", zap.Error(err))
		} else {
			log.Info("submission rejected", zap.Error(err))
		}
		metrics.Submissions.WithLabelValues(result).Inc()
		return nil, err
	}

	metrics.Submissions.WithLabelValues(metrics.ResultOK).Inc()
	s.invalidate(ctx, challengeID)
	log.Info("submission accepted", zap.String("submission_id", created.ID))

	return &View{Submission: created, User: s.identity.Resolve(ctx, userID)}, nil
}

// RecordEngagement adds externally measured engagement to a submission and to
// its challenge totals. Results are frozen once the challenge is finalized.
func (s *Service) RecordEngagement(ctx context.Context, submissionID string, delta EngagementDelta) (*View, error) {
	log := logger.Ctx(ctx, zap.String("submission_id", submissionID))

	if delta.Score < 0 || delta.Views < 0 || delta.Likes < 0 || delta.Comments < 0 || delta.Shares < 0 {
		return nil, errutil.ValidationFailed("engagement deltas cannot be negative", nil)
	}

	var updated *Submission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx)
		challenges := s.challenges.WithTrx(tx)

		sub, err := repo.FindByID(ctx, submissionID)
		if err != nil {
			return errutil.Internal("failed to load submission", err)
		}
		if sub == nil {
			return ErrNotFound
		}

		c, err := challenges.FindByIDForUpdate(ctx, sub.ChallengeID)
		if err != nil {
			return errutil.Internal("failed to load challenge", err)
		}
		if c == nil {
			return challenge.ErrNotFound
		}
		if c.Finalized() {
			return errutil.Conflict("challenge results are final", nil)
		}

		if !delta.IsZero() {
			if err := repo.AddEngagement(ctx, sub.ID, delta); err != nil {
				return errutil.Internal("failed to record engagement", err)
			}
			if err := challenges.AddEngagement(ctx, c.ID, delta.Views, delta.Likes); err != nil {
				return errutil.Internal("failed to record engagement", err)
			}
		}

		if updated, err = repo.FindByID(ctx, sub.ID); err != nil {
			return errutil.Internal("failed to reload submission", err)
		}
		return nil
	})
	if err != nil {
		if errutil.Is(err, errutil.StatusInternal) {
			log.Error("failed to record engagement", zap.Error(err))
		}
		return nil, err
	}

	s.invalidate(ctx, updated.ChallengeID)
	return &View{Submission: updated, User: s.identity.Resolve(ctx, updated.UserID)}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	sub, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, errutil.Internal("failed to load submission", err)
	}
	if sub == nil {
		return nil, ErrNotFound
	}
	return &View{Submission: sub, User: s.identity.Resolve(ctx, sub.UserID)}, nil
}

// ListByUser returns every submission of userID paired with its challenge, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Entry, error) {
	subs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		logger.Ctx(ctx).Error("failed to list submissions", zap.String("user_id", userID), zap.Error(err))
		return nil, errutil.Internal("failed to list submissions", err)
	}
	if len(subs) == 0 {
		return []*Entry{}, nil
	}

	ids := make([]string, 0, len(subs))
	seen := make(map[string]struct{}, len(subs))
	for _, sub := range subs {
		if _, ok := seen[sub.ChallengeID]; !ok {
			seen[sub.ChallengeID] = struct{}{}
			ids = append(ids, sub.ChallengeID)
		}
	}

	items, err := s.challenges.FindByIDs(ctx, ids)
	if err != nil {
		return nil, errutil.Internal("failed to load challenges", err)
	}

	creators := make([]string, 0, len(items))
	byID := make(map[string]*challenge.Challenge, len(items))
	for _, c := range items {
		byID[c.ID] = c
		creators = append(creators, c.CreatorID)
	}
	profiles := s.identity.ResolveMany(ctx, creators)

	now := s.now()
	out := make([]*Entry, 0, len(subs))
	for _, sub := range subs {
		c, ok := byID[sub.ChallengeID]
		if !ok {
			continue
		}
		out = append(out, &Entry{
			Submission: sub,
			Challenge: &challenge.View{
				Challenge: c,
				Status:    c.StatusAt(now),
				Creator:   profiles[c.CreatorID],
			},
		})
	}
	return out, nil
}

func (s *Service) invalidate(ctx context.Context, challengeID string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, challengeID)
	}
}
