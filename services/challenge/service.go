package challenge

import (
	"context"
	"errors"
	"time"

	"smallbiznis-challenge/pkg/errutil"
	"smallbiznis-challenge/pkg/logger"
	"smallbiznis-challenge/pkg/sequence"
	"smallbiznis-challenge/services/identity"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errutil.NotFound("challenge not found", nil)
	ErrClosed   = errutil.Conflict("challenge can no longer be modified", nil)
)

// SubmissionCounter counts stored submissions of a challenge.
type SubmissionCounter interface {
	CountByChallenge(ctx context.Context, challengeID string) (int64, error)
}

// Service is the challenge registry: it owns challenge records and their lifecycle.
type Service struct {
	db          *gorm.DB
	node        *snowflake.Node
	repo        *Repository
	validator   *Validator
	identity    identity.Resolver
	codes       sequence.Generator
	submissions SubmissionCounter
	now         func() time.Time
}

type ServiceParams struct {
	fx.In
	DB          *gorm.DB
	Node        *snowflake.Node
	Validator   *Validator
	Identity    identity.Resolver
	Codes       sequence.Generator `optional:"true"`
	Submissions SubmissionCounter  `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		repo:        NewRepository(p.DB),
		validator:   p.Validator,
		identity:    p.Identity,
		codes:       p.Codes,
		submissions: p.Submissions,
		now:         time.Now,
	}
}

// WithClock replaces the time source, used by tests and replays.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) Repository() *Repository {
	return s.repo
}

func (s *Service) view(ctx context.Context, c *Challenge) *View {
	return &View{
		Challenge: c,
		Status:    c.StatusAt(s.now()),
		Creator:   s.identity.Resolve(ctx, c.CreatorID),
	}
}

func (s *Service) Create(ctx context.Context, creatorID string, p CreateParams) (*View, error) {
	log := logger.Ctx(ctx, zap.String("creator_id", creatorID))

	if creatorID == "" {
		return nil, errutil.Unauthorized("creator is required", nil)
	}

	now := s.now()
	if violations := s.validator.Validate(p, now); len(violations) > 0 {
		log.Info("challenge rejected", zap.Int("violations", len(violations)))
		return nil, ValidationError(violations)
	}

	c := &Challenge{
		ID:                  s.node.Generate().String(),
		Title:               p.Title,
		Description:         p.Description,
		Hashtag:             p.Hashtag,
		SeedPostID:          p.SeedPostID,
		CreatorID:           creatorID,
		StartTime:           p.StartTime.UTC(),
		EndTime:             p.EndTime.UTC(),
		StoredStatus:        StatusDraft,
		IsSponsored:         p.IsSponsored,
		IsFeatured:          p.IsFeatured,
		Prizes:              p.Prizes,
		ParticipationReward: p.ParticipationReward,
		Rules:               p.Rules,
		Tags:                datatypes.NewJSONSlice(NormalizeTags(p.Tags)),
		EligibilityExpr:     p.EligibilityExpr,
	}
	if !c.StartTime.After(now) {
		c.StoredStatus = StatusActive
	}

	if s.codes != nil {
		code, err := s.codes.NextChallengeCode(ctx)
		if err != nil {
			log.Warn("failed to allocate challenge code", zap.Error(err))
		} else {
			c.Code = code
		}
	}

	if err := s.repo.Create(ctx, c); err != nil {
		log.Error("failed to create challenge", zap.Error(err))
		return nil, errutil.Internal("failed to create challenge", err)
	}

	log.Info("challenge created", zap.String("challenge_id", c.ID), zap.String("hashtag", c.Hashtag))
	return s.view(ctx, c), nil
}

func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	c, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, c), nil
}

func (s *Service) GetStatus(ctx context.Context, id string) (Status, error) {
	c, err := s.load(ctx, s.repo, id)
	if err != nil {
		return "", err
	}
	return c.StatusAt(s.now()), nil
}

func (s *Service) ListByCreator(ctx context.Context, creatorID string) ([]*View, error) {
	items, err := s.repo.FindByCreator(ctx, creatorID)
	if err != nil {
		logger.Ctx(ctx).Error("failed to list challenges", zap.String("creator_id", creatorID), zap.Error(err))
		return nil, errutil.Internal("failed to list challenges", err)
	}

	creator := s.identity.Resolve(ctx, creatorID)
	now := s.now()
	out := make([]*View, 0, len(items))
	for _, c := range items {
		out = append(out, &View{Challenge: c, Status: c.StatusAt(now), Creator: creator})
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id string, patch UpdateParams) (*View, error) {
	log := logger.Ctx(ctx, zap.String("challenge_id", id))

	var updated *Challenge
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx)
		c, err := s.load(ctx, repo, id, true)
		if err != nil {
			return err
		}

		now := s.now()
		switch c.StatusAt(now) {
		case StatusEnded, StatusArchived:
			return ErrClosed
		}
		if patch.StartTime != nil && c.Counters.TotalSubmissions > 0 && !patch.StartTime.Equal(c.StartTime) {
			return errutil.Conflict("start date cannot change once submissions exist", nil)
		}

		if violations := s.validator.ValidatePartial(c, patch, now); len(violations) > 0 {
			return ValidationError(violations)
		}

		applyPatch(c, patch)
		if err := repo.Save(ctx, c); err != nil {
			return errutil.Internal("failed to update challenge", err)
		}
		updated = c
		return nil
	})
	if err != nil {
		if errutil.Is(err, errutil.StatusInternal) {
			log.Error("failed to update challenge", zap.Error(err))
		}
		return nil, err
	}

	log.Info("challenge updated")
	return s.view(ctx, updated), nil
}

// Archive retires an ended, finalized challenge. Archiving an archived
// challenge is a no-op.
func (s *Service) Archive(ctx context.Context, id string) (*View, error) {
	log := logger.Ctx(ctx, zap.String("challenge_id", id))

	var archived *Challenge
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx)
		c, err := s.load(ctx, repo, id, true)
		if err != nil {
			return err
		}

		switch c.StatusAt(s.now()) {
		case StatusArchived:
			archived = c
			return nil
		case StatusEnded:
		default:
			return errutil.Conflict("only ended challenges can be archived", nil)
		}
		if !c.Finalized() {
			return errutil.Conflict("challenge must be finalized before archiving", nil)
		}

		if err := repo.SetStatus(ctx, c.ID, StatusArchived); err != nil {
			return errutil.Internal("failed to archive challenge", err)
		}
		c.StoredStatus = StatusArchived
		archived = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("challenge archived")
	return s.view(ctx, archived), nil
}

// Delete removes a challenge that never received a submission.
func (s *Service) Delete(ctx context.Context, id string) error {
	log := logger.Ctx(ctx, zap.String("challenge_id", id))

	var stored int64
	if s.submissions != nil {
		n, err := s.submissions.CountByChallenge(ctx, id)
		if err != nil {
			log.Error("failed to count submissions", zap.Error(err))
			return errutil.Internal("failed to count submissions", err)
		}
		stored = n
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx)
		c, err := s.load(ctx, repo, id, true)
		if err != nil {
			return err
		}

		// the counter is incremented under the same row lock as every submit
		if stored > 0 || c.Counters.TotalSubmissions > 0 {
			return errutil.Conflict("challenge with submissions cannot be deleted", nil)
		}

		if err := repo.Delete(ctx, id); err != nil {
			return errutil.Internal("failed to delete challenge", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("challenge deleted")
	return nil
}

func (s *Service) load(ctx context.Context, repo *Repository, id string, forUpdate ...bool) (*Challenge, error) {
	var (
		c   *Challenge
		err error
	)
	if len(forUpdate) > 0 && forUpdate[0] {
		c, err = repo.FindByIDForUpdate(ctx, id)
	} else {
		c, err = repo.FindByID(ctx, id)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, errutil.Internal("failed to load challenge", err)
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

func applyPatch(c *Challenge, p UpdateParams) {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Hashtag != nil {
		c.Hashtag = *p.Hashtag
	}
	if p.SeedPostID != nil {
		c.SeedPostID = *p.SeedPostID
	}
	if p.StartTime != nil {
		c.StartTime = p.StartTime.UTC()
	}
	if p.EndTime != nil {
		c.EndTime = p.EndTime.UTC()
	}
	if p.Prizes != nil {
		c.Prizes = *p.Prizes
	}
	if p.ParticipationReward != nil {
		c.ParticipationReward = *p.ParticipationReward
	}
	if p.Rules != nil {
		c.Rules = *p.Rules
	}
	if p.Tags != nil {
		c.Tags = datatypes.NewJSONSlice(NormalizeTags(*p.Tags))
	}
	if p.IsSponsored != nil {
		c.IsSponsored = *p.IsSponsored
	}
	if p.IsFeatured != nil {
		c.IsFeatured = *p.IsFeatured
	}
	if p.EligibilityExpr != nil {
		c.EligibilityExpr = *p.EligibilityExpr
	}
}
