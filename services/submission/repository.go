package submission

import (
	"context"

	"smallbiznis-challenge/pkg/db/option"
	"smallbiznis-challenge/pkg/repository"

	"gorm.io/gorm"
)

// RankOrder is the leaderboard order: score high to low, earlier submission
// first on ties, id as the final deterministic tie-break.
const RankOrder = "score DESC, submitted_at ASC, id ASC"

type Repository struct {
	db    *gorm.DB
	store repository.Repository[Submission]
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:    db,
		store: repository.ProvideStore[Submission](db),
	}
}

func (r *Repository) WithTrx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx, store: r.store.WithTrx(tx)}
}

func (r *Repository) Create(ctx context.Context, s *Submission) error {
	return r.store.Create(ctx, s)
}

// FindByID returns nil, nil when the submission does not exist.
func (r *Repository) FindByID(ctx context.Context, id string, opts ...option.QueryOption) (*Submission, error) {
	return r.store.FindOne(ctx, &Submission{ID: id}, opts...)
}

func (r *Repository) FindByChallengeAndPost(ctx context.Context, challengeID, postID string) (*Submission, error) {
	return r.store.FindOne(ctx, &Submission{ChallengeID: challengeID, PostID: postID})
}

func (r *Repository) FindByChallengeAndUser(ctx context.Context, challengeID, userID string) (*Submission, error) {
	return r.store.FindOne(ctx, &Submission{ChallengeID: challengeID, UserID: userID})
}

// ListRanked returns the challenge's submissions in leaderboard order. limit <= 0 returns all.
func (r *Repository) ListRanked(ctx context.Context, challengeID string, limit int) ([]*Submission, error) {
	return r.store.Find(ctx, &Submission{ChallengeID: challengeID}, option.WithOrder(RankOrder), option.WithLimit(limit))
}

// ListFinalized returns ranked submissions in ranking order. limit <= 0 returns all.
func (r *Repository) ListFinalized(ctx context.Context, challengeID string, limit int) ([]*Submission, error) {
	return r.store.Find(ctx, &Submission{ChallengeID: challengeID},
		func(tx *gorm.DB) *gorm.DB { return tx.Where("ranking IS NOT NULL") },
		option.WithOrder("ranking ASC"),
		option.WithLimit(limit),
	)
}

func (r *Repository) CountByStatus(ctx context.Context, challengeID string, status Status) (int64, error) {
	return r.store.Count(ctx, &Submission{ChallengeID: challengeID, Status: status})
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]*Submission, error) {
	return r.store.Find(ctx, &Submission{UserID: userID}, option.WithOrder("submitted_at DESC"), option.WithOrder("id DESC"))
}

func (r *Repository) CountByChallenge(ctx context.Context, challengeID string) (int64, error) {
	return r.store.Count(ctx, &Submission{ChallengeID: challengeID})
}

// AddEngagement adds delta to the stored counters in a single UPDATE.
func (r *Repository) AddEngagement(ctx context.Context, id string, d EngagementDelta) error {
	return r.db.WithContext(ctx).Model(&Submission{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"score":    gorm.Expr("score + ?", d.Score),
			"views":    gorm.Expr("views + ?", d.Views),
			"likes":    gorm.Expr("likes + ?", d.Likes),
			"comments": gorm.Expr("comments + ?", d.Comments),
			"shares":   gorm.Expr("shares + ?", d.Shares),
		}).Error
}

// SaveResults persists the finalization outcome of each submission.
func (r *Repository) SaveResults(ctx context.Context, items []*Submission) error {
	for _, s := range items {
		err := r.db.WithContext(ctx).Model(&Submission{}).
			Where("id = ?", s.ID).
			Updates(map[string]any{
				"ranking":       s.Ranking,
				"status":        s.Status,
				"reward_earned": s.RewardEarned,
			}).Error
		if err != nil {
			return err
		}
	}
	return nil
}
