package reward

import (
	"context"
	"time"

	"smallbiznis-challenge/pkg/db/option"
	"smallbiznis-challenge/pkg/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db    *gorm.DB
	store repository.Repository[Grant]
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:    db,
		store: repository.ProvideStore[Grant](db),
	}
}

func (r *Repository) FindByID(ctx context.Context, id string) (*Grant, error) {
	return r.store.FindOne(ctx, &Grant{ID: id})
}

func (r *Repository) ListByChallenge(ctx context.Context, challengeID string) ([]*Grant, error) {
	return r.store.Find(ctx, &Grant{ChallengeID: challengeID}, option.WithOrder("idempotency_key ASC"))
}

// ListOutstanding returns pending or failed grants last touched before the
// given time with fewer than maxAttempts credit attempts, oldest first.
func (r *Repository) ListOutstanding(ctx context.Context, before time.Time, maxAttempts, limit int) ([]*Grant, error) {
	return r.store.Find(ctx, &Grant{},
		option.ApplyOperator(option.Condition{Field: "status", Operator: option.IN, Value: []GrantStatus{GrantPending, GrantFailed}}),
		option.ApplyOperator(option.Condition{Field: "updated_at", Operator: option.LT, Value: before}),
		option.ApplyOperator(option.Condition{Field: "attempts", Operator: option.LT, Value: maxAttempts}),
		option.WithOrder("updated_at ASC"),
		option.WithLimit(limit),
	)
}

// Ensure inserts grants whose idempotency key is not stored yet and leaves
// existing rows untouched.
func (r *Repository) Ensure(ctx context.Context, grants []*Grant) error {
	if len(grants) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "idempotency_key"}}, DoNothing: true}).
		CreateInBatches(grants, 100).Error
}

func (r *Repository) MarkCredited(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Grant{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      GrantCredited,
			"attempts":    gorm.Expr("attempts + 1"),
			"last_error":  "",
			"credited_at": at,
		}).Error
}

func (r *Repository) MarkFailed(ctx context.Context, id string, cause error) error {
	return r.db.WithContext(ctx).Model(&Grant{}).
		Where("id = ? AND status <> ?", id, GrantCredited).
		Updates(map[string]any{
			"status":     GrantFailed,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause.Error(),
		}).Error
}
