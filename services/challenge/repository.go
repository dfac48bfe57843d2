package challenge

import (
	"context"
	"time"

	"smallbiznis-challenge/pkg/db/option"
	"smallbiznis-challenge/pkg/repository"

	"gorm.io/gorm"
)

// Repository exposes the named queries the challenge engine runs.
type Repository struct {
	db    *gorm.DB
	store repository.Repository[Challenge]
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:    db,
		store: repository.ProvideStore[Challenge](db),
	}
}

func (r *Repository) WithTrx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx, store: r.store.WithTrx(tx)}
}

func (r *Repository) Create(ctx context.Context, c *Challenge) error {
	return r.store.Create(ctx, c)
}

// FindByID returns nil, nil when the challenge does not exist.
func (r *Repository) FindByID(ctx context.Context, id string, opts ...option.QueryOption) (*Challenge, error) {
	return r.store.FindOne(ctx, &Challenge{ID: id}, opts...)
}

// FindByIDForUpdate loads the challenge holding a row lock for the rest of the transaction.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id string) (*Challenge, error) {
	return r.FindByID(ctx, id, option.WithLockingUpdate())
}

func (r *Repository) FindByIDs(ctx context.Context, ids []string) ([]*Challenge, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.store.Find(ctx, &Challenge{}, option.ApplyOperator(option.Condition{
		Field: "id", Operator: option.IN, Value: ids,
	}))
}

func (r *Repository) FindByCreator(ctx context.Context, creatorID string) ([]*Challenge, error) {
	return r.store.Find(ctx, &Challenge{CreatorID: creatorID}, option.WithOrder("created_at DESC"), option.WithOrder("id DESC"))
}

// ListPendingFinalization returns ended, unfinalized, unarchived challenges, oldest end first.
func (r *Repository) ListPendingFinalization(ctx context.Context, now time.Time, limit int) ([]*Challenge, error) {
	return r.store.Find(ctx, &Challenge{},
		option.ApplyOperator(option.Condition{Field: "end_time", Operator: option.LT, Value: now}),
		option.ApplyOperator(option.Condition{Field: "status", Operator: option.NEQ, Value: StatusArchived}),
		func(tx *gorm.DB) *gorm.DB { return tx.Where("finalized_at IS NULL") },
		option.WithOrder("end_time ASC"),
		option.WithLimit(limit),
	)
}

// Save writes every column of c.
func (r *Repository) Save(ctx context.Context, c *Challenge) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *Repository) SetStatus(ctx context.Context, id string, status Status) error {
	return r.store.Update(ctx, id, map[string]any{"status": status})
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&Challenge{}).Error
}

// IncrementSubmissions adds n to total_submissions in a single UPDATE.
func (r *Repository) IncrementSubmissions(ctx context.Context, id string, n int64) error {
	return r.db.WithContext(ctx).Model(&Challenge{}).
		Where("id = ?", id).
		UpdateColumn("total_submissions", gorm.Expr("total_submissions + ?", n)).Error
}

// AddEngagement adds view and like deltas to the challenge totals in a single UPDATE.
func (r *Repository) AddEngagement(ctx context.Context, id string, views, likes int64) error {
	if views == 0 && likes == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&Challenge{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"total_views": gorm.Expr("total_views + ?", views),
			"total_likes": gorm.Expr("total_likes + ?", likes),
		}).Error
}

// MarkFinalized sets finalized_at only if it is still unset. It reports
// whether this call won the transition.
func (r *Repository) MarkFinalized(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Challenge{}).
		Where("id = ? AND finalized_at IS NULL", id).
		UpdateColumn("finalized_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
