package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"smallbiznis-challenge/pkg/config"
	"smallbiznis-challenge/pkg/task"
	"smallbiznis-challenge/services/challenge"
	"smallbiznis-challenge/services/reward"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(registerScheduler),
)

const (
	// grantRetryAfter is how long an outstanding grant rests before it is redelivered.
	grantRetryAfter  = 10 * time.Minute
	grantMaxAttempts = 100
)

// Pending lists challenges whose window closed without finalization.
type Pending interface {
	ListPendingFinalization(ctx context.Context, now time.Time, limit int) ([]*challenge.Challenge, error)
}

// Outstanding lists reward grants that were never credited.
type Outstanding interface {
	ListOutstanding(ctx context.Context, before time.Time, maxAttempts, limit int) ([]*reward.Grant, error)
}

// Scheduler is the time trigger for finalization: it periodically queues a
// finalize task for every ended, unfinalized challenge, and a retry task for
// every grant left pending or failed once those tasks ran out of retries.
type Scheduler struct {
	pending  Pending
	grants   Outstanding
	tasks    task.Enqueuer
	interval time.Duration
	batch    int
	now      func() time.Time
}

type Params struct {
	fx.In
	DB     *gorm.DB
	Tasks  task.Enqueuer
	Config *config.Config
}

func NewScheduler(p Params) *Scheduler {
	return New(challenge.NewRepository(p.DB), p.Tasks, p.Config.Challenge.FinalizeSweepInterval, p.Config.Challenge.FinalizeBatchSize).
		WithGrants(reward.NewRepository(p.DB))
}

func New(pending Pending, tasks task.Enqueuer, interval time.Duration, batch int) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 50
	}
	return &Scheduler{pending: pending, tasks: tasks, interval: interval, batch: batch, now: time.Now}
}

func (s *Scheduler) WithGrants(grants Outstanding) *Scheduler {
	s.grants = grants
	return s
}

// Sweep queues finalization for one batch of pending challenges and a retry
// for one batch of outstanding grants, and returns how many tasks were newly
// queued. Work already queued is skipped.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	finalized, err := s.sweepFinalize(ctx)
	if s.grants == nil {
		return finalized, err
	}
	retried, grantErr := s.sweepGrants(ctx)
	return finalized + retried, errors.Join(err, grantErr)
}

func (s *Scheduler) sweepFinalize(ctx context.Context) (int, error) {
	items, err := s.pending.ListPendingFinalization(ctx, s.now(), s.batch)
	if err != nil {
		return 0, err
	}

	queued := 0
	var errs []error
	for _, c := range items {
		t, err := reward.NewFinalizeTask(c.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := s.tasks.Enqueue(ctx, t); err != nil {
			if task.IsDuplicate(err) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		queued++
	}
	return queued, errors.Join(errs...)
}

func (s *Scheduler) sweepGrants(ctx context.Context) (int, error) {
	grants, err := s.grants.ListOutstanding(ctx, s.now().Add(-grantRetryAfter), grantMaxAttempts, s.batch)
	if err != nil {
		return 0, err
	}

	queued := 0
	var errs []error
	for _, g := range grants {
		t, err := reward.NewRetryGrantTask(g.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := s.tasks.Enqueue(ctx, t, asynq.TaskID(reward.RetryGrantTaskID(g))); err != nil {
			if task.IsDuplicate(err) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		queued++
	}
	return queued, errors.Join(errs...)
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		queued, err := s.Sweep(ctx)
		if err != nil {
			zap.L().Error("scheduler sweep failed", zap.Error(err))
		} else if queued > 0 {
			zap.L().Info("scheduler tasks queued", zap.Int("count", queued))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func registerScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.run(ctx)
			}()
			zap.L().Info("finalize scheduler started", zap.Duration("interval", s.interval))
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			wg.Wait()
			return nil
		},
	})
}
