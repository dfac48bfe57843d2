package leaderboard

import (
	"context"

	"smallbiznis-challenge/pkg/celengine"
	pkgdb "smallbiznis-challenge/pkg/db"
	"smallbiznis-challenge/pkg/errutil"
	"smallbiznis-challenge/pkg/logger"
	"smallbiznis-challenge/pkg/metrics"
	"smallbiznis-challenge/services/challenge"
	"smallbiznis-challenge/services/submission"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const podium = 3

// Finalize freezes the results of an ended challenge. It is idempotent: the
// first caller to set finalized_at ranks and stores the results in the same
// transaction; every later or losing caller gets the stored results back.
func (s *Service) Finalize(ctx context.Context, challengeID string) (*Result, error) {
	log := logger.Ctx(ctx, zap.String("challenge_id", challengeID))

	c, err := s.challenges.FindByID(ctx, challengeID)
	if err != nil {
		log.Error("failed to load challenge", zap.Error(err))
		return nil, errutil.Internal("failed to load challenge", err)
	}
	if c == nil {
		return nil, challenge.ErrNotFound
	}
	if c.Finalized() {
		metrics.Finalizations.WithLabelValues(metrics.ResultNoop).Inc()
		return s.stored(ctx, c)
	}
	if status := c.StatusAt(s.now()); status != challenge.StatusEnded {
		metrics.Finalizations.WithLabelValues(metrics.ResultRejected).Inc()
		return nil, errutil.Conflict("only ended challenges can be finalized", nil)
	}

	finalizedAt := s.now().UTC()
	var (
		result *Result
		lost   bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		challenges := s.challenges.WithTrx(tx)
		submissions := s.submissions.WithTrx(tx)

		won, err := challenges.MarkFinalized(ctx, c.ID, finalizedAt)
		if err != nil {
			return err
		}
		if !won {
			lost = true
			return nil
		}

		ranked, err := submissions.ListRanked(ctx, c.ID, 0)
		if err != nil {
			return err
		}

		result = s.decide(ctx, c, ranked)
		result.FinalizedAt = finalizedAt
		return submissions.SaveResults(ctx, ranked)
	}, pkgdb.SnapshotTx(s.db))
	if err != nil {
		// a concurrent finalizer may have committed first
		if latest, lerr := s.challenges.FindByID(ctx, c.ID); lerr == nil && latest != nil && latest.Finalized() {
			metrics.Finalizations.WithLabelValues(metrics.ResultNoop).Inc()
			return s.stored(ctx, latest)
		}
		metrics.Finalizations.WithLabelValues(metrics.ResultError).Inc()
		log.Error("failed to finalize challenge", zap.Error(err))
		return nil, errutil.Internal("failed to finalize challenge", err)
	}
	if lost {
		latest, err := s.challenges.FindByID(ctx, c.ID)
		if err != nil || latest == nil {
			return nil, errutil.Internal("failed to reload challenge", err)
		}
		metrics.Finalizations.WithLabelValues(metrics.ResultNoop).Inc()
		return s.stored(ctx, latest)
	}

	metrics.Finalizations.WithLabelValues(metrics.ResultOK).Inc()
	s.Invalidate(ctx, c.ID)
	log.Info("challenge finalized",
		zap.Int("winners", len(result.Winners)),
		zap.Int("qualified", len(result.Qualified)),
		zap.Int64("disqualified", result.Disqualified),
	)
	return result, nil
}

// decide assigns status, ranking and reward to every submission in ranked,
// which must already be in leaderboard order.
func (s *Service) decide(ctx context.Context, c *challenge.Challenge, ranked []*submission.Submission) *Result {
	result := &Result{
		ChallengeID: c.ID,
		Winners:     []*submission.Submission{},
		Qualified:   []*submission.Submission{},
	}

	rank := 0
	for _, sub := range ranked {
		if !s.qualifies(ctx, c, sub) {
			sub.Status = submission.StatusDisqualified
			sub.Ranking = nil
			sub.RewardEarned = 0
			result.Disqualified++
			continue
		}

		rank++
		position := rank
		sub.Ranking = &position
		if rank <= podium {
			sub.Status = submission.StatusWinner
			sub.RewardEarned = c.Prizes.Amount(rank)
			result.Winners = append(result.Winners, sub)
			continue
		}
		sub.Status = submission.StatusQualified
		sub.RewardEarned = c.ParticipationReward
		result.Qualified = append(result.Qualified, sub)
	}
	return result
}

func (s *Service) qualifies(ctx context.Context, c *challenge.Challenge, sub *submission.Submission) bool {
	if sub.SubmittedAt.Before(c.StartTime) || sub.SubmittedAt.After(c.EndTime) {
		return false
	}
	if c.EligibilityExpr == "" || s.eligibility == nil {
		return true
	}

	ok, err := s.eligibility.Eligible(c.EligibilityExpr, celengine.Engagement{
		Score:    sub.Score,
		Views:    sub.Views,
		Likes:    sub.Likes,
		Comments: sub.Comments,
		Shares:   sub.Shares,
	})
	if err != nil {
		logger.Ctx(ctx).Warn("eligibility evaluation failed",
			zap.String("challenge_id", c.ID),
			zap.String("submission_id", sub.ID),
			zap.Error(err),
		)
		return false
	}
	return ok
}

func (s *Service) stored(ctx context.Context, c *challenge.Challenge) (*Result, error) {
	ranked, err := s.submissions.ListFinalized(ctx, c.ID, 0)
	if err != nil {
		return nil, errutil.Internal("failed to load results", err)
	}
	disqualified, err := s.submissions.CountByStatus(ctx, c.ID, submission.StatusDisqualified)
	if err != nil {
		return nil, errutil.Internal("failed to load results", err)
	}

	result := &Result{
		ChallengeID:      c.ID,
		Winners:          []*submission.Submission{},
		Qualified:        []*submission.Submission{},
		Disqualified:     disqualified,
		AlreadyFinalized: true,
	}
	if c.FinalizedAt != nil {
		result.FinalizedAt = *c.FinalizedAt
	}
	for _, sub := range ranked {
		if sub.Status == submission.StatusWinner {
			result.Winners = append(result.Winners, sub)
		} else {
			result.Qualified = append(result.Qualified, sub)
		}
	}
	return result, nil
}
