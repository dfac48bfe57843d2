package reward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"smallbiznis-challenge/pkg/errutil"
	"smallbiznis-challenge/pkg/logger"
	"smallbiznis-challenge/pkg/metrics"
	"smallbiznis-challenge/services/challenge"
	"smallbiznis-challenge/services/leaderboard"
	"smallbiznis-challenge/services/submission"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrGrantNotFound = errutil.NotFound("reward grant not found", nil)

// Finalizer freezes challenge results.
type Finalizer interface {
	Finalize(ctx context.Context, challengeID string) (*leaderboard.Result, error)
}

// Service turns finalized challenge results into ledger credits.
type Service struct {
	node        *snowflake.Node
	grants      *Repository
	challenges  *challenge.Repository
	submissions *submission.Repository
	finalizer   Finalizer
	ledger      Ledger
	now         func() time.Time
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Finalizer Finalizer
	Ledger    Ledger
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:        p.Node,
		grants:      NewRepository(p.DB),
		challenges:  challenge.NewRepository(p.DB),
		submissions: submission.NewRepository(p.DB),
		finalizer:   p.Finalizer,
		ledger:      p.Ledger,
		now:         time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Outcome is the result of finalizing a challenge and issuing its rewards.
type Outcome struct {
	ChallengeID      string                   `json:"challenge_id"`
	Winners          []*submission.Submission `json:"winners"`
	RewardsIssued    int                      `json:"rewards_issued"`
	AlreadyFinalized bool                     `json:"already_finalized"`
	Rewards          *Summary                 `json:"rewards"`
}

// FinalizeChallenge finalizes the challenge and credits its rewards. Calling
// it again is safe: results are not re-ranked and credited grants are skipped.
// A non-nil Outcome is returned with an error when only crediting failed.
func (s *Service) FinalizeChallenge(ctx context.Context, challengeID string) (*Outcome, error) {
	result, err := s.finalizer.Finalize(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	summary, err := s.IssueRewards(ctx, challengeID)
	out := &Outcome{
		ChallengeID:      challengeID,
		Winners:          result.Winners,
		AlreadyFinalized: result.AlreadyFinalized,
		Rewards:          summary,
	}
	if summary != nil {
		out.RewardsIssued = summary.Credited
	}
	return out, err
}

// IssueRewards records a grant for every rewarded submission of a finalized
// challenge and credits each grant not credited yet. Each grant is credited
// independently; failures are recorded on the grant and returned joined.
func (s *Service) IssueRewards(ctx context.Context, challengeID string) (*Summary, error) {
	log := logger.Ctx(ctx, zap.String("challenge_id", challengeID))

	c, err := s.challenges.FindByID(ctx, challengeID)
	if err != nil {
		return nil, errutil.Internal("failed to load challenge", err)
	}
	if c == nil {
		return nil, challenge.ErrNotFound
	}
	if !c.Finalized() {
		return nil, errutil.Conflict("challenge has not been finalized", nil)
	}

	ranked, err := s.submissions.ListFinalized(ctx, challengeID, 0)
	if err != nil {
		return nil, errutil.Internal("failed to load results", err)
	}
	if err := s.grants.Ensure(ctx, s.plan(c, ranked)); err != nil {
		log.Error("failed to record reward grants", zap.Error(err))
		return nil, errutil.Internal("failed to record reward grants", err)
	}

	grants, err := s.grants.ListByChallenge(ctx, challengeID)
	if err != nil {
		return nil, errutil.Internal("failed to load reward grants", err)
	}

	summary := &Summary{ChallengeID: challengeID, Grants: len(grants)}
	var errs []error
	for _, g := range grants {
		if g.Credited() {
			summary.Skipped++
			continue
		}
		if err := s.credit(ctx, g); err != nil {
			summary.Failed++
			errs = append(errs, fmt.Errorf("grant %s: %w", g.ID, err))
			continue
		}
		summary.Credited++
	}

	log.Info("rewards issued",
		zap.Int("grants", summary.Grants),
		zap.Int("credited", summary.Credited),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	if len(errs) > 0 {
		return summary, errutil.BadGateway("failed to credit rewards", errors.Join(errs...))
	}
	return summary, nil
}

// RetryGrant credits one pending or failed grant. A credited grant is returned unchanged.
func (s *Service) RetryGrant(ctx context.Context, grantID string) (*Grant, error) {
	g, err := s.grants.FindByID(ctx, grantID)
	if err != nil {
		return nil, errutil.Internal("failed to load reward grant", err)
	}
	if g == nil {
		return nil, ErrGrantNotFound
	}
	if g.Credited() {
		return g, nil
	}

	creditErr := s.credit(ctx, g)

	g, err = s.grants.FindByID(ctx, grantID)
	if err != nil {
		return nil, errutil.Internal("failed to reload reward grant", err)
	}
	if creditErr != nil {
		return g, errutil.BadGateway("failed to credit reward", creditErr)
	}
	return g, nil
}

func (s *Service) ListGrants(ctx context.Context, challengeID string) ([]*Grant, error) {
	grants, err := s.grants.ListByChallenge(ctx, challengeID)
	if err != nil {
		return nil, errutil.Internal("failed to list reward grants", err)
	}
	return grants, nil
}

func (s *Service) credit(ctx context.Context, g *Grant) error {
	log := logger.Ctx(ctx,
		zap.String("grant_id", g.ID),
		zap.String("idempotency_key", g.IdempotencyKey),
	)

	var meta map[string]string
	_ = json.Unmarshal(g.Metadata, &meta)

	err := s.ledger.Credit(ctx, Credit{
		IdempotencyKey: g.IdempotencyKey,
		UserID:         g.UserID,
		Amount:         g.Amount,
		Reason:         fmt.Sprintf("challenge %s %s reward", g.ChallengeID, g.Tier),
		Metadata:       meta,
	})
	if err != nil {
		metrics.RewardCredits.WithLabelValues(string(g.Tier), metrics.ResultError).Inc()
		log.Warn("ledger credit failed", zap.Error(err))
		if merr := s.grants.MarkFailed(ctx, g.ID, err); merr != nil {
			log.Error("failed to record credit failure", zap.Error(merr))
		}
		return err
	}

	metrics.RewardCredits.WithLabelValues(string(g.Tier), metrics.ResultOK).Inc()
	if err := s.grants.MarkCredited(ctx, g.ID, s.now().UTC()); err != nil {
		// the ledger keeps the entry; a replay is answered as already recorded
		log.Error("failed to record credit", zap.Error(err))
		return err
	}
	return nil
}

// plan builds the grants owed for ranked results. Podium ranks are keyed by
// rank; participation is keyed per user, so a user is paid it at most once.
func (s *Service) plan(c *challenge.Challenge, ranked []*submission.Submission) []*Grant {
	var out []*Grant
	seen := map[string]struct{}{}
	for _, sub := range ranked {
		if sub.Ranking == nil || sub.RewardEarned <= 0 {
			continue
		}

		var (
			tier Tier
			key  string
		)
		switch sub.Status {
		case submission.StatusWinner:
			tier = TierForRank(*sub.Ranking)
			key = RankKey(c.ID, sub.UserID, *sub.Ranking)
		case submission.StatusQualified:
			tier = TierParticipation
			key = ParticipationKey(c.ID, sub.UserID)
		default:
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		meta, _ := json.Marshal(map[string]string{
			"challenge_id":  c.ID,
			"submission_id": sub.ID,
			"post_id":       sub.PostID,
			"ranking":       strconv.Itoa(*sub.Ranking),
		})
		out = append(out, &Grant{
			ID:             s.node.Generate().String(),
			ChallengeID:    c.ID,
			SubmissionID:   sub.ID,
			UserID:         sub.UserID,
			Tier:           tier,
			Amount:         sub.RewardEarned,
			IdempotencyKey: key,
			Status:         GrantPending,
			Metadata:       datatypes.JSON(meta),
		})
	}
	return out
}
