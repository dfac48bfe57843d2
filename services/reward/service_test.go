package reward

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"smallbiznis-challenge/pkg/config"
	"smallbiznis-challenge/pkg/errutil"
	"smallbiznis-challenge/services/challenge"
	"smallbiznis-challenge/services/identity"
	"smallbiznis-challenge/services/leaderboard"
	"smallbiznis-challenge/services/submission"
	"smallbiznis-challenge/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var start = time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

type noopResolver struct{}

func (noopResolver) Resolve(_ context.Context, userID string) identity.Profile {
	return identity.Profile{UserID: userID}
}

func (noopResolver) ResolveMany(_ context.Context, userIDs []string) map[string]identity.Profile {
	out := make(map[string]identity.Profile, len(userIDs))
	for _, id := range userIDs {
		out[id] = identity.Profile{UserID: id}
	}
	return out
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	ledger *MockLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &challenge.Challenge{}, &submission.Submission{}, &Grant{})
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	clock := func() time.Time { return start.Add(10 * 24 * time.Hour) }
	board := leaderboard.NewService(leaderboard.ServiceParams{
		DB:       db,
		Config:   &config.Config{},
		Identity: noopResolver{},
	}).WithClock(clock)

	ledger := NewMockLedger(gomock.NewController(t))
	svc := NewService(ServiceParams{
		DB:        db,
		Node:      node,
		Finalizer: board,
		Ledger:    ledger,
	}).WithClock(clock)

	return &fixture{db: db, svc: svc, ledger: ledger}
}

func (f *fixture) seed(t *testing.T, participationReward int64, scores ...float64) *challenge.Challenge {
	t.Helper()
	ctx := context.Background()

	c := &challenge.Challenge{
		ID:                  "c1",
		Title:               "Challenge",
		Description:         "desc",
		Hashtag:             "Tag",
		SeedPostID:          "seed",
		CreatorID:           "creator_1",
		StartTime:           start,
		EndTime:             start.Add(7 * 24 * time.Hour),
		StoredStatus:        challenge.StatusActive,
		Prizes:              challenge.Prizes{First: 300, Second: 180, Third: 120},
		ParticipationReward: participationReward,
		Rules:               "rules",
	}
	require.NoError(t, challenge.NewRepository(f.db).Create(ctx, c))

	subs := submission.NewRepository(f.db)
	for i, score := range scores {
		id := string(rune('a' + i))
		require.NoError(t, subs.Create(ctx, &submission.Submission{
			ID:          id,
			ChallengeID: c.ID,
			PostID:      "post_" + id,
			UserID:      "user_" + id,
			Score:       score,
			Status:      submission.StatusSubmitted,
			SubmittedAt: start.Add(time.Hour),
		}))
	}
	return c
}

type creditLog struct {
	mu      sync.Mutex
	credits []Credit
}

func (l *creditLog) record(fail map[string]error) func(context.Context, Credit) error {
	return func(_ context.Context, c Credit) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.credits = append(l.credits, c)
		return fail[c.IdempotencyKey]
	}
}

func (l *creditLog) keys() []string {
	out := make([]string, 0, len(l.credits))
	for _, c := range l.credits {
		out = append(out, c.IdempotencyKey)
	}
	sort.Strings(out)
	return out
}

func TestFinalizeChallengeIssuesRewards(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 8, 90, 80, 70, 60, 50)
	ctx := context.Background()

	log := &creditLog{}
	f.ledger.EXPECT().Credit(gomock.Any(), gomock.Any()).DoAndReturn(log.record(nil)).Times(5)

	out, err := f.svc.FinalizeChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.False(t, out.AlreadyFinalized)
	require.Len(t, out.Winners, 3)
	require.Equal(t, 5, out.RewardsIssued)

	require.Equal(t, []string{
		RankKey(c.ID, "user_a", 1),
		RankKey(c.ID, "user_b", 2),
		RankKey(c.ID, "user_c", 3),
		ParticipationKey(c.ID, "user_d"),
		ParticipationKey(c.ID, "user_e"),
	}, log.keys())

	amounts := map[string]int64{}
	for _, cr := range log.credits {
		amounts[cr.UserID] = cr.Amount
	}
	require.Equal(t, map[string]int64{"user_a": 300, "user_b": 180, "user_c": 120, "user_d": 8, "user_e": 8}, amounts)

	grants, err := f.svc.ListGrants(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, grants, 5)
	for _, g := range grants {
		require.Equal(t, GrantCredited, g.Status)
		require.Equal(t, 1, g.Attempts)
		require.NotNil(t, g.CreditedAt)
	}

	again, err := f.svc.FinalizeChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, again.AlreadyFinalized)
	require.Zero(t, again.RewardsIssued)
	require.Equal(t, 5, again.Rewards.Skipped)
	require.Len(t, again.Winners, 3)
}

func TestFinalizeChallengeWithoutParticipationReward(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 0, 9, 8, 7, 6)

	log := &creditLog{}
	f.ledger.EXPECT().Credit(gomock.Any(), gomock.Any()).DoAndReturn(log.record(nil)).Times(3)

	out, err := f.svc.FinalizeChallenge(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, 3, out.RewardsIssued)
	require.Equal(t, 3, out.Rewards.Grants)
}

func TestIssueRewardsPartialFailure(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 8, 90, 80, 70, 60)
	ctx := context.Background()

	failing := RankKey(c.ID, "user_b", 2)
	log := &creditLog{}
	f.ledger.EXPECT().Credit(gomock.Any(), gomock.Any()).
		DoAndReturn(log.record(map[string]error{failing: errors.New("ledger unavailable")})).
		Times(4)

	out, err := f.svc.FinalizeChallenge(ctx, c.ID)
	require.Error(t, err)
	require.True(t, errutil.Is(err, errutil.StatusBadGateway))
	require.NotNil(t, out)
	require.Equal(t, 3, out.RewardsIssued)
	require.Equal(t, 1, out.Rewards.Failed)

	var failed *Grant
	grants, err := f.svc.ListGrants(ctx, c.ID)
	require.NoError(t, err)
	for _, g := range grants {
		if g.IdempotencyKey == failing {
			failed = g
		}
	}
	require.NotNil(t, failed)
	require.Equal(t, GrantFailed, failed.Status)
	require.Equal(t, "ledger unavailable", failed.LastError)

	retried := &creditLog{}
	f.ledger.EXPECT().Credit(gomock.Any(), gomock.Any()).DoAndReturn(retried.record(nil)).Times(1)

	summary, err := f.svc.IssueRewards(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Credited)
	require.Equal(t, 3, summary.Skipped)
	require.Equal(t, []string{failing}, retried.keys())
}

func TestRetryGrant(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 0, 90)
	ctx := context.Background()

	f.ledger.EXPECT().Credit(gomock.Any(), gomock.Any()).Return(errors.New("timeout"))
	_, err := f.svc.FinalizeChallenge(ctx, c.ID)
	require.Error(t, err)

	grants, err := f.svc.ListGrants(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)

	f.ledger.EXPECT().Credit(gomock.Any(), gomock.Any()).Return(nil)
	g, err := f.svc.RetryGrant(ctx, grants[0].ID)
	require.NoError(t, err)
	require.Equal(t, GrantCredited, g.Status)
	require.Equal(t, 2, g.Attempts)
	require.Empty(t, g.LastError)

	g, err = f.svc.RetryGrant(ctx, grants[0].ID)
	require.NoError(t, err, "credited grants are not sent again")
	require.Equal(t, GrantCredited, g.Status)

	_, err = f.svc.RetryGrant(ctx, "missing")
	require.ErrorIs(t, err, ErrGrantNotFound)
}

func TestIssueRewardsRequiresFinalized(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 0, 10)

	_, err := f.svc.IssueRewards(context.Background(), c.ID)
	require.True(t, errutil.Is(err, errutil.StatusConflict))

	_, err = f.svc.IssueRewards(context.Background(), "missing")
	require.ErrorIs(t, err, challenge.ErrNotFound)
}

func TestParticipationPaidOncePerUser(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, 8, 90, 80, 70, 60)
	ctx := context.Background()

	require.NoError(t, submission.NewRepository(f.db).Create(ctx, &submission.Submission{
		ID:          "z",
		ChallengeID: c.ID,
		PostID:      "post_z",
		UserID:      "user_d",
		Score:       10,
		Status:      submission.StatusSubmitted,
		SubmittedAt: start.Add(2 * time.Hour),
	}))

	log := &creditLog{}
	f.ledger.EXPECT().Credit(gomock.Any(), gomock.Any()).DoAndReturn(log.record(nil)).Times(4)

	out, err := f.svc.FinalizeChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 4, out.RewardsIssued)
}
