package leaderboard

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"smallbiznis-challenge/pkg/celengine"
	"smallbiznis-challenge/pkg/config"
	"smallbiznis-challenge/pkg/errutil"
	"smallbiznis-challenge/pkg/rediskey"
	"smallbiznis-challenge/services/challenge"
	"smallbiznis-challenge/services/identity"
	"smallbiznis-challenge/services/submission"
	"smallbiznis-challenge/services/testutil"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var start = time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

type staticResolver struct{}

func (staticResolver) Resolve(_ context.Context, userID string) identity.Profile {
	return identity.Profile{UserID: userID, Username: "u_" + userID}
}

func (r staticResolver) ResolveMany(ctx context.Context, userIDs []string) map[string]identity.Profile {
	out := make(map[string]identity.Profile, len(userIDs))
	for _, id := range userIDs {
		out[id] = r.Resolve(ctx, id)
	}
	return out
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string]string{}}
}

func (c *memoryCache) Get(_ context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := value.([]byte); ok {
		c.items[key] = string(b)
	}
	return redis.NewStatusResult("OK", nil)
}

func (c *memoryCache) Del(_ context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (c *memoryCache) Scan(_ context.Context, _ uint64, match string, _ int64) *redis.ScanCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return redis.NewScanCmdResult(keys, 0, nil)
}

func (c *memoryCache) Incr(_ context.Context, key string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := strconv.ParseInt(c.items[key], 10, 64)
	n++
	c.items[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

type fixture struct {
	db    *gorm.DB
	svc   *Service
	clock *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &challenge.Challenge{}, &submission.Submission{})
	clock := testutil.NewClock(start.Add(time.Hour))
	svc := NewService(ServiceParams{
		DB:       db,
		Config:   &config.Config{},
		Identity: staticResolver{},
	}).WithClock(clock.Func())

	return &fixture{db: db, svc: svc, clock: clock}
}

func (f *fixture) seedChallenge(t *testing.T, id string, expr string) *challenge.Challenge {
	t.Helper()
	c := &challenge.Challenge{
		ID:                  id,
		Title:               "Challenge",
		Description:         "desc",
		Hashtag:             "Tag",
		SeedPostID:          "seed",
		CreatorID:           "creator_1",
		StartTime:           start,
		EndTime:             start.Add(7 * 24 * time.Hour),
		StoredStatus:        challenge.StatusActive,
		Prizes:              challenge.Prizes{First: 300, Second: 180, Third: 120},
		ParticipationReward: 8,
		Rules:               "rules",
		EligibilityExpr:     expr,
	}
	require.NoError(t, challenge.NewRepository(f.db).Create(context.Background(), c))
	return c
}

func (f *fixture) seedSubmission(t *testing.T, challengeID, id string, score float64, views int64, at time.Time) *submission.Submission {
	t.Helper()
	s := &submission.Submission{
		ID:          id,
		ChallengeID: challengeID,
		PostID:      "post_" + id,
		UserID:      "user_" + id,
		Score:       score,
		Views:       views,
		Status:      submission.StatusSubmitted,
		SubmittedAt: at,
	}
	require.NoError(t, submission.NewRepository(f.db).Create(context.Background(), s))
	return s
}

func ids(entries []*Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func subIDs(subs []*submission.Submission) []string {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.ID)
	}
	return out
}

func TestRankTieBreakBySubmissionTime(t *testing.T) {
	f := newFixture(t)
	c := f.seedChallenge(t, "c1", "")
	f.seedSubmission(t, c.ID, "fifty", 50, 0, start.Add(time.Hour))
	f.seedSubmission(t, c.ID, "late", 80, 0, start.Add(3*time.Hour))
	f.seedSubmission(t, c.ID, "early", 80, 0, start.Add(2*time.Hour))

	entries, err := f.svc.Rank(context.Background(), c.ID, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"early", "late", "fifty"}, ids(entries))
	for i, e := range entries {
		require.Equal(t, i+1, e.Position)
		require.Equal(t, "u_"+e.UserID, e.User.Username)
	}

	again, err := f.svc.Rank(context.Background(), c.ID, 0)
	require.NoError(t, err)
	require.Equal(t, ids(entries), ids(again))

	top, err := f.svc.Rank(context.Background(), c.ID, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"early", "late"}, ids(top))
}

func TestRankTieBreakByID(t *testing.T) {
	f := newFixture(t)
	c := f.seedChallenge(t, "c1", "")
	at := start.Add(time.Hour)
	f.seedSubmission(t, c.ID, "b", 10, 0, at)
	f.seedSubmission(t, c.ID, "a", 10, 0, at)

	entries, err := f.svc.Rank(context.Background(), c.ID, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids(entries))
}

func TestRankUnknownChallenge(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Rank(context.Background(), "missing", 10)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestRankReadThroughCache(t *testing.T) {
	f := newFixture(t)
	cache := newMemoryCache()
	f.svc.WithCache(cache, time.Minute)
	ctx := context.Background()

	c := f.seedChallenge(t, "c1", "")
	f.seedSubmission(t, c.ID, "one", 10, 0, start.Add(time.Hour))
	f.seedSubmission(t, c.ID, "two", 5, 0, start.Add(time.Hour))

	entries, err := f.svc.Rank(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, ids(entries))
	require.Len(t, cache.items, 1)

	require.NoError(t, submission.NewRepository(f.db).AddEngagement(ctx, "two", submission.EngagementDelta{Score: 100}))

	entries, err = f.svc.Rank(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, ids(entries), "served from cache")

	f.svc.Invalidate(ctx, c.ID)
	require.Equal(t, map[string]string{rediskey.BuildLeaderboardVersionKey(c.ID): "1"}, cache.items)

	entries, err = f.svc.Rank(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"two", "one"}, ids(entries))
}

func TestRankIgnoresPageLoadedBeforeInvalidate(t *testing.T) {
	f := newFixture(t)
	cache := newMemoryCache()
	f.svc.WithCache(cache, time.Minute)
	ctx := context.Background()

	c := f.seedChallenge(t, "c1", "")
	f.seedSubmission(t, c.ID, "one", 10, 0, start.Add(time.Hour))
	f.seedSubmission(t, c.ID, "two", 5, 0, start.Add(time.Hour))

	// A reader loads the page, then engagement lands and invalidates
	// before the reader writes it back.
	version, ok := f.svc.version(ctx, c.ID)
	require.True(t, ok)
	stale, err := f.svc.load(ctx, c.ID, 10)
	require.NoError(t, err)

	require.NoError(t, submission.NewRepository(f.db).AddEngagement(ctx, "two", submission.EngagementDelta{Score: 100}))
	f.svc.Invalidate(ctx, c.ID)

	f.svc.store(ctx, c.ID, version, 10, stale)

	entries, err := f.svc.Rank(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"two", "one"}, ids(entries))

	entries, err = f.svc.Rank(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"two", "one"}, ids(entries), "fresh page cached under the new generation")
}

func TestFinalize(t *testing.T) {
	f := newFixture(t)
	c := f.seedChallenge(t, "c1", "")
	ctx := context.Background()

	f.seedSubmission(t, c.ID, "s1", 90, 0, start.Add(time.Hour))
	f.seedSubmission(t, c.ID, "s2", 80, 0, start.Add(time.Hour))
	f.seedSubmission(t, c.ID, "s3", 70, 0, start.Add(time.Hour))
	f.seedSubmission(t, c.ID, "s4", 60, 0, start.Add(time.Hour))
	f.seedSubmission(t, c.ID, "s5", 50, 0, start.Add(time.Hour))
	f.seedSubmission(t, c.ID, "early", 999, 0, start.Add(-time.Minute))

	_, err := f.svc.Finalize(ctx, c.ID)
	require.True(t, errutil.Is(err, errutil.StatusConflict), "active challenge cannot be finalized")

	f.clock.Advance(8 * 24 * time.Hour)
	result, err := f.svc.Finalize(ctx, c.ID)
	require.NoError(t, err)
	require.False(t, result.AlreadyFinalized)
	require.Equal(t, []string{"s1", "s2", "s3"}, subIDs(result.Winners))
	require.Equal(t, []string{"s4", "s5"}, subIDs(result.Qualified))
	require.EqualValues(t, 1, result.Disqualified)

	rewards := []int64{300, 180, 120}
	for i, w := range result.Winners {
		require.Equal(t, submission.StatusWinner, w.Status)
		require.Equal(t, i+1, *w.Ranking)
		require.Equal(t, rewards[i], w.RewardEarned)
	}
	for _, q := range result.Qualified {
		require.Equal(t, submission.StatusQualified, q.Status)
		require.EqualValues(t, 8, q.RewardEarned)
	}

	stored, err := submission.NewRepository(f.db).FindByID(ctx, "early")
	require.NoError(t, err)
	require.Equal(t, submission.StatusDisqualified, stored.Status)
	require.Nil(t, stored.Ranking)

	again, err := f.svc.Finalize(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, again.AlreadyFinalized)
	require.Equal(t, subIDs(result.Winners), subIDs(again.Winners))
	require.Equal(t, subIDs(result.Qualified), subIDs(again.Qualified))
	require.EqualValues(t, 1, again.Disqualified)

	board, err := f.svc.Rank(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"s1", "s2", "s3", "s4", "s5"}, ids(board))
}

func TestFinalizeFewerThanThree(t *testing.T) {
	f := newFixture(t)
	c := f.seedChallenge(t, "c1", "")
	f.seedSubmission(t, c.ID, "only", 1, 0, start.Add(time.Hour))
	f.clock.Advance(8 * 24 * time.Hour)

	result, err := f.svc.Finalize(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"only"}, subIDs(result.Winners))
	require.Empty(t, result.Qualified)
}

func TestFinalizeEligibilityExpression(t *testing.T) {
	f := newFixture(t)
	engine, err := celengine.New()
	require.NoError(t, err)
	f.svc.WithEligibility(engine)

	c := f.seedChallenge(t, "c1", "views >= 100")
	f.seedSubmission(t, c.ID, "popular", 10, 150, start.Add(time.Hour))
	f.seedSubmission(t, c.ID, "high_score", 90, 20, start.Add(time.Hour))
	f.clock.Advance(8 * 24 * time.Hour)

	result, err := f.svc.Finalize(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"popular"}, subIDs(result.Winners))
	require.EqualValues(t, 1, result.Disqualified)
	require.EqualValues(t, 300, result.Winners[0].RewardEarned)
}

func TestFinalizeConcurrentCallsAgree(t *testing.T) {
	f := newFixture(t)
	c := f.seedChallenge(t, "c1", "")
	f.seedSubmission(t, c.ID, "s1", 3, 0, start.Add(time.Hour))
	f.seedSubmission(t, c.ID, "s2", 2, 0, start.Add(time.Hour))
	f.clock.Advance(8 * 24 * time.Hour)

	const n = 5
	results := make([]*Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Finalize(context.Background(), c.ID)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, []string{"s1", "s2"}, subIDs(results[i].Winners))
		if !results[i].AlreadyFinalized {
			fresh++
		}
	}
	require.Equal(t, 1, fresh)
}
