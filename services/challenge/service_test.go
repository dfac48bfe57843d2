package challenge

import (
	"context"
	"testing"
	"time"

	"smallbiznis-challenge/pkg/errutil"
	"smallbiznis-challenge/services/identity"
	"smallbiznis-challenge/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type staticResolver map[string]identity.Profile

func (r staticResolver) Resolve(_ context.Context, userID string) identity.Profile {
	if p, ok := r[userID]; ok {
		return p
	}
	return identity.Profile{UserID: userID}
}

func (r staticResolver) ResolveMany(ctx context.Context, userIDs []string) map[string]identity.Profile {
	out := make(map[string]identity.Profile, len(userIDs))
	for _, id := range userIDs {
		out[id] = r.Resolve(ctx, id)
	}
	return out
}

type staticCodes string

func (c staticCodes) NextChallengeCode(context.Context) (string, error) { return string(c), nil }

type countFunc func(ctx context.Context, challengeID string) (int64, error)

func (f countFunc) CountByChallenge(ctx context.Context, challengeID string) (int64, error) {
	return f(ctx, challengeID)
}

func newTestService(t *testing.T, opts ...func(*ServiceParams)) (*Service, *testutil.Clock) {
	t.Helper()

	db := testutil.NewTestDB(t, &Challenge{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	p := ServiceParams{
		DB:        db,
		Node:      node,
		Validator: NewValidator(nil),
		Identity: staticResolver{
			"creator_1": {UserID: "creator_1", Username: "ayu", DisplayName: "Ayu", Verified: true},
		},
	}
	for _, opt := range opts {
		opt(&p)
	}

	clock := testutil.NewClock(now)
	return NewService(p).WithClock(clock.Func()), clock
}

func createChallenge(t *testing.T, svc *Service) *View {
	t.Helper()
	view, err := svc.Create(context.Background(), "creator_1", validParams())
	require.NoError(t, err)
	return view
}

func TestCreateChallenge(t *testing.T) {
	svc, _ := newTestService(t, func(p *ServiceParams) { p.Codes = staticCodes("CHL-251015-00001") })

	view := createChallenge(t, svc)

	require.NotEmpty(t, view.ID)
	require.Equal(t, "CHL-251015-00001", view.Code)
	require.Equal(t, StatusDraft, view.Status)
	require.Equal(t, StatusDraft, view.StoredStatus)
	require.Equal(t, "Ayu", view.Creator.DisplayName)
	require.Equal(t, []string{"dance", "autumn-fun"}, []string(view.Tags))
	require.Zero(t, view.Counters.TotalSubmissions)

	stored, err := svc.Get(context.Background(), view.ID)
	require.NoError(t, err)
	require.Equal(t, view.Hashtag, stored.Hashtag)
	require.Equal(t, view.Prizes, stored.Prizes)
}

func TestCreateChallengeRejectsInvalid(t *testing.T) {
	svc, _ := newTestService(t)

	p := validParams()
	p.Hashtag = "My Challenge!"
	p.Prizes.Third = 0

	_, err := svc.Create(context.Background(), "creator_1", p)
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Len(t, be.Details, 2)

	items, err := svc.ListByCreator(context.Background(), "creator_1")
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestCreateChallengeRequiresCreator(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "", validParams())
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))
}

func TestGetChallengeNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetStatus(context.Background(), "missing")
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestStatusFollowsClock(t *testing.T) {
	svc, clock := newTestService(t)
	view := createChallenge(t, svc)
	ctx := context.Background()

	status, err := svc.GetStatus(ctx, view.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, status)

	clock.Advance(2 * time.Hour)
	status, err = svc.GetStatus(ctx, view.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, status)

	clock.Advance(30 * 24 * time.Hour)
	status, err = svc.GetStatus(ctx, view.ID)
	require.NoError(t, err)
	require.Equal(t, StatusEnded, status)
}

func TestUpdateChallenge(t *testing.T) {
	svc, clock := newTestService(t)
	view := createChallenge(t, svc)
	ctx := context.Background()

	title := "Winter dance-off"
	tags := []string{"Winter"}
	updated, err := svc.Update(ctx, view.ID, UpdateParams{Title: &title, Tags: &tags})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)
	require.Equal(t, []string{"winter"}, []string(updated.Tags))
	require.Equal(t, view.Description, updated.Description)

	bad := "not valid!"
	_, err = svc.Update(ctx, view.ID, UpdateParams{Hashtag: &bad})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	clock.Advance(9 * 24 * time.Hour)
	_, err = svc.Update(ctx, view.ID, UpdateParams{Title: &title})
	require.ErrorIs(t, err, ErrClosed)
}

func TestUpdateStartLockedOnceSubmissionsExist(t *testing.T) {
	svc, clock := newTestService(t)
	view := createChallenge(t, svc)
	ctx := context.Background()

	clock.Advance(2 * time.Hour)
	require.NoError(t, svc.Repository().IncrementSubmissions(ctx, view.ID, 1))

	start := clock.Now.Add(time.Hour)
	_, err := svc.Update(ctx, view.ID, UpdateParams{StartTime: &start})
	require.True(t, errutil.Is(err, errutil.StatusConflict))

	end := view.EndTime.Add(24 * time.Hour)
	updated, err := svc.Update(ctx, view.ID, UpdateParams{EndTime: &end})
	require.NoError(t, err)
	require.True(t, end.Equal(updated.EndTime))
}

func TestUpdateCannotEndRunningChallengeEarly(t *testing.T) {
	svc, clock := newTestService(t)
	view := createChallenge(t, svc)
	ctx := context.Background()

	clock.Advance(25 * time.Hour)

	end := view.StartTime.Add(24 * time.Hour)
	_, err := svc.Update(ctx, view.ID, UpdateParams{EndTime: &end})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Contains(t, be.Details, Violation{Field: FieldEndTime, Message: "end date must be in the future while the challenge is running"})

	past := clock.Now.Add(-time.Minute)
	_, err = svc.Update(ctx, view.ID, UpdateParams{EndTime: &past})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	status, err := svc.GetStatus(ctx, view.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, status)

	shorter := clock.Now.Add(time.Hour)
	updated, err := svc.Update(ctx, view.ID, UpdateParams{EndTime: &shorter})
	require.NoError(t, err)
	require.True(t, shorter.Equal(updated.EndTime))
	require.Equal(t, StatusActive, updated.Status)
}

func TestUpdateRunningChallengeWithUnchangedStart(t *testing.T) {
	svc, clock := newTestService(t)
	view := createChallenge(t, svc)
	ctx := context.Background()

	clock.Advance(2 * time.Hour)

	title := "Renamed while live"
	start := view.StartTime
	end := view.EndTime
	updated, err := svc.Update(ctx, view.ID, UpdateParams{Title: &title, StartTime: &start, EndTime: &end})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)
	require.Equal(t, StatusActive, updated.Status)
}

func TestArchiveChallenge(t *testing.T) {
	svc, clock := newTestService(t)
	view := createChallenge(t, svc)
	ctx := context.Background()

	_, err := svc.Archive(ctx, view.ID)
	require.True(t, errutil.Is(err, errutil.StatusConflict), "draft cannot be archived")

	clock.Advance(9 * 24 * time.Hour)
	_, err = svc.Archive(ctx, view.ID)
	require.True(t, errutil.Is(err, errutil.StatusConflict), "unfinalized cannot be archived")

	won, err := svc.Repository().MarkFinalized(ctx, view.ID, clock.Now)
	require.NoError(t, err)
	require.True(t, won)

	archived, err := svc.Archive(ctx, view.ID)
	require.NoError(t, err)
	require.Equal(t, StatusArchived, archived.Status)

	again, err := svc.Archive(ctx, view.ID)
	require.NoError(t, err)
	require.Equal(t, StatusArchived, again.Status)

	_, err = svc.Update(ctx, view.ID, UpdateParams{})
	require.ErrorIs(t, err, ErrClosed)
}

func TestDeleteChallenge(t *testing.T) {
	svc, _ := newTestService(t)
	view := createChallenge(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, view.ID))

	_, err := svc.Get(ctx, view.ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, svc.Delete(ctx, view.ID), ErrNotFound)
}

func TestDeleteRefusedWithSubmissions(t *testing.T) {
	stored := int64(0)
	svc, _ := newTestService(t, func(p *ServiceParams) {
		p.Submissions = countFunc(func(context.Context, string) (int64, error) { return stored, nil })
	})
	view := createChallenge(t, svc)
	ctx := context.Background()

	stored = 1
	err := svc.Delete(ctx, view.ID)
	require.True(t, errutil.Is(err, errutil.StatusConflict))

	stored = 0
	require.NoError(t, svc.Repository().IncrementSubmissions(ctx, view.ID, 1))
	err = svc.Delete(ctx, view.ID)
	require.True(t, errutil.Is(err, errutil.StatusConflict))

	_, err = svc.Get(ctx, view.ID)
	require.NoError(t, err)
}

func TestListByCreator(t *testing.T) {
	svc, _ := newTestService(t)
	createChallenge(t, svc)
	createChallenge(t, svc)

	items, err := svc.ListByCreator(context.Background(), "creator_1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		require.Equal(t, "creator_1", item.CreatorID)
		require.Equal(t, "ayu", item.Creator.Username)
	}

	items, err = svc.ListByCreator(context.Background(), "someone_else")
	require.NoError(t, err)
	require.Empty(t, items)
}
