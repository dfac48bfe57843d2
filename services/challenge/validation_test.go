package challenge

import (
	"errors"
	"testing"
	"time"

	"smallbiznis-challenge/pkg/errutil"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 10, 15, 8, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func validParams() CreateParams {
	return CreateParams{
		Title:               "Autumn dance-off",
		Description:         "Show your best moves",
		Hashtag:             "AutumnDance25",
		SeedPostID:          "post_seed",
		StartTime:           at(time.Hour),
		EndTime:             at(8 * 24 * time.Hour),
		Prizes:              Prizes{First: 500, Second: 300, Third: 100},
		ParticipationReward: 5,
		Rules:               "One video per post",
		Tags:                []string{"Dance", "dance", "Autumn Fun"},
	}
}

func messages(vs []Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Message)
	}
	return out
}

type checkerFunc func(expr string) error

func (f checkerFunc) Validate(expr string) error { return f(expr) }

func TestValidateAcceptsValidParams(t *testing.T) {
	require.Empty(t, NewValidator(nil).Validate(validParams(), now))
}

func TestValidateDurationBelowMinimum(t *testing.T) {
	p := validParams()
	p.StartTime = at(time.Hour)
	p.EndTime = at(13 * time.Hour)

	got := NewValidator(nil).Validate(p, now)
	require.Equal(t, []string{"duration below 1 day minimum"}, messages(got))
	require.Equal(t, FieldEndTime, got[0].Field)
}

func TestValidateDurationAboveMaximum(t *testing.T) {
	p := validParams()
	p.EndTime = at(time.Hour + 31*24*time.Hour)

	require.Equal(t, []string{"duration exceeds 30 day maximum"}, messages(NewValidator(nil).Validate(p, now)))
}

func TestValidateDurationBoundsInclusive(t *testing.T) {
	p := validParams()
	p.EndTime = at(time.Hour + MinDuration)
	require.Empty(t, NewValidator(nil).Validate(p, now))

	p.EndTime = at(time.Hour + MaxDuration)
	require.Empty(t, NewValidator(nil).Validate(p, now))
}

func TestValidateStartInPast(t *testing.T) {
	p := validParams()
	p.StartTime = at(-time.Hour)
	p.EndTime = at(2 * 24 * time.Hour)

	require.Contains(t, messages(NewValidator(nil).Validate(p, now)), "start date must be in the future")
}

func TestValidateHashtag(t *testing.T) {
	p := validParams()
	p.Hashtag = "My Challenge!"

	got := NewValidator(nil).Validate(p, now)
	require.Len(t, got, 1)
	require.Equal(t, FieldHashtag, got[0].Field)
}

func TestValidatePrizeOrdering(t *testing.T) {
	p := validParams()
	p.Prizes = Prizes{First: 100, Second: 300, Third: 300}

	got := messages(NewValidator(nil).Validate(p, now))
	require.Equal(t, []string{
		"first prize must be greater than second prize",
		"second prize must be greater than third prize",
	}, got)
}

func TestValidateReportsEveryViolationInOrder(t *testing.T) {
	got := NewValidator(nil).Validate(CreateParams{ParticipationReward: -1}, now)

	fields := make([]string, 0, len(got))
	for _, v := range got {
		fields = append(fields, v.Field)
	}
	require.Equal(t, []string{
		FieldTitle, FieldDescription, FieldRules, FieldHashtag, FieldSeedPostID,
		FieldStartTime, FieldEndTime,
		FieldPrizes, FieldPrizes, FieldPrizes, FieldPrizes, FieldPrizes,
		FieldParticipationReward,
	}, fields)
}

func TestValidateEligibilityExpression(t *testing.T) {
	v := NewValidator(checkerFunc(func(expr string) error {
		if expr == "views >" {
			return errors.New("syntax error")
		}
		return nil
	}))

	p := validParams()
	p.EligibilityExpr = "views > 10"
	require.Empty(t, v.Validate(p, now))

	p.EligibilityExpr = "views >"
	got := v.Validate(p, now)
	require.Len(t, got, 1)
	require.Equal(t, FieldEligibilityExpr, got[0].Field)
}

func TestValidatePartialOnlyReportsTouchedFields(t *testing.T) {
	existing := &Challenge{
		Title:       "Live challenge",
		Description: "desc",
		Hashtag:     "Live",
		SeedPostID:  "post_1",
		Rules:       "rules",
		StartTime:   now.Add(-time.Hour),
		EndTime:     now.Add(3 * 24 * time.Hour),
		Prizes:      Prizes{First: 3, Second: 2, Third: 1},
	}
	v := NewValidator(nil)

	title := "Renamed"
	require.Empty(t, v.ValidatePartial(existing, UpdateParams{Title: &title}, now))

	end := now.Add(4 * 24 * time.Hour)
	require.Empty(t, v.ValidatePartial(existing, UpdateParams{EndTime: &end}, now), "a started challenge can extend its end")

	start := now.Add(-30 * time.Minute)
	require.Contains(t, messages(v.ValidatePartial(existing, UpdateParams{StartTime: &start}, now)), "start date must be in the future")

	prizes := Prizes{First: 1, Second: 2, Third: 3}
	got := v.ValidatePartial(existing, UpdateParams{Prizes: &prizes}, now)
	require.Len(t, got, 2)

	blank := ""
	got = v.ValidatePartial(existing, UpdateParams{Rules: &blank}, now)
	require.Equal(t, []string{"rules are required"}, messages(got))

	same := existing.StartTime
	require.Empty(t, v.ValidatePartial(existing, UpdateParams{Title: &title, StartTime: &same}, now), "an unchanged start is not re-checked")

	early := now
	require.Contains(t,
		messages(v.ValidatePartial(existing, UpdateParams{EndTime: &early}, now)),
		"end date must be in the future while the challenge is running",
	)
}

func TestValidationError(t *testing.T) {
	err := ValidationError([]Violation{{Field: FieldTitle, Message: "title is required"}})

	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Len(t, be.Details, 1)
}

func TestNormalizeTags(t *testing.T) {
	require.Equal(t, []string{"dance", "autumn-fun"}, NormalizeTags([]string{"Dance", "dance", " ", "Autumn Fun"}))
}
