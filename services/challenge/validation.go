package challenge

import (
	"regexp"
	"strings"
	"time"

	"smallbiznis-challenge/pkg/errutil"

	"github.com/gosimple/slug"
)

const (
	MinDuration = 24 * time.Hour
	MaxDuration = 30 * 24 * time.Hour
)

// Field names reported in violations.
const (
	FieldTitle               = "title"
	FieldDescription         = "description"
	FieldRules               = "rules"
	FieldHashtag             = "hashtag"
	FieldSeedPostID          = "seed_post_id"
	FieldStartTime           = "start_time"
	FieldEndTime             = "end_time"
	FieldPrizes              = "prizes"
	FieldParticipationReward = "participation_reward"
	FieldEligibilityExpr     = "eligibility_expr"
)

var hashtagPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

type Violation = errutil.Detail

// ExpressionChecker compiles eligibility expressions.
type ExpressionChecker interface {
	Validate(expr string) error
}

type Validator struct {
	expressions ExpressionChecker
}

// NewValidator builds a validator. A nil checker skips eligibility expression checks.
func NewValidator(expressions ExpressionChecker) *Validator {
	return &Validator{expressions: expressions}
}

// Validate applies every structural rule to p and returns all violations in
// rule order. An empty result means p is valid.
func (v *Validator) Validate(p CreateParams, now time.Time) []Violation {
	return v.validate(p, now, true)
}

// ValidatePartial merges patch over existing and reports only violations of
// the field groups the patch touches. The start date must lie in the future
// only when the patch moves it, and a running challenge cannot be ended early
// by moving its end date to now or earlier.
func (v *Validator) ValidatePartial(existing *Challenge, patch UpdateParams, now time.Time) []Violation {
	merged := paramsFromChallenge(existing)
	touched := map[string]bool{}

	if patch.Title != nil {
		merged.Title = *patch.Title
		touched[FieldTitle] = true
	}
	if patch.Description != nil {
		merged.Description = *patch.Description
		touched[FieldDescription] = true
	}
	if patch.Rules != nil {
		merged.Rules = *patch.Rules
		touched[FieldRules] = true
	}
	if patch.Hashtag != nil {
		merged.Hashtag = *patch.Hashtag
		touched[FieldHashtag] = true
	}
	if patch.SeedPostID != nil {
		merged.SeedPostID = *patch.SeedPostID
		touched[FieldSeedPostID] = true
	}
	if patch.StartTime != nil || patch.EndTime != nil {
		if patch.StartTime != nil {
			merged.StartTime = patch.StartTime
		}
		if patch.EndTime != nil {
			merged.EndTime = patch.EndTime
		}
		touched[FieldStartTime] = true
		touched[FieldEndTime] = true
	}
	if patch.Prizes != nil {
		merged.Prizes = *patch.Prizes
		touched[FieldPrizes] = true
	}
	if patch.ParticipationReward != nil {
		merged.ParticipationReward = *patch.ParticipationReward
		touched[FieldParticipationReward] = true
	}
	if patch.EligibilityExpr != nil {
		merged.EligibilityExpr = *patch.EligibilityExpr
		touched[FieldEligibilityExpr] = true
	}

	startMoved := patch.StartTime != nil && !patch.StartTime.Equal(existing.StartTime)
	endMoved := patch.EndTime != nil && !patch.EndTime.Equal(existing.EndTime)

	var out []Violation
	for _, violation := range v.validate(merged, now, startMoved) {
		if touched[violation.Field] {
			out = append(out, violation)
		}
	}
	// A running challenge must keep every stamped submission inside its window.
	if endMoved && existing.StatusAt(now) == StatusActive && !patch.EndTime.After(now) {
		out = append(out, Violation{Field: FieldEndTime, Message: "end date must be in the future while the challenge is running"})
	}
	return out
}

func (v *Validator) validate(p CreateParams, now time.Time, futureStart bool) []Violation {
	var out []Violation
	add := func(field, msg string) {
		out = append(out, Violation{Field: field, Message: msg})
	}

	if strings.TrimSpace(p.Title) == "" {
		add(FieldTitle, "title is required")
	}
	if strings.TrimSpace(p.Description) == "" {
		add(FieldDescription, "description is required")
	}
	if strings.TrimSpace(p.Rules) == "" {
		add(FieldRules, "rules are required")
	}

	if p.Hashtag == "" {
		add(FieldHashtag, "hashtag is required")
	} else if !hashtagPattern.MatchString(p.Hashtag) {
		add(FieldHashtag, "hashtag must contain only letters and digits")
	}

	if strings.TrimSpace(p.SeedPostID) == "" {
		add(FieldSeedPostID, "seed post is required")
	}

	if p.StartTime == nil {
		add(FieldStartTime, "start date is required")
	}
	if p.EndTime == nil {
		add(FieldEndTime, "end date is required")
	}
	if p.StartTime != nil && p.EndTime != nil {
		start, end := *p.StartTime, *p.EndTime
		if futureStart && !start.After(now) {
			add(FieldStartTime, "start date must be in the future")
		}
		if !end.After(start) {
			add(FieldEndTime, "end date must be after start date")
		} else if d := end.Sub(start); d < MinDuration {
			add(FieldEndTime, "duration below 1 day minimum")
		} else if d > MaxDuration {
			add(FieldEndTime, "duration exceeds 30 day maximum")
		}
	}

	if p.Prizes.First <= 0 {
		add(FieldPrizes, "first prize must be greater than zero")
	}
	if p.Prizes.Second <= 0 {
		add(FieldPrizes, "second prize must be greater than zero")
	}
	if p.Prizes.Third <= 0 {
		add(FieldPrizes, "third prize must be greater than zero")
	}
	if p.Prizes.First <= p.Prizes.Second {
		add(FieldPrizes, "first prize must be greater than second prize")
	}
	if p.Prizes.Second <= p.Prizes.Third {
		add(FieldPrizes, "second prize must be greater than third prize")
	}

	if p.ParticipationReward < 0 {
		add(FieldParticipationReward, "participation reward cannot be negative")
	}

	if p.EligibilityExpr != "" && v.expressions != nil {
		if err := v.expressions.Validate(p.EligibilityExpr); err != nil {
			add(FieldEligibilityExpr, "eligibility expression is invalid: "+err.Error())
		}
	}

	return out
}

// ValidationError wraps violations into the error returned to callers.
func ValidationError(violations []Violation) error {
	return errutil.ValidationFailed("invalid challenge", nil, errutil.WithDetails(violations...))
}

// NormalizeTags slugifies tags, dropping empties and duplicates while keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		s := slug.Make(tag)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func paramsFromChallenge(c *Challenge) CreateParams {
	start, end := c.StartTime, c.EndTime
	return CreateParams{
		Title:               c.Title,
		Description:         c.Description,
		Hashtag:             c.Hashtag,
		SeedPostID:          c.SeedPostID,
		StartTime:           &start,
		EndTime:             &end,
		Prizes:              c.Prizes,
		ParticipationReward: c.ParticipationReward,
		Rules:               c.Rules,
		Tags:                c.Tags,
		IsSponsored:         c.IsSponsored,
		IsFeatured:          c.IsFeatured,
		EligibilityExpr:     c.EligibilityExpr,
	}
}
