package challenge

import (
	"time"

	"smallbiznis-challenge/services/identity"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusEnded    Status = "ended"
	StatusArchived Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusEnded, StatusArchived:
		return true
	}
	return false
}

type Prizes struct {
	First  int64 `gorm:"column:first;not null" json:"first"`
	Second int64 `gorm:"column:second;not null" json:"second"`
	Third  int64 `gorm:"column:third;not null" json:"third"`
}

// Amount returns the prize for a 1-based rank, zero outside the podium.
func (p Prizes) Amount(rank int) int64 {
	switch rank {
	case 1:
		return p.First
	case 2:
		return p.Second
	case 3:
		return p.Third
	}
	return 0
}

type Counters struct {
	TotalSubmissions int64 `gorm:"column:total_submissions;not null;default:0" json:"total_submissions"`
	TotalViews       int64 `gorm:"column:total_views;not null;default:0" json:"total_views"`
	TotalLikes       int64 `gorm:"column:total_likes;not null;default:0" json:"total_likes"`
}

type Challenge struct {
	ID                  string                      `gorm:"primaryKey;type:varchar(32)" json:"id"`
	Code                string                      `gorm:"type:varchar(32);index" json:"code,omitempty"`
	Title               string                      `gorm:"type:varchar(255);not null" json:"title"`
	Description         string                      `gorm:"type:text;not null" json:"description"`
	Hashtag             string                      `gorm:"type:varchar(100);index;not null" json:"hashtag"`
	SeedPostID          string                      `gorm:"type:varchar(64);not null" json:"seed_post_id"`
	CreatorID           string                      `gorm:"type:varchar(64);index;not null" json:"creator_id"`
	StartTime           time.Time                   `gorm:"index;not null" json:"start_time"`
	EndTime             time.Time                   `gorm:"index;not null" json:"end_time"`
	StoredStatus        Status                      `gorm:"column:status;type:varchar(16);not null;default:draft" json:"stored_status"`
	IsSponsored         bool                        `gorm:"not null;default:false" json:"is_sponsored"`
	IsFeatured          bool                        `gorm:"not null;default:false" json:"is_featured"`
	Prizes              Prizes                      `gorm:"embedded;embeddedPrefix:prize_" json:"prizes"`
	ParticipationReward int64                       `gorm:"not null;default:0" json:"participation_reward"`
	Counters            Counters                    `gorm:"embedded" json:"counters"`
	Rules               string                      `gorm:"type:text;not null" json:"rules"`
	Tags                datatypes.JSONSlice[string] `json:"tags"`
	EligibilityExpr     string                      `gorm:"type:text" json:"eligibility_expr,omitempty"`
	FinalizedAt         *time.Time                  `gorm:"index" json:"finalized_at,omitempty"`
	CreatedAt           time.Time                   `json:"created_at"`
	UpdatedAt           time.Time                   `json:"updated_at"`
}

func (Challenge) TableName() string {
	return "challenges"
}

// StatusAt is the logical status of the challenge at now.
func (c *Challenge) StatusAt(now time.Time) Status {
	return DeriveStatus(now, c.StartTime, c.EndTime, c.StoredStatus)
}

func (c *Challenge) Finalized() bool {
	return c.FinalizedAt != nil
}

// View is a challenge as returned to callers: logical status resolved and creator decorated.
type View struct {
	*Challenge
	Status  Status           `json:"status"`
	Creator identity.Profile `json:"creator"`
}

// CreateParams carries the fields a creator supplies for a new challenge.
type CreateParams struct {
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Hashtag             string     `json:"hashtag"`
	SeedPostID          string     `json:"seed_post_id"`
	StartTime           *time.Time `json:"start_time"`
	EndTime             *time.Time `json:"end_time"`
	Prizes              Prizes     `json:"prizes"`
	ParticipationReward int64      `json:"participation_reward"`
	Rules               string     `json:"rules"`
	Tags                []string   `json:"tags"`
	IsSponsored         bool       `json:"is_sponsored"`
	IsFeatured          bool       `json:"is_featured"`
	EligibilityExpr     string     `json:"eligibility_expr"`
}

// UpdateParams is a partial update; nil fields are left untouched.
type UpdateParams struct {
	Title               *string    `json:"title"`
	Description         *string    `json:"description"`
	Hashtag             *string    `json:"hashtag"`
	SeedPostID          *string    `json:"seed_post_id"`
	StartTime           *time.Time `json:"start_time"`
	EndTime             *time.Time `json:"end_time"`
	Prizes              *Prizes    `json:"prizes"`
	ParticipationReward *int64     `json:"participation_reward"`
	Rules               *string    `json:"rules"`
	Tags                *[]string  `json:"tags"`
	IsSponsored         *bool      `json:"is_sponsored"`
	IsFeatured          *bool      `json:"is_featured"`
	EligibilityExpr     *string    `json:"eligibility_expr"`
}
