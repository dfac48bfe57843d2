package submission

import (
	"time"

	"smallbiznis-challenge/services/challenge"
	"smallbiznis-challenge/services/identity"
)

type Status string

const (
	StatusSubmitted    Status = "submitted"
	StatusQualified    Status = "qualified"
	StatusWinner       Status = "winner"
	StatusDisqualified Status = "disqualified"
)

// Submission is one entry into a challenge. RewardEarned and Ranking are
// assigned at finalization. DedupeKey is "{challenge}:{user}" when one
// submission per user is enforced and NULL otherwise.
type Submission struct {
	ID           string    `gorm:"primaryKey;type:varchar(32)" json:"id"`
	ChallengeID  string    `gorm:"type:varchar(32);not null;index;uniqueIndex:idx_submission_post" json:"challenge_id"`
	PostID       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_submission_post" json:"post_id"`
	UserID       string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Score        float64   `gorm:"not null;default:0" json:"score"`
	Views        int64     `gorm:"not null;default:0" json:"views"`
	Likes        int64     `gorm:"not null;default:0" json:"likes"`
	Comments     int64     `gorm:"not null;default:0" json:"comments"`
	Shares       int64     `gorm:"not null;default:0" json:"shares"`
	Ranking      *int      `json:"ranking,omitempty"`
	Status       Status    `gorm:"type:varchar(16);not null;default:submitted" json:"status"`
	RewardEarned int64     `gorm:"not null;default:0" json:"reward_earned"`
	SubmittedAt  time.Time `gorm:"not null;index" json:"submitted_at"`
	DedupeKey    *string   `gorm:"type:varchar(128);uniqueIndex" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Submission) TableName() string {
	return "submissions"
}

// View is a submission decorated with its submitter.
type View struct {
	*Submission
	User identity.Profile `json:"user"`
}

// Entry pairs a user's submission with the challenge it was made to.
type Entry struct {
	Submission *Submission     `json:"submission"`
	Challenge  *challenge.View `json:"challenge"`
}

// EngagementDelta is reported by the engagement tracking pipeline. Values are
// added to the stored counters.
type EngagementDelta struct {
	Score    float64 `json:"score"`
	Views    int64   `json:"views"`
	Likes    int64   `json:"likes"`
	Comments int64   `json:"comments"`
	Shares   int64   `json:"shares"`
}

func (d EngagementDelta) IsZero() bool {
	return d == EngagementDelta{}
}
