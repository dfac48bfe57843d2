package reward

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type Tier string

const (
	TierRank1         Tier = "rank1"
	TierRank2         Tier = "rank2"
	TierRank3         Tier = "rank3"
	TierParticipation Tier = "participation"
)

// TierForRank returns the podium tier for ranks 1 to 3 and participation otherwise.
func TierForRank(rank int) Tier {
	switch rank {
	case 1:
		return TierRank1
	case 2:
		return TierRank2
	case 3:
		return TierRank3
	}
	return TierParticipation
}

type GrantStatus string

const (
	GrantPending  GrantStatus = "pending"
	GrantCredited GrantStatus = "credited"
	GrantFailed   GrantStatus = "failed"
)

// Grant is the durable record of one ledger credit request. IdempotencyKey
// doubles as the ledger reference so a replayed credit is recognized.
type Grant struct {
	ID             string         `gorm:"primaryKey;type:varchar(32)" json:"id"`
	ChallengeID    string         `gorm:"type:varchar(32);not null;index" json:"challenge_id"`
	SubmissionID   string         `gorm:"type:varchar(32);not null;index" json:"submission_id"`
	UserID         string         `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Tier           Tier           `gorm:"type:varchar(16);not null" json:"tier"`
	Amount         int64          `gorm:"not null" json:"amount"`
	IdempotencyKey string         `gorm:"type:varchar(160);not null;uniqueIndex" json:"idempotency_key"`
	Status         GrantStatus    `gorm:"type:varchar(16);not null;default:pending;index" json:"status"`
	Attempts       int            `gorm:"not null;default:0" json:"attempts"`
	LastError      string         `gorm:"type:text" json:"last_error,omitempty"`
	CreditedAt     *time.Time     `json:"credited_at,omitempty"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (Grant) TableName() string {
	return "reward_grants"
}

func (g *Grant) Credited() bool {
	return g.Status == GrantCredited
}

// RankKey is the idempotency key of a podium reward.
func RankKey(challengeID, userID string, rank int) string {
	return fmt.Sprintf("challenge:%s:user:%s:rank:%d", challengeID, userID, rank)
}

// ParticipationKey is the idempotency key of a participation reward.
func ParticipationKey(challengeID, userID string) string {
	return fmt.Sprintf("challenge:%s:user:%s:participation", challengeID, userID)
}

// Summary reports what one IssueRewards run did.
type Summary struct {
	ChallengeID string `json:"challenge_id"`
	Grants      int    `json:"grants"`
	Credited    int    `json:"credited"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
}
