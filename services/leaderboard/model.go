package leaderboard

import (
	"time"

	"smallbiznis-challenge/services/identity"
	"smallbiznis-challenge/services/submission"
)

// Entry is one leaderboard row. Position is 1-based.
type Entry struct {
	Position int `json:"position"`
	*submission.Submission
	User identity.Profile `json:"user"`
}

// Result is the outcome of finalizing a challenge. Winners are ordered by
// ranking; Qualified holds the ranked non-winners.
type Result struct {
	ChallengeID      string                   `json:"challenge_id"`
	FinalizedAt      time.Time                `json:"finalized_at"`
	Winners          []*submission.Submission `json:"winners"`
	Qualified        []*submission.Submission `json:"qualified"`
	Disqualified     int64                    `json:"disqualified"`
	AlreadyFinalized bool                     `json:"already_finalized"`
}
