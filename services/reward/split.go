package reward

// Split is a suggested prize pool for a total budget.
type Split struct {
	First               int64 `json:"first"`
	Second              int64 `json:"second"`
	Third               int64 `json:"third"`
	ParticipationReward int64 `json:"participation_reward"`
}

// participantTarget is the number of participants the participation pool is sized for.
const participantTarget = 50

// SuggestPrizeSplit divides budget 60/40 between the podium and participants.
// The podium share is split 50/30/20 and the participant share is spread over
// participantTarget entries. Every step rounds down.
func SuggestPrizeSplit(budget int64) Split {
	if budget <= 0 {
		return Split{}
	}

	winners := tenths(budget, 6)
	participants := tenths(budget, 4)
	return Split{
		First:               tenths(winners, 5),
		Second:              tenths(winners, 3),
		Third:               tenths(winners, 2),
		ParticipationReward: participants / participantTarget,
	}
}

// tenths returns floor(v*n/10) for non-negative v and n <= 10 without
// overflowing on budgets near math.MaxInt64.
func tenths(v, n int64) int64 {
	return v/10*n + v%10*n/10
}
