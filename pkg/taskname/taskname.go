package taskname

const (
	// Challenge tasks
	ChallengeFinalize    = "challenge:finalize"
	ChallengeRewardIssue = "challenge:reward:issue"
	RewardGrantRetry     = "challenge:reward:retry"
)
