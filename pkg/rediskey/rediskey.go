package rediskey

import "fmt"

const (
	LeaderboardPrefix        = "challenge:leaderboard"
	LeaderboardVersionPrefix = "challenge:leaderboard_version"
	ProfilePrefix            = "identity:profile"
	SequencePrefix           = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildLeaderboardKey returns "challenge:leaderboard:{challengeID}:v{version}:{limit}"
func BuildLeaderboardKey(challengeID string, version int64, limit int) string {
	return fmt.Sprintf("%s:v%d:%d", BuildLeaderboardPattern(challengeID), version, limit)
}

// BuildLeaderboardVersionKey returns "challenge:leaderboard_version:{challengeID}".
// It sits outside the page pattern so invalidation never deletes it.
func BuildLeaderboardVersionKey(challengeID string) string {
	return NamespaceKey(LeaderboardVersionPrefix, challengeID)
}

// BuildLeaderboardPattern returns "challenge:leaderboard:{challengeID}", the prefix of every cached page.
func BuildLeaderboardPattern(challengeID string) string {
	return NamespaceKey(LeaderboardPrefix, challengeID)
}

// BuildProfileKey returns "identity:profile:{userID}"
func BuildProfileKey(userID string) string {
	return NamespaceKey(ProfilePrefix, userID)
}

// BuildDailySequenceKey returns "seq:{prefix}:{day}"
func BuildDailySequenceKey(prefix, day string) string {
	return fmt.Sprintf("%s:%s:%s", SequencePrefix, prefix, day)
}
