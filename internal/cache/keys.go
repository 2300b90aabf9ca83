package cache

import "fmt"

// Key names shared across components. The layout is part of the persisted
// state contract and must not change without a data migration.
const (
	KeyStats              = "stats"
	KeyBroadcastFlag      = "broadcast_in_progress"
	KeyBroadcastTimestamp = "broadcast_timestamp"
)

// FloodKey gates message frequency for a single user.
func FloodKey(userID int64) string {
	return fmt.Sprintf("flood_%d", userID)
}

// ReferralCountKey holds the cached referral count snapshot for a user.
func ReferralCountKey(userID int64) string {
	return fmt.Sprintf("user:%d:referral_count", userID)
}

// FirstQuestionKey marks that a user has consumed the one free ungated answer.
func FirstQuestionKey(userID int64) string {
	return fmt.Sprintf("first_question:%d", userID)
}
