package postgres

import "time"

// User is a Telegram account known to the ledger. InvitedBy is set at most
// once, at referral registration, and never points back at the user itself.
type User struct {
	ID            int64
	Username      *string
	InvitedBy     *int64
	ReferralCount int
	AccessGranted bool
	IsAdmin       bool
	LastActivity  time.Time
	CreatedAt     time.Time
}

// Referral is an edge from the inviter to the invited user. An invited user
// appears in at most one edge.
type Referral struct {
	ID        int64
	InviterID int64
	InvitedID int64
	CreatedAt time.Time
}

// RegisterReferralResult reports the inviter's state after a successful
// registration transaction.
type RegisterReferralResult struct {
	InviterCount  int
	AccessGranted bool
}

// StatsSnapshot aggregates user totals over activity and signup windows.
type StatsSnapshot struct {
	TotalUsers  int
	ActiveToday int
	ActiveWeek  int
	ActiveMonth int
	NewToday    int
	NewWeek     int
	NewMonth    int
}
