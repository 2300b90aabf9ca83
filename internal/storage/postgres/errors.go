package postgres

import "errors"

var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("bot/postgres: user not found")
	// ErrDuplicateReferral is returned when the referrals unique constraint
	// rejects an insert at commit time.
	ErrDuplicateReferral = errors.New("bot/postgres: referral already registered")
	// ErrUnavailable is returned when the ledger cannot be reached.
	ErrUnavailable = errors.New("bot/postgres: store unavailable")
)
