package referral

import "errors"

var (
	// ErrUnknownUser is returned when either side of a registration does not
	// exist in the ledger.
	ErrUnknownUser = errors.New("referral: unknown user")
	// ErrSelfReferral is returned when a user attempts to invite themselves.
	ErrSelfReferral = errors.New("referral: self referral rejected")
	// ErrAlreadyReferred is returned when the invited user already has an inviter.
	ErrAlreadyReferred = errors.New("referral: user already referred")
	// ErrDuplicate is returned when a concurrent registration won the race for
	// the same invited user.
	ErrDuplicate = errors.New("referral: duplicate registration")
)
