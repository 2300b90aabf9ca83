// Package access implements the policy deciding whether a user may consume
// the AI answer feature.
//
// Key Responsibilities:
//   - Admin exemption: the operator identity is always allowed
//   - One-time free question: first contact sets a 24h marker and allows
//   - Referral gate: allow iff the cached referral count meets the threshold
//
// Error Handling:
//   - Ledger or cache unreachability fails closed: the caller receives an
//     error satisfying errors.Is(err, ErrStoreUnavailable) and must not grant
//     access on it.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/cache"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/metrics"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/storage/postgres"
)

// ErrStoreUnavailable is returned when the backing ledger or cache cannot be
// reached. Access must never be granted on this error.
var ErrStoreUnavailable = errors.New("access: store unavailable")

// Reason explains an access decision.
type Reason string

const (
	ReasonAdmin                 Reason = "admin"
	ReasonFirstQuestion         Reason = "first_question"
	ReasonReferrals             Reason = "referrals"
	ReasonInsufficientReferrals Reason = "insufficient_referrals"
)

// Decision is the outcome of a policy check.
type Decision struct {
	Allow  bool
	Reason Reason
}

// Flags is the cache surface for the one-time question marker.
type Flags interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
}

// Counter yields a user's referral count, cache-through against the ledger.
type Counter interface {
	Count(ctx context.Context, userID int64) (int, error)
}

// Policy gates AI requests behind the referral quota.
type Policy struct {
	flags    Flags
	counter  Counter
	adminID  int64
	required int
	flagTTL  time.Duration
}

// Options configure a Policy.
type Options struct {
	AdminID  int64
	Required int
	FlagTTL  time.Duration
}

// NewPolicy builds a Policy. Required defaults to 2 and FlagTTL to 24h.
func NewPolicy(flags Flags, counter Counter, opts Options) *Policy {
	if opts.Required <= 0 {
		opts.Required = 2
	}
	if opts.FlagTTL <= 0 {
		opts.FlagTTL = 24 * time.Hour
	}
	return &Policy{
		flags:    flags,
		counter:  counter,
		adminID:  opts.AdminID,
		required: opts.Required,
		flagTTL:  opts.FlagTTL,
	}
}

// Decide determines whether userID may consume an AI answer right now.
// The caller must have created the user record already (first-contact upsert
// happens in the activity middleware).
func (p *Policy) Decide(ctx context.Context, userID int64) (Decision, error) {
	if userID == p.adminID {
		metrics.AccessDecisions.WithLabelValues(string(ReasonAdmin)).Inc()
		return Decision{Allow: true, Reason: ReasonAdmin}, nil
	}

	key := cache.FirstQuestionKey(userID)
	used, err := p.flags.Exists(ctx, key)
	if err != nil {
		metrics.AccessDecisions.WithLabelValues("store_error").Inc()
		return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !used {
		if err := p.flags.SetEx(ctx, key, "asked", p.flagTTL); err != nil {
			metrics.AccessDecisions.WithLabelValues("store_error").Inc()
			return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		metrics.AccessDecisions.WithLabelValues(string(ReasonFirstQuestion)).Inc()
		return Decision{Allow: true, Reason: ReasonFirstQuestion}, nil
	}

	count, err := p.counter.Count(ctx, userID)
	if err != nil {
		metrics.AccessDecisions.WithLabelValues("store_error").Inc()
		if errors.Is(err, postgres.ErrUnavailable) || errors.Is(err, cache.ErrUnavailable) {
			return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return Decision{}, fmt.Errorf("access check: %w", err)
	}
	if count >= p.required {
		metrics.AccessDecisions.WithLabelValues(string(ReasonReferrals)).Inc()
		return Decision{Allow: true, Reason: ReasonReferrals}, nil
	}
	metrics.AccessDecisions.WithLabelValues(string(ReasonInsufficientReferrals)).Inc()
	return Decision{Allow: false, Reason: ReasonInsufficientReferrals}, nil
}
