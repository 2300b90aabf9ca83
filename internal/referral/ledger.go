// Package referral implements referral registration and cached referral counts.
//
// The relational store is authoritative; the cache holds point-in-time count
// snapshots with a bounded TTL and is lazily repopulated on miss.
package referral

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/cache"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/metrics"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/storage/postgres"
)

// Store is the subset of ledger persistence the service depends on.
type Store interface {
	GetUser(ctx context.Context, userID int64) (postgres.User, error)
	RegisterReferral(ctx context.Context, inviterID, invitedID int64, required int) (postgres.RegisterReferralResult, error)
	CountReferrals(ctx context.Context, inviterID int64) (int, error)
}

// Counters is the cache surface used for count snapshots.
type Counters interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Notifier delivers best-effort registration notifications. Failures are
// logged and never roll back a committed registration.
type Notifier interface {
	NotifyRegistered(ctx context.Context, invitedID int64) error
	NotifyAccessGranted(ctx context.Context, inviterID int64) error
	NotifyProgress(ctx context.Context, inviterID int64, count, required int) error
}

// Ledger coordinates registration transactions and count caching.
type Ledger struct {
	store    Store
	counters Counters
	notifier Notifier
	logger   *zap.Logger

	required int
	countTTL time.Duration
}

// Options configure a Ledger.
type Options struct {
	Required int
	CountTTL time.Duration
}

// NewLedger builds a Ledger. Required defaults to 2 and CountTTL to 600s,
// matching the access policy thresholds.
func NewLedger(store Store, counters Counters, notifier Notifier, logger *zap.Logger, opts Options) *Ledger {
	if opts.Required <= 0 {
		opts.Required = 2
	}
	if opts.CountTTL <= 0 {
		opts.CountTTL = 600 * time.Second
	}
	return &Ledger{
		store:    store,
		counters: counters,
		notifier: notifier,
		logger:   logger.With(zap.String("component", "referral")),
		required: opts.Required,
		countTTL: opts.CountTTL,
	}
}

// Required returns the referral threshold unlocking full access.
func (l *Ledger) Required() int {
	return l.required
}

// Register runs the ordered pre-checks and the registration transaction.
// Pre-checks are a fast path; the store's uniqueness constraint remains the
// final arbiter under races.
func (l *Ledger) Register(ctx context.Context, inviterID, invitedID int64) error {
	if inviterID == invitedID {
		metrics.ReferralRegistrations.WithLabelValues("self_referral").Inc()
		return ErrSelfReferral
	}

	if _, err := l.store.GetUser(ctx, inviterID); err != nil {
		return l.registerLookupErr(err)
	}
	invited, err := l.store.GetUser(ctx, invitedID)
	if err != nil {
		return l.registerLookupErr(err)
	}
	if invited.InvitedBy != nil {
		metrics.ReferralRegistrations.WithLabelValues("already_referred").Inc()
		return ErrAlreadyReferred
	}

	res, err := l.store.RegisterReferral(ctx, inviterID, invitedID, l.required)
	if err != nil {
		if errors.Is(err, postgres.ErrDuplicateReferral) {
			metrics.ReferralRegistrations.WithLabelValues("duplicate").Inc()
			return ErrDuplicate
		}
		metrics.ReferralRegistrations.WithLabelValues("store_error").Inc()
		return fmt.Errorf("register referral: %w", err)
	}
	metrics.ReferralRegistrations.WithLabelValues("success").Inc()

	// The committed transaction invalidated the snapshot; drop it so the next
	// read observes the new count.
	if err := l.counters.Delete(ctx, cache.ReferralCountKey(inviterID)); err != nil {
		l.logger.Warn("referral count invalidation failed",
			zap.Int64("inviter_id", inviterID), zap.Error(err))
	}

	l.notify(ctx, inviterID, invitedID, res)
	return nil
}

// Count returns the inviter's referral count, serving from the cache snapshot
// when present and repopulating it from the store on miss.
func (l *Ledger) Count(ctx context.Context, userID int64) (int, error) {
	key := cache.ReferralCountKey(userID)

	if raw, ok, err := l.counters.Get(ctx, key); err == nil && ok {
		if count, convErr := strconv.Atoi(raw); convErr == nil {
			return count, nil
		}
		// A corrupt snapshot falls through to the authoritative store.
	} else if err != nil {
		l.logger.Warn("referral count cache read failed",
			zap.Int64("user_id", userID), zap.Error(err))
	}

	count, err := l.store.CountReferrals(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}

	if err := l.counters.SetEx(ctx, key, strconv.Itoa(count), l.countTTL); err != nil {
		l.logger.Warn("referral count cache write failed",
			zap.Int64("user_id", userID), zap.Error(err))
	}
	return count, nil
}

func (l *Ledger) registerLookupErr(err error) error {
	if errors.Is(err, postgres.ErrNotFound) {
		metrics.ReferralRegistrations.WithLabelValues("unknown_user").Inc()
		return ErrUnknownUser
	}
	metrics.ReferralRegistrations.WithLabelValues("store_error").Inc()
	return fmt.Errorf("register referral: %w", err)
}

// notify sends post-commit notifications. Best effort only.
func (l *Ledger) notify(ctx context.Context, inviterID, invitedID int64, res postgres.RegisterReferralResult) {
	if err := l.notifier.NotifyRegistered(ctx, invitedID); err != nil {
		l.logger.Warn("invited notification failed",
			zap.Int64("invited_id", invitedID), zap.Error(err))
	}

	// The unlock notification goes out exactly once, on the referral that
	// crosses the threshold. Every other referral reports progress.
	if res.InviterCount == l.required {
		if err := l.notifier.NotifyAccessGranted(ctx, inviterID); err != nil {
			l.logger.Warn("access granted notification failed",
				zap.Int64("inviter_id", inviterID), zap.Error(err))
		}
		return
	}
	if err := l.notifier.NotifyProgress(ctx, inviterID, res.InviterCount, l.required); err != nil {
		l.logger.Warn("progress notification failed",
			zap.Int64("inviter_id", inviterID), zap.Error(err))
	}
}
