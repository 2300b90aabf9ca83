// Package broadcast coordinates rate-limited mass message fan-out under an
// advisory cache lock.
//
// Purpose:
//
//	A broadcast takes a snapshot of all known recipients, partitions them into
//	fixed-size batches, sends concurrently within a batch and pauses between
//	batches to respect transport rate limits. A cache-backed lock rejects
//	concurrent broadcasts; a crashed run is self-healed through staleness
//	detection, never through active renewal.
//
// Concurrency:
//   - Start returns immediately after acquiring the lock; dispatch runs as a
//     background goroutine on the supplied context.
//   - Cancelling the context aborts remaining batches, releases the lock and
//     reports a partial summary.
//   - Batch N+1 never starts before batch N's sends returned and the pause
//     elapsed.
//
// Error Handling:
//   - A transport retry-after condition triggers exactly one bounded retry of
//     that recipient; every other send error counts as a delivery failure
//     without aborting the batch.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/cache"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/metrics"
)

// ErrBusy is returned when a non-stale broadcast lock is already held.
var ErrBusy = errors.New("broadcast: already in progress")

// RetryAfterError signals a transport-level rate limit with a mandated pause.
type RetryAfterError struct {
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("broadcast: rate limited, retry after %s", e.After)
}

// Transport delivers a payload to a single recipient.
type Transport interface {
	Send(ctx context.Context, recipient int64, payload Payload) error
}

// Recipients yields the broadcast recipient snapshot.
type Recipients interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// LockStore is the cache surface backing the broadcast lock.
type LockStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Summary aggregates the outcome of a finished (or aborted) dispatch.
type Summary struct {
	Total     int
	Delivered int
	Failed    int
	Cancelled bool
}

// Started acknowledges a successfully launched broadcast.
type Started struct {
	Total int
}

// Options tune batching and lock staleness.
type Options struct {
	BatchSize  int
	BatchPause time.Duration
	StaleAfter time.Duration
}

// Coordinator runs at most one broadcast at a time per lock.
type Coordinator struct {
	transport  Transport
	recipients Recipients
	locks      LockStore
	logger     *zap.Logger

	batchSize  int
	batchPause time.Duration
	staleAfter time.Duration

	// Injected for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCoordinator builds a Coordinator. Zero options fall back to batches of
// 20, a 1s pause and a 30 minute staleness window.
func NewCoordinator(transport Transport, recipients Recipients, locks LockStore, logger *zap.Logger, opts Options) *Coordinator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.BatchPause <= 0 {
		opts.BatchPause = time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Minute
	}
	return &Coordinator{
		transport:  transport,
		recipients: recipients,
		locks:      locks,
		logger:     logger.With(zap.String("component", "broadcast")),
		batchSize:  opts.BatchSize,
		batchPause: opts.BatchPause,
		staleAfter: opts.StaleAfter,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Start acquires the broadcast lock, snapshots the recipient list and launches
// dispatch in the background. onDone receives the summary exactly once, after
// the lock has been released. Returns ErrBusy while a non-stale broadcast is
// running.
func (c *Coordinator) Start(ctx context.Context, payload Payload, onDone func(Summary)) (Started, error) {
	if err := c.acquireLock(ctx); err != nil {
		return Started{}, err
	}

	ids, err := c.recipients.ListUserIDs(ctx)
	if err != nil {
		c.releaseLock()
		return Started{}, fmt.Errorf("broadcast recipients: %w", err)
	}

	metrics.BroadcastRuns.WithLabelValues("started").Inc()
	c.logger.Info("broadcast started", zap.Int("recipients", len(ids)))

	go c.dispatch(ctx, payload, ids, onDone)
	return Started{Total: len(ids)}, nil
}

// acquireLock takes the advisory lock, reclaiming it when the previous holder
// exceeded the staleness window. The lock is never renewed while held, so
// staleness detection is the only guard against a crashed run.
func (c *Coordinator) acquireLock(ctx context.Context) error {
	_, held, err := c.locks.Get(ctx, cache.KeyBroadcastFlag)
	if err != nil {
		return fmt.Errorf("broadcast lock read: %w", err)
	}
	if held {
		raw, ok, err := c.locks.Get(ctx, cache.KeyBroadcastTimestamp)
		if err != nil {
			return fmt.Errorf("broadcast lock timestamp: %w", err)
		}
		stale := !ok
		if ok {
			startedAt, convErr := strconv.ParseInt(raw, 10, 64)
			stale = convErr != nil || c.now().Sub(time.Unix(startedAt, 0)) > c.staleAfter
		}
		if !stale {
			metrics.BroadcastRuns.WithLabelValues("busy").Inc()
			return ErrBusy
		}
		metrics.BroadcastRuns.WithLabelValues("reclaimed").Inc()
		c.logger.Warn("reclaiming stale broadcast lock")
		if err := c.locks.Delete(ctx, cache.KeyBroadcastFlag, cache.KeyBroadcastTimestamp); err != nil {
			return fmt.Errorf("broadcast lock reclaim: %w", err)
		}
	}

	if err := c.locks.Set(ctx, cache.KeyBroadcastFlag, "1"); err != nil {
		return fmt.Errorf("broadcast lock acquire: %w", err)
	}
	if err := c.locks.Set(ctx, cache.KeyBroadcastTimestamp, strconv.FormatInt(c.now().Unix(), 10)); err != nil {
		return fmt.Errorf("broadcast lock timestamp write: %w", err)
	}
	return nil
}

// releaseLock drops the lock unconditionally. Runs on a detached context so a
// cancelled dispatch can still clean up.
func (c *Coordinator) releaseLock() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.locks.Delete(ctx, cache.KeyBroadcastFlag, cache.KeyBroadcastTimestamp); err != nil {
		c.logger.Error("broadcast lock release failed", zap.Error(err))
	}
}

func (c *Coordinator) dispatch(ctx context.Context, payload Payload, ids []int64, onDone func(Summary)) {
	var delivered, failed atomic.Int64
	cancelled := false

	for start := 0; start < len(ids); start += c.batchSize {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		end := start + c.batchSize
		if end > len(ids) {
			end = len(ids)
		}

		var wg sync.WaitGroup
		for _, id := range ids[start:end] {
			wg.Add(1)
			go func(recipient int64) {
				defer wg.Done()
				if c.sendOne(ctx, recipient, payload) {
					delivered.Add(1)
					metrics.BroadcastDeliveries.WithLabelValues("delivered").Inc()
				} else {
					failed.Add(1)
					metrics.BroadcastDeliveries.WithLabelValues("failed").Inc()
				}
			}(id)
		}
		wg.Wait()

		if end < len(ids) {
			if err := c.sleep(ctx, c.batchPause); err != nil {
				cancelled = true
				break
			}
		}
	}

	c.releaseLock()

	summary := Summary{
		Total:     len(ids),
		Delivered: int(delivered.Load()),
		Failed:    int(failed.Load()),
		Cancelled: cancelled,
	}
	if cancelled {
		// Recipients never attempted count as failures so delivered+failed
		// still accounts for the whole snapshot.
		summary.Failed = summary.Total - summary.Delivered
		metrics.BroadcastRuns.WithLabelValues("cancelled").Inc()
		c.logger.Warn("broadcast cancelled",
			zap.Int("delivered", summary.Delivered), zap.Int("total", summary.Total))
	} else {
		metrics.BroadcastRuns.WithLabelValues("completed").Inc()
		c.logger.Info("broadcast finished",
			zap.Int("delivered", summary.Delivered), zap.Int("failed", summary.Failed))
	}

	if onDone != nil {
		onDone(summary)
	}
}

// sendOne delivers to a single recipient. A retry-after condition pauses for
// the mandated interval and retries exactly once; a second failure of any
// kind falls through to the generic failure path.
func (c *Coordinator) sendOne(ctx context.Context, recipient int64, payload Payload) bool {
	err := c.transport.Send(ctx, recipient, payload)
	if err == nil {
		return true
	}

	var retry *RetryAfterError
	if errors.As(err, &retry) {
		metrics.BroadcastDeliveries.WithLabelValues("retried").Inc()
		if sleepErr := c.sleep(ctx, retry.After); sleepErr != nil {
			return false
		}
		if err = c.transport.Send(ctx, recipient, payload); err == nil {
			return true
		}
	}

	c.logger.Debug("broadcast delivery failed",
		zap.Int64("recipient", recipient), zap.Error(err))
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
