package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTransport struct {
	mu    sync.Mutex
	sent  []int64
	fail  map[int64]error
	calls map[int64]int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{fail: make(map[int64]error), calls: make(map[int64]int)}
}

func (f *fakeTransport) Send(ctx context.Context, recipient int64, payload Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[recipient]++
	if err, ok := f.fail[recipient]; ok {
		// Fail only the first attempt for retry-after errors.
		var retry *RetryAfterError
		if errors.As(err, &retry) && f.calls[recipient] > 1 {
			f.sent = append(f.sent, recipient)
			return nil
		}
		return err
	}
	f.sent = append(f.sent, recipient)
	return nil
}

type fakeRecipients struct {
	ids []int64
}

func (f *fakeRecipients) ListUserIDs(ctx context.Context) ([]int64, error) {
	return f.ids, nil
}

type fakeLocks struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{data: make(map[string]string)}
}

func (f *fakeLocks) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeLocks) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeLocks) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func ids(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i + 1)
	}
	return out
}

// newTestCoordinator replaces the sleeper with a recorder so tests assert on
// pause behavior without real delays.
func newTestCoordinator(t *testing.T, transport Transport, recipients Recipients, locks LockStore, opts Options) (*Coordinator, *[]time.Duration) {
	t.Helper()
	c := NewCoordinator(transport, recipients, locks, zap.NewNop(), opts)
	var mu sync.Mutex
	sleeps := &[]time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		*sleeps = append(*sleeps, d)
		mu.Unlock()
		return ctx.Err()
	}
	return c, sleeps
}

func waitSummary(t *testing.T, ch <-chan Summary) Summary {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not finish")
		return Summary{}
	}
}

func TestBroadcastBatchesAndSummary(t *testing.T) {
	transport := newFakeTransport()
	locks := newFakeLocks()
	c, sleeps := newTestCoordinator(t, transport, &fakeRecipients{ids: ids(45)}, locks, Options{
		BatchSize:  20,
		BatchPause: time.Second,
	})

	done := make(chan Summary, 1)
	started, err := c.Start(context.Background(), TextPayload("hello"), func(s Summary) {
		done <- s
	})
	require.NoError(t, err)
	assert.Equal(t, 45, started.Total)

	summary := waitSummary(t, done)
	assert.Equal(t, 45, summary.Delivered)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 45, summary.Delivered+summary.Failed)
	assert.False(t, summary.Cancelled)

	// 45 recipients make batches of 20/20/5, so exactly two inter-batch pauses.
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *sleeps)

	// Lock released after completion.
	_, held, err := locks.Get(context.Background(), "broadcast_in_progress")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestBroadcastCountsFailuresWithoutAborting(t *testing.T) {
	transport := newFakeTransport()
	transport.fail[3] = errors.New("forbidden: bot was blocked by the user")
	transport.fail[7] = errors.New("bad request: chat not found")

	c, _ := newTestCoordinator(t, transport, &fakeRecipients{ids: ids(10)}, newFakeLocks(), Options{})

	done := make(chan Summary, 1)
	_, err := c.Start(context.Background(), TextPayload("hi"), func(s Summary) { done <- s })
	require.NoError(t, err)

	summary := waitSummary(t, done)
	assert.Equal(t, 8, summary.Delivered)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, summary.Total, summary.Delivered+summary.Failed)
}

func TestBroadcastRetriesOnceOnRateLimit(t *testing.T) {
	transport := newFakeTransport()
	transport.fail[5] = &RetryAfterError{After: 3 * time.Second}

	c, sleeps := newTestCoordinator(t, transport, &fakeRecipients{ids: ids(5)}, newFakeLocks(), Options{})

	done := make(chan Summary, 1)
	_, err := c.Start(context.Background(), TextPayload("hi"), func(s Summary) { done <- s })
	require.NoError(t, err)

	summary := waitSummary(t, done)
	assert.Equal(t, 5, summary.Delivered)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, transport.calls[5])
	assert.Contains(t, *sleeps, 3*time.Second)
}

func TestBroadcastRateLimitSecondFailureCounts(t *testing.T) {
	var mu sync.Mutex
	calls := map[int64]int{}
	alwaysLimited := transportFunc(func(ctx context.Context, recipient int64, payload Payload) error {
		mu.Lock()
		defer mu.Unlock()
		calls[recipient]++
		if recipient == 2 {
			return &RetryAfterError{After: time.Second}
		}
		return nil
	})

	c, _ := newTestCoordinator(t, alwaysLimited, &fakeRecipients{ids: ids(3)}, newFakeLocks(), Options{})

	done := make(chan Summary, 1)
	_, err := c.Start(context.Background(), TextPayload("hi"), func(s Summary) { done <- s })
	require.NoError(t, err)

	summary := waitSummary(t, done)
	assert.Equal(t, 2, summary.Delivered)
	assert.Equal(t, 1, summary.Failed)
	// Exactly one retry, not unbounded.
	assert.Equal(t, 2, calls[2])
}

type transportFunc func(ctx context.Context, recipient int64, payload Payload) error

func (f transportFunc) Send(ctx context.Context, recipient int64, payload Payload) error {
	return f(ctx, recipient, payload)
}

func TestBroadcastBusyRejectsConcurrentStart(t *testing.T) {
	locks := newFakeLocks()
	c, _ := newTestCoordinator(t, newFakeTransport(), &fakeRecipients{ids: ids(1)}, locks, Options{
		StaleAfter: 30 * time.Minute,
	})

	require.NoError(t, locks.Set(context.Background(), "broadcast_in_progress", "1"))
	require.NoError(t, locks.Set(context.Background(), "broadcast_timestamp",
		strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)))

	_, err := c.Start(context.Background(), TextPayload("hi"), nil)
	require.ErrorIs(t, err, ErrBusy)
}

func TestBroadcastReclaimsStaleLock(t *testing.T) {
	locks := newFakeLocks()
	c, _ := newTestCoordinator(t, newFakeTransport(), &fakeRecipients{ids: ids(2)}, locks, Options{
		StaleAfter: 30 * time.Minute,
	})

	require.NoError(t, locks.Set(context.Background(), "broadcast_in_progress", "1"))
	require.NoError(t, locks.Set(context.Background(), "broadcast_timestamp",
		strconv.FormatInt(time.Now().Add(-31*time.Minute).Unix(), 10)))

	done := make(chan Summary, 1)
	started, err := c.Start(context.Background(), TextPayload("hi"), func(s Summary) { done <- s })
	require.NoError(t, err)
	assert.Equal(t, 2, started.Total)

	summary := waitSummary(t, done)
	assert.Equal(t, 2, summary.Delivered)
}

func TestBroadcastLockMissingTimestampIsStale(t *testing.T) {
	locks := newFakeLocks()
	c, _ := newTestCoordinator(t, newFakeTransport(), &fakeRecipients{ids: ids(1)}, locks, Options{})

	require.NoError(t, locks.Set(context.Background(), "broadcast_in_progress", "1"))

	done := make(chan Summary, 1)
	_, err := c.Start(context.Background(), TextPayload("hi"), func(s Summary) { done <- s })
	require.NoError(t, err)
	waitSummary(t, done)
}

func TestBroadcastCancellationReleasesLock(t *testing.T) {
	locks := newFakeLocks()
	blocked := make(chan struct{})
	var once sync.Once
	transport := transportFunc(func(ctx context.Context, recipient int64, payload Payload) error {
		once.Do(func() { close(blocked) })
		<-ctx.Done()
		return ctx.Err()
	})

	c, _ := newTestCoordinator(t, transport, &fakeRecipients{ids: ids(45)}, locks, Options{
		BatchSize:  20,
		BatchPause: time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Summary, 1)
	_, err := c.Start(ctx, TextPayload("hi"), func(s Summary) { done <- s })
	require.NoError(t, err)

	<-blocked
	cancel()

	summary := waitSummary(t, done)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, summary.Total, summary.Delivered+summary.Failed)

	_, held, err := locks.Get(context.Background(), "broadcast_in_progress")
	require.NoError(t, err)
	assert.False(t, held, "lock must be released on cancellation")
}

func TestPayloadConstructors(t *testing.T) {
	assert.Equal(t, Payload{Kind: KindText, Text: "a"}, TextPayload("a"))
	assert.Equal(t, Payload{Kind: KindPhoto, FileID: "f", Caption: "c"}, PhotoPayload("f", "c"))
	assert.Equal(t, Payload{Kind: KindVideo, FileID: "f", Caption: "c"}, VideoPayload("f", "c"))
}

func TestRetryAfterErrorMessage(t *testing.T) {
	err := &RetryAfterError{After: 4 * time.Second}
	assert.Equal(t, fmt.Sprintf("broadcast: rate limited, retry after %s", 4*time.Second), err.Error())
}
