package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/migrations"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()

	provider, err := newDockerProviderSafe()
	if err != nil {
		t.Skipf("skipping store integration tests: docker unavailable: %v", err)
		return nil
	}
	if provider != nil {
		require.NoError(t, provider.Close())
	}
	container, err := tcpostgres.RunContainer(ctx,
		tcpostgres.WithDatabase("referral_bot"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
	)
	if err != nil {
		t.Skipf("skipping store integration tests: failed to start postgres container: %v", err)
		return nil
	}
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connString)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.FS)
	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(db, "sql"))

	store, err := NewStore(ctx, connString)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	return store
}

func newDockerProviderSafe() (*testcontainers.DockerProvider, error) {
	var (
		provider *testcontainers.DockerProvider
		err      error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("docker provider initialization failed: %v", r)
		}
	}()
	provider, err = testcontainers.NewDockerProvider()
	return provider, err
}

func TestUpsertUserCreatesAndTouches(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	created, err := store.UpsertUser(ctx, 100, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), created.ID)
	require.NotNil(t, created.Username)
	assert.Equal(t, "alice", *created.Username)
	assert.Nil(t, created.InvitedBy)
	assert.Zero(t, created.ReferralCount)
	assert.False(t, created.AccessGranted)

	// A later upsert with an empty username keeps the stored one and moves
	// last_activity forward.
	time.Sleep(20 * time.Millisecond)
	touched, err := store.UpsertUser(ctx, 100, "")
	require.NoError(t, err)
	require.NotNil(t, touched.Username)
	assert.Equal(t, "alice", *touched.Username)
	assert.True(t, touched.LastActivity.After(created.LastActivity))
	assert.WithinDuration(t, created.CreatedAt, touched.CreatedAt, time.Millisecond)
}

func TestGetUserNotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.GetUser(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterReferralGrantsAccessAtThreshold(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		_, err := store.UpsertUser(ctx, id, "")
		require.NoError(t, err)
	}

	res, err := store.RegisterReferral(ctx, 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, res.InviterCount)
	assert.False(t, res.AccessGranted)

	res, err = store.RegisterReferral(ctx, 1, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.InviterCount)
	assert.True(t, res.AccessGranted)

	inviter, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, inviter.ReferralCount)
	assert.True(t, inviter.AccessGranted)

	invited, err := store.GetUser(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, invited.InvitedBy)
	assert.Equal(t, int64(1), *invited.InvitedBy)

	count, err := store.CountReferrals(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRegisterReferralRejectsSecondClaim(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		_, err := store.UpsertUser(ctx, id, "")
		require.NoError(t, err)
	}

	_, err := store.RegisterReferral(ctx, 1, 3, 2)
	require.NoError(t, err)

	// A different inviter cannot claim the same invited user.
	_, err = store.RegisterReferral(ctx, 2, 3, 2)
	require.ErrorIs(t, err, ErrDuplicateReferral)

	// Repeating the original registration is equally rejected.
	_, err = store.RegisterReferral(ctx, 1, 3, 2)
	require.ErrorIs(t, err, ErrDuplicateReferral)

	inviter, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, inviter.ReferralCount, "failed claims must not bump the counter")
}

func TestRegisterReferralConcurrentSingleWinner(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	const inviters = 5
	for id := int64(1); id <= inviters+1; id++ {
		_, err := store.UpsertUser(ctx, id, "")
		require.NoError(t, err)
	}

	const invited = int64(inviters + 1)
	var wg sync.WaitGroup
	errs := make([]error, inviters)
	for i := 0; i < inviters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.RegisterReferral(ctx, int64(i+1), invited, 2)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, ErrDuplicateReferral)
		}
	}
	assert.Equal(t, 1, wins)

	total := 0
	for id := int64(1); id <= inviters; id++ {
		u, err := store.GetUser(ctx, id)
		require.NoError(t, err)
		total += u.ReferralCount
	}
	assert.Equal(t, 1, total)
}

func TestListUserIDs(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	ids, err := store.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, id := range []int64{30, 10, 20} {
		_, err := store.UpsertUser(ctx, id, "")
		require.NoError(t, err)
	}

	ids, err = store.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, ids)
}

func TestStatsWindows(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		_, err := store.UpsertUser(ctx, id, "")
		require.NoError(t, err)
	}

	// Age user 2 beyond every window.
	_, err := store.Pool().Exec(ctx, `
		UPDATE users
		SET last_activity = now() - INTERVAL '60 days',
		    created_at = now() - INTERVAL '60 days'
		WHERE user_id = 2`)
	require.NoError(t, err)

	snap, err := store.Stats(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalUsers)
	assert.Equal(t, 1, snap.ActiveToday)
	assert.Equal(t, 1, snap.ActiveWeek)
	assert.Equal(t, 1, snap.ActiveMonth)
	assert.Equal(t, 1, snap.NewToday)
	assert.Equal(t, 1, snap.NewWeek)
	assert.Equal(t, 1, snap.NewMonth)
}
