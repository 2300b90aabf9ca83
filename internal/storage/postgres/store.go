// Package postgres provides Postgres-backed persistence for the referral ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Store provides ledger persistence on top of a pgx pool.
type Store struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// NewStore creates a store using the provided connection string and takes
// ownership of the pool.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Store{pool: pool, ownsPool: true}, nil
}

// NewStoreFromPool wraps an existing pgx pool.
func NewStoreFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the underlying pool if the store owns it.
func (s *Store) Close() {
	if s.ownsPool && s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying pgx pool for the readiness probe.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) withTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapConnErr(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return mapCommitErr(err)
	}
	return nil
}

// UpsertUser creates the user row on first contact and touches last_activity
// on every subsequent one. The returned user reflects the stored state.
func (s *Store) UpsertUser(ctx context.Context, userID int64, username string) (User, error) {
	var u User
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, username)
		VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (user_id) DO UPDATE
		SET last_activity = now(),
		    username = COALESCE(NULLIF(EXCLUDED.username, ''), users.username)
		RETURNING user_id, username, invited_by, referral_count, access_granted,
		          is_admin, last_activity, created_at`,
		userID, username,
	)
	if err := scanUser(row, &u); err != nil {
		return User{}, wrapConnErr(err)
	}
	return u, nil
}

// GetUser fetches a single user. Returns ErrNotFound for unknown identities.
func (s *Store) GetUser(ctx context.Context, userID int64) (User, error) {
	var u User
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, username, invited_by, referral_count, access_granted,
		       is_admin, last_activity, created_at
		FROM users WHERE user_id = $1`,
		userID,
	)
	if err := scanUser(row, &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, wrapConnErr(err)
	}
	return u, nil
}

// RegisterReferral executes the registration transaction: set invited_by,
// bump the inviter's counter, flip access_granted when the threshold is
// reached, and insert the edge. The unique constraint on referrals is the
// final arbiter against concurrent registrations; a violation surfaces as
// ErrDuplicateReferral.
func (s *Store) RegisterReferral(ctx context.Context, inviterID, invitedID int64, required int) (RegisterReferralResult, error) {
	var out RegisterReferralResult
	err := s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users SET invited_by = $1
			WHERE user_id = $2 AND invited_by IS NULL`,
			inviterID, invitedID,
		)
		if err != nil {
			return wrapConnErr(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrDuplicateReferral
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO referrals (inviter_id, invited_id) VALUES ($1, $2)`,
			inviterID, invitedID,
		); err != nil {
			return mapCommitErr(err)
		}

		row := tx.QueryRow(ctx, `
			UPDATE users
			SET referral_count = referral_count + 1,
			    access_granted = (referral_count + 1 >= $2)
			WHERE user_id = $1
			RETURNING referral_count, access_granted`,
			inviterID, required,
		)
		if err := row.Scan(&out.InviterCount, &out.AccessGranted); err != nil {
			return wrapConnErr(err)
		}
		return nil
	})
	if err != nil {
		return RegisterReferralResult{}, err
	}
	return out, nil
}

// CountReferrals returns the authoritative number of edges for an inviter.
func (s *Store) CountReferrals(ctx context.Context, inviterID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM referrals WHERE inviter_id = $1`, inviterID,
	).Scan(&count)
	if err != nil {
		return 0, wrapConnErr(err)
	}
	return count, nil
}

// ListUserIDs returns the identities of all known users, used as the
// broadcast recipient snapshot.
func (s *Store) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, wrapConnErr(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapConnErr(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapConnErr(err)
	}
	return ids, nil
}

// Stats aggregates totals over the 1/7/30 day activity and signup windows.
func (s *Store) Stats(ctx context.Context, now time.Time) (StatsSnapshot, error) {
	var snap StatsSnapshot
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE last_activity >= $1 - INTERVAL '1 day'),
		       COUNT(*) FILTER (WHERE last_activity >= $1 - INTERVAL '7 days'),
		       COUNT(*) FILTER (WHERE last_activity >= $1 - INTERVAL '30 days'),
		       COUNT(*) FILTER (WHERE created_at >= $1 - INTERVAL '1 day'),
		       COUNT(*) FILTER (WHERE created_at >= $1 - INTERVAL '7 days'),
		       COUNT(*) FILTER (WHERE created_at >= $1 - INTERVAL '30 days')
		FROM users`,
		now,
	).Scan(
		&snap.TotalUsers,
		&snap.ActiveToday, &snap.ActiveWeek, &snap.ActiveMonth,
		&snap.NewToday, &snap.NewWeek, &snap.NewMonth,
	)
	if err != nil {
		return StatsSnapshot{}, wrapConnErr(err)
	}
	return snap, nil
}

func scanUser(row pgx.Row, u *User) error {
	return row.Scan(
		&u.ID, &u.Username, &u.InvitedBy, &u.ReferralCount,
		&u.AccessGranted, &u.IsAdmin, &u.LastActivity, &u.CreatedAt,
	)
}

func mapCommitErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateReferral
	}
	return wrapConnErr(err)
}

func wrapConnErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
