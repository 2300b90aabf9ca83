// Package stats computes usage statistics with a cached formatted snapshot.
package stats

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/cache"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/storage/postgres"
)

// Store is the ledger surface the service reads from.
type Store interface {
	Stats(ctx context.Context, now time.Time) (postgres.StatsSnapshot, error)
}

// SnapshotCache holds the formatted snapshot between refreshes.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
}

// Service serves the cached admin statistics text.
type Service struct {
	store  Store
	cache  SnapshotCache
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewService builds a Service. TTL defaults to 600s.
func NewService(store Store, snapshotCache SnapshotCache, logger *zap.Logger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 600 * time.Second
	}
	return &Service{
		store:  store,
		cache:  snapshotCache,
		logger: logger.With(zap.String("component", "stats")),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Text returns the formatted statistics snapshot, serving the cached copy
// when fresh so repeated admin requests do not load the ledger.
func (s *Service) Text(ctx context.Context) (string, error) {
	if cached, ok, err := s.cache.Get(ctx, cache.KeyStats); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.logger.Warn("stats cache read failed", zap.Error(err))
	}

	snap, err := s.store.Stats(ctx, s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("load stats: %w", err)
	}

	text := Format(snap)
	if err := s.cache.SetEx(ctx, cache.KeyStats, text, s.ttl); err != nil {
		s.logger.Warn("stats cache write failed", zap.Error(err))
	}
	return text, nil
}

// Format renders the snapshot the way the admin panel displays it.
func Format(snap postgres.StatsSnapshot) string {
	return fmt.Sprintf(
		"👥 Всего пользователей: %d\n"+
			"📅 Активных сегодня: %d\n"+
			"📆 Активных за неделю: %d\n"+
			"📅 Активных за месяц: %d\n\n"+
			"🆕 Новых сегодня: %d\n"+
			"🆕 Новых за неделю: %d\n"+
			"🆕 Новых за месяц: %d",
		snap.TotalUsers,
		snap.ActiveToday, snap.ActiveWeek, snap.ActiveMonth,
		snap.NewToday, snap.NewWeek, snap.NewMonth,
	)
}
