package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pixelforge/imagegen-backend/internal/image_generation/domain"
	"github.com/pixelforge/imagegen-backend/internal/platform/logger"
)

// StaleSweeper fails requests whose provider job never reported back, e.g. after a
// crash between accepting a request and finishing its job.
type StaleSweeper struct {
	store      Store
	feed       Publisher
	staleAfter time.Duration
	log        *logger.Logger
	cron       *cron.Cron
	now        func() time.Time
}

func NewStaleSweeper(store Store, feed Publisher, staleAfter time.Duration, log *logger.Logger) *StaleSweeper {
	return &StaleSweeper{
		store:      store,
		feed:       feed,
		staleAfter: staleAfter,
		log:        log.With("service", "StaleSweeper"),
		cron:       cron.New(),
		now:        time.Now,
	}
}

// Start runs Sweep on the given cron schedule (e.g. "@every 1m").
func (s *StaleSweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Error("stale sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.log.Info("stale sweeper started", "schedule", schedule, "stale_after", s.staleAfter.String())
	return nil
}

// Stop halts scheduling; the returned context is done once a running sweep finishes.
func (s *StaleSweeper) Stop() context.Context {
	return s.cron.Stop()
}

// Sweep fails every request running longer than staleAfter and returns how many it moved.
func (s *StaleSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)
	rows, err := s.store.FailStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for i := range rows {
		if err := s.feed.Publish(ctx, domain.ChangeEvent{Type: domain.EventUpdate, Row: rows[i]}); err != nil {
			s.log.Warn("failed to publish change event", "request_id", rows[i].ID, "error", err)
		}
	}
	if len(rows) > 0 {
		s.log.Info("failed stale requests", "count", len(rows), "cutoff", cutoff)
	}
	return len(rows), nil
}
