package service

import (
	"context"
	"sync"
	"time"

	"collabchat/internal/metrics"

	"github.com/sirupsen/logrus"
)

// ExpiredMuteStore removes mutes that no longer apply
type ExpiredMuteStore interface {
	DeleteExpiredMutes(ctx context.Context, before time.Time) (int64, error)
}

// MuteSweeper periodically deletes expired mutes. Expired rows are already
// ignored by mute checks and listed by ListMutedChats, so the sweeper is
// opt-in: it runs only when the expired_mute_cleanup flag is on.
type MuteSweeper struct {
	store    ExpiredMuteStore
	interval time.Duration
	logger   *logrus.Logger
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMuteSweeper returns a disabled sweeper when intervalMin is not positive
func NewMuteSweeper(store ExpiredMuteStore, intervalMin int, logger *logrus.Logger) *MuteSweeper {
	if intervalMin < 0 {
		intervalMin = 0
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &MuteSweeper{
		store:    store,
		interval: time.Duration(intervalMin) * time.Minute,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

func (s *MuteSweeper) Enabled() bool {
	return s.interval > 0
}

// Start sweeps once, then on every tick until ctx ends or Stop is called.
// A disabled sweeper returns immediately.
func (s *MuteSweeper) Start(ctx context.Context) {
	if !s.Enabled() {
		s.logger.Info("Mute sweeper disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval.String()).Info("Starting mute sweeper")

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Mute sweeper context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Mute sweeper stop signal received, stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop is safe to call more than once
func (s *MuteSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MuteSweeper) sweep(ctx context.Context) {
	start := time.Now()
	removed, err := s.store.DeleteExpiredMutes(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Error("Failed to delete expired mutes")
		return
	}

	metrics.AddToCounter("expired_mutes_removed_total", float64(removed), nil, "Expired mutes removed by the sweeper")
	entry := s.logger.WithFields(logrus.Fields{
		LogFieldCount:    removed,
		LogFieldDuration: time.Since(start).Milliseconds(),
	})
	if removed > 0 {
		entry.Info("Removed expired mutes")
	} else {
		entry.Debug("No expired mutes to remove")
	}
}
