// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/smart-import/pkg/metrics"
)

const (
	sessionSweepSpec = "@every 1m"
	limiterPruneSpec = "@every 10m"
)

// SessionStore is the part of the session cache the sweeper needs.
type SessionStore interface {
	Sweep() int
	Len() int
}

// Pruner drops idle state, such as per-caller rate limit buckets.
type Pruner interface {
	Prune() int
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron     *cron.Cron
	sessions SessionStore
	limiter  Pruner
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(sessions SessionStore, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:     c,
		sessions: sessions,
		metrics:  m,
		logger:   logger,
	}
}

// WithRateLimiter also prunes the limiter's idle buckets.
func (s *Scheduler) WithRateLimiter(p Pruner) *Scheduler {
	s.limiter = p
	return s
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(sessionSweepSpec, s.SweepSessions); err != nil {
		return err
	}
	if s.limiter != nil {
		if _, err := s.cron.AddFunc(limiterPruneSpec, s.pruneLimiter); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// SweepSessions evicts expired import sessions and refreshes the gauge.
func (s *Scheduler) SweepSessions() {
	removed := s.sessions.Sweep()
	active := s.sessions.Len()
	s.metrics.SessionsActive(active)

	if removed > 0 {
		s.logger.Debug("expired import sessions evicted",
			slog.Int("removed", removed),
			slog.Int("active", active),
		)
	}
}

func (s *Scheduler) pruneLimiter() {
	if n := s.limiter.Prune(); n > 0 {
		s.logger.Debug("idle rate limit buckets pruned", slog.Int("removed", n))
	}
}
