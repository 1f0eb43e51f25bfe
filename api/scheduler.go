/*
scheduler.go - Stale redemption sweep

PURPOSE:
  Pending redemptions are decided by hand. The sweep runs on a cron
  schedule in the service timezone and logs every request that has waited
  longer than the configured age, so admins see the backlog in the logs.
  It only reads; nothing is approved or rejected automatically.

CONFIGURATION:
  - Schedule:  cron expression (default "0 * * * *", hourly)
  - OlderThan: age after which a pending request is stale (default 72h)
  - Location:  timezone the cron expression is evaluated in

USAGE:
  scheduler, err := NewStaleRedemptionScheduler(service, "0 * * * *", 72*time.Hour, loc, log)
  scheduler.Start()
  // ... later
  scheduler.Stop(ctx)

SEE ALSO:
  - rewards/redemption.go: StaleRedemptions query
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/cleanjamaica/rewards-ledger/rewards"
)

const sweepTimeout = 30 * time.Second

// StaleRedemptionScheduler periodically reports redemptions left pending.
type StaleRedemptionScheduler struct {
	Service   *rewards.Service
	OlderThan time.Duration

	cron    *cron.Cron
	log     logrus.FieldLogger
	mu      sync.Mutex
	started bool
}

// NewStaleRedemptionScheduler creates a scheduler for the given cron spec.
func NewStaleRedemptionScheduler(service *rewards.Service, spec string, olderThan time.Duration, loc *time.Location, log logrus.FieldLogger) (*StaleRedemptionScheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "scheduler")

	s := &StaleRedemptionScheduler{
		Service:   service,
		OlderThan: olderThan,
		log:       log,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cron.PrintfLogger(log)),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log))),
		),
	}
	if _, err := s.cron.AddFunc(spec, s.RunNow); err != nil {
		return nil, fmt.Errorf("invalid stale redemption schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the scheduler.
func (s *StaleRedemptionScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.cron.Start()
	s.started = true
	s.log.WithField("older_than", s.OlderThan.String()).Info("stale redemption sweep started")
}

// Stop halts the scheduler and waits for a running sweep, bounded by ctx.
func (s *StaleRedemptionScheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("stale redemption sweep still running at shutdown")
	}
	s.started = false
	s.log.Info("stale redemption sweep stopped")
}

// RunNow performs one sweep immediately.
func (s *StaleRedemptionScheduler) RunNow() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := s.Sweep(ctx); err != nil {
		s.log.WithError(err).Error("stale redemption sweep failed")
	}
}

// Sweep logs each stale pending redemption and returns how many it found.
func (s *StaleRedemptionScheduler) Sweep(ctx context.Context) (int, error) {
	stale, err := s.Service.StaleRedemptions(ctx, s.OlderThan)
	if err != nil {
		return 0, err
	}

	for _, v := range stale {
		s.log.WithFields(logrus.Fields{
			"tx_id":      v.ID,
			"user_id":    v.UserID,
			"user_email": v.UserEmail,
			"points":     v.Amount.Abs(),
			"created_at": v.CreatedAt.Format(time.RFC3339),
		}).Warn("redemption awaiting decision")
	}
	if len(stale) > 0 {
		s.log.WithField("count", len(stale)).Info("stale redemption sweep completed")
	}
	return len(stale), nil
}
