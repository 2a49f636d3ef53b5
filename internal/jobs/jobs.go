// Package jobs runs periodic maintenance against the practice store.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"cadence/practice/internal/config"
	"cadence/practice/internal/db"
	"cadence/practice/internal/metrics"
)

const (
	staleSessionsJob = "close_stale_sessions"
	invitePurgeJob   = "purge_expired_invites"
	jobTimeout       = time.Minute
)

type Scheduler struct {
	engine     *cron.Cron
	store      *db.Store
	log        logrus.FieldLogger
	now        func() time.Time
	staleAfter time.Duration
	staleSpec  string
	purgeSpec  string
}

func NewScheduler(cfg config.Config, store *db.Store, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		engine:     cron.New(cron.WithLocation(time.UTC)),
		store:      store,
		log:        log.WithField("component", "jobs"),
		now:        time.Now,
		staleAfter: cfg.StaleSessionAfter,
		staleSpec:  cfg.CronStaleSessions,
		purgeSpec:  cfg.CronInvitePurge,
	}
}

// Start registers both jobs and starts the engine. An empty spec disables
// its job.
func (s *Scheduler) Start() error {
	if s.staleSpec != "" {
		if _, err := s.engine.AddFunc(s.staleSpec, func() { s.run(staleSessionsJob, s.CloseStaleSessions) }); err != nil {
			return fmt.Errorf("schedule %s: %w", staleSessionsJob, err)
		}
	}
	if s.purgeSpec != "" {
		if _, err := s.engine.AddFunc(s.purgeSpec, func() { s.run(invitePurgeJob, s.PurgeExpiredInvites) }); err != nil {
			return fmt.Errorf("schedule %s: %w", invitePurgeJob, err)
		}
	}
	s.engine.Start()
	s.log.WithField("jobs", len(s.engine.Entries())).Info("scheduler started")
	return nil
}

// Stop waits for running jobs or for ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.engine.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) run(name string, job func(context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	affected, err := job(ctx)
	metrics.ObserveJob(name, affected, err)
	entry := s.log.WithField("job", name)
	if err != nil {
		entry.WithError(err).Error("job failed")
		return
	}
	entry.WithField("affected", affected).Info("job finished")
}

// CloseStaleSessions completes ACTIVE sessions older than the configured
// window, totalling their segments.
func (s *Scheduler) CloseStaleSessions(ctx context.Context) (int64, error) {
	if s.staleAfter <= 0 {
		return 0, nil
	}
	return s.store.CloseStaleSessions(ctx, s.now().UTC().Add(-s.staleAfter))
}

func (s *Scheduler) PurgeExpiredInvites(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredInvites(ctx, s.now().UTC())
}
