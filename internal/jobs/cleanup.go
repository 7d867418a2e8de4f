// Copyright (c) 2025 Justin Cranford
//
// Package jobs runs scheduled housekeeping against expired rows: expired
// authorization codes, sessions past expires_at that are no longer
// active, consumed or expired async actions, and refresh tokens past
// their TTL. None of these rows
// are load-bearing once expired; the job exists to keep the tables from
// growing without bound (spec §3 "AuthorizationCode... TTL <= 60s",
// "AuthenticationSession... expires_at").
package jobs

import (
	"context"
	"log/slog"
	"time"

	reauthRepository "github.com/reauth/reauth/internal/repository"

	"github.com/robfig/cron/v3"
)

const defaultCleanupSchedule = "@every 5m"

// CleanupJob deletes expired rows from the session/oidc tables on a cron
// schedule, mirroring the shape of the identity server's own cleanup
// job (NewCleanupJob/Start/Stop/cleanup) but driving the tick with a
// parsed cron expression instead of a bare ticker.
type CleanupJob struct {
	repos    *reauthRepository.RepositoryFactory
	logger   *slog.Logger
	schedule string
	cron     *cron.Cron
	stopChan chan struct{}
}

// NewCleanupJob builds a job against schedule, a standard five-field
// cron expression or a `@every` descriptor; an empty schedule falls
// back to defaultCleanupSchedule.
func NewCleanupJob(repos *reauthRepository.RepositoryFactory, logger *slog.Logger, schedule string) *CleanupJob {
	if schedule == "" {
		schedule = defaultCleanupSchedule
	}
	return &CleanupJob{
		repos:    repos,
		logger:   logger,
		schedule: schedule,
		cron:     cron.New(),
		stopChan: make(chan struct{}),
	}
}

// Start registers the cleanup entry and blocks until ctx is cancelled or
// Stop is called.
func (j *CleanupJob) Start(ctx context.Context) {
	entryID, err := j.cron.AddFunc(j.schedule, func() { j.cleanup(ctx) })
	if err != nil {
		j.logger.Error("invalid cleanup schedule, falling back to default", "schedule", j.schedule, "error", err)
		j.schedule = defaultCleanupSchedule
		entryID, err = j.cron.AddFunc(j.schedule, func() { j.cleanup(ctx) })
		if err != nil {
			j.logger.Error("failed to schedule cleanup job", "error", err)
			return
		}
	}
	_ = entryID

	j.cron.Start()
	defer j.cron.Stop()

	select {
	case <-ctx.Done():
	case <-j.stopChan:
	}
}

// Stop signals Start to return without waiting for ctx cancellation.
func (j *CleanupJob) Stop() {
	close(j.stopChan)
}

// cleanup deletes one pass of expired rows across every table the
// session/oidc lifecycle can leave stale entries in.
func (j *CleanupJob) cleanup(ctx context.Context) {
	now := time.Now().UTC()

	deletedSessions, err := j.repos.SessionRepository().DeleteExpiredSessions(ctx, now)
	if err != nil {
		j.logger.Error("cleaning up expired sessions", "error", err)
	} else if deletedSessions > 0 {
		j.logger.Info("deleted expired sessions", "count", deletedSessions)
	}

	deletedActions, err := j.repos.SessionRepository().DeleteExpiredActions(ctx, now)
	if err != nil {
		j.logger.Error("cleaning up expired actions", "error", err)
	} else if deletedActions > 0 {
		j.logger.Info("deleted expired auth session actions", "count", deletedActions)
	}

	deletedCodes, err := j.repos.OidcRepository().DeleteExpiredCodes(ctx, now)
	if err != nil {
		j.logger.Error("cleaning up expired authorization codes", "error", err)
	} else if deletedCodes > 0 {
		j.logger.Info("deleted expired authorization codes", "count", deletedCodes)
	}

	deletedTokens, err := j.repos.OidcRepository().DeleteExpiredRefreshTokens(ctx, now)
	if err != nil {
		j.logger.Error("cleaning up expired refresh tokens", "error", err)
	} else if deletedTokens > 0 {
		j.logger.Info("deleted expired refresh tokens", "count", deletedTokens)
	}
}
