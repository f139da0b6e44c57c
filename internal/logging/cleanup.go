package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/gituhb/backend/internal/models"
	"github.com/gituhb/backend/internal/store"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	LogRetention = 30 * 24 * time.Hour

	logCleanupSchedule   = "@daily"
	tokenCleanupSchedule = "@every 15m"
)

// Janitor runs the periodic retention jobs: system log pruning, expired
// verification codes and stale refresh tokens.
type Janitor struct {
	db    *gorm.DB
	store store.Store
	cron  *cron.Cron
	now   func() time.Time
}

func NewJanitor(db *gorm.DB, st store.Store) *Janitor {
	return &Janitor{
		db:    db,
		store: st,
		cron:  cron.New(),
		now:   time.Now,
	}
}

// Start schedules the jobs and returns immediately.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(logCleanupSchedule, j.PruneLogs); err != nil {
		return err
	}
	if _, err := j.cron.AddFunc(tokenCleanupSchedule, j.PruneCredentials); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop waits for running jobs to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) PruneLogs() {
	cutoff := j.now().Add(-LogRetention)
	result := j.db.Where("timestamp < ?", cutoff).Delete(&models.SystemLog{})
	if result.Error != nil {
		slog.Error("log cleanup failed", "action", "cleanup.logs", "error", result.Error)
	} else if result.RowsAffected > 0 {
		slog.Info("log cleanup completed", "action", "cleanup.logs", "deleted", result.RowsAffected)
	}
}

func (j *Janitor) PruneCredentials() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	now := j.now()

	codes, err := j.store.DeleteExpiredVerifications(ctx, now)
	if err != nil {
		slog.Error("verification cleanup failed", "action", "cleanup.verifications", "error", err)
	} else if codes > 0 {
		slog.Info("expired verification codes deleted", "action", "cleanup.verifications", "deleted", codes)
	}

	tokens, err := j.store.DeleteStaleRefreshTokens(ctx, now)
	if err != nil {
		slog.Error("refresh token cleanup failed", "action", "cleanup.tokens", "error", err)
	} else if tokens > 0 {
		slog.Info("stale refresh tokens deleted", "action", "cleanup.tokens", "deleted", tokens)
	}
}
