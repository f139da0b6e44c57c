package github

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gituhb/backend/internal/metrics"
	"github.com/gituhb/backend/internal/models"
	"github.com/google/uuid"
)

// StatsWriter persists fetched repository metadata on a project.
type StatsWriter interface {
	UpdateRepoStats(ctx context.Context, projectID uuid.UUID, stats models.RepoStats) error
}

// Syncer copies repository metadata onto projects. Sync runs in the
// background and never reports to the caller; SyncNow is the blocking form.
type Syncer struct {
	client  *Client
	writer  StatsWriter
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewSyncer(client *Client, writer StatsWriter, timeout time.Duration) *Syncer {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Syncer{client: client, writer: writer, timeout: timeout, now: time.Now}
}

// Sync starts a background refresh. Failures are logged and counted.
func (s *Syncer) Sync(projectID uuid.UUID, owner, repo, token string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.SyncNow(ctx, projectID, owner, repo, token); err != nil {
			slog.Error("github sync failed",
				"action", "github.sync",
				"project_id", projectID.String(),
				"repo", owner+"/"+repo,
				"error", err)
		}
	}()
}

// SyncNow fetches repository details and languages and writes them onto the
// project.
func (s *Syncer) SyncNow(ctx context.Context, projectID uuid.UUID, owner, repo, token string) error {
	err := s.syncNow(ctx, projectID, owner, repo, token)
	metrics.ObserveRepoSync(err == nil)
	return err
}

func (s *Syncer) syncNow(ctx context.Context, projectID uuid.UUID, owner, repo, token string) error {
	type languagesResult struct {
		raw []byte
		err error
	}
	langCh := make(chan languagesResult, 1)
	go func() {
		raw, err := s.client.FetchRepoLanguages(ctx, owner, repo, token)
		langCh <- languagesResult{raw: raw, err: err}
	}()

	details, err := s.client.FetchRepoDetails(ctx, owner, repo, token)
	langs := <-langCh
	if err != nil {
		return fmt.Errorf("fetch repo details: %w", err)
	}
	if langs.err != nil {
		return fmt.Errorf("fetch repo languages: %w", langs.err)
	}

	synced := s.now()
	stats := models.RepoStats{
		Owner:       &owner,
		Name:        &repo,
		RepoID:      &details.ID,
		Description: details.Description,
		Stars:       details.Stars,
		Forks:       details.Forks,
		OpenIssues:  details.OpenIssues,
		Language:    details.Language,
		Languages:   langs.raw,
		SyncedAt:    &synced,
	}
	if !details.PushedAt.IsZero() {
		pushed := details.PushedAt
		stats.LastCommitAt = &pushed
	}

	if err := s.writer.UpdateRepoStats(ctx, projectID, stats); err != nil {
		return fmt.Errorf("store repo stats: %w", err)
	}
	return nil
}

// Wait blocks until in-flight background syncs finish.
func (s *Syncer) Wait() {
	s.wg.Wait()
}
