package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gituhb/backend/internal/github"
	"github.com/gituhb/backend/internal/store"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"
)

// RepoSource reads live data from GitHub.
type RepoSource interface {
	FetchUserRepos(ctx context.Context, token string) ([]github.Repo, error)
	FetchReadme(ctx context.Context, owner, repo, token string) (string, error)
	FetchContributors(ctx context.Context, owner, repo, token string) ([]github.Contributor, error)
	FetchOpenIssues(ctx context.Context, owner, repo, token string) ([]github.Issue, error)
	FetchCommits(ctx context.Context, owner, repo, token string) ([]github.Commit, error)
}

type RepoActivity struct {
	Repo         string
	ReadmeHTML   string
	Contributors []github.Contributor
	Issues       []github.Issue
	Commits      []github.Commit
	FetchedAt    time.Time
}

// GitHubService serves the repository picker and the GitHub tab of a
// project page. Activity is cached per repository for a short time to stay
// under API rate limits.
type GitHubService struct {
	store  store.Store
	source RepoSource
	cache  *expirable.LRU[string, *RepoActivity]
}

func NewGitHubService(st store.Store, source RepoSource, ttl time.Duration) *GitHubService {
	return &GitHubService{
		store:  st,
		source: source,
		cache:  expirable.NewLRU[string, *RepoActivity](256, nil, ttl),
	}
}

// UserRepos lists the caller's public repositories.
func (s *GitHubService) UserRepos(ctx context.Context, id *Identity) ([]github.Repo, error) {
	if id == nil {
		return nil, ErrUnauthenticated
	}
	u, err := s.store.GetUser(ctx, id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u.GitHubAccessToken == "" {
		return nil, ErrGitHubNotConnected
	}
	repos, err := s.source.FetchUserRepos(ctx, u.GitHubAccessToken)
	if err != nil {
		if github.IsUnauthorized(err) {
			return nil, ErrGitHubRejected
		}
		return nil, fmt.Errorf("fetch repos: %w", err)
	}
	return repos, nil
}

// Activity returns README, contributors, open issues and recent commits of
// the project's linked repository.
func (s *GitHubService) Activity(ctx context.Context, projectID uuid.UUID) (*RepoActivity, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	owner, repo := deref(p.GitHub.Owner), deref(p.GitHub.Name)
	if owner == "" || repo == "" {
		var ok bool
		if owner, repo, ok = github.ParseRepoURL(deref(p.GitHubRepoURL)); !ok {
			return nil, ErrNoRepoLinked
		}
	}
	key := owner + "/" + repo
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	var token string
	if u, err := s.store.GetUser(ctx, p.OwnerID); err == nil {
		token = u.GitHubAccessToken
	}

	act := &RepoActivity{Repo: key}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		act.ReadmeHTML, err = s.source.FetchReadme(gctx, owner, repo, token)
		return err
	})
	g.Go(func() (err error) {
		act.Contributors, err = s.source.FetchContributors(gctx, owner, repo, token)
		return err
	})
	g.Go(func() (err error) {
		act.Issues, err = s.source.FetchOpenIssues(gctx, owner, repo, token)
		return err
	})
	g.Go(func() (err error) {
		act.Commits, err = s.source.FetchCommits(gctx, owner, repo, token)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch repo activity: %w", err)
	}
	act.FetchedAt = time.Now()

	s.cache.Add(key, act)
	return act, nil
}
