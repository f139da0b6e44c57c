package services

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gituhb/backend/internal/github"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepoSource struct {
	readmeCalls int32
	failIssues  bool
	lastToken   atomic.Value
}

func (f *fakeRepoSource) FetchUserRepos(_ context.Context, token string) ([]github.Repo, error) {
	if token == "expired" {
		return nil, &github.APIError{Status: http.StatusUnauthorized, Path: "/user/repos"}
	}
	return []github.Repo{{ID: 1, Name: "one", FullName: "octo/one"}}, nil
}

func (f *fakeRepoSource) FetchReadme(_ context.Context, owner, repo, token string) (string, error) {
	atomic.AddInt32(&f.readmeCalls, 1)
	f.lastToken.Store(token)
	return "<h1>" + repo + "</h1>", nil
}

func (f *fakeRepoSource) FetchContributors(context.Context, string, string, string) ([]github.Contributor, error) {
	return []github.Contributor{{Login: "octo", Contributions: 10}}, nil
}

func (f *fakeRepoSource) FetchOpenIssues(context.Context, string, string, string) ([]github.Issue, error) {
	if f.failIssues {
		return nil, &github.APIError{Status: http.StatusBadGateway, Path: "/issues"}
	}
	return []github.Issue{{Number: 7, Title: "Bug"}}, nil
}

func (f *fakeRepoSource) FetchCommits(context.Context, string, string, string) ([]github.Commit, error) {
	return []github.Commit{{SHA: "abc123", Message: "init"}}, nil
}

func TestUserRepos(t *testing.T) {
	e := newEnv(t)
	svc := NewGitHubService(e.st, &fakeRepoSource{}, time.Minute)
	u := e.user(t, false)

	repos, err := svc.UserRepos(e.ctx, ident(u))
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "octo/one", repos[0].FullName)

	u.GitHubAccessToken = "expired"
	require.NoError(t, e.st.SaveUser(e.ctx, u))
	_, err = svc.UserRepos(e.ctx, ident(u))
	assert.ErrorIs(t, err, ErrGitHubRejected)

	u.GitHubAccessToken = ""
	require.NoError(t, e.st.SaveUser(e.ctx, u))
	_, err = svc.UserRepos(e.ctx, ident(u))
	assert.ErrorIs(t, err, ErrGitHubNotConnected)

	_, err = svc.UserRepos(e.ctx, nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestActivityIsCached(t *testing.T) {
	e := newEnv(t)
	source := &fakeRepoSource{}
	svc := NewGitHubService(e.st, source, time.Minute)
	owner := e.user(t, true)

	in := projectInput("With Repo")
	in.GitHubRepoURL = "https://github.com/octo/with-repo"
	p, err := e.projects.Create(e.ctx, ident(owner), in)
	require.NoError(t, err)

	act, err := svc.Activity(e.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "octo/with-repo", act.Repo)
	assert.Equal(t, "<h1>with-repo</h1>", act.ReadmeHTML)
	assert.Len(t, act.Contributors, 1)
	assert.Len(t, act.Issues, 1)
	assert.Len(t, act.Commits, 1)
	assert.Equal(t, owner.GitHubAccessToken, source.lastToken.Load())

	_, err = svc.Activity(e.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&source.readmeCalls))
}

func TestActivityErrors(t *testing.T) {
	e := newEnv(t)
	source := &fakeRepoSource{failIssues: true}
	svc := NewGitHubService(e.st, source, time.Minute)
	owner := e.user(t, true)

	_, err := svc.Activity(e.ctx, uuid.New())
	assert.ErrorIs(t, err, ErrProjectNotFound)

	unlinked, _ := e.project(t, owner)
	_, err = svc.Activity(e.ctx, unlinked.ID)
	assert.ErrorIs(t, err, ErrNoRepoLinked)

	in := projectInput("Broken Repo")
	in.GitHubRepoURL = "https://github.com/octo/broken"
	p, err := e.projects.Create(e.ctx, ident(owner), in)
	require.NoError(t, err)
	_, err = svc.Activity(e.ctx, p.ID)
	require.Error(t, err)
	assert.Equal(t, Kind(""), KindOf(err))
}
