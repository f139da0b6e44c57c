package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gituhb/backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id":42,"login":"coog","name":"Shasta","avatar_url":"https://a/x.png","html_url":"https://github.com/coog"}`))
	})
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":1,"name":"pub","full_name":"coog/pub","private":false,"description":null,"language":"Go","stargazers_count":3,"topics":["cli"]},
			{"id":2,"name":"secret","full_name":"coog/secret","private":true}
		]`))
	})
	mux.HandleFunc("/repos/coog/pub", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":1,"name":"pub","description":"a tool","language":"Go","stargazers_count":7,"forks_count":2,"open_issues_count":1,"pushed_at":"2025-03-01T10:00:00Z"}`))
	})
	mux.HandleFunc("/repos/coog/pub/languages", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Go":1200,"Shell":30}`))
	})
	mux.HandleFunc("/repos/coog/pub/readme", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/repos/coog/pub/issues", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"number":5,"title":"bug","html_url":"u","user":{"login":"a"},"labels":[{"name":"bug"}],"created_at":"2025-02-01T00:00:00Z"},
			{"number":6,"title":"pr","pull_request":{"url":"x"}}
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchUser(t *testing.T) {
	c := NewClient(newTestServer(t).URL)

	u, err := c.FetchUser(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.ID)
	assert.Equal(t, "coog", u.Login)
	assert.Equal(t, "https://github.com/coog", u.ProfileURL)

	_, err = c.FetchUser(context.Background(), "bad")
	assert.True(t, IsUnauthorized(err))
}

func TestFetchUserReposSkipsPrivate(t *testing.T) {
	c := NewClient(newTestServer(t).URL)

	repos, err := c.FetchUserRepos(context.Background(), "good")
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "coog/pub", repos[0].FullName)
	assert.Nil(t, repos[0].Description)
	assert.Equal(t, []string{"cli"}, repos[0].Topics)
}

func TestFetchReadmeMissing(t *testing.T) {
	c := NewClient(newTestServer(t).URL)

	html, err := c.FetchReadme(context.Background(), "coog", "pub", "")
	require.NoError(t, err)
	assert.Empty(t, html)
}

func TestFetchOpenIssuesSkipsPullRequests(t *testing.T) {
	c := NewClient(newTestServer(t).URL)

	issues, err := c.FetchOpenIssues(context.Background(), "coog", "pub", "")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 5, issues[0].Number)
	assert.Equal(t, []string{"bug"}, issues[0].Labels)
	assert.Equal(t, "a", issues[0].Author)
}

func TestParseRepoURL(t *testing.T) {
	cases := []struct {
		url, owner, repo string
		ok               bool
	}{
		{"https://github.com/coog/pub", "coog", "pub", true},
		{"https://github.com/coog/pub.git", "coog", "pub", true},
		{"https://github.com/coog/pub/tree/main", "coog", "pub", true},
		{"https://gitlab.com/coog/pub", "", "", false},
		{"https://github.com/coog", "", "", false},
	}
	for _, tc := range cases {
		owner, repo, ok := ParseRepoURL(tc.url)
		assert.Equal(t, tc.ok, ok, tc.url)
		assert.Equal(t, tc.owner, owner, tc.url)
		assert.Equal(t, tc.repo, repo, tc.url)
	}
}

type recordingWriter struct {
	mu    sync.Mutex
	calls map[uuid.UUID]models.RepoStats
}

func (w *recordingWriter) UpdateRepoStats(_ context.Context, id uuid.UUID, stats models.RepoStats) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls[id] = stats
	return nil
}

func TestSyncWritesStats(t *testing.T) {
	w := &recordingWriter{calls: map[uuid.UUID]models.RepoStats{}}
	s := NewSyncer(NewClient(newTestServer(t).URL), w, time.Second)
	id := uuid.New()

	s.Sync(id, "coog", "pub", "")
	s.Wait()

	stats, ok := w.calls[id]
	require.True(t, ok)
	assert.Equal(t, 7, stats.Stars)
	assert.Equal(t, "a tool", *stats.Description)
	assert.Equal(t, int64(1), *stats.RepoID)
	assert.JSONEq(t, `{"Go":1200,"Shell":30}`, string(stats.Languages))
	require.NotNil(t, stats.LastCommitAt)
	assert.Equal(t, 2025, stats.LastCommitAt.Year())
	assert.NotNil(t, stats.SyncedAt)
}

func TestSyncFailureLeavesProjectUntouched(t *testing.T) {
	w := &recordingWriter{calls: map[uuid.UUID]models.RepoStats{}}
	s := NewSyncer(NewClient(newTestServer(t).URL), w, time.Second)
	id := uuid.New()

	s.Sync(id, "coog", "missing", "")
	s.Wait()

	assert.Empty(t, w.calls)
}
