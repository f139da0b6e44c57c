package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gituhb/backend/internal/campus"
	"github.com/gituhb/backend/internal/config"
	"github.com/gituhb/backend/internal/github"
	"github.com/gituhb/backend/internal/handlers"
	"github.com/gituhb/backend/internal/models"
	"github.com/gituhb/backend/internal/services"
	"github.com/gituhb/backend/internal/store/memstore"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopSyncer struct{}

func (noopSyncer) Sync(uuid.UUID, string, string, string) {}
func (noopSyncer) SyncNow(context.Context, uuid.UUID, string, string, string) error {
	return nil
}

type stubGitHub struct{}

func (stubGitHub) FetchUser(_ context.Context, token string) (*github.User, error) {
	if token != "gho_valid" {
		return nil, &github.APIError{Status: http.StatusUnauthorized, Path: "/user"}
	}
	return &github.User{ID: 77, Login: "student", Name: "Student"}, nil
}
func (stubGitHub) FetchUserRepos(context.Context, string) ([]github.Repo, error) {
	return []github.Repo{{ID: 1, Name: "repo", FullName: "student/repo"}}, nil
}
func (stubGitHub) FetchReadme(context.Context, string, string, string) (string, error) {
	return "<p>readme</p>", nil
}
func (stubGitHub) FetchContributors(context.Context, string, string, string) ([]github.Contributor, error) {
	return nil, nil
}
func (stubGitHub) FetchOpenIssues(context.Context, string, string, string) ([]github.Issue, error) {
	return nil, nil
}
func (stubGitHub) FetchCommits(context.Context, string, string, string) ([]github.Commit, error) {
	return nil, nil
}

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *captureMailer) SendVerificationCode(_ context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[to] = code
	return nil
}

type server struct {
	app    *fiber.App
	st     *memstore.Store
	cfg    *config.Config
	mailer *captureMailer
}

func newServer(t *testing.T) *server {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:        "routes-test-secret",
		JWTAccessExpiry:  15 * time.Minute,
		JWTRefreshExpiry: time.Hour,
		OpsToken:         "ops-secret",
	}
	st := memstore.New()
	registry := campus.NewRegistry()
	mailer := &captureMailer{codes: map[string]string{}}
	gh := stubGitHub{}

	listings := services.NewListingService(st)
	githubService := services.NewGitHubService(st, gh, time.Minute)
	h := Handlers{
		Auth:         handlers.NewAuthHandler(services.NewAuthService(st, cfg, gh)),
		Health:       handlers.NewHealthHandler(func() error { return nil }, registry),
		Catalogue:    handlers.NewCatalogueHandler(registry),
		Profiles:     handlers.NewProfileHandler(services.NewProfileService(st), services.NewVerificationService(st, registry, mailer, time.Minute)),
		Projects:     handlers.NewProjectHandler(services.NewProjectService(st, noopSyncer{}), listings, githubService),
		Applications: handlers.NewApplicationHandler(services.NewApplicationService(st), listings),
		GitHub:       handlers.NewGitHubHandler(githubService),
	}

	app := fiber.New()
	Setup(app, cfg, h, nil)
	return &server{app: app, st: st, cfg: cfg, mailer: mailer}
}

var nextGitHubID int64 = 5000

func (s *server) user(t *testing.T, verified bool) *models.User {
	t.Helper()
	ctx := context.Background()
	nextGitHubID++
	u := &models.User{ID: uuid.New(), Name: "Test", GitHubID: nextGitHubID, GitHubAccessToken: "gho_valid", Skills: []string{}}
	require.NoError(t, s.st.CreateUser(ctx, u))
	if verified {
		require.NoError(t, s.st.MarkEmailVerified(ctx, u.ID, uuid.NewString()[:8]+"@uh.edu"))
	}
	got, err := s.st.GetUser(ctx, u.ID)
	require.NoError(t, err)
	return got
}

func (s *server) token(t *testing.T, u *models.User) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":               u.ID.String(),
		"uh_email_verified": u.UHEmailVerified,
		"exp":               time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(s.cfg.JWTSecret))
	require.NoError(t, err)
	return signed
}

func (s *server) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func projectBody(title string, count int) map[string]interface{} {
	return map[string]interface{}{
		"title":           title,
		"description":     "Looking for teammates to build a campus tool.",
		"time_commitment": "FIVE_TO_TEN",
		"tech_stack":      []string{"Go", "React"},
		"roles":           []map[string]interface{}{{"title": "Backend", "count": count}},
	}
}

func TestHealthAndCatalogue(t *testing.T) {
	s := newServer(t)

	status, body := s.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db"])
	assert.Equal(t, "University of Houston", body["campus"])

	status, body = s.do(t, http.MethodGet, "/api/catalogue", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body["email_domains"], "uh.edu")
	assert.NotEmpty(t, body["tech_stack"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newServer(t)

	status, body := s.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthenticated", body["code"])

	status, _ = s.do(t, http.MethodPost, "/api/projects", "not-a-jwt", projectBody("Nope", 1))
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodGet, "/api/projects/anything", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status, "a bad token is rejected even on optional routes")
}

func TestApplicationWorkflowOverHTTP(t *testing.T) {
	s := newServer(t)
	owner := s.user(t, true)
	first := s.user(t, true)
	second := s.user(t, true)
	unverified := s.user(t, false)
	ownerToken := s.token(t, owner)

	status, created := s.do(t, http.MethodPost, "/api/projects", ownerToken, projectBody("Course Swap", 1))
	require.Equal(t, http.StatusCreated, status)
	projectID := created["id"].(string)
	slug := created["slug"].(string)
	assert.Equal(t, "course-swap", slug)

	status, featured := s.do(t, http.MethodGet, "/api/projects/featured", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, featured["projects"], 1)

	status, detail := s.do(t, http.MethodGet, "/api/projects/"+slug, "", nil)
	require.Equal(t, http.StatusOK, status)
	roles := detail["roles"].([]interface{})
	roleID := roles[0].(map[string]interface{})["id"].(string)

	apply := func(u *models.User) (int, map[string]interface{}) {
		return s.do(t, http.MethodPost, "/api/projects/"+projectID+"/applications", s.token(t, u), map[string]string{
			"role_id": roleID,
			"message": "I have shipped two Go services and would love to help.",
		})
	}

	status, body := apply(unverified)
	assert.Equal(t, http.StatusPreconditionFailed, status)
	assert.Equal(t, "precondition_failed", body["code"])

	status, firstApp := apply(first)
	require.Equal(t, http.StatusCreated, status)
	status, secondApp := apply(second)
	require.Equal(t, http.StatusCreated, status)

	status, _ = apply(first)
	assert.Equal(t, http.StatusConflict, status)

	// Anonymous viewers do not see applications; the owner does.
	_, detail = s.do(t, http.MethodGet, "/api/projects/"+slug, "", nil)
	assert.Nil(t, detail["applications"])
	_, detail = s.do(t, http.MethodGet, "/api/projects/"+slug, ownerToken, nil)
	assert.Len(t, detail["applications"], 2)

	decide := func(app map[string]interface{}, token string) (int, map[string]interface{}) {
		return s.do(t, http.MethodPut, "/api/projects/"+projectID+"/applications/"+app["id"].(string), token,
			map[string]string{"status": "accepted"})
	}

	status, _ = decide(firstApp, s.token(t, first))
	assert.Equal(t, http.StatusForbidden, status)

	status, body = decide(firstApp, ownerToken)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ACCEPTED", body["status"])

	status, body = decide(secondApp, ownerToken)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "This role is already full.", body["message"])

	status, _ = s.do(t, http.MethodPost, "/api/applications/"+secondApp["id"].(string)+"/withdraw", s.token(t, second), nil)
	assert.Equal(t, http.StatusOK, status)

	status, mine := s.do(t, http.MethodGet, "/api/me/applications", s.token(t, second), nil)
	require.Equal(t, http.StatusOK, status)
	apps := mine["applications"].([]interface{})
	require.Len(t, apps, 1)
	assert.Equal(t, "WITHDRAWN", apps[0].(map[string]interface{})["status"])
}

func TestProjectValidationAndOwnership(t *testing.T) {
	s := newServer(t)
	owner := s.user(t, true)
	ownerToken := s.token(t, owner)

	status, body := s.do(t, http.MethodPost, "/api/projects", ownerToken, projectBody("ab", 1))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Title must be at least 3 characters", body["message"])

	status, created := s.do(t, http.MethodPost, "/api/projects", ownerToken, projectBody("Ride Share", 2))
	require.Equal(t, http.StatusCreated, status)
	id := created["id"].(string)

	status, _ = s.do(t, http.MethodDelete, "/api/projects/"+id, s.token(t, s.user(t, true)), nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodDelete, "/api/projects/not-a-uuid", ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, mine := s.do(t, http.MethodGet, "/api/me/projects", ownerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, mine["projects"], 1)

	status, _ = s.do(t, http.MethodPost, "/api/projects/"+id+"/github/refresh", ownerToken, nil)
	assert.Equal(t, http.StatusPreconditionFailed, status)

	status, _ = s.do(t, http.MethodDelete, "/api/projects/"+id, ownerToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, list := s.do(t, http.MethodGet, "/api/projects?page=1", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), list["total"])
	assert.NotNil(t, list["projects"])
}

func TestSignInOnboardingAndVerification(t *testing.T) {
	s := newServer(t)

	status, _ := s.do(t, http.MethodPost, "/api/auth/github", "", map[string]string{"access_token": "gho_revoked"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, auth := s.do(t, http.MethodPost, "/api/auth/github", "", map[string]string{"access_token": "gho_valid"})
	require.Equal(t, http.StatusOK, status)
	access := auth["access_token"].(string)
	user := auth["user"].(map[string]interface{})
	assert.Equal(t, true, user["needs_onboarding"])

	status, body := s.do(t, http.MethodPut, "/api/me/username", access, map[string]string{"username": "Coog-Dev"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "coog-dev", body["username"])

	status, body = s.do(t, http.MethodGet, "/api/profiles/coog-dev", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Student", body["name"])

	status, body = s.do(t, http.MethodPost, "/api/verify-email/send", access, map[string]string{"email": "me@gmail.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_input", body["code"])

	status, _ = s.do(t, http.MethodPost, "/api/verify-email/send", access, map[string]string{"email": "me@uh.edu"})
	require.Equal(t, http.StatusOK, status)
	s.mailer.mu.Lock()
	code := s.mailer.codes["me@uh.edu"]
	s.mailer.mu.Unlock()

	status, _ = s.do(t, http.MethodPost, "/api/verify-email/confirm", access, map[string]string{"email": "me@uh.edu", "code": code})
	require.Equal(t, http.StatusOK, status)

	status, me := s.do(t, http.MethodGet, "/api/me", access, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, me["uh_email_verified"])
	assert.Equal(t, "me@uh.edu", me["uh_email"])

	status, refreshed := s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": auth["refresh_token"].(string)})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, refreshed["user"].(map[string]interface{})["uh_email_verified"])

	status, _ = s.do(t, http.MethodDelete, "/api/auth/account", access, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodGet, "/api/me", access, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestGitHubRepos(t *testing.T) {
	s := newServer(t)
	u := s.user(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/github/repos", nil)
	req.Header.Set("Authorization", "Bearer "+s.token(t, u))
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var repos []github.Repo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&repos))
	require.Len(t, repos, 1)
	assert.Equal(t, "student/repo", repos[0].FullName)

	token := s.token(t, u)
	status, body := s.do(t, http.MethodPost, "/api/github/disconnect", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, body = s.do(t, http.MethodGet, "/api/github/repos", token, nil)
	assert.Equal(t, http.StatusPreconditionFailed, status)
	assert.Equal(t, "GitHub not connected.", body["message"])
}

func TestMetricsRequireOpsToken(t *testing.T) {
	s := newServer(t)

	status, _ := s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusForbidden, status)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Ops-Token", "ops-secret")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
