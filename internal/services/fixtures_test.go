package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gituhb/backend/internal/models"
	"github.com/gituhb/backend/internal/store/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var githubIDs int64 = 1000

type fakeSyncer struct {
	mu    sync.Mutex
	async []string
	sync  []string
	err   error
}

func (f *fakeSyncer) Sync(projectID uuid.UUID, owner, repo, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.async = append(f.async, owner+"/"+repo)
}

func (f *fakeSyncer) SyncNow(_ context.Context, projectID uuid.UUID, owner, repo, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sync = append(f.sync, owner+"/"+repo)
	return f.err
}

type env struct {
	ctx          context.Context
	st           *memstore.Store
	syncer       *fakeSyncer
	projects     *ProjectService
	applications *ApplicationService
	listings     *ListingService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memstore.New()
	syncer := &fakeSyncer{}
	projects := NewProjectService(st, syncer)
	projects.now = steppingClock()
	return &env{
		ctx:          context.Background(),
		st:           st,
		syncer:       syncer,
		projects:     projects,
		applications: NewApplicationService(st),
		listings:     NewListingService(st),
	}
}

// steppingClock advances by a millisecond on every call.
func steppingClock() func() time.Time {
	var ticks int64
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&ticks, 1)) * time.Millisecond)
	}
}

// user creates a user; verified users get a unique campus email.
func (e *env) user(t *testing.T, verified bool) *models.User {
	t.Helper()
	gid := atomic.AddInt64(&githubIDs, 1)
	u := &models.User{
		ID:                uuid.New(),
		Name:              fmt.Sprintf("User %d", gid),
		GitHubID:          gid,
		GitHubUsername:    fmt.Sprintf("gh%d", gid),
		GitHubAccessToken: fmt.Sprintf("token-%d", gid),
		Skills:            []string{},
	}
	require.NoError(t, e.st.CreateUser(e.ctx, u))
	if verified {
		require.NoError(t, e.st.MarkEmailVerified(e.ctx, u.ID, fmt.Sprintf("u%d@uh.edu", gid)))
	}
	got, err := e.st.GetUser(e.ctx, u.ID)
	require.NoError(t, err)
	return got
}

func ident(u *models.User) *Identity {
	return &Identity{UserID: u.ID, UHEmailVerified: u.UHEmailVerified}
}

func projectInput(title string, roles ...RoleInput) ProjectInput {
	if len(roles) == 0 {
		roles = []RoleInput{{Title: "Backend", Count: 1}}
	}
	return ProjectInput{
		Title:          title,
		Description:    "A project built by students for students.",
		TimeCommitment: models.FiveToTen,
		TechStack:      []string{"Go", "React"},
		Roles:          roles,
	}
}

// project creates a project owned by owner and returns it with its roles.
func (e *env) project(t *testing.T, owner *models.User, roles ...RoleInput) (*models.Project, []models.ProjectRole) {
	t.Helper()
	p, err := e.projects.Create(e.ctx, ident(owner), projectInput("Campus Marketplace", roles...))
	require.NoError(t, err)
	rs, err := e.st.ListRoles(e.ctx, p.ID)
	require.NoError(t, err)
	return p, rs
}

func pitch() string {
	return strings.Repeat("I would love to help. ", 2)
}

func (e *env) apply(t *testing.T, applicant *models.User, p *models.Project, role models.ProjectRole) *models.Application {
	t.Helper()
	app, err := e.applications.Submit(e.ctx, ident(applicant), SubmitInput{
		ProjectID: p.ID,
		RoleID:    role.ID,
		Message:   pitch(),
	})
	require.NoError(t, err)
	return app
}
