// Package store is the persistence boundary of the marketplace. Every
// multi-row mutation (aggregate deletes, membership upserts, role fill
// writes) goes through a Tx so callers can sequence reads and writes
// against one transaction.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/gituhb/backend/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// ProjectFilter narrows a project search. An empty Status means ACTIVE.
type ProjectFilter struct {
	Text           string
	TechTag        string
	TimeCommitment models.TimeCommitment
	Status         models.ProjectStatus
}

// Store is a Tx bound to no transaction plus the ability to open one.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	// Users
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*models.User, error)
	GetUserByUHEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	// SaveUser writes profile fields. The verified email columns are never
	// touched here; see MarkEmailVerified.
	SaveUser(ctx context.Context, u *models.User) error
	MarkEmailVerified(ctx context.Context, userID uuid.UUID, email string) error
	DeleteUser(ctx context.Context, id uuid.UUID) error

	// Refresh tokens
	CreateRefreshToken(ctx context.Context, t *models.RefreshToken) error
	GetActiveRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	DeleteRefreshTokensForUser(ctx context.Context, userID uuid.UUID) error
	DeleteStaleRefreshTokens(ctx context.Context, now time.Time) (int64, error)

	// Email verification codes
	CreateVerification(ctx context.Context, v *models.EmailVerification) error
	ListActiveVerifications(ctx context.Context, userID uuid.UUID, email string, now time.Time) ([]models.EmailVerification, error)
	DeleteVerifications(ctx context.Context, userID uuid.UUID) error
	DeleteExpiredVerifications(ctx context.Context, now time.Time) (int64, error)

	// Projects
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	// LockProject reads the project and holds a row lock until the
	// transaction ends. Owner decisions take it first so that decisions on
	// one project, and the memberships they write, are serialised.
	LockProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetProjectDetail(ctx context.Context, slug string) (*models.Project, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	// CreateProject inserts the project together with p.Roles and p.Members.
	CreateProject(ctx context.Context, p *models.Project) error
	SaveProject(ctx context.Context, p *models.Project) error
	UpdateRepoStats(ctx context.Context, projectID uuid.UUID, stats models.RepoStats) error
	// DeleteProject removes applications, memberships, roles and finally
	// the project, in that order.
	DeleteProject(ctx context.Context, id uuid.UUID) error
	SearchProjects(ctx context.Context, f ProjectFilter, offset, limit int) ([]models.Project, int64, error)
	ListProjectsByOwner(ctx context.Context, ownerID uuid.UUID, status models.ProjectStatus) ([]models.Project, error)

	// Roles
	ListRoles(ctx context.Context, projectID uuid.UUID) ([]models.ProjectRole, error)
	GetRole(ctx context.Context, id uuid.UUID) (*models.ProjectRole, error)
	// LockRole reads the role and holds a row lock until the transaction ends.
	LockRole(ctx context.Context, id uuid.UUID) (*models.ProjectRole, error)
	CreateRole(ctx context.Context, r *models.ProjectRole) error
	// SaveRole writes title, description and count. Filled is not written.
	SaveRole(ctx context.Context, r *models.ProjectRole) error
	// DeleteRole removes the role's applications, unbinds its members and
	// deletes the role.
	DeleteRole(ctx context.Context, id uuid.UUID) error
	CountRoleMembers(ctx context.Context, roleID uuid.UUID) (int64, error)
	SetRoleFilled(ctx context.Context, roleID uuid.UUID, filled bool) error

	// Memberships
	GetMembership(ctx context.Context, userID, projectID uuid.UUID) (*models.ProjectMember, error)
	// UpsertMembership inserts m or, when (user, project) already exists,
	// rebinds the existing row to m.ProjectRoleID.
	UpsertMembership(ctx context.Context, m *models.ProjectMember) error
	// DeleteMembershipsByUser returns the role ids the removed rows were bound to.
	DeleteMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)

	// Applications
	GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error)
	FindApplication(ctx context.Context, userID, projectID, roleID uuid.UUID) (*models.Application, error)
	// CreateApplication returns ErrDuplicate when (user, project, role) exists.
	CreateApplication(ctx context.Context, a *models.Application) error
	// TransitionApplication moves the application from one status to another
	// and reports false when it was not in the from status.
	TransitionApplication(ctx context.Context, id uuid.UUID, from, to models.ApplicationStatus) (bool, error)
	ListApplicationsByUser(ctx context.Context, userID uuid.UUID) ([]models.Application, error)
	DeleteApplicationsByUser(ctx context.Context, userID uuid.UUID) error
}
