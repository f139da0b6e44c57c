package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gituhb/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on PostgreSQL through GORM.
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// WithTx runs fn in a database transaction. Called on a store that is
// already inside one, fn joins it.
func (s *GormStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.atomically(ctx, func(tx *GormStore) error { return fn(tx) })
}

// atomically runs fn in the current transaction, opening one if needed.
func (s *GormStore) atomically(ctx context.Context, fn func(tx *GormStore) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, inTx: true})
	})
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

// --- Users ---

func (s *GormStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormStore) GetUserByGitHubID(ctx context.Context, githubID int64) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("github_id = ?", githubID).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormStore) GetUserByUHEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("uh_email = ?", email).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	return translate(s.db.WithContext(ctx).Create(u).Error)
}

func (s *GormStore) SaveUser(ctx context.Context, u *models.User) error {
	return translate(s.db.WithContext(ctx).Model(u).
		Select("name", "image", "username", "github_username", "github_profile_url",
			"github_access_token", "bio", "skills", "major", "graduation_year", "updated_at").
		Updates(u).Error)
}

func (s *GormStore) MarkEmailVerified(ctx context.Context, userID uuid.UUID, email string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"uh_email":          email,
			"uh_email_verified": true,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Refresh tokens ---

func (s *GormStore) CreateRefreshToken(ctx context.Context, t *models.RefreshToken) error {
	return translate(s.db.WithContext(ctx).Omit("User").Create(t).Error)
}

func (s *GormStore) GetActiveRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	if err := s.db.WithContext(ctx).Where("token_hash = ? AND revoked = false", tokenHash).First(&t).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (s *GormStore) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	return s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ?", tokenHash).
		Update("revoked", true).Error
}

func (s *GormStore) DeleteRefreshTokensForUser(ctx context.Context, userID uuid.UUID) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error
}

func (s *GormStore) DeleteStaleRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ? OR revoked = true", now).Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}

// --- Email verification ---

func (s *GormStore) CreateVerification(ctx context.Context, v *models.EmailVerification) error {
	return translate(s.db.WithContext(ctx).Create(v).Error)
}

func (s *GormStore) ListActiveVerifications(ctx context.Context, userID uuid.UUID, email string, now time.Time) ([]models.EmailVerification, error) {
	var out []models.EmailVerification
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND email = ? AND expires_at > ?", userID, email, now).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (s *GormStore) DeleteVerifications(ctx context.Context, userID uuid.UUID) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.EmailVerification{}).Error
}

func (s *GormStore) DeleteExpiredVerifications(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.EmailVerification{})
	return res.RowsAffected, res.Error
}

// --- Projects ---

func (s *GormStore) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var p models.Project
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) LockProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var p models.Project
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) GetProjectDetail(ctx context.Context, slug string) (*models.Project, error) {
	var p models.Project
	err := s.db.WithContext(ctx).
		Preload("Owner").
		Preload("Roles", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Members.User").
		Preload("Members.ProjectRole").
		Preload("Applications", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		Preload("Applications.User").
		Preload("Applications.Role").
		Where("slug = ?", slug).
		First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Project{}).Where("slug = ?", slug).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *GormStore) CreateProject(ctx context.Context, p *models.Project) error {
	return translate(s.db.WithContext(ctx).Create(p).Error)
}

func (s *GormStore) SaveProject(ctx context.Context, p *models.Project) error {
	return translate(s.db.WithContext(ctx).Model(p).
		Select("title", "description", "long_description", "github_repo_url", "time_commitment",
			"tech_stack", "tags", "max_members", "status", "updated_at").
		Updates(p).Error)
}

func (s *GormStore) UpdateRepoStats(ctx context.Context, projectID uuid.UUID, st models.RepoStats) error {
	res := s.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", projectID).
		Updates(map[string]interface{}{
			"github_owner":          st.Owner,
			"github_name":           st.Name,
			"github_repo_id":        st.RepoID,
			"github_description":    st.Description,
			"github_stars":          st.Stars,
			"github_forks":          st.Forks,
			"github_open_issues":    st.OpenIssues,
			"github_language":       st.Language,
			"github_languages":      st.Languages,
			"github_last_commit_at": st.LastCommitAt,
			"github_synced_at":      st.SyncedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteProject(ctx context.Context, id uuid.UUID) error {
	return s.atomically(ctx, func(tx *GormStore) error {
		db := tx.db.WithContext(ctx)
		if err := db.Where("project_id = ?", id).Delete(&models.Application{}).Error; err != nil {
			return fmt.Errorf("delete applications: %w", err)
		}
		if err := db.Where("project_id = ?", id).Delete(&models.ProjectMember{}).Error; err != nil {
			return fmt.Errorf("delete members: %w", err)
		}
		if err := db.Where("project_id = ?", id).Delete(&models.ProjectRole{}).Error; err != nil {
			return fmt.Errorf("delete roles: %w", err)
		}
		res := db.Where("id = ?", id).Delete(&models.Project{})
		if res.Error != nil {
			return fmt.Errorf("delete project: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) SearchProjects(ctx context.Context, f ProjectFilter, offset, limit int) ([]models.Project, int64, error) {
	status := f.Status
	if status == "" {
		status = models.ProjectActive
	}

	query := s.db.WithContext(ctx).Model(&models.Project{}).Where("status = ?", status)
	if f.Text != "" {
		like := "%" + escapeLike(f.Text) + "%"
		query = query.Where("(title ILIKE ? OR description ILIKE ?)", like, like)
	}
	if f.TechTag != "" {
		tag, _ := json.Marshal([]string{f.TechTag})
		query = query.Where("tech_stack @> ?", string(tag))
	}
	if f.TimeCommitment != "" {
		query = query.Where("time_commitment = ?", f.TimeCommitment)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var projects []models.Project
	err := query.
		Preload("Owner").
		Preload("Roles").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&projects).Error
	if err != nil {
		return nil, 0, err
	}
	return projects, total, nil
}

func (s *GormStore) ListProjectsByOwner(ctx context.Context, ownerID uuid.UUID, status models.ProjectStatus) ([]models.Project, error) {
	query := s.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var projects []models.Project
	err := query.Preload("Roles").Order("created_at DESC").Find(&projects).Error
	return projects, err
}

// --- Roles ---

func (s *GormStore) ListRoles(ctx context.Context, projectID uuid.UUID) ([]models.ProjectRole, error) {
	var roles []models.ProjectRole
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at ASC").Find(&roles).Error
	return roles, err
}

func (s *GormStore) GetRole(ctx context.Context, id uuid.UUID) (*models.ProjectRole, error) {
	var r models.ProjectRole
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *GormStore) LockRole(ctx context.Context, id uuid.UUID) (*models.ProjectRole, error) {
	var r models.ProjectRole
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&r, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *GormStore) CreateRole(ctx context.Context, r *models.ProjectRole) error {
	return translate(s.db.WithContext(ctx).Create(r).Error)
}

func (s *GormStore) SaveRole(ctx context.Context, r *models.ProjectRole) error {
	return translate(s.db.WithContext(ctx).Model(r).
		Select("title", "description", "count", "updated_at").
		Updates(r).Error)
}

func (s *GormStore) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return s.atomically(ctx, func(tx *GormStore) error {
		db := tx.db.WithContext(ctx)
		if err := db.Where("role_id = ?", id).Delete(&models.Application{}).Error; err != nil {
			return fmt.Errorf("delete role applications: %w", err)
		}
		if err := db.Model(&models.ProjectMember{}).Where("project_role_id = ?", id).
			Update("project_role_id", nil).Error; err != nil {
			return fmt.Errorf("unbind role members: %w", err)
		}
		res := db.Where("id = ?", id).Delete(&models.ProjectRole{})
		if res.Error != nil {
			return fmt.Errorf("delete role: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) CountRoleMembers(ctx context.Context, roleID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.ProjectMember{}).Where("project_role_id = ?", roleID).Count(&n).Error
	return n, err
}

func (s *GormStore) SetRoleFilled(ctx context.Context, roleID uuid.UUID, filled bool) error {
	return s.db.WithContext(ctx).Model(&models.ProjectRole{}).
		Where("id = ?", roleID).
		Update("filled", filled).Error
}

// --- Memberships ---

func (s *GormStore) GetMembership(ctx context.Context, userID, projectID uuid.UUID) (*models.ProjectMember, error) {
	var m models.ProjectMember
	err := s.db.WithContext(ctx).Where("user_id = ? AND project_id = ?", userID, projectID).First(&m).Error
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *GormStore) UpsertMembership(ctx context.Context, m *models.ProjectMember) error {
	return translate(s.db.WithContext(ctx).
		Omit("User", "ProjectRole").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "project_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"project_role_id", "updated_at"}),
		}).
		Create(m).Error)
}

func (s *GormStore) DeleteMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var roleIDs []uuid.UUID
	err := s.atomically(ctx, func(tx *GormStore) error {
		db := tx.db.WithContext(ctx)
		if err := db.Model(&models.ProjectMember{}).
			Where("user_id = ? AND project_role_id IS NOT NULL", userID).
			Pluck("project_role_id", &roleIDs).Error; err != nil {
			return err
		}
		return db.Where("user_id = ?", userID).Delete(&models.ProjectMember{}).Error
	})
	return roleIDs, err
}

// --- Applications ---

func (s *GormStore) GetApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	var a models.Application
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *GormStore) FindApplication(ctx context.Context, userID, projectID, roleID uuid.UUID) (*models.Application, error) {
	var a models.Application
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND project_id = ? AND role_id = ?", userID, projectID, roleID).
		First(&a).Error
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *GormStore) CreateApplication(ctx context.Context, a *models.Application) error {
	return translate(s.db.WithContext(ctx).Omit("User", "Project", "Role").Create(a).Error)
}

func (s *GormStore) TransitionApplication(ctx context.Context, id uuid.UUID, from, to models.ApplicationStatus) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Application{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) ListApplicationsByUser(ctx context.Context, userID uuid.UUID) ([]models.Application, error) {
	var apps []models.Application
	err := s.db.WithContext(ctx).
		Preload("Project").
		Preload("Role").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&apps).Error
	return apps, err
}

func (s *GormStore) DeleteApplicationsByUser(ctx context.Context, userID uuid.UUID) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Application{}).Error
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
