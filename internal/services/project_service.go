package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gituhb/backend/internal/github"
	"github.com/gituhb/backend/internal/models"
	"github.com/gituhb/backend/internal/store"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RepoSyncer refreshes cached repository metadata on a project.
type RepoSyncer interface {
	Sync(projectID uuid.UUID, owner, repo, token string)
	SyncNow(ctx context.Context, projectID uuid.UUID, owner, repo, token string) error
}

type RoleInput struct {
	// ID refers to an existing role on update; nil creates a new role.
	ID          *uuid.UUID
	Title       string `validate:"required,max=100"`
	Description string `validate:"max=500"`
	Count       int    `validate:"min=1"`
}

type ProjectInput struct {
	Title           string                `validate:"min=3,max=100"`
	Description     string                `validate:"min=10,max=500"`
	LongDescription string                `validate:"max=5000"`
	GitHubRepoURL   string                `validate:"omitempty,url"`
	TimeCommitment  models.TimeCommitment `validate:"oneof=LESS_THAN_5 FIVE_TO_TEN TEN_TO_TWENTY TWENTY_PLUS"`
	TechStack       []string              `validate:"min=1,dive,required"`
	Tags            []string
	MaxMembers      *int                  `validate:"omitempty,min=1"`
	Status          *models.ProjectStatus `validate:"omitempty,oneof=ACTIVE PAUSED COMPLETED ARCHIVED"`
	Roles           []RoleInput           `validate:"min=1,dive"`
}

func (in *ProjectInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.LongDescription = strings.TrimSpace(in.LongDescription)
	in.GitHubRepoURL = strings.TrimSpace(in.GitHubRepoURL)
	in.Roles = append([]RoleInput(nil), in.Roles...)
	for i := range in.Roles {
		in.Roles[i].Title = strings.TrimSpace(in.Roles[i].Title)
		in.Roles[i].Description = strings.TrimSpace(in.Roles[i].Description)
	}
}

type ProjectService struct {
	store  store.Store
	syncer RepoSyncer
	now    func() time.Time
}

func NewProjectService(st store.Store, syncer RepoSyncer) *ProjectService {
	return &ProjectService{store: st, syncer: syncer, now: time.Now}
}

const maxSlugAttempts = 3

// Create inserts the project with its roles and the owner's membership in
// one transaction, then starts a background repository sync when a GitHub
// URL was given.
func (s *ProjectService) Create(ctx context.Context, id *Identity, in ProjectInput) (*models.Project, error) {
	if id == nil {
		return nil, ErrUnauthenticated
	}
	in.normalize()
	if err := validate.Struct(&in); err != nil {
		return nil, validationError(err)
	}

	owner, err := s.store.GetUser(ctx, id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}

	base := Slugify(in.Title)
	var project *models.Project
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		project, err = s.create(ctx, owner.ID, base, attempt, in)
		if !errors.Is(err, store.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	slog.Info("project created",
		"action", "project.create",
		"user_id", owner.ID.String(),
		"project_id", project.ID.String(),
		"slug", project.Slug)

	if repoOwner, repo, ok := github.ParseRepoURL(in.GitHubRepoURL); ok && s.syncer != nil {
		s.syncer.Sync(project.ID, repoOwner, repo, owner.GitHubAccessToken)
	}
	return project, nil
}

func (s *ProjectService) create(ctx context.Context, ownerID uuid.UUID, base string, attempt int, in ProjectInput) (*models.Project, error) {
	var project *models.Project
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		slug := base
		taken, err := tx.SlugExists(ctx, slug)
		if err != nil {
			return fmt.Errorf("check slug: %w", err)
		}
		if taken {
			slug = base + "-" + s.slugSuffix(attempt)
		}

		p := &models.Project{
			ID:              uuid.New(),
			Slug:            slug,
			Title:           in.Title,
			Description:     in.Description,
			LongDescription: optional(in.LongDescription),
			GitHubRepoURL:   optional(in.GitHubRepoURL),
			TimeCommitment:  in.TimeCommitment,
			TechStack:       datatypes.JSONSlice[string](in.TechStack),
			Tags:            datatypes.JSONSlice[string](nonNil(in.Tags)),
			MaxMembers:      in.MaxMembers,
			Status:          models.ProjectActive,
			OwnerID:         ownerID,
			Members: []models.ProjectMember{{
				ID:     uuid.New(),
				UserID: ownerID,
				Role:   models.MemberOwner,
			}},
		}
		for _, r := range in.Roles {
			p.Roles = append(p.Roles, models.ProjectRole{
				ID:          uuid.New(),
				Title:       r.Title,
				Description: optional(r.Description),
				Count:       r.Count,
			})
		}
		if err := tx.CreateProject(ctx, p); err != nil {
			return err
		}
		project = p
		return nil
	})
	return project, err
}

// slugSuffix is the creation time in base36. Retries append random
// characters so creations within the same millisecond still diverge.
func (s *ProjectService) slugSuffix(attempt int) string {
	suffix := strconv.FormatInt(s.now().UnixMilli(), 36)
	if attempt > 0 {
		suffix += strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	}
	return suffix
}

// Update rewrites the project's fields and reconciles its roles: roles with
// an ID are updated, roles without one are created and existing roles that
// are not listed are deleted together with their applications. Every kept
// role's filled flag is recomputed since its count may have changed.
func (s *ProjectService) Update(ctx context.Context, id *Identity, projectID uuid.UUID, in ProjectInput) (*models.Project, error) {
	if id == nil {
		return nil, ErrUnauthenticated
	}
	in.normalize()
	if err := validate.Struct(&in); err != nil {
		return nil, validationError(err)
	}

	var updated *models.Project
	var repoChanged bool
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := s.ownedProject(ctx, tx, id, projectID)
		if err != nil {
			return err
		}

		repoChanged = deref(p.GitHubRepoURL) != in.GitHubRepoURL
		p.Title = in.Title
		p.Description = in.Description
		p.LongDescription = optional(in.LongDescription)
		p.GitHubRepoURL = optional(in.GitHubRepoURL)
		p.TimeCommitment = in.TimeCommitment
		p.TechStack = datatypes.JSONSlice[string](in.TechStack)
		p.Tags = datatypes.JSONSlice[string](nonNil(in.Tags))
		p.MaxMembers = in.MaxMembers
		if in.Status != nil {
			p.Status = *in.Status
		}
		if err := tx.SaveProject(ctx, p); err != nil {
			return fmt.Errorf("save project: %w", err)
		}

		if err := reconcileRoles(ctx, tx, p.ID, in.Roles); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("project updated", "action", "project.update", "project_id", projectID.String())

	if repoOwner, repo, ok := github.ParseRepoURL(in.GitHubRepoURL); ok && repoChanged && s.syncer != nil {
		if owner, err := s.store.GetUser(ctx, updated.OwnerID); err == nil {
			s.syncer.Sync(updated.ID, repoOwner, repo, owner.GitHubAccessToken)
		}
	}
	return updated, nil
}

func reconcileRoles(ctx context.Context, tx store.Tx, projectID uuid.UUID, inputs []RoleInput) error {
	existing, err := tx.ListRoles(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	current := make(map[uuid.UUID]models.ProjectRole, len(existing))
	for _, r := range existing {
		current[r.ID] = r
	}

	kept := map[uuid.UUID]bool{}
	for _, in := range inputs {
		if in.ID == nil {
			role := &models.ProjectRole{
				ID:          uuid.New(),
				ProjectID:   projectID,
				Title:       in.Title,
				Description: optional(in.Description),
				Count:       in.Count,
			}
			if err := tx.CreateRole(ctx, role); err != nil {
				return fmt.Errorf("create role: %w", err)
			}
			continue
		}
		if _, ok := current[*in.ID]; !ok || kept[*in.ID] {
			return ErrRoleNotFound
		}
		kept[*in.ID] = true

		role, err := tx.LockRole(ctx, *in.ID)
		if err != nil {
			return fmt.Errorf("lock role: %w", err)
		}
		role.Title = in.Title
		role.Description = optional(in.Description)
		role.Count = in.Count
		if err := tx.SaveRole(ctx, role); err != nil {
			return fmt.Errorf("save role: %w", err)
		}
		if err := recomputeFill(ctx, tx, role); err != nil {
			return err
		}
	}

	for roleID := range current {
		if kept[roleID] {
			continue
		}
		if err := tx.DeleteRole(ctx, roleID); err != nil {
			return fmt.Errorf("delete role: %w", err)
		}
	}
	return nil
}

// Delete removes the project aggregate. Only the owner may delete.
func (s *ProjectService) Delete(ctx context.Context, id *Identity, projectID uuid.UUID) error {
	if id == nil {
		return ErrUnauthenticated
	}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := s.ownedProject(ctx, tx, id, projectID); err != nil {
			return err
		}
		if err := tx.DeleteProject(ctx, projectID); err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		return nil
	})
	if err == nil {
		slog.Info("project deleted", "action", "project.delete", "project_id", projectID.String())
	}
	return err
}

// RefreshGitHub re-reads the linked repository synchronously.
func (s *ProjectService) RefreshGitHub(ctx context.Context, id *Identity, projectID uuid.UUID) error {
	if id == nil {
		return ErrUnauthenticated
	}
	p, err := s.ownedProject(ctx, s.store, id, projectID)
	if err != nil {
		return err
	}

	repoOwner, repo := deref(p.GitHub.Owner), deref(p.GitHub.Name)
	if repoOwner == "" || repo == "" {
		var ok bool
		if repoOwner, repo, ok = github.ParseRepoURL(deref(p.GitHubRepoURL)); !ok {
			return ErrNoRepoLinked
		}
	}

	owner, err := s.store.GetUser(ctx, p.OwnerID)
	if err != nil {
		return fmt.Errorf("load owner: %w", err)
	}
	if err := s.syncer.SyncNow(ctx, p.ID, repoOwner, repo, owner.GitHubAccessToken); err != nil {
		return fmt.Errorf("refresh github data: %w", err)
	}
	return nil
}

func (s *ProjectService) ownedProject(ctx context.Context, tx store.Tx, id *Identity, projectID uuid.UUID) (*models.Project, error) {
	p, err := tx.GetProject(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if p.OwnerID != id.UserID {
		return nil, ErrProjectEditForbidden
	}
	return p, nil
}

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugSpaces   = regexp.MustCompile(`[\s_]+`)
	slugHyphens  = regexp.MustCompile(`-+`)
	slugFallback = "project"
)

// Slugify lowercases text, drops punctuation and joins words with hyphens.
func Slugify(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return slugFallback
	}
	return s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
