package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/gituhb/backend/internal/models"
	"github.com/gituhb/backend/internal/store"
	"github.com/google/uuid"
)

const (
	ProjectsPerPage  = 12
	FeaturedProjects = 6
)

type ProjectPage struct {
	Items      []models.Project
	Total      int64
	TotalPages int
	Page       int
}

// ListingService answers read-only project and application queries.
type ListingService struct {
	store store.Store
}

func NewListingService(st store.Store) *ListingService {
	return &ListingService{store: st}
}

// Search returns one page of projects matching f. Pages start at 1; values
// below 1 are treated as 1.
func (s *ListingService) Search(ctx context.Context, f store.ProjectFilter, page int) (*ProjectPage, error) {
	if page < 1 {
		page = 1
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("Invalid project status.")
	}
	if f.TimeCommitment != "" && !f.TimeCommitment.Valid() {
		return nil, invalid("Invalid time commitment.")
	}

	items, total, err := s.store.SearchProjects(ctx, f, (page-1)*ProjectsPerPage, ProjectsPerPage)
	if err != nil {
		return nil, fmt.Errorf("search projects: %w", err)
	}
	return &ProjectPage{
		Items:      items,
		Total:      total,
		TotalPages: int((total + ProjectsPerPage - 1) / ProjectsPerPage),
		Page:       page,
	}, nil
}

// Featured returns the newest active projects.
func (s *ListingService) Featured(ctx context.Context) ([]models.Project, error) {
	items, _, err := s.store.SearchProjects(ctx, store.ProjectFilter{Status: models.ProjectActive}, 0, FeaturedProjects)
	if err != nil {
		return nil, fmt.Errorf("featured projects: %w", err)
	}
	return items, nil
}

// GetBySlug returns the project with roles and members. Applications are
// only included when viewer owns the project.
func (s *ListingService) GetBySlug(ctx context.Context, viewer *Identity, slug string) (*models.Project, error) {
	p, err := s.store.GetProjectDetail(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if viewer == nil || viewer.UserID != p.OwnerID {
		p.Applications = nil
	}
	return p, nil
}

// ForOwner lists every project the user owns, newest first.
func (s *ListingService) ForOwner(ctx context.Context, userID uuid.UUID) ([]models.Project, error) {
	items, err := s.store.ListProjectsByOwner(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("list owned projects: %w", err)
	}
	return items, nil
}

// ForApplicant lists the user's applications with project and role, newest first.
func (s *ListingService) ForApplicant(ctx context.Context, userID uuid.UUID) ([]models.Application, error) {
	items, err := s.store.ListApplicationsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return items, nil
}
