package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gituhb/backend/internal/models"
	"github.com/gituhb/backend/internal/store"
	"gorm.io/datatypes"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{1,28}[a-zA-Z0-9])?$`)

type ProfileInput struct {
	Bio            string   `validate:"max=500"`
	Skills         []string `validate:"max=30,dive,required,max=50"`
	Major          string   `validate:"max=100"`
	GraduationYear *int     `validate:"omitempty,min=1950,max=2100"`
}

// Profile is the public view of a user.
type Profile struct {
	User     *models.User
	Projects []models.Project
}

type ProfileService struct {
	store store.Store
}

func NewProfileService(st store.Store) *ProfileService {
	return &ProfileService{store: st}
}

func (s *ProfileService) Me(ctx context.Context, id *Identity) (*models.User, error) {
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
	return u, nil
}

// UpdateProfile replaces the editable profile fields. Empty values clear them.
func (s *ProfileService) UpdateProfile(ctx context.Context, id *Identity, in ProfileInput) (*models.User, error) {
	if id == nil {
		return nil, ErrUnauthenticated
	}
	in.Bio = strings.TrimSpace(in.Bio)
	in.Major = strings.TrimSpace(in.Major)
	skills := make([]string, 0, len(in.Skills))
	for _, sk := range in.Skills {
		if sk = strings.TrimSpace(sk); sk != "" {
			skills = append(skills, sk)
		}
	}
	in.Skills = skills
	if err := validate.Struct(&in); err != nil {
		return nil, validationError(err)
	}

	var out *models.User
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(ctx, id.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthenticated
		}
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		u.Bio = in.Bio
		u.Skills = datatypes.JSONSlice[string](in.Skills)
		u.Major = in.Major
		u.GraduationYear = in.GraduationYear
		if err := tx.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("save profile: %w", err)
		}
		out = u
		return nil
	})
	return out, err
}

// UpdateUsername claims username for the user. Usernames are stored in
// lower case and must be unique.
func (s *ProfileService) UpdateUsername(ctx context.Context, id *Identity, username string) (*models.User, error) {
	if id == nil {
		return nil, ErrUnauthenticated
	}
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return nil, ErrInvalidUsername
	}
	username = strings.ToLower(username)

	var out *models.User
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		holder, err := tx.GetUserByUsername(ctx, username)
		if err == nil && holder.ID != id.UserID {
			return ErrUsernameTaken
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("check username: %w", err)
		}

		u, err := tx.GetUser(ctx, id.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthenticated
		}
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		u.Username = &username
		if err := tx.SaveUser(ctx, u); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return ErrUsernameTaken
			}
			return fmt.Errorf("save username: %w", err)
		}
		out = u
		return nil
	})
	return out, err
}

// GetProfile returns the user with their active projects.
func (s *ProfileService) GetProfile(ctx context.Context, username string) (*Profile, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	projects, err := s.store.ListProjectsByOwner(ctx, u.ID, models.ProjectActive)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return &Profile{User: u, Projects: projects}, nil
}
