package dto

import (
	"time"

	"github.com/gituhb/backend/internal/models"
	"github.com/google/uuid"
)

type UsernameRequest struct {
	Username string `json:"username"`
}

type ProfileRequest struct {
	Bio            string   `json:"bio"`
	Skills         []string `json:"skills"`
	Major          string   `json:"major"`
	GraduationYear *int     `json:"graduation_year,omitempty"`
}

type ProfileResponse struct {
	ID               uuid.UUID        `json:"id"`
	Username         *string          `json:"username"`
	Name             string           `json:"name"`
	Image            string           `json:"image,omitempty"`
	GitHubUsername   string           `json:"github_username,omitempty"`
	GitHubProfileURL string           `json:"github_profile_url,omitempty"`
	UHEmailVerified  bool             `json:"uh_email_verified"`
	Bio              string           `json:"bio,omitempty"`
	Skills           []string         `json:"skills"`
	Major            string           `json:"major,omitempty"`
	GraduationYear   *int             `json:"graduation_year,omitempty"`
	JoinedAt         time.Time        `json:"joined_at"`
	Projects         []models.Project `json:"projects,omitempty"`
}

func NewProfileResponse(u *models.User, projects []models.Project) ProfileResponse {
	skills := []string(u.Skills)
	if skills == nil {
		skills = []string{}
	}
	return ProfileResponse{
		ID:               u.ID,
		Username:         u.Username,
		Name:             u.Name,
		Image:            u.Image,
		GitHubUsername:   u.GitHubUsername,
		GitHubProfileURL: u.GitHubProfileURL,
		UHEmailVerified:  u.UHEmailVerified,
		Bio:              u.Bio,
		Skills:           skills,
		Major:            u.Major,
		GraduationYear:   u.GraduationYear,
		JoinedAt:         u.CreatedAt,
		Projects:         projects,
	}
}

// MeResponse adds the private fields a user sees about themselves.
type MeResponse struct {
	ProfileResponse
	UHEmail *string `json:"uh_email,omitempty"`
}

type SendVerificationRequest struct {
	Email string `json:"email"`
}

type ConfirmVerificationRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type CatalogueResponse struct {
	Name            string            `json:"name"`
	EmailDomains    []string          `json:"email_domains"`
	TechStack       []string          `json:"tech_stack"`
	Tags            []string          `json:"tags"`
	TimeCommitments map[string]string `json:"time_commitments"`
}
