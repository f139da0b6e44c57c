package dto

import (
	"github.com/gituhb/backend/internal/models"
	"github.com/google/uuid"
)

type GitHubSignInRequest struct {
	AccessToken string `json:"access_token"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         UserResponse `json:"user"`
}

type UserResponse struct {
	ID              uuid.UUID `json:"id"`
	Username        *string   `json:"username"`
	Name            string    `json:"name"`
	Image           string    `json:"image,omitempty"`
	GitHubUsername  string    `json:"github_username,omitempty"`
	UHEmailVerified bool      `json:"uh_email_verified"`
	NeedsOnboarding bool      `json:"needs_onboarding"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Username:        u.Username,
		Name:            u.Name,
		Image:           u.Image,
		GitHubUsername:  u.GitHubUsername,
		UHEmailVerified: u.UHEmailVerified,
		NeedsOnboarding: u.Username == nil,
	}
}

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
	Campus    string `json:"campus"`
	TechCount int    `json:"tech_count"`
}
