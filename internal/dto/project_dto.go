package dto

import (
	"github.com/gituhb/backend/internal/models"
	"github.com/google/uuid"
)

type RoleRequest struct {
	ID          *uuid.UUID `json:"id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Count       int        `json:"count"`
}

type ProjectRequest struct {
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	LongDescription string        `json:"long_description"`
	GitHubRepoURL   string        `json:"github_repo_url"`
	TimeCommitment  string        `json:"time_commitment"`
	TechStack       []string      `json:"tech_stack"`
	Tags            []string      `json:"tags"`
	MaxMembers      *int          `json:"max_members,omitempty"`
	Status          *string       `json:"status,omitempty"`
	Roles           []RoleRequest `json:"roles"`
}

type ProjectListResponse struct {
	Projects   []models.Project `json:"projects"`
	Total      int64            `json:"total"`
	TotalPages int              `json:"total_pages"`
	Page       int              `json:"page"`
}

type ProjectCreatedResponse struct {
	ID   uuid.UUID `json:"id"`
	Slug string    `json:"slug"`
}

type SubmitApplicationRequest struct {
	RoleID  string `json:"role_id"`
	Message string `json:"message"`
}

type ApplicationStatusRequest struct {
	Status string `json:"status"`
}
