package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectPaused    ProjectStatus = "PAUSED"
	ProjectCompleted ProjectStatus = "COMPLETED"
	ProjectArchived  ProjectStatus = "ARCHIVED"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectPaused, ProjectCompleted, ProjectArchived:
		return true
	}
	return false
}

type TimeCommitment string

const (
	LessThan5   TimeCommitment = "LESS_THAN_5"
	FiveToTen   TimeCommitment = "FIVE_TO_TEN"
	TenToTwenty TimeCommitment = "TEN_TO_TWENTY"
	TwentyPlus  TimeCommitment = "TWENTY_PLUS"
)

func (t TimeCommitment) Valid() bool {
	switch t {
	case LessThan5, FiveToTen, TenToTwenty, TwentyPlus:
		return true
	}
	return false
}

// RepoStats is the cached GitHub metadata of a linked repository.
type RepoStats struct {
	Owner        *string        `gorm:"size:100" json:"owner,omitempty"`
	Name         *string        `gorm:"size:100" json:"name,omitempty"`
	RepoID       *int64         `json:"repo_id,omitempty"`
	Description  *string        `gorm:"type:text" json:"description,omitempty"`
	Stars        int            `gorm:"default:0" json:"stars"`
	Forks        int            `gorm:"default:0" json:"forks"`
	OpenIssues   int            `gorm:"default:0" json:"open_issues"`
	Language     *string        `gorm:"size:50" json:"language,omitempty"`
	Languages    datatypes.JSON `gorm:"type:jsonb" json:"languages,omitempty"`
	LastCommitAt *time.Time     `json:"last_commit_at,omitempty"`
	SyncedAt     *time.Time     `json:"synced_at,omitempty"`
}

// Project is the aggregate root for its roles, members and applications.
type Project struct {
	ID              uuid.UUID                   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Slug            string                      `gorm:"size:150;not null;uniqueIndex" json:"slug"`
	Title           string                      `gorm:"size:100;not null" json:"title"`
	Description     string                      `gorm:"size:500;not null" json:"description"`
	LongDescription *string                     `gorm:"type:text" json:"long_description,omitempty"`
	GitHubRepoURL   *string                     `gorm:"column:github_repo_url;size:255" json:"github_repo_url,omitempty"`
	TimeCommitment  TimeCommitment              `gorm:"size:20;not null;index" json:"time_commitment"`
	TechStack       datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"tech_stack"`
	Tags            datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"tags"`
	MaxMembers      *int                        `json:"max_members,omitempty"`
	Status          ProjectStatus               `gorm:"size:20;not null;default:'ACTIVE';index" json:"status"`
	OwnerID         uuid.UUID                   `gorm:"type:uuid;not null;index" json:"owner_id"`
	GitHub          RepoStats                   `gorm:"embedded;embeddedPrefix:github_" json:"github"`
	CreatedAt       time.Time                   `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`

	Owner        *User           `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Roles        []ProjectRole   `gorm:"foreignKey:ProjectID" json:"roles,omitempty"`
	Members      []ProjectMember `gorm:"foreignKey:ProjectID" json:"members,omitempty"`
	Applications []Application   `gorm:"foreignKey:ProjectID" json:"applications,omitempty"`
}

func (Project) TableName() string {
	return "projects"
}
