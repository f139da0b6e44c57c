package models

import (
	"time"

	"github.com/google/uuid"
)

type MemberRole string

const (
	MemberOwner  MemberRole = "OWNER"
	MemberMember MemberRole = "MEMBER"
)

// ProjectMember binds a user to a project; at most one row per (user, project).
type ProjectMember struct {
	ID            uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID        uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_project_members_user_project,priority:1" json:"user_id"`
	ProjectID     uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_project_members_user_project,priority:2;index" json:"project_id"`
	ProjectRoleID *uuid.UUID   `gorm:"type:uuid;index" json:"project_role_id,omitempty"`
	Role          MemberRole   `gorm:"size:10;not null;default:'MEMBER'" json:"role"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	User          *User        `gorm:"foreignKey:UserID" json:"user,omitempty"`
	ProjectRole   *ProjectRole `gorm:"foreignKey:ProjectRoleID" json:"project_role,omitempty"`
}

func (ProjectMember) TableName() string {
	return "project_members"
}
