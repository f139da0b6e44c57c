package models

import (
	"time"

	"github.com/google/uuid"
)

type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "PENDING"
	ApplicationAccepted  ApplicationStatus = "ACCEPTED"
	ApplicationRejected  ApplicationStatus = "REJECTED"
	ApplicationWithdrawn ApplicationStatus = "WITHDRAWN"
)

// Application is unique on (user, project, role) for its whole history: a
// rejected or withdrawn applicant cannot apply for the same role again.
type Application struct {
	ID        uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_applications_user_project_role,priority:1;index" json:"user_id"`
	ProjectID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_applications_user_project_role,priority:2;index" json:"project_id"`
	RoleID    uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_applications_user_project_role,priority:3;index" json:"role_id"`
	Message   string            `gorm:"type:text;not null" json:"message"`
	Status    ApplicationStatus `gorm:"size:20;not null;default:'PENDING';index" json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`

	User    *User        `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Project *Project     `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Role    *ProjectRole `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

func (Application) TableName() string {
	return "applications"
}
