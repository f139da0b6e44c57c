package models

import (
	"time"

	"github.com/google/uuid"
)

// ProjectRole is a capacity-bounded position. Filled is derived from the
// number of members bound to the role and is only written by the store
// after a recount.
type ProjectRole struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProjectID   uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	Title       string    `gorm:"size:100;not null" json:"title"`
	Description *string   `gorm:"type:text" json:"description,omitempty"`
	Count       int       `gorm:"not null;default:1" json:"count"`
	Filled      bool      `gorm:"not null;default:false" json:"filled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (ProjectRole) TableName() string {
	return "project_roles"
}
