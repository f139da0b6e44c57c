package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailVerification is a pending institutional email check. The code is
// stored as a bcrypt hash.
type EmailVerification struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	CodeHash  string    `gorm:"size:60;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (EmailVerification) TableName() string {
	return "uh_email_verifications"
}
