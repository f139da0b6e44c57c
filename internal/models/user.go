package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// User is created on the first GitHub sign-in. Username stays nil until
// onboarding completes; UHEmailVerified only ever flips from false to true.
type User struct {
	ID                uuid.UUID                   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name              string                      `gorm:"size:255" json:"name"`
	Email             string                      `gorm:"size:255" json:"-"`
	Image             string                      `gorm:"size:500" json:"image,omitempty"`
	Username          *string                     `gorm:"size:30;uniqueIndex" json:"username"`
	GitHubID          int64                       `gorm:"column:github_id;uniqueIndex" json:"-"`
	GitHubUsername    string                      `gorm:"column:github_username;size:100" json:"github_username,omitempty"`
	GitHubProfileURL  string                      `gorm:"column:github_profile_url;size:255" json:"github_profile_url,omitempty"`
	GitHubAccessToken string                      `gorm:"column:github_access_token;size:255" json:"-"`
	UHEmail           *string                     `gorm:"column:uh_email;size:255;uniqueIndex" json:"-"`
	UHEmailVerified   bool                        `gorm:"column:uh_email_verified;not null;default:false" json:"uh_email_verified"`
	Bio               string                      `gorm:"type:text" json:"bio,omitempty"`
	Skills            datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"skills"`
	Major             string                      `gorm:"size:100" json:"major,omitempty"`
	GraduationYear    *int                        `json:"graduation_year,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
