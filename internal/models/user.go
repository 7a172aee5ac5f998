package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role controls access to moderation endpoints
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents a TableDrop account
type User struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string `gorm:"not null" json:"display_name"`
	Bio         string `gorm:"type:text" json:"bio"`

	// Native auth
	PasswordHash *string `gorm:"type:text" json:"-"`

	// Profile data
	AvatarURL string `json:"avatar_url"`
	Role      Role   `gorm:"type:text;default:user" json:"role"`

	// Approximate home location for distance defaults (optional)
	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`

	// Moderation
	IsBanned  bool       `gorm:"default:false" json:"is_banned"`
	BannedAt  *time.Time `json:"-"`
	BanReason string     `gorm:"type:text" json:"-"`

	// Activity tracking
	LastActiveAt *time.Time `json:"last_active_at"`
	IsOnline     bool       `gorm:"default:false" json:"is_online"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns a UUID so the schema works on both Postgres and
// the sqlite test database
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// IsAdmin reports whether the user may access moderation endpoints
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PublicProfile returns the fields safe to show other users
func (u *User) PublicProfile() map[string]interface{} {
	return map[string]interface{}{
		"id":           u.ID,
		"username":     u.Username,
		"display_name": u.DisplayName,
		"bio":          u.Bio,
		"avatar_url":   u.AvatarURL,
		"is_online":    u.IsOnline,
	}
}
