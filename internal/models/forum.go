package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ForumThread is a community discussion topic
type ForumThread struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	AuthorID string `gorm:"not null;index" json:"author_id"`
	Author   User   `gorm:"foreignKey:AuthorID" json:"author,omitempty"`

	Title    string `gorm:"not null" json:"title"`
	Body     string `gorm:"type:text;not null" json:"body"`
	Category string `gorm:"index" json:"category"` // "recipes", "pickup-tips", "general", ...

	ReplyCount  int        `gorm:"default:0" json:"reply_count"`
	LastReplyAt *time.Time `gorm:"index" json:"last_reply_at,omitempty"`

	// Moderation
	IsLocked bool `gorm:"default:false" json:"is_locked"`
	IsHidden bool `gorm:"default:false" json:"is_hidden"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (t *ForumThread) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// ForumReply is one reply inside a thread
type ForumReply struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	ThreadID string `gorm:"not null;index" json:"thread_id"`
	AuthorID string `gorm:"not null;index" json:"author_id"`
	Author   User   `gorm:"foreignKey:AuthorID" json:"author,omitempty"`

	Body string `gorm:"type:text;not null" json:"body"`

	IsHidden bool `gorm:"default:false" json:"is_hidden"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (r *ForumReply) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// ChangeRecord returns the fields published to the realtime change feed
func (r *ForumReply) ChangeRecord() map[string]interface{} {
	return map[string]interface{}{
		"id":        r.ID,
		"thread_id": r.ThreadID,
		"author_id": r.AuthorID,
	}
}
