package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is a private chat between a listing owner and one
// requester. One conversation exists per (listing, requester) pair.
type Conversation struct {
	ID        string  `gorm:"primaryKey;type:uuid" json:"id"`
	ListingID string  `gorm:"not null;index:idx_conversations_listing_requester,unique" json:"listing_id"`
	Listing   Listing `gorm:"foreignKey:ListingID" json:"listing,omitempty"`

	OwnerID     string `gorm:"not null;index" json:"owner_id"`
	RequesterID string `gorm:"not null;index:idx_conversations_listing_requester,unique" json:"requester_id"`

	LastMessageAt *time.Time `gorm:"index" json:"last_message_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// HasParticipant reports whether a user belongs to the conversation
func (c *Conversation) HasParticipant(userID string) bool {
	return c.OwnerID == userID || c.RequesterID == userID
}

// Recipient returns the other participant
func (c *Conversation) Recipient(senderID string) string {
	if c.OwnerID == senderID {
		return c.RequesterID
	}
	return c.OwnerID
}

// ChatMessage is one message inside a conversation
type ChatMessage struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ConversationID string `gorm:"not null;index" json:"conversation_id"`
	SenderID       string `gorm:"not null;index" json:"sender_id"`

	Body string `gorm:"type:text;not null" json:"body"`

	// ReadAt is set when the recipient acknowledges the message
	ReadAt *time.Time `json:"read_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// ChangeRecord returns the fields published to the realtime change feed
func (m *ChatMessage) ChangeRecord() map[string]interface{} {
	return map[string]interface{}{
		"id":              m.ID,
		"conversation_id": m.ConversationID,
		"sender_id":       m.SenderID,
		"body":            m.Body,
		"created_at":      m.CreatedAt.UTC().Format(time.RFC3339),
	}
}
