package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ListingStatus tracks a listing through the sharing flow
type ListingStatus string

const (
	ListingAvailable ListingStatus = "available"
	ListingReserved  ListingStatus = "reserved"
	ListingGiven     ListingStatus = "given"

	// ListingHidden is set by moderators; hidden listings are excluded
	// from discovery but remain visible to their owner.
	ListingHidden ListingStatus = "hidden"
)

// Listing represents one food offer on the map
type Listing struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerID string `gorm:"not null;index" json:"owner_id"`
	Owner   User   `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`

	Title       string         `gorm:"not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Categories  pq.StringArray `gorm:"type:text[]" json:"categories"`
	PhotoURLs   pq.StringArray `gorm:"type:text[]" json:"photo_urls"`

	Quantity int    `gorm:"default:1" json:"quantity"`
	Unit     string `json:"unit,omitempty"` // "portions", "kg", "items"

	// Pickup location
	Lat     float64 `gorm:"not null;index" json:"lat"`
	Lng     float64 `gorm:"not null;index" json:"lng"`
	Address string  `json:"address,omitempty"`

	// Pickup window
	PickupStart *time.Time `json:"pickup_start,omitempty"`
	PickupEnd   *time.Time `json:"pickup_end,omitempty"`

	Status       ListingStatus `gorm:"type:text;default:available;index" json:"status"`
	ReservedByID *string       `gorm:"index" json:"reserved_by_id,omitempty"`
	ReservedAt   *time.Time    `json:"reserved_at,omitempty"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// IsOpen reports whether the listing can still be reserved
func (l *Listing) IsOpen() bool {
	return l.Status == ListingAvailable
}

// ChangeRecord returns the fields published to the realtime change feed
func (l *Listing) ChangeRecord() map[string]interface{} {
	return map[string]interface{}{
		"id":       l.ID,
		"owner_id": l.OwnerID,
		"title":    l.Title,
		"status":   string(l.Status),
		"lat":      l.Lat,
		"lng":      l.Lng,
	}
}
