package models

import "time"

// Link represents a shortened URL
type Link struct {
	ID          uint       `gorm:"primarykey" json:"-"`
	ShortCode   string     `gorm:"uniqueIndex;not null" json:"short_code"`
	OriginalURL string     `gorm:"not null" json:"original_url"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	ClickCount  uint64     `gorm:"not null;default:0" json:"click_count"`
	OwnerID     *uint      `gorm:"index" json:"owner_id,omitempty"`
	Project     string     `json:"project,omitempty"`

	// Relationships
	Owner *User `gorm:"foreignKey:OwnerID" json:"-"`
}

// IsExpired reports whether the link's expiry instant has passed.
// Links without an expiry never expire.
func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// IsOwnedBy reports whether the given user owns the link.
// Anonymous links have no owner and are owned by nobody.
func (l *Link) IsOwnedBy(userID uint) bool {
	return l.OwnerID != nil && *l.OwnerID == userID
}
