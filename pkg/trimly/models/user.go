package models

import "time"

// User represents a registered account. Links may reference a user as their
// owner; anonymous links reference nobody.
type User struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`

	// Relationships
	Links []Link `gorm:"foreignKey:OwnerID" json:"links,omitempty"`
}
