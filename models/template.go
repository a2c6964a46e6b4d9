package models

import "gorm.io/gorm"

// MessageTemplate represents reusable message content for sequence steps.
// Steps store a reference, not a copy, so editing a template affects
// future sends only.
type MessageTemplate struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name    string `gorm:"not null" json:"name"`
	Subject string `json:"subject"`
	Body    string `gorm:"type:text" json:"body"`

	// Declared placeholders, comma separated (informational)
	Variables string `json:"variables"`

	// Relations
	User User `json:"-"`
}
