package models

import (
	"time"

	"gorm.io/gorm"
)

// Lead represents a prospective customer in the estimating pipeline
type Lead struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name    string `gorm:"not null" json:"name"`
	Email   string `gorm:"index" json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`

	// Pipeline status: new, contacted, estimate_sent, won, lost
	Status string `gorm:"default:'new';index" json:"status"`
	Source string `json:"source"` // manual, website, referral, jobtread

	// External job-management reference (synced by the JobTread integration)
	JobTreadID  string     `gorm:"index" json:"jobtread_id"`
	LastContact *time.Time `json:"last_contact"`

	// Relations
	Jobs []Job `gorm:"foreignKey:LeadID" json:"jobs,omitempty"`
}

// Job represents a construction job tied to a lead
type Job struct {
	gorm.Model
	UserID uint  `gorm:"not null;index" json:"user_id"`
	LeadID *uint `gorm:"index" json:"lead_id,omitempty"`

	Name       string  `gorm:"not null" json:"name"`
	Address    string  `json:"address"`
	Status     string  `gorm:"default:'estimating'" json:"status"` // estimating, approved, in_progress, closed
	JobTreadID string  `gorm:"index" json:"jobtread_id"`
	Value      float64 `gorm:"default:0" json:"value"`
}
