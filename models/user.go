package models

import (
	"gorm.io/gorm"
)

// User represents a user account in the system
type User struct {
	gorm.Model

	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Name         string `json:"name"`
	CompanyName  string `json:"company_name"`
	Timezone     string `gorm:"default:'UTC'" json:"timezone"`

	// Account status
	IsActive bool `gorm:"default:true" json:"is_active"`
	IsAdmin  bool `gorm:"default:false" json:"is_admin"`

	// Invalidate outstanding tokens by bumping this
	TokenVersion int `gorm:"default:0" json:"-"`
}
