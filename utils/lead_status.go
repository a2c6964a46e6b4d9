package utils

import (
	"bidflow/models"

	"gorm.io/gorm"
)

// LeadDirectory answers lead status lookups for the sequence engine's
// condition evaluator.
type LeadDirectory struct {
	DB *gorm.DB
}

func NewLeadDirectory(db *gorm.DB) *LeadDirectory {
	return &LeadDirectory{DB: db}
}

func (d *LeadDirectory) GetLeadStatus(leadID uint) (string, error) {
	var lead models.Lead
	if err := d.DB.Select("status").First(&lead, leadID).Error; err != nil {
		return "", err
	}
	return lead.Status, nil
}
