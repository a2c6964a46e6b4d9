package engine

import (
	"fmt"

	"bidflow/models"

	"gorm.io/gorm"
)

// Evaluator decides whether a step should be skipped for an enrollment.
// It only reads; it never mutates enrollment or log state.
type Evaluator struct {
	DB    *gorm.DB
	Leads LeadStatusGetter
}

func NewEvaluator(db *gorm.DB, leads LeadStatusGetter) *Evaluator {
	return &Evaluator{DB: db, Leads: leads}
}

// ShouldSkip reports whether the step's condition matches the enrollment's
// current state. Steps without a condition never skip.
func (e *Evaluator) ShouldSkip(enrollment *models.Enrollment, step *models.SequenceStep) (bool, error) {
	switch step.ConditionType {
	case "":
		return false, nil

	case models.ConditionSkipIfStatus:
		// No lead linked means nothing to compare against.
		if enrollment.LeadID == nil {
			return false, nil
		}
		status, err := e.Leads.GetLeadStatus(*enrollment.LeadID)
		if err != nil {
			return false, fmt.Errorf("lead status lookup for lead %d: %w", *enrollment.LeadID, err)
		}
		return status == step.ConditionValue, nil

	case models.ConditionSkipIfReplied:
		var count int64
		err := e.DB.Model(&models.SequenceLog{}).
			Where("enrollment_id = ? AND status = ?", enrollment.ID, models.LogStatusReplied).
			Count(&count).Error
		if err != nil {
			return false, fmt.Errorf("reply lookup for enrollment %d: %w", enrollment.ID, err)
		}
		return count > 0, nil

	default:
		// Unknown condition kinds never skip; the step still executes.
		return false, nil
	}
}
