package engine

import (
	"fmt"
	"strings"
	"time"

	"bidflow/models"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Contact identifies who is being enrolled.
type Contact struct {
	Name  string
	Email *string
	Phone *string
}

// Manager creates enrollments with dedupe-by-identity and computes the
// first due time from the sequence's opening step.
type Manager struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewManager(db *gorm.DB, logger *logrus.Logger) *Manager {
	return &Manager{DB: db, Logger: logger}
}

// Enroll creates a new active enrollment for the contact. It returns
// ErrDuplicateEnrollment when the contact (matched by lead id or contact
// email) already has an active enrollment in the sequence, and
// ErrNoContactChannel when the contact has no reachable channel. No action
// is dispatched synchronously; the enrollment becomes eligible on the next
// processing pass.
func (m *Manager) Enroll(sequenceID, userID uint, contact Contact, leadID, jobID *uint) (*models.Enrollment, error) {
	email := normalize(contact.Email)
	phone := normalize(contact.Phone)

	if email == nil && phone == nil {
		return nil, ErrNoContactChannel
	}
	if email != nil {
		if err := checkmail.ValidateFormat(*email); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEmail, *email)
		}
	}

	var sequence models.Sequence
	if err := m.DB.Where("id = ? AND user_id = ?", sequenceID, userID).First(&sequence).Error; err != nil {
		return nil, fmt.Errorf("sequence %d: %w", sequenceID, err)
	}

	if err := m.checkDuplicate(sequenceID, leadID, email); err != nil {
		return nil, err
	}

	// The first step's delay defines the initial wait. Zero delay means due
	// immediately, picked up on the next pass.
	var firstStep models.SequenceStep
	delay := time.Duration(0)
	err := m.DB.Where("sequence_id = ? AND step_order = ?", sequenceID, 0).First(&firstStep).Error
	switch {
	case err == nil:
		delay = StepDelay(&firstStep)
	case err == gorm.ErrRecordNotFound:
		// Stepless sequence: the enrollment completes defensively on the
		// first processing pass.
	default:
		return nil, err
	}

	enrollment := models.Enrollment{
		SequenceID:   sequenceID,
		UserID:       userID,
		ContactName:  strings.TrimSpace(contact.Name),
		ContactEmail: email,
		ContactPhone: phone,
		LeadID:       leadID,
		JobID:        jobID,
		Status:       models.EnrollmentActive,
		CurrentStep:  0,
		NextDueAt:    time.Now().Add(delay),
	}

	if err := m.DB.Create(&enrollment).Error; err != nil {
		return nil, err
	}

	m.Logger.WithFields(logrus.Fields{
		"enrollment_id": enrollment.ID,
		"sequence_id":   sequenceID,
		"next_due_at":   enrollment.NextDueAt,
	}).Info("Contact enrolled in sequence")

	return &enrollment, nil
}

// checkDuplicate rejects a second active enrollment for the same identity.
// Identity is lead id or contact email; phone-only contacts are not
// deduplicated against each other.
func (m *Manager) checkDuplicate(sequenceID uint, leadID *uint, email *string) error {
	query := m.DB.Model(&models.Enrollment{}).
		Where("sequence_id = ? AND status = ?", sequenceID, models.EnrollmentActive)

	switch {
	case leadID != nil && email != nil:
		query = query.Where("lead_id = ? OR contact_email = ?", *leadID, *email)
	case leadID != nil:
		query = query.Where("lead_id = ?", *leadID)
	case email != nil:
		query = query.Where("contact_email = ?", *email)
	default:
		return nil
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateEnrollment
	}
	return nil
}

// StepDelay converts a step's day/hour delay into a wait duration.
func StepDelay(step *models.SequenceStep) time.Duration {
	return time.Duration(step.DelayDays*24+step.DelayHours) * time.Hour
}

func normalize(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
