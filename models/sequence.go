package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment lifecycle statuses
const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
)

// Step action types
const (
	ActionEmail        = "email"
	ActionSMS          = "sms"
	ActionNotification = "notification"
)

// Step condition types
const (
	ConditionSkipIfStatus  = "skip_if_status"
	ConditionSkipIfReplied = "skip_if_replied"
)

// Log outcome statuses
const (
	LogStatusSent    = "sent"
	LogStatusFailed  = "failed"
	LogStatusReplied = "replied"
)

// Sequence represents an automated follow-up workflow
type Sequence struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name         string `gorm:"not null" json:"name"`
	TriggerEvent string `json:"trigger_event"` // informational: estimate_sent, job_won, etc.
	IsActive     bool   `gorm:"default:true" json:"is_active"`

	// Relations
	Steps []SequenceStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
}

// SequenceStep represents one timed action in a sequence
type SequenceStep struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	StepOrder  int    `gorm:"not null" json:"step_order"` // zero-based, dense
	DelayDays  int    `gorm:"not null;default:0" json:"delay_days"`
	DelayHours int    `gorm:"not null;default:0" json:"delay_hours"`
	ActionType string `gorm:"not null" json:"action_type"` // email, sms, notification

	// Content: inline subject/body, or a template reference
	Subject    string `json:"subject"`
	Body       string `gorm:"type:text" json:"body"`
	TemplateID *uint  `gorm:"index" json:"template_id,omitempty"`

	// Optional skip condition
	ConditionType  string `json:"condition_type"` // "", skip_if_status, skip_if_replied
	ConditionValue string `json:"condition_value"`

	// Relations
	Template *MessageTemplate `json:"-"`
}

// Enrollment tracks one contact's journey through one sequence
type Enrollment struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`
	UserID     uint `gorm:"not null;index" json:"user_id"`

	ContactName  string  `json:"contact_name"`
	ContactEmail *string `gorm:"index" json:"contact_email,omitempty"`
	ContactPhone *string `json:"contact_phone,omitempty"`

	// Optional CRM references
	LeadID *uint `gorm:"index" json:"lead_id,omitempty"`
	JobID  *uint `gorm:"index" json:"job_id,omitempty"`

	Status      string     `gorm:"default:'active';index" json:"status"` // active, completed
	CurrentStep int        `gorm:"default:0" json:"current_step"`
	NextDueAt   time.Time  `gorm:"index" json:"next_due_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Relations
	Sequence Sequence      `json:"-"`
	Logs     []SequenceLog `gorm:"foreignKey:EnrollmentID" json:"logs,omitempty"`
}

// SequenceLog is an append-only audit record of one step execution attempt
type SequenceLog struct {
	gorm.Model
	EnrollmentID uint `gorm:"not null;index" json:"enrollment_id"`

	StepOrder  int       `gorm:"not null" json:"step_order"`
	ActionType string    `gorm:"not null" json:"action_type"`
	Subject    string    `json:"subject"`
	Content    string    `gorm:"type:text" json:"content"`
	Status     string    `gorm:"not null" json:"status"` // sent, failed, replied
	Error      string    `json:"error"`
	MessageID  string    `json:"message_id"` // idempotency hint for outbound email
	ExecutedAt time.Time `gorm:"not null" json:"executed_at"`
}
