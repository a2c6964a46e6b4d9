package engine

import "errors"

// Sentinel errors surfaced from Enroll. Everything else the engine hits is
// either recorded in the sequence log or recovered inside ProcessDue.
var (
	// ErrDuplicateEnrollment means the contact already has an active
	// enrollment in the sequence (matched by lead id or contact email).
	ErrDuplicateEnrollment = errors.New("contact is already enrolled in this sequence")

	// ErrNoContactChannel means the contact has neither an email address
	// nor a phone number.
	ErrNoContactChannel = errors.New("enrollment requires a contact email or phone number")

	// ErrInvalidEmail means the supplied contact email failed format checks.
	ErrInvalidEmail = errors.New("invalid contact email address")
)

// EmailSender delivers a rendered email. Returns the provider message id
// when available.
type EmailSender interface {
	Send(to, subject, body string) (string, error)
}

// SMSSender delivers a rendered SMS body.
type SMSSender interface {
	Send(to, body string) error
}

// Notifier delivers an internal-team alert (chat webhook, etc.).
// Delivery is best effort; notification steps succeed regardless.
type Notifier interface {
	Notify(subject, body string) error
}

// LeadStatusGetter looks up the current pipeline status of a lead.
// Backed by the CRM store in production, stubbed in tests.
type LeadStatusGetter interface {
	GetLeadStatus(leadID uint) (string, error)
}
