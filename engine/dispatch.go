package engine

import (
	"strings"

	"bidflow/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Result captures the outcome of one step execution attempt, including the
// rendered content for the audit log.
type Result struct {
	Success   bool
	Subject   string
	Content   string
	MessageID string
	Error     string
}

// Dispatcher executes a step's action over the configured channel
// transports.
type Dispatcher struct {
	DB       *gorm.DB
	Email    EmailSender
	SMS      SMSSender
	Notifier Notifier
	Logger   *logrus.Logger
}

func NewDispatcher(db *gorm.DB, email EmailSender, sms SMSSender, notifier Notifier, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{DB: db, Email: email, SMS: sms, Notifier: notifier, Logger: logger}
}

// Execute runs the step's action for the enrollment and returns a normalized
// result. Transport failures come back as failed results, never as panics.
func (d *Dispatcher) Execute(enrollment *models.Enrollment, step *models.SequenceStep) Result {
	subject, body, err := d.resolveContent(step)
	if err != nil {
		return Result{Error: err.Error()}
	}

	vars := d.buildVariables(enrollment)
	subject = Render(subject, vars)
	body = Render(body, vars)

	switch step.ActionType {
	case models.ActionEmail:
		if enrollment.ContactEmail == nil || *enrollment.ContactEmail == "" {
			return Result{Subject: subject, Content: body, Error: "No email address"}
		}
		messageID, err := d.Email.Send(*enrollment.ContactEmail, subject, body)
		if err != nil {
			return Result{Subject: subject, Content: body, Error: err.Error()}
		}
		return Result{Success: true, Subject: subject, Content: body, MessageID: messageID}

	case models.ActionSMS:
		if enrollment.ContactPhone == nil || *enrollment.ContactPhone == "" {
			return Result{Content: body, Error: "No phone number"}
		}
		if err := d.SMS.Send(*enrollment.ContactPhone, body); err != nil {
			return Result{Content: body, Error: err.Error()}
		}
		return Result{Success: true, Content: body}

	case models.ActionNotification:
		// Internal-team alert: always succeeds, delivery is best effort.
		if d.Notifier != nil {
			if err := d.Notifier.Notify(subject, body); err != nil {
				d.Logger.WithError(err).WithField("enrollment_id", enrollment.ID).
					Warn("Notification webhook delivery failed")
			}
		}
		return Result{Success: true, Subject: subject, Content: body}

	default:
		return Result{Error: "Unknown action type"}
	}
}

// resolveContent returns the effective subject and body for a step: the
// referenced template when one is set, otherwise the inline content.
func (d *Dispatcher) resolveContent(step *models.SequenceStep) (string, string, error) {
	if step.TemplateID == nil {
		return step.Subject, step.Body, nil
	}

	var template models.MessageTemplate
	if err := d.DB.First(&template, *step.TemplateID).Error; err != nil {
		return "", "", err
	}
	return template.Subject, template.Body, nil
}

func (d *Dispatcher) buildVariables(enrollment *models.Enrollment) map[string]string {
	name := strings.TrimSpace(enrollment.ContactName)
	if name == "" {
		name = "there"
	}

	vars := map[string]string{
		"name":       name,
		"first_name": strings.Fields(name)[0],
	}

	if enrollment.JobID != nil {
		var job models.Job
		if err := d.DB.First(&job, *enrollment.JobID).Error; err == nil {
			vars["job_name"] = job.Name
			vars["job_address"] = job.Address
		}
	}

	return vars
}
