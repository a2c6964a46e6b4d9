package engine

import (
	"errors"
	"testing"

	"bidflow/models"
	"bidflow/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeEmailSender, *fakeSMSSender, *fakeNotifier) {
	t.Helper()
	db := setupDB(t)
	email := &fakeEmailSender{}
	sms := &fakeSMSSender{}
	notifier := &fakeNotifier{}
	return NewDispatcher(db, email, sms, notifier, testLogger()), email, sms, notifier
}

func TestExecuteEmailRendersAndSends(t *testing.T) {
	dispatcher, email, _, _ := newTestDispatcher(t)

	enrollment := &models.Enrollment{
		ContactName:  "Sam Mason",
		ContactEmail: utils.Pointer("sam@example.com"),
	}
	step := &models.SequenceStep{
		ActionType: models.ActionEmail,
		Subject:    "Following up, {{first_name}}",
		Body:       "Hi {{name}}, any questions about the estimate?",
	}

	result := dispatcher.Execute(enrollment, step)
	require.True(t, result.Success)
	assert.Equal(t, "Following up, Sam", result.Subject)
	assert.Equal(t, "Hi Sam Mason, any questions about the estimate?", result.Content)
	assert.NotEmpty(t, result.MessageID)

	require.Len(t, email.sent, 1)
	assert.Equal(t, "sam@example.com", email.sent[0].To)
}

func TestExecuteEmailWithoutAddressFails(t *testing.T) {
	dispatcher, email, _, _ := newTestDispatcher(t)

	result := dispatcher.Execute(
		&models.Enrollment{ContactPhone: utils.Pointer("+15551234567")},
		&models.SequenceStep{ActionType: models.ActionEmail, Body: "hi"},
	)
	assert.False(t, result.Success)
	assert.Equal(t, "No email address", result.Error)
	assert.Empty(t, email.sent)
}

func TestExecuteEmailTransportFailure(t *testing.T) {
	dispatcher, email, _, _ := newTestDispatcher(t)
	email.err = errors.New("smtp connection refused")

	result := dispatcher.Execute(
		&models.Enrollment{ContactEmail: utils.Pointer("sam@example.com")},
		&models.SequenceStep{ActionType: models.ActionEmail, Body: "hi"},
	)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "smtp connection refused")
	// Rendered content is still returned for the audit log
	assert.Equal(t, "hi", result.Content)
}

func TestExecuteSMS(t *testing.T) {
	dispatcher, _, sms, _ := newTestDispatcher(t)

	enrollment := &models.Enrollment{
		ContactName:  "Sam",
		ContactPhone: utils.Pointer("+15551234567"),
	}
	step := &models.SequenceStep{ActionType: models.ActionSMS, Body: "Hi {{name}}, ready to schedule?"}

	result := dispatcher.Execute(enrollment, step)
	require.True(t, result.Success)
	assert.Empty(t, result.Subject)

	require.Len(t, sms.sent, 1)
	assert.Equal(t, "Hi Sam, ready to schedule?", sms.sent[0].Body)
}

func TestExecuteSMSWithoutPhoneFails(t *testing.T) {
	dispatcher, _, sms, _ := newTestDispatcher(t)

	result := dispatcher.Execute(
		&models.Enrollment{ContactEmail: utils.Pointer("sam@example.com")},
		&models.SequenceStep{ActionType: models.ActionSMS, Body: "hi"},
	)
	assert.False(t, result.Success)
	assert.Equal(t, "No phone number", result.Error)
	assert.Empty(t, sms.sent)
}

func TestExecuteNotificationAlwaysSucceeds(t *testing.T) {
	dispatcher, _, _, notifier := newTestDispatcher(t)
	notifier.err = errors.New("webhook down")

	result := dispatcher.Execute(
		&models.Enrollment{ContactName: "Sam"},
		&models.SequenceStep{ActionType: models.ActionNotification, Subject: "Lead follow-up", Body: "Check in with {{name}}"},
	)
	assert.True(t, result.Success)
	assert.Equal(t, "Check in with Sam", result.Content)
	assert.Equal(t, 1, notifier.notified)
}

func TestExecuteUnknownActionFailsClosed(t *testing.T) {
	dispatcher, _, _, _ := newTestDispatcher(t)

	result := dispatcher.Execute(
		&models.Enrollment{ContactEmail: utils.Pointer("sam@example.com")},
		&models.SequenceStep{ActionType: "carrier_pigeon", Body: "hi"},
	)
	assert.False(t, result.Success)
	assert.Equal(t, "Unknown action type", result.Error)
}

func TestExecuteResolvesTemplateReference(t *testing.T) {
	dispatcher, email, _, _ := newTestDispatcher(t)

	template := models.MessageTemplate{
		UserID:  1,
		Name:    "estimate-ready",
		Subject: "Your {{job_name}} estimate",
		Body:    "Hi {{name}}, the estimate for {{job_name}} is attached.",
	}
	require.NoError(t, dispatcher.DB.Create(&template).Error)

	job := models.Job{UserID: 1, Name: "Deck rebuild"}
	require.NoError(t, dispatcher.DB.Create(&job).Error)

	enrollment := &models.Enrollment{
		ContactName:  "Sam",
		ContactEmail: utils.Pointer("sam@example.com"),
		JobID:        &job.ID,
	}
	step := &models.SequenceStep{
		ActionType: models.ActionEmail,
		TemplateID: &template.ID,
		// Inline content is ignored when a template is referenced
		Subject: "unused",
		Body:    "unused",
	}

	result := dispatcher.Execute(enrollment, step)
	require.True(t, result.Success)
	assert.Equal(t, "Your Deck rebuild estimate", result.Subject)
	assert.Equal(t, "Hi Sam, the estimate for Deck rebuild is attached.", result.Content)

	require.Len(t, email.sent, 1)
}

func TestExecuteMissingTemplateFails(t *testing.T) {
	dispatcher, _, _, _ := newTestDispatcher(t)

	missing := uint(12345)
	result := dispatcher.Execute(
		&models.Enrollment{ContactEmail: utils.Pointer("sam@example.com")},
		&models.SequenceStep{ActionType: models.ActionEmail, TemplateID: &missing},
	)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestExecuteFallsBackToGenericGreeting(t *testing.T) {
	dispatcher, _, _, _ := newTestDispatcher(t)

	result := dispatcher.Execute(
		&models.Enrollment{ContactEmail: utils.Pointer("sam@example.com")},
		&models.SequenceStep{ActionType: models.ActionEmail, Body: "Hi {{name}}!"},
	)
	require.True(t, result.Success)
	assert.Equal(t, "Hi there!", result.Content)
}
