package engine

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"bidflow/models"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A named in-memory database per test keeps gorm's connection pool on
	// the same data without leaking state across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Sequence{},
		&models.SequenceStep{},
		&models.Enrollment{},
		&models.SequenceLog{},
		&models.MessageTemplate{},
		&models.Lead{},
		&models.Job{},
	))
	return db
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type fakeEmailSender struct {
	sent []sentEmail
	err  error
}

func (f *fakeEmailSender) Send(to, subject, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentEmail{To: to, Subject: subject, Body: body})
	return fmt.Sprintf("<msg-%d@test>", len(f.sent)), nil
}

type sentSMS struct {
	To   string
	Body string
}

type fakeSMSSender struct {
	sent []sentSMS
	err  error
}

func (f *fakeSMSSender) Send(to, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentSMS{To: to, Body: body})
	return nil
}

type fakeNotifier struct {
	notified int
	err      error
}

func (f *fakeNotifier) Notify(subject, body string) error {
	f.notified++
	return f.err
}

type stubLeadStatus struct {
	statuses map[uint]string
}

func (s stubLeadStatus) GetLeadStatus(leadID uint) (string, error) {
	status, ok := s.statuses[leadID]
	if !ok {
		return "", errors.New("lead not found")
	}
	return status, nil
}

// createSequence persists a sequence and its steps, returning the sequence.
func createSequence(t *testing.T, db *gorm.DB, userID uint, active bool, steps ...models.SequenceStep) *models.Sequence {
	t.Helper()

	sequence := models.Sequence{
		UserID:   userID,
		Name:     "Estimate follow-up",
		IsActive: active,
	}
	require.NoError(t, db.Create(&sequence).Error)

	for i := range steps {
		steps[i].SequenceID = sequence.ID
		steps[i].StepOrder = i
		require.NoError(t, db.Create(&steps[i]).Error)
	}
	return &sequence
}
