package engine

import (
	"context"
	"testing"
	"time"

	"bidflow/models"
	"bidflow/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestProcessor(t *testing.T) (*Processor, *fakeEmailSender, *fakeSMSSender) {
	t.Helper()
	db := setupDB(t)
	email := &fakeEmailSender{}
	sms := &fakeSMSSender{}
	dispatcher := NewDispatcher(db, email, sms, &fakeNotifier{}, testLogger())
	evaluator := NewEvaluator(db, stubLeadStatus{statuses: map[uint]string{}})
	return NewProcessor(db, dispatcher, evaluator, testLogger()), email, sms
}

func createDueEnrollment(t *testing.T, db *gorm.DB, sequenceID uint) *models.Enrollment {
	t.Helper()
	enrollment := models.Enrollment{
		SequenceID:   sequenceID,
		UserID:       1,
		ContactName:  "Sam Mason",
		ContactEmail: utils.Pointer("sam@example.com"),
		ContactPhone: utils.Pointer("+15551234567"),
		Status:       models.EnrollmentActive,
		NextDueAt:    time.Now().Add(-time.Minute),
	}
	require.NoError(t, db.Create(&enrollment).Error)
	return &enrollment
}

func reload(t *testing.T, db *gorm.DB, id uint) *models.Enrollment {
	t.Helper()
	var enrollment models.Enrollment
	require.NoError(t, db.First(&enrollment, id).Error)
	return &enrollment
}

func countLogs(t *testing.T, db *gorm.DB, enrollmentID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.SequenceLog{}).
		Where("enrollment_id = ?", enrollmentID).Count(&count).Error)
	return count
}

func TestProcessDueRunsMultiStepSequenceToCompletion(t *testing.T) {
	p, email, _ := newTestProcessor(t)

	sequence := createSequence(t, p.DB, 1, true,
		models.SequenceStep{ActionType: models.ActionEmail, Subject: "First nudge", Body: "Hi {{name}}"},
		models.SequenceStep{ActionType: models.ActionEmail, Subject: "Second nudge", Body: "Still there?"},
	)
	enrollment := createDueEnrollment(t, p.DB, sequence.ID)

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{Processed: 1, Sent: 1}, result)

	got := reload(t, p.DB, enrollment.ID)
	assert.Equal(t, models.EnrollmentActive, got.Status)
	assert.Equal(t, 1, got.CurrentStep)

	// Second step carries no delay, so the enrollment is due again now.
	result, err = p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{Processed: 1, Sent: 1, Completed: 1}, result)

	got = reload(t, p.DB, enrollment.ID)
	assert.Equal(t, models.EnrollmentCompleted, got.Status)
	assert.Equal(t, 2, got.CurrentStep)
	require.NotNil(t, got.CompletedAt)
	assert.EqualValues(t, 2, countLogs(t, p.DB, enrollment.ID))
	assert.Len(t, email.sent, 2)
}

func TestProcessDueRespectsStepDelays(t *testing.T) {
	p, email, sms := newTestProcessor(t)

	sequence := createSequence(t, p.DB, 1, true,
		models.SequenceStep{ActionType: models.ActionEmail, Body: "Checking in"},
		models.SequenceStep{ActionType: models.ActionSMS, DelayHours: 24, Body: "Quick text"},
	)
	enrollment := createDueEnrollment(t, p.DB, sequence.ID)

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Len(t, email.sent, 1)

	got := reload(t, p.DB, enrollment.ID)
	assert.Equal(t, 1, got.CurrentStep)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), got.NextDueAt, time.Minute)

	// Not due yet: the second pass finds nothing to do.
	result, err = p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{}, result)
	assert.Empty(t, sms.sent)

	// Pretend the day passed.
	require.NoError(t, p.DB.Model(&models.Enrollment{}).
		Where("id = ?", enrollment.ID).
		Update("next_due_at", time.Now().Add(-time.Minute)).Error)

	result, err = p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{Processed: 1, Sent: 1, Completed: 1}, result)
	assert.Len(t, sms.sent, 1)
	assert.Equal(t, models.EnrollmentCompleted, reload(t, p.DB, enrollment.ID).Status)
}

func TestProcessDueSkipAdvancesWithoutLogging(t *testing.T) {
	p, email, _ := newTestProcessor(t)
	p.Evaluator = NewEvaluator(p.DB, stubLeadStatus{statuses: map[uint]string{7: "won"}})

	sequence := createSequence(t, p.DB, 1, true,
		models.SequenceStep{
			ActionType:     models.ActionEmail,
			Body:           "Any decision yet?",
			ConditionType:  models.ConditionSkipIfStatus,
			ConditionValue: "won",
		},
		models.SequenceStep{ActionType: models.ActionEmail, DelayDays: 3, Body: "Thanks again"},
	)
	enrollment := createDueEnrollment(t, p.DB, sequence.ID)
	require.NoError(t, p.DB.Model(enrollment).Update("lead_id", uint(7)).Error)

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{Processed: 1}, result)
	assert.Empty(t, email.sent)
	assert.EqualValues(t, 0, countLogs(t, p.DB, enrollment.ID))

	// The skipped step still advances and the next due time comes from the
	// following step's delay.
	got := reload(t, p.DB, enrollment.ID)
	assert.Equal(t, 1, got.CurrentStep)
	assert.WithinDuration(t, time.Now().Add(72*time.Hour), got.NextDueAt, time.Minute)
}

func TestProcessDueFailedDispatchStillAdvances(t *testing.T) {
	p, _, sms := newTestProcessor(t)

	sequence := createSequence(t, p.DB, 1, true,
		models.SequenceStep{ActionType: models.ActionSMS, Body: "Quick text"},
		models.SequenceStep{ActionType: models.ActionEmail, Body: "Fallback email"},
	)

	enrollment := models.Enrollment{
		SequenceID:   sequence.ID,
		UserID:       1,
		ContactName:  "Sam",
		ContactEmail: utils.Pointer("sam@example.com"),
		Status:       models.EnrollmentActive,
		NextDueAt:    time.Now().Add(-time.Minute),
	}
	require.NoError(t, p.DB.Create(&enrollment).Error)

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{Processed: 1, Errors: 1}, result)
	assert.Empty(t, sms.sent)

	var logEntry models.SequenceLog
	require.NoError(t, p.DB.Where("enrollment_id = ?", enrollment.ID).First(&logEntry).Error)
	assert.Equal(t, models.LogStatusFailed, logEntry.Status)
	assert.Equal(t, "No phone number", logEntry.Error)

	// Failed steps are not retried; the enrollment moves on.
	assert.Equal(t, 1, reload(t, p.DB, enrollment.ID).CurrentStep)
}

func TestProcessDueIgnoresInactiveSequences(t *testing.T) {
	p, email, _ := newTestProcessor(t)

	sequence := createSequence(t, p.DB, 1, false,
		models.SequenceStep{ActionType: models.ActionEmail, Body: "Paused"},
	)
	enrollment := createDueEnrollment(t, p.DB, sequence.ID)

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{}, result)
	assert.Empty(t, email.sent)
	assert.Equal(t, 0, reload(t, p.DB, enrollment.ID).CurrentStep)
}

func TestProcessDueIgnoresCompletedEnrollments(t *testing.T) {
	p, email, _ := newTestProcessor(t)

	sequence := createSequence(t, p.DB, 1, true,
		models.SequenceStep{ActionType: models.ActionEmail, Body: "hi"},
	)
	enrollment := createDueEnrollment(t, p.DB, sequence.ID)
	require.NoError(t, p.DB.Model(enrollment).Update("status", models.EnrollmentCompleted).Error)

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{}, result)
	assert.Empty(t, email.sent)
}

func TestProcessDueCompletesSteplessEnrollment(t *testing.T) {
	p, email, _ := newTestProcessor(t)

	sequence := createSequence(t, p.DB, 1, true)
	enrollment := createDueEnrollment(t, p.DB, sequence.ID)

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{Processed: 1, Completed: 1}, result)
	assert.Empty(t, email.sent)

	got := reload(t, p.DB, enrollment.ID)
	assert.Equal(t, models.EnrollmentCompleted, got.Status)
	assert.Equal(t, 0, got.CurrentStep)
	assert.EqualValues(t, 0, countLogs(t, p.DB, enrollment.ID))
}

func TestProcessOneStaleSnapshotLosesClaim(t *testing.T) {
	p, email, _ := newTestProcessor(t)

	sequence := createSequence(t, p.DB, 1, true,
		models.SequenceStep{ActionType: models.ActionEmail, Body: "hi"},
	)
	enrollment := createDueEnrollment(t, p.DB, sequence.ID)

	// Two invocations selected the same row before either claimed it.
	snapshot := *enrollment

	var first RunResult
	require.NoError(t, p.processOne(context.Background(), enrollment, &first))
	assert.Equal(t, RunResult{Processed: 1, Sent: 1, Completed: 1}, first)

	// The loser's conditional update matches nothing and leaves the row
	// alone, so the step executes exactly once.
	var second RunResult
	require.NoError(t, p.processOne(context.Background(), &snapshot, &second))
	assert.Equal(t, RunResult{}, second)

	assert.Len(t, email.sent, 1)
	assert.EqualValues(t, 1, countLogs(t, p.DB, enrollment.ID))
}

func TestProcessDueClaimPushesDueTimeBeforeDispatch(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	p.ClaimWindow = 10 * time.Minute

	sequence := createSequence(t, p.DB, 1, true,
		models.SequenceStep{ActionType: models.ActionEmail, Body: "hi"},
		models.SequenceStep{ActionType: models.ActionEmail, DelayDays: 2, Body: "later"},
	)
	enrollment := createDueEnrollment(t, p.DB, sequence.ID)

	_, err := p.ProcessDue(context.Background())
	require.NoError(t, err)

	// Advancement overwrites the claim's provisional due time with the
	// next step's real schedule.
	got := reload(t, p.DB, enrollment.ID)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), got.NextDueAt, time.Minute)
}

func TestProcessDueBatchLimit(t *testing.T) {
	p, email, _ := newTestProcessor(t)
	p.BatchSize = 2

	sequence := createSequence(t, p.DB, 1, true,
		models.SequenceStep{ActionType: models.ActionEmail, Body: "hi"},
	)
	for i := 0; i < 3; i++ {
		enrollment := models.Enrollment{
			SequenceID:   sequence.ID,
			UserID:       1,
			ContactEmail: utils.Pointer("sam@example.com"),
			ContactPhone: utils.Pointer("+15551234567"),
			Status:       models.EnrollmentActive,
			NextDueAt:    time.Now().Add(-time.Duration(i+1) * time.Minute),
		}
		require.NoError(t, p.DB.Create(&enrollment).Error)
	}

	result, err := p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Len(t, email.sent, 2)

	// The third stays due and is picked up on the next pass.
	result, err = p.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
}

func TestProcessDueCancelledContext(t *testing.T) {
	p, email, _ := newTestProcessor(t)

	sequence := createSequence(t, p.DB, 1, true,
		models.SequenceStep{ActionType: models.ActionEmail, Body: "hi"},
	)
	createDueEnrollment(t, p.DB, sequence.ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Selection fails or the loop stops before dispatch; either way no
	// action goes out.
	p.ProcessDue(ctx)
	assert.Empty(t, email.sent)
}
