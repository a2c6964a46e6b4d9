package engine

import (
	"testing"
	"time"

	"bidflow/models"
	"bidflow/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldSkipNoCondition(t *testing.T) {
	db := setupDB(t)
	evaluator := NewEvaluator(db, stubLeadStatus{})

	skip, err := evaluator.ShouldSkip(
		&models.Enrollment{},
		&models.SequenceStep{ActionType: models.ActionEmail},
	)
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestShouldSkipByLeadStatus(t *testing.T) {
	db := setupDB(t)
	evaluator := NewEvaluator(db, stubLeadStatus{statuses: map[uint]string{10: "won"}})

	step := &models.SequenceStep{
		ConditionType:  models.ConditionSkipIfStatus,
		ConditionValue: "won",
	}

	skip, err := evaluator.ShouldSkip(&models.Enrollment{LeadID: utils.Pointer(uint(10))}, step)
	require.NoError(t, err)
	assert.True(t, skip)

	// Status mismatch
	step.ConditionValue = "lost"
	skip, err = evaluator.ShouldSkip(&models.Enrollment{LeadID: utils.Pointer(uint(10))}, step)
	require.NoError(t, err)
	assert.False(t, skip)

	// No lead linked: condition is a no-op
	skip, err = evaluator.ShouldSkip(&models.Enrollment{}, step)
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestShouldSkipLeadLookupFailure(t *testing.T) {
	db := setupDB(t)
	evaluator := NewEvaluator(db, stubLeadStatus{})

	step := &models.SequenceStep{
		ConditionType:  models.ConditionSkipIfStatus,
		ConditionValue: "won",
	}

	_, err := evaluator.ShouldSkip(&models.Enrollment{LeadID: utils.Pointer(uint(10))}, step)
	assert.Error(t, err)
}

func TestShouldSkipWhenReplied(t *testing.T) {
	db := setupDB(t)
	evaluator := NewEvaluator(db, stubLeadStatus{})

	enrollment := models.Enrollment{SequenceID: 1, UserID: 1, Status: models.EnrollmentActive}
	require.NoError(t, db.Create(&enrollment).Error)

	step := &models.SequenceStep{ConditionType: models.ConditionSkipIfReplied}

	// A sent log is not a reply
	require.NoError(t, db.Create(&models.SequenceLog{
		EnrollmentID: enrollment.ID,
		ActionType:   models.ActionEmail,
		Status:       models.LogStatusSent,
		ExecutedAt:   time.Now(),
	}).Error)

	skip, err := evaluator.ShouldSkip(&enrollment, step)
	require.NoError(t, err)
	assert.False(t, skip)

	// An inbound reply recorded by the reply watcher flips it
	require.NoError(t, db.Create(&models.SequenceLog{
		EnrollmentID: enrollment.ID,
		ActionType:   models.ActionEmail,
		Status:       models.LogStatusReplied,
		ExecutedAt:   time.Now(),
	}).Error)

	skip, err = evaluator.ShouldSkip(&enrollment, step)
	require.NoError(t, err)
	assert.True(t, skip)
}

func TestShouldSkipUnknownConditionKind(t *testing.T) {
	db := setupDB(t)
	evaluator := NewEvaluator(db, stubLeadStatus{})

	skip, err := evaluator.ShouldSkip(
		&models.Enrollment{},
		&models.SequenceStep{ConditionType: "skip_if_moon_is_full"},
	)
	require.NoError(t, err)
	assert.False(t, skip)
}
