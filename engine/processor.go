package engine

import (
	"context"
	"fmt"
	"time"

	"bidflow/models"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// DefaultBatchSize bounds one processing pass.
	DefaultBatchSize = 100

	// DefaultClaimWindow is how far a claimed row's due time is pushed
	// forward before dispatching. If the process dies mid-step the row
	// becomes due again after the window (at-least-once).
	DefaultClaimWindow = 10 * time.Minute

	processLockKey = "bidflow:sequences:process-lock"
	processLockTTL = 14 * time.Minute
)

// RunResult is the aggregate summary of one processing pass.
type RunResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Errors    int `json:"errors"`
	Completed int `json:"completed"`
}

// Processor drives due enrollments through condition evaluation, action
// dispatch, audit logging, and advancement. It is invoked periodically and
// holds no state between runs.
type Processor struct {
	DB          *gorm.DB
	Dispatcher  *Dispatcher
	Evaluator   *Evaluator
	Logger      *logrus.Logger
	BatchSize   int
	ClaimWindow time.Duration

	// Optional run-level lock guarding against overlapping invocations
	// across processes. The per-row claim already prevents double dispatch;
	// this just avoids wasted work.
	Redis *redis.Client
}

func NewProcessor(db *gorm.DB, dispatcher *Dispatcher, evaluator *Evaluator, logger *logrus.Logger) *Processor {
	return &Processor{
		DB:          db,
		Dispatcher:  dispatcher,
		Evaluator:   evaluator,
		Logger:      logger,
		BatchSize:   DefaultBatchSize,
		ClaimWindow: DefaultClaimWindow,
	}
}

// ProcessDue selects one bounded batch of due enrollments and processes each
// independently. Per-enrollment failures are counted and logged, never
// propagated; only batch selection errors fail the whole call.
func (p *Processor) ProcessDue(ctx context.Context) (RunResult, error) {
	var result RunResult

	if p.Redis != nil {
		acquired, err := p.Redis.SetNX(ctx, processLockKey, uuid.NewString(), processLockTTL).Result()
		if err != nil {
			p.Logger.WithError(err).Warn("Redis run lock unavailable, relying on row claims")
		} else if !acquired {
			p.Logger.Info("Previous processing run still in progress, skipping")
			return result, nil
		} else {
			defer p.Redis.Del(context.Background(), processLockKey)
		}
	}

	now := time.Now()

	var due []models.Enrollment
	err := p.DB.WithContext(ctx).
		Joins("JOIN sequences ON sequences.id = enrollments.sequence_id").
		Where("enrollments.status = ? AND enrollments.next_due_at <= ? AND sequences.is_active = ?",
			models.EnrollmentActive, now, true).
		Order("enrollments.next_due_at ASC").
		Limit(p.batchSize()).
		Find(&due).Error
	if err != nil {
		return result, fmt.Errorf("selecting due enrollments: %w", err)
	}

	for i := range due {
		// Best-effort cancellation between enrollments. Each enrollment's
		// advancement is a single write, so stopping here is safe.
		if ctx.Err() != nil {
			p.Logger.WithField("remaining", len(due)-i).Warn("Processing run cancelled")
			break
		}
		p.processEnrollment(ctx, &due[i], &result)
	}

	p.Logger.WithFields(logrus.Fields{
		"processed": result.Processed,
		"sent":      result.Sent,
		"errors":    result.Errors,
		"completed": result.Completed,
	}).Info("Sequence processing run finished")

	return result, nil
}

// processEnrollment isolates one enrollment's outcome from the rest of the
// batch: panics and errors are counted, reported, and swallowed.
func (p *Processor) processEnrollment(ctx context.Context, enrollment *models.Enrollment, result *RunResult) {
	defer func() {
		if r := recover(); r != nil {
			result.Errors++
			err := fmt.Errorf("panic processing enrollment %d: %v", enrollment.ID, r)
			p.Logger.WithField("enrollment_id", enrollment.ID).Error(err)
			sentry.CaptureException(err)
		}
	}()

	if err := p.processOne(ctx, enrollment, result); err != nil {
		result.Errors++
		p.Logger.WithError(err).WithField("enrollment_id", enrollment.ID).
			Error("Failed to process enrollment")
		sentry.CaptureException(err)
	}
}

func (p *Processor) processOne(ctx context.Context, enrollment *models.Enrollment, result *RunResult) error {
	now := time.Now()

	// Claim the row before any side effect: a conditional update keyed on
	// the state we read. A concurrent invocation that selected the same row
	// loses the race, sees zero rows affected, and leaves it alone.
	claim := p.DB.WithContext(ctx).Model(&models.Enrollment{}).
		Where("id = ? AND status = ? AND current_step = ? AND next_due_at <= ?",
			enrollment.ID, models.EnrollmentActive, enrollment.CurrentStep, now).
		Update("next_due_at", now.Add(p.claimWindow()))
	if claim.Error != nil {
		return fmt.Errorf("claiming enrollment %d: %w", enrollment.ID, claim.Error)
	}
	if claim.RowsAffected == 0 {
		return nil
	}

	result.Processed++

	var steps []models.SequenceStep
	if err := p.DB.WithContext(ctx).
		Where("sequence_id = ?", enrollment.SequenceID).
		Order("step_order ASC").
		Find(&steps).Error; err != nil {
		return fmt.Errorf("loading steps for sequence %d: %w", enrollment.SequenceID, err)
	}

	// No more work: should be rare since advancement completes explicitly.
	if enrollment.CurrentStep >= len(steps) {
		if err := p.complete(enrollment.ID, enrollment.CurrentStep, now); err != nil {
			return err
		}
		result.Completed++
		return nil
	}

	step := steps[enrollment.CurrentStep]

	skip, err := p.Evaluator.ShouldSkip(enrollment, &step)
	if err != nil {
		// The claim already pushed the due time forward, so the row is
		// retried after the claim window.
		return fmt.Errorf("evaluating condition for enrollment %d step %d: %w",
			enrollment.ID, step.StepOrder, err)
	}

	if !skip {
		res := p.Dispatcher.Execute(enrollment, &step)

		status := models.LogStatusSent
		if !res.Success {
			status = models.LogStatusFailed
		}
		logEntry := models.SequenceLog{
			EnrollmentID: enrollment.ID,
			StepOrder:    step.StepOrder,
			ActionType:   step.ActionType,
			Subject:      res.Subject,
			Content:      res.Content,
			Status:       status,
			Error:        res.Error,
			MessageID:    res.MessageID,
			ExecutedAt:   now,
		}
		if err := p.DB.Create(&logEntry).Error; err != nil {
			return fmt.Errorf("writing log for enrollment %d: %w", enrollment.ID, err)
		}

		if res.Success {
			result.Sent++
		} else {
			result.Errors++
		}
	}

	// Advance regardless of dispatch outcome: failed steps are not retried.
	if enrollment.CurrentStep+1 >= len(steps) {
		if err := p.complete(enrollment.ID, enrollment.CurrentStep+1, now); err != nil {
			return err
		}
		result.Completed++
		return nil
	}

	next := steps[enrollment.CurrentStep+1]
	return p.DB.Model(&models.Enrollment{}).
		Where("id = ?", enrollment.ID).
		Updates(map[string]interface{}{
			"current_step": enrollment.CurrentStep + 1,
			"next_due_at":  now.Add(StepDelay(&next)),
		}).Error
}

func (p *Processor) complete(enrollmentID uint, currentStep int, now time.Time) error {
	return p.DB.Model(&models.Enrollment{}).
		Where("id = ?", enrollmentID).
		Updates(map[string]interface{}{
			"status":       models.EnrollmentCompleted,
			"current_step": currentStep,
			"completed_at": now,
		}).Error
}

func (p *Processor) batchSize() int {
	if p.BatchSize > 0 {
		return p.BatchSize
	}
	return DefaultBatchSize
}

func (p *Processor) claimWindow() time.Duration {
	if p.ClaimWindow > 0 {
		return p.ClaimWindow
	}
	return DefaultClaimWindow
}
