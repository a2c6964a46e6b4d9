package controller

import (
	"bidflow/models"
	"bidflow/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type SequenceController struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewSequenceController(db *gorm.DB, logger *logrus.Logger) *SequenceController {
	return &SequenceController{DB: db, Logger: logger}
}

type stepInput struct {
	StepOrder      int    `json:"step_order" validate:"gte=0"`
	DelayDays      int    `json:"delay_days" validate:"gte=0"`
	DelayHours     int    `json:"delay_hours" validate:"gte=0"`
	ActionType     string `json:"action_type" validate:"required,oneof=email sms notification"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	TemplateID     *uint  `json:"template_id"`
	ConditionType  string `json:"condition_type" validate:"omitempty,oneof=skip_if_status skip_if_replied"`
	ConditionValue string `json:"condition_value"`
}

type sequenceInput struct {
	Name         string      `json:"name" validate:"required,max=200"`
	TriggerEvent string      `json:"trigger_event"`
	IsActive     *bool       `json:"is_active"`
	Steps        []stepInput `json:"steps" validate:"dive"`
}

func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input sequenceInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err := validateStepOrder(input.Steps); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}

	sequence := models.Sequence{
		UserID:       user.ID,
		Name:         input.Name,
		TriggerEvent: input.TriggerEvent,
		IsActive:     isActive,
	}

	tx := sc.DB.Begin()
	if err := tx.Create(&sequence).Error; err != nil {
		tx.Rollback()
		sc.Logger.WithError(err).Error("Failed to create sequence")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sequence",
		})
	}

	for _, s := range input.Steps {
		step := models.SequenceStep{
			SequenceID:     sequence.ID,
			StepOrder:      s.StepOrder,
			DelayDays:      s.DelayDays,
			DelayHours:     s.DelayHours,
			ActionType:     s.ActionType,
			Subject:        s.Subject,
			Body:           s.Body,
			TemplateID:     s.TemplateID,
			ConditionType:  s.ConditionType,
			ConditionValue: s.ConditionValue,
		}
		if err := tx.Create(&step).Error; err != nil {
			tx.Rollback()
			sc.Logger.WithError(err).Error("Failed to create sequence step")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create sequence steps",
			})
		}
	}

	if err := tx.Commit().Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sequence",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(sequence)
}

func (sc *SequenceController) GetSequences(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequences []models.Sequence
	if err := sc.DB.Where("user_id = ?", user.ID).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_steps.step_order ASC")
		}).
		Find(&sequences).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sequences",
		})
	}

	return c.JSON(sequences)
}

func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.Sequence
	if err := sc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_steps.step_order ASC")
		}).
		First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	return c.JSON(sequence)
}

// UpdateSequence replaces the sequence definition, steps included. Existing
// enrollments keep their current step index, so reordering steps under
// active enrollments is the caller's responsibility.
func (sc *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.Sequence
	if err := sc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	var input sequenceInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err := validateStepOrder(input.Steps); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	sequence.Name = input.Name
	sequence.TriggerEvent = input.TriggerEvent
	if input.IsActive != nil {
		sequence.IsActive = *input.IsActive
	}

	tx := sc.DB.Begin()
	if err := tx.Save(&sequence).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update sequence",
		})
	}

	if err := tx.Where("sequence_id = ?", sequence.ID).Delete(&models.SequenceStep{}).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update sequence steps",
		})
	}
	for _, s := range input.Steps {
		step := models.SequenceStep{
			SequenceID:     sequence.ID,
			StepOrder:      s.StepOrder,
			DelayDays:      s.DelayDays,
			DelayHours:     s.DelayHours,
			ActionType:     s.ActionType,
			Subject:        s.Subject,
			Body:           s.Body,
			TemplateID:     s.TemplateID,
			ConditionType:  s.ConditionType,
			ConditionValue: s.ConditionValue,
		}
		if err := tx.Create(&step).Error; err != nil {
			tx.Rollback()
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update sequence steps",
			})
		}
	}

	if err := tx.Commit().Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update sequence",
		})
	}

	return c.JSON(sequence)
}

// SetSequenceActive flips the active flag. Deactivating pauses processing
// of the sequence's enrollments without completing them.
func (sc *SequenceController) SetSequenceActive(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		IsActive bool `json:"is_active"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result := sc.DB.Model(&models.Sequence{}).
		Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		Update("is_active", input.IsActive)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update sequence",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	return c.JSON(fiber.Map{"is_active": input.IsActive})
}

func (sc *SequenceController) DeleteSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.Sequence
	if err := sc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	var activeCount int64
	sc.DB.Model(&models.Enrollment{}).
		Where("sequence_id = ? AND status = ?", sequence.ID, models.EnrollmentActive).
		Count(&activeCount)
	if activeCount > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Sequence has active enrollments; deactivate it instead",
		})
	}

	tx := sc.DB.Begin()
	if err := tx.Where("sequence_id = ?", sequence.ID).Delete(&models.SequenceStep{}).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete sequence",
		})
	}
	if err := tx.Delete(&sequence).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete sequence",
		})
	}
	if err := tx.Commit().Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete sequence",
		})
	}

	return c.JSON(fiber.Map{"message": "Sequence deleted"})
}

// validateStepOrder enforces a dense, zero-based ordering: the processor
// indexes steps by position and assumes no gaps.
func validateStepOrder(steps []stepInput) error {
	seen := make(map[int]bool, len(steps))
	for _, s := range steps {
		if s.StepOrder < 0 || s.StepOrder >= len(steps) || seen[s.StepOrder] {
			return fiber.NewError(fiber.StatusBadRequest, "step_order values must be dense and unique starting at 0")
		}
		seen[s.StepOrder] = true
	}
	return nil
}
