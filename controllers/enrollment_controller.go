package controller

import (
	"errors"
	"strconv"

	"bidflow/engine"
	"bidflow/models"
	"bidflow/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type EnrollmentController struct {
	DB      *gorm.DB
	Manager *engine.Manager
	Logger  *logrus.Logger
}

func NewEnrollmentController(db *gorm.DB, manager *engine.Manager, logger *logrus.Logger) *EnrollmentController {
	return &EnrollmentController{DB: db, Manager: manager, Logger: logger}
}

type enrollInput struct {
	ContactName  string  `json:"contact_name" validate:"max=200"`
	ContactEmail *string `json:"contact_email"`
	ContactPhone *string `json:"contact_phone"`
	LeadID       *uint   `json:"lead_id"`
	JobID        *uint   `json:"job_id"`
}

// EnrollContact enrolls a contact into the sequence. The first action runs
// on the next scheduler pass, never synchronously.
func (ec *EnrollmentController) EnrollContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	sequenceID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid sequence id",
		})
	}

	var input enrollInput
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

	contact := engine.Contact{
		Name:  input.ContactName,
		Email: input.ContactEmail,
		Phone: input.ContactPhone,
	}

	enrollment, err := ec.Manager.Enroll(uint(sequenceID), user.ID, contact, input.LeadID, input.JobID)
	switch {
	case errors.Is(err, engine.ErrDuplicateEnrollment):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, engine.ErrNoContactChannel), errors.Is(err, engine.ErrInvalidEmail):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	case err != nil:
		ec.Logger.WithError(err).Error("Failed to enroll contact")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to enroll contact",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(enrollment)
}

func (ec *EnrollmentController) GetEnrollments(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query := ec.DB.Where("user_id = ?", user.ID)
	if sequenceID := c.Query("sequence_id"); sequenceID != "" {
		query = query.Where("sequence_id = ?", sequenceID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var enrollments []models.Enrollment
	if err := query.Order("next_due_at ASC").Find(&enrollments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch enrollments",
		})
	}

	return c.JSON(enrollments)
}

func (ec *EnrollmentController) GetEnrollment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var enrollment models.Enrollment
	if err := ec.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		First(&enrollment).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Enrollment not found",
		})
	}

	return c.JSON(enrollment)
}

// GetEnrollmentLogs returns the audit trail of executed steps, oldest first.
func (ec *EnrollmentController) GetEnrollmentLogs(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var enrollment models.Enrollment
	if err := ec.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		First(&enrollment).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Enrollment not found",
		})
	}

	var logs []models.SequenceLog
	if err := ec.DB.Where("enrollment_id = ?", enrollment.ID).
		Order("executed_at ASC").Find(&logs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch logs",
		})
	}

	return c.JSON(logs)
}
