package controller

import (
	"bidflow/models"
	"bidflow/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type TemplateController struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewTemplateController(db *gorm.DB, logger *logrus.Logger) *TemplateController {
	return &TemplateController{DB: db, Logger: logger}
}

type templateInput struct {
	Name      string `json:"name" validate:"required,max=200"`
	Subject   string `json:"subject" validate:"max=500"`
	Body      string `json:"body" validate:"required"`
	Variables string `json:"variables"`
}

func (tc *TemplateController) CreateTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input templateInput
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

	template := models.MessageTemplate{
		UserID:    user.ID,
		Name:      input.Name,
		Subject:   input.Subject,
		Body:      input.Body,
		Variables: input.Variables,
	}

	if err := tc.DB.Create(&template).Error; err != nil {
		tc.Logger.WithError(err).Error("Failed to create template")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create template",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}

func (tc *TemplateController) GetTemplates(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var templates []models.MessageTemplate
	if err := tc.DB.Where("user_id = ?", user.ID).Find(&templates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch templates",
		})
	}

	return c.JSON(templates)
}

func (tc *TemplateController) GetTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var template models.MessageTemplate
	if err := tc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		First(&template).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Template not found",
		})
	}

	return c.JSON(template)
}

// UpdateTemplate edits a template in place. Steps hold a reference, so the
// change applies to future sends only; past log entries keep the content
// that was actually rendered.
func (tc *TemplateController) UpdateTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var template models.MessageTemplate
	if err := tc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		First(&template).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Template not found",
		})
	}

	var input templateInput
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

	template.Name = input.Name
	template.Subject = input.Subject
	template.Body = input.Body
	template.Variables = input.Variables

	if err := tc.DB.Save(&template).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update template",
		})
	}

	return c.JSON(template)
}

func (tc *TemplateController) DeleteTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var stepCount int64
	tc.DB.Model(&models.SequenceStep{}).
		Joins("JOIN sequences ON sequences.id = sequence_steps.sequence_id").
		Where("sequence_steps.template_id = ? AND sequences.user_id = ?", c.Params("id"), user.ID).
		Count(&stepCount)
	if stepCount > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Template is referenced by sequence steps",
		})
	}

	result := tc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		Delete(&models.MessageTemplate{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete template",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Template not found",
		})
	}

	return c.JSON(fiber.Map{"message": "Template deleted"})
}
