package controller

import (
	"bidflow/engine"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// ProcessController exposes the manual trigger for the sequence processor.
// The cron worker is the normal trigger; this endpoint exists for operators
// and for external schedulers.
type ProcessController struct {
	Processor *engine.Processor
	Logger    *logrus.Logger
}

func NewProcessController(processor *engine.Processor, logger *logrus.Logger) *ProcessController {
	return &ProcessController{Processor: processor, Logger: logger}
}

func (pc *ProcessController) RunProcessor(c *fiber.Ctx) error {
	result, err := pc.Processor.ProcessDue(c.Context())
	if err != nil {
		pc.Logger.WithError(err).Error("Sequence processing run failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Processing run failed",
		})
	}

	return c.JSON(result)
}
