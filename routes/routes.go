package routes

import (
	controller "bidflow/controllers"
	"bidflow/engine"
	"bidflow/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, db *gorm.DB, manager *engine.Manager, processor *engine.Processor, log *logrus.Logger) {
	sequenceController := controller.NewSequenceController(db, log)
	enrollmentController := controller.NewEnrollmentController(db, manager, log)
	templateController := controller.NewTemplateController(db, log)
	processController := controller.NewProcessController(processor, log)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Sequence routes
	sequence := api.Group("/sequences")
	sequence.Post("/", sequenceController.CreateSequence)
	sequence.Get("/", sequenceController.GetSequences)
	sequence.Get("/:id", sequenceController.GetSequence)
	sequence.Put("/:id", sequenceController.UpdateSequence)
	sequence.Patch("/:id/active", sequenceController.SetSequenceActive)
	sequence.Delete("/:id", sequenceController.DeleteSequence)
	sequence.Post("/:id/enroll", middleware.EnrollRateLimiter(), enrollmentController.EnrollContact)

	// Enrollment routes
	enrollment := api.Group("/enrollments")
	enrollment.Get("/", enrollmentController.GetEnrollments)
	enrollment.Get("/:id", enrollmentController.GetEnrollment)
	enrollment.Get("/:id/logs", enrollmentController.GetEnrollmentLogs)

	// Template routes
	template := api.Group("/templates")
	template.Post("/", templateController.CreateTemplate)
	template.Get("/", templateController.GetTemplates)
	template.Get("/:id", templateController.GetTemplate)
	template.Put("/:id", templateController.UpdateTemplate)
	template.Delete("/:id", templateController.DeleteTemplate)

	// Internal trigger: the cron worker calls the processor directly, this
	// endpoint exists for operators and external schedulers.
	internal := app.Group("/internal", middleware.InternalOnly())
	internal.Post("/sequences/process", processController.RunProcessor)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
