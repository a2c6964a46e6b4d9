package middleware

import (
	"strings"

	"bidflow/config"
	"bidflow/models"
	"bidflow/utils"

	"github.com/gofiber/fiber/v2"
)

func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Try to get token from Authorization header first
		var token string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid authorization format",
				})
			}
			token = tokenParts[1]
		} else {
			// Fall back to cookie if header not present
			token = c.Cookies("access_token")
			if token == "" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Authorization required",
				})
			}
		}

		claims, err := utils.ParseJWTToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		var user models.User
		if err := config.DB.First(&user, claims.UserID).Error; err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "User not found",
			})
		}

		if !user.IsActive {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Account is not active",
			})
		}

		if claims.TokenVersion != user.TokenVersion {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token version",
			})
		}

		c.Locals("user", &user)
		c.Locals("userID", user.ID)
		c.Locals("sessionID", claims.SessionID)

		return c.Next()
	}
}

// InternalOnly guards internal trigger endpoints with a shared secret. In
// development an empty configured token leaves the endpoint open.
func InternalOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		expected := config.AppConfig.InternalToken
		if expected != "" && c.Get("X-Internal-Token") != expected {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid internal token",
			})
		}
		return c.Next()
	}
}
