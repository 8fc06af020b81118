package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// HealthCheck returns basic service health
func HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "ChatDesk Backend",
		"version": "1.0.0",
	})
}
