package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatdesk-app/chatdesk-backend/internal/storage"
)

// SessionHandler serves read-only session views and analytics
type SessionHandler struct {
	store storage.Store
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(store storage.Store) *SessionHandler {
	return &SessionHandler{store: store}
}

// ListSessions returns the organization's sessions
func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	org := organizationID(c)
	if org == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Organization ID is required",
		})
	}

	sessions, err := h.store.GetSessionsByOrganization(org)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sessions",
		})
	}

	return c.JSON(fiber.Map{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession returns one session by id
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	org := organizationID(c)
	if org == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Organization ID is required",
		})
	}

	session, err := h.store.GetSession(c.Params("id"))
	if err != nil || session.OrganizationID != org {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	return c.JSON(fiber.Map{"session": session})
}

// Stats returns session counts by status for the organization
func (h *SessionHandler) Stats(c *fiber.Ctx) error {
	org := organizationID(c)
	if org == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Organization ID is required",
		})
	}

	stats, err := h.store.GetSessionStats(org)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute session stats",
		})
	}

	return c.JSON(fiber.Map{"stats": stats})
}
