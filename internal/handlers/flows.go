package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/chatdesk-app/chatdesk-backend/internal/flow"
	"github.com/chatdesk-app/chatdesk-backend/internal/models"
	"github.com/chatdesk-app/chatdesk-backend/internal/storage"
)

// FlowHandler handles flow CRUD requests
type FlowHandler struct {
	store storage.Store
}

// NewFlowHandler creates a new flow handler
func NewFlowHandler(store storage.Store) *FlowHandler {
	return &FlowHandler{store: store}
}

// organizationID resolves the tenant for a request. Authentication lives in
// front of this service; by the time a request lands here the header is
// trusted.
func organizationID(c *fiber.Ctx) string {
	if org := c.Get("X-Organization-ID"); org != "" {
		return org
	}
	return c.Query("organization_id")
}

// CreateFlow creates a new flow for the organization
func (h *FlowHandler) CreateFlow(c *fiber.Ctx) error {
	org := organizationID(c)
	if org == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Organization ID is required",
		})
	}

	var f models.Flow
	if err := c.BodyParser(&f); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if f.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Flow name is required",
		})
	}
	if err := flow.ValidateFlow(&f); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	f.ID = ""
	f.OrganizationID = org

	created, err := h.store.CreateFlow(&f)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create flow",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Flow created successfully",
		"flow":    created,
	})
}

// ListFlows returns all flows of the organization
func (h *FlowHandler) ListFlows(c *fiber.Ctx) error {
	org := organizationID(c)
	if org == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Organization ID is required",
		})
	}

	flows, err := h.store.GetFlowsByOrganization(org)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list flows",
		})
	}

	return c.JSON(fiber.Map{
		"flows": flows,
		"count": len(flows),
	})
}

// GetFlow returns one flow by id
func (h *FlowHandler) GetFlow(c *fiber.Ctx) error {
	f, fail := h.loadFlow(c)
	if fail != nil {
		return fail(c)
	}
	return c.JSON(fiber.Map{"flow": f})
}

// UpdateFlow replaces a flow's definition
func (h *FlowHandler) UpdateFlow(c *fiber.Ctx) error {
	existing, fail := h.loadFlow(c)
	if fail != nil {
		return fail(c)
	}

	var f models.Flow
	if err := c.BodyParser(&f); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := flow.ValidateFlow(&f); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// Identity and ownership never change on update
	f.ID = existing.ID
	f.OrganizationID = existing.OrganizationID
	f.CreatedAt = existing.CreatedAt

	if err := h.store.UpdateFlow(&f); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update flow",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Flow updated successfully",
		"flow":    f,
	})
}

// DeleteFlow removes a flow
func (h *FlowHandler) DeleteFlow(c *fiber.Ctx) error {
	f, fail := h.loadFlow(c)
	if fail != nil {
		return fail(c)
	}

	if err := h.store.DeleteFlow(f.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete flow",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Flow deleted successfully",
	})
}

// DuplicateFlow creates an inactive copy of a flow
func (h *FlowHandler) DuplicateFlow(c *fiber.Ctx) error {
	f, fail := h.loadFlow(c)
	if fail != nil {
		return fail(c)
	}

	copyFlow := *f
	copyFlow.ID = uuid.NewString()
	copyFlow.Name = f.Name + " (copy)"
	copyFlow.IsActive = false

	created, err := h.store.CreateFlow(&copyFlow)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to duplicate flow",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Flow duplicated successfully",
		"flow":    created,
	})
}

// ToggleFlow flips a flow's is_active gate
func (h *FlowHandler) ToggleFlow(c *fiber.Ctx) error {
	f, fail := h.loadFlow(c)
	if fail != nil {
		return fail(c)
	}

	f.IsActive = !f.IsActive
	if err := h.store.UpdateFlow(f); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to toggle flow",
		})
	}

	return c.JSON(fiber.Map{
		"message":   "Flow toggled successfully",
		"is_active": f.IsActive,
	})
}

// NodeTypes returns the static node type catalog for the flow editor
func (h *FlowHandler) NodeTypes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"node_types": flow.NodeTypeList(),
	})
}

// loadFlow fetches the flow in :id and checks it belongs to the caller's
// organization. Returns a responder func on failure.
func (h *FlowHandler) loadFlow(c *fiber.Ctx) (*models.Flow, func(*fiber.Ctx) error) {
	org := organizationID(c)
	if org == "" {
		return nil, func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Organization ID is required",
			})
		}
	}

	f, err := h.store.GetFlow(c.Params("id"))
	if err != nil || f == nil || f.OrganizationID != org {
		return nil, func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Flow not found",
			})
		}
	}
	return f, nil
}
