package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/chatdesk-app/chatdesk-backend/internal/flow"
	"github.com/chatdesk-app/chatdesk-backend/internal/services"
)

// WebhookHandler processes inbound customer messages
type WebhookHandler struct {
	router     *flow.Router
	dispatcher services.Dispatcher
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(router *flow.Router, dispatcher services.Dispatcher) *WebhookHandler {
	return &WebhookHandler{
		router:     router,
		dispatcher: dispatcher,
	}
}

// TwilioWebhookPayload represents an incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid string `form:"MessageSid"`
	AccountSid string `form:"AccountSid"`
	From       string `form:"From"` // "whatsapp:+919876543210"
	To         string `form:"To"`
	Body       string `form:"Body"`
	ButtonText string `form:"ButtonText"` // set when the customer tapped a button
	NumMedia   string `form:"NumMedia"`
}

// HandleWhatsApp processes Twilio WhatsApp webhooks for one organization.
// The webhook URL is registered per organization (path parameter). Always
// acknowledges with 200: a flow fault must never bounce back to Twilio as
// a delivery error the customer can see.
func (h *WebhookHandler) HandleWhatsApp(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		log.Printf("Error parsing webhook: %v", err)
		return c.SendStatus(fiber.StatusOK)
	}

	org := c.Params("orgId")
	message := payload.Body
	if payload.ButtonText != "" {
		message = payload.ButtonText
	}

	// Status callbacks arrive on the same URL with no body; skip them
	if message == "" || payload.From == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	phone := strings.TrimPrefix(payload.From, "whatsapp:")
	log.Printf("📱 WhatsApp message from %s: %s", phone, message)

	result, err := h.router.Route(org, phone, phone, message)
	if err != nil {
		// Logged for the operator; the customer silently gets no response
		log.Printf("❌ Error routing message from %s: %v", phone, err)
		return c.SendStatus(fiber.StatusOK)
	}

	if result.Matched && len(result.Actions) > 0 {
		// Twilio delivery goes through the per-customer queue, so this is
		// an enqueue that keeps one customer's sends in order
		if err := h.dispatcher.Dispatch(phone, result.Actions); err != nil {
			log.Printf("❌ Failed to dispatch actions to %s: %v", phone, err)
		}
	}

	return c.SendStatus(fiber.StatusOK)
}

// InboundMessage is the JSON shape of the test webhook
type InboundMessage struct {
	OrganizationID string `json:"organization_id"`
	CustomerID     string `json:"customer_id"`
	Phone          string `json:"phone"`
	Message        string `json:"message"`
}

// HandleTest processes test messages (for development): same routing as the
// real webhook, but returns the routing result instead of dispatching.
func (h *WebhookHandler) HandleTest(c *fiber.Ctx) error {
	var payload InboundMessage
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}
	if payload.OrganizationID == "" || payload.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "organization_id and message are required",
		})
	}
	if payload.CustomerID == "" {
		payload.CustomerID = payload.Phone
	}

	log.Printf("🧪 Test message from %s: %s", payload.CustomerID, payload.Message)

	result, err := h.router.Route(payload.OrganizationID, payload.CustomerID, payload.Phone, payload.Message)
	if err != nil {
		log.Printf("Error routing test message: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}

	return c.JSON(fiber.Map{
		"matched":   result.Matched,
		"completed": result.Completed,
		"actions":   result.Actions,
		"session":   result.Session,
	})
}
