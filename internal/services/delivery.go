package services

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chatdesk-app/chatdesk-backend/internal/models"
)

// Dispatcher hands the interpreter's actions to a delivery channel, in
// order. Delivery is at-most-once: a failed send is logged, never retried
// through the flow engine.
type Dispatcher interface {
	Dispatch(phone string, actions []models.Action) error
}

// TwilioDispatcher delivers actions over WhatsApp via Twilio
type TwilioDispatcher struct {
	twilio *TwilioService
}

// NewTwilioDispatcher creates a dispatcher over a Twilio service
func NewTwilioDispatcher(twilio *TwilioService) *TwilioDispatcher {
	return &TwilioDispatcher{twilio: twilio}
}

// Dispatch sends each action in order. The send_message delay field is
// delivery-side pacing and only sleeps the dispatching goroutine.
func (d *TwilioDispatcher) Dispatch(phone string, actions []models.Action) error {
	for _, action := range actions {
		if action.Type == models.ActionSendMessage && action.Delay > 0 {
			time.Sleep(time.Duration(action.Delay) * time.Second)
		}
		if err := d.send(phone, action); err != nil {
			log.Printf("❌ Failed to deliver %s to %s: %v", action.Type, phone, err)
			return err
		}
	}
	return nil
}

func (d *TwilioDispatcher) send(phone string, action models.Action) error {
	switch action.Type {
	case models.ActionSendMessage:
		return d.twilio.SendWhatsAppMessage(phone, action.Text)

	case models.ActionSendButtons:
		// Rendered as a numbered prompt; the reply text is matched back to
		// the button by the interpreter.
		return d.twilio.SendWhatsAppMessage(phone, renderButtons(action))

	case models.ActionSendList:
		return d.twilio.SendWhatsAppMessage(phone, renderList(action))

	case models.ActionSendImage, models.ActionSendDocument:
		return d.twilio.SendWhatsAppMedia(phone, action.URL, action.Caption)

	case models.ActionAssignAgent:
		// The handover itself is the CRM's concern; the customer only sees
		// the optional handover message.
		if action.Message != "" {
			return d.twilio.SendWhatsAppMessage(phone, action.Message)
		}
		return nil

	case models.ActionAddTag:
		// Tagging happens in the CRM, nothing goes to the customer
		log.Printf("🏷️  Tag %q recorded for %s", action.Tag, phone)
		return nil
	}

	log.Printf("⚠️  Unknown action type %q skipped", action.Type)
	return nil
}

func renderButtons(action models.Action) string {
	var b strings.Builder
	b.WriteString(action.Text)
	for i, btn := range action.Buttons {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, btn.Title))
	}
	return b.String()
}

func renderList(action models.Action) string {
	var b strings.Builder
	b.WriteString(action.Text)
	for _, section := range action.Sections {
		if section.Title != "" {
			b.WriteString("\n\n*" + section.Title + "*")
		}
		for _, row := range section.Rows {
			b.WriteString("\n- " + row.Title)
			if row.Description != "" {
				b.WriteString(": " + row.Description)
			}
		}
	}
	return b.String()
}

// LogDispatcher logs actions instead of sending them. Used when Twilio is
// not configured (local development) and in tests.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(phone string, actions []models.Action) error {
	for _, action := range actions {
		log.Printf("📤 [not sent] %s -> %s: %s", action.Type, phone, action.Text)
	}
	return nil
}
