package flow

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatdesk-app/chatdesk-backend/internal/models"
	"github.com/chatdesk-app/chatdesk-backend/internal/storage"
)

// Store is the persistence capability the router needs. The full
// storage.Store satisfies it; tests use the memory implementation.
type Store interface {
	SessionWriter
	CreateSession(session *models.ChatSession) (*models.ChatSession, error)
	GetActiveSessionByCustomer(organizationID, customerID string) (*models.ChatSession, error)
	GetFlow(id string) (*models.Flow, error)
	GetActiveFlows(organizationID string) ([]*models.Flow, error)
}

// RouteResult is the outcome of routing one inbound message
type RouteResult struct {
	Matched   bool                `json:"matched"`
	Completed bool                `json:"completed"`
	Session   *models.ChatSession `json:"session,omitempty"`
	Actions   []models.Action     `json:"actions"`
}

// Router maps each inbound message onto a session: resume the customer's
// active session if one exists, otherwise match the message against the
// trigger rules of the organization's active flows and start a new one.
type Router struct {
	store  Store
	engine *Interpreter

	// Per-customer mutexes: two rapid messages from one customer must not
	// race on the same session record.
	locks sync.Map
}

// NewRouter creates a router over the given store and interpreter
func NewRouter(store Store, engine *Interpreter) *Router {
	return &Router{store: store, engine: engine}
}

// Route handles one inbound message for a customer
func (r *Router) Route(organizationID, customerID, phone, message string) (*RouteResult, error) {
	mu := r.customerLock(organizationID + "/" + customerID)
	mu.Lock()
	defer mu.Unlock()

	session, err := r.store.GetActiveSessionByCustomer(organizationID, customerID)
	if err != nil {
		return nil, err
	}

	if session != nil {
		if session.Status == models.SessionStatusDelayed {
			// A reply during a delay neither advances the session nor forks
			// a second one; the wake-up job resumes it.
			return &RouteResult{Matched: true, Session: session}, nil
		}
		f, err := r.store.GetFlow(session.FlowID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			// Storage failure: leave the session untouched so the message
			// can be retried once storage recovers.
			return nil, err
		}
		if f == nil {
			// The flow was deleted under the session: terminate it quietly
			// and let the message try to match a fresh flow below.
			if err := r.completeQuietly(session); err != nil {
				return nil, err
			}
		} else {
			msg := message
			res, err := r.engine.Step(f, session, session.CurrentNode, &msg)
			if err != nil {
				return nil, err
			}
			return &RouteResult{Matched: true, Completed: res.Completed, Session: session, Actions: res.Actions}, nil
		}
	}

	flows, err := r.store.GetActiveFlows(organizationID)
	if err != nil {
		return nil, err
	}

	// First match wins, in declaration order
	var matched *models.Flow
	for _, f := range flows {
		if TriggerMatches(f, message) {
			matched = f
			break
		}
	}
	if matched == nil {
		return &RouteResult{Matched: false}, nil
	}

	session = &models.ChatSession{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		FlowID:         matched.ID,
		CustomerID:     customerID,
		Phone:          phone,
		CurrentNode:    EntryNode(matched),
		Variables:      make(map[string]string),
		Status:         models.SessionStatusActive,
		StartedAt:      time.Now(),
		LastActiveAt:   time.Now(),
	}
	if _, err := r.store.CreateSession(session); err != nil {
		return nil, err
	}

	res, err := r.engine.Step(matched, session, session.CurrentNode, nil)
	if err != nil {
		return nil, err
	}
	return &RouteResult{Matched: true, Completed: res.Completed, Session: session, Actions: res.Actions}, nil
}

// Resume continues a delayed session at its parked node. It takes the same
// per-customer lock as Route, so a message arriving mid-wake cannot step
// the session concurrently with the wake-up job.
func (r *Router) Resume(session *models.ChatSession) (*StepResult, error) {
	mu := r.customerLock(session.OrganizationID + "/" + session.CustomerID)
	mu.Lock()
	defer mu.Unlock()

	// The session may have been terminated while we waited for the lock
	if session.Status != models.SessionStatusDelayed {
		return &StepResult{Completed: session.IsTerminal()}, nil
	}

	f, err := r.store.GetFlow(session.FlowID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		// Storage failure: the session stays delayed, the next wake-up
		// tick retries.
		return nil, err
	}
	if f == nil {
		if err := r.completeQuietly(session); err != nil {
			return nil, err
		}
		return &StepResult{Completed: true}, nil
	}

	next := session.ResumeNode
	session.Status = models.SessionStatusActive
	session.ResumeNode = ""
	session.WakeAt = nil
	return r.engine.Step(f, session, next, nil)
}

func (r *Router) completeQuietly(session *models.ChatSession) error {
	now := time.Now()
	session.Status = models.SessionStatusCompleted
	session.EndedAt = &now
	return r.store.UpdateSession(session)
}

// TriggerMatches reports whether an inbound message fires a flow's trigger.
// first_message always matches; keyword matches on a case-insensitive
// substring; button_click flows are started by interactive payloads, never
// by plain text.
func TriggerMatches(f *models.Flow, message string) bool {
	switch f.TriggerType {
	case models.TriggerFirstMessage:
		return true
	case models.TriggerKeyword:
		lower := strings.ToLower(message)
		for _, kw := range f.TriggerKeywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

func (r *Router) customerLock(key string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
