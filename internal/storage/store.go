package storage

import (
	"errors"
	"time"

	"github.com/chatdesk-app/chatdesk-backend/internal/models"
)

// ErrNotFound marks lookups whose record does not exist. Callers branch on
// it with errors.Is; any other error is a storage failure.
var ErrNotFound = errors.New("not found")

var storeInstance Store

// SetStore sets the global store instance (call from main.go)
func SetStore(s Store) {
	storeInstance = s
}

// GetStore returns the global store instance
func GetStore() Store {
	return storeInstance
}

// Store defines the interface for storage operations
type Store interface {
	// Flow operations
	CreateFlow(flow *models.Flow) (*models.Flow, error)
	GetFlow(id string) (*models.Flow, error)
	GetFlowsByOrganization(organizationID string) ([]*models.Flow, error)
	// GetActiveFlows returns the organization's is_active flows in creation
	// order; the router's first-match-wins depends on that order.
	GetActiveFlows(organizationID string) ([]*models.Flow, error)
	UpdateFlow(flow *models.Flow) error
	DeleteFlow(id string) error

	// Session operations
	CreateSession(session *models.ChatSession) (*models.ChatSession, error)
	GetSession(id string) (*models.ChatSession, error)
	GetSessionsByOrganization(organizationID string) ([]*models.ChatSession, error)
	// GetActiveSessionByCustomer returns the customer's resumable session
	// ("active" or "delayed"), or nil when there is none. Terminal sessions
	// are treated as absent.
	GetActiveSessionByCustomer(organizationID, customerID string) (*models.ChatSession, error)
	UpdateSession(session *models.ChatSession) error
	// GetDueDelayedSessions returns delayed sessions whose wake time passed
	GetDueDelayedSessions(now time.Time) ([]*models.ChatSession, error)
	// GetStaleActiveSessions returns active sessions idle since before cutoff
	GetStaleActiveSessions(cutoff time.Time) ([]*models.ChatSession, error)
	GetSessionStats(organizationID string) (*models.SessionStats, error)
}
