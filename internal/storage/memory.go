package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatdesk-app/chatdesk-backend/internal/models"
)

// MemoryStore holds all data in memory. Used in tests and when
// USE_MEMORY_STORE=true; not for production.
type MemoryStore struct {
	flows    map[string]*models.Flow
	sessions map[string]*models.ChatSession

	flowMu    sync.RWMutex
	sessionMu sync.RWMutex
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flows:    make(map[string]*models.Flow),
		sessions: make(map[string]*models.ChatSession),
	}
}

// Flow operations

func (m *MemoryStore) CreateFlow(flow *models.Flow) (*models.Flow, error) {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	if flow.ID == "" {
		flow.ID = uuid.NewString()
	}
	flow.CreatedAt = time.Now()
	flow.UpdatedAt = flow.CreatedAt

	m.flows[flow.ID] = flow
	return flow, nil
}

func (m *MemoryStore) GetFlow(id string) (*models.Flow, error) {
	m.flowMu.RLock()
	defer m.flowMu.RUnlock()

	flow, exists := m.flows[id]
	if !exists {
		return nil, fmt.Errorf("flow %s: %w", id, ErrNotFound)
	}
	return flow, nil
}

func (m *MemoryStore) GetFlowsByOrganization(organizationID string) ([]*models.Flow, error) {
	m.flowMu.RLock()
	defer m.flowMu.RUnlock()

	var flows []*models.Flow
	for _, f := range m.flows {
		if f.OrganizationID == organizationID {
			flows = append(flows, f)
		}
	}
	sortFlows(flows)
	return flows, nil
}

func (m *MemoryStore) GetActiveFlows(organizationID string) ([]*models.Flow, error) {
	m.flowMu.RLock()
	defer m.flowMu.RUnlock()

	var flows []*models.Flow
	for _, f := range m.flows {
		if f.OrganizationID == organizationID && f.IsActive {
			flows = append(flows, f)
		}
	}
	sortFlows(flows)
	return flows, nil
}

func (m *MemoryStore) UpdateFlow(flow *models.Flow) error {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	if _, exists := m.flows[flow.ID]; !exists {
		return fmt.Errorf("flow %s: %w", flow.ID, ErrNotFound)
	}
	flow.UpdatedAt = time.Now()
	m.flows[flow.ID] = flow
	return nil
}

func (m *MemoryStore) DeleteFlow(id string) error {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	if _, exists := m.flows[id]; !exists {
		return fmt.Errorf("flow %s: %w", id, ErrNotFound)
	}
	delete(m.flows, id)
	return nil
}

// Session operations

func (m *MemoryStore) CreateSession(session *models.ChatSession) (*models.ChatSession, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	session.LastActiveAt = time.Now()

	m.sessions[session.ID] = session
	return session, nil
}

func (m *MemoryStore) GetSession(id string) (*models.ChatSession, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return session, nil
}

func (m *MemoryStore) GetSessionsByOrganization(organizationID string) ([]*models.ChatSession, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	var sessions []*models.ChatSession
	for _, s := range m.sessions {
		if s.OrganizationID == organizationID {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions, nil
}

func (m *MemoryStore) GetActiveSessionByCustomer(organizationID, customerID string) (*models.ChatSession, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	for _, s := range m.sessions {
		if s.OrganizationID == organizationID && s.CustomerID == customerID && !s.IsTerminal() {
			return s, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) UpdateSession(session *models.ChatSession) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if _, exists := m.sessions[session.ID]; !exists {
		return fmt.Errorf("session %s: %w", session.ID, ErrNotFound)
	}
	m.sessions[session.ID] = session
	return nil
}

func (m *MemoryStore) GetDueDelayedSessions(now time.Time) ([]*models.ChatSession, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	var due []*models.ChatSession
	for _, s := range m.sessions {
		if s.Status == models.SessionStatusDelayed && s.WakeAt != nil && !s.WakeAt.After(now) {
			due = append(due, s)
		}
	}
	return due, nil
}

func (m *MemoryStore) GetStaleActiveSessions(cutoff time.Time) ([]*models.ChatSession, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	var stale []*models.ChatSession
	for _, s := range m.sessions {
		if s.Status == models.SessionStatusActive && s.LastActiveAt.Before(cutoff) {
			stale = append(stale, s)
		}
	}
	return stale, nil
}

func (m *MemoryStore) GetSessionStats(organizationID string) (*models.SessionStats, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	stats := &models.SessionStats{}
	for _, s := range m.sessions {
		if s.OrganizationID != organizationID {
			continue
		}
		stats.Total++
		switch s.Status {
		case models.SessionStatusActive:
			stats.Active++
		case models.SessionStatusDelayed:
			stats.Delayed++
		case models.SessionStatusCompleted:
			stats.Completed++
		case models.SessionStatusTransferred:
			stats.Transferred++
		case models.SessionStatusDropped:
			stats.Dropped++
		}
	}
	return stats, nil
}

func sortFlows(flows []*models.Flow) {
	sort.Slice(flows, func(i, j int) bool {
		return flows[i].CreatedAt.Before(flows[j].CreatedAt)
	})
}
