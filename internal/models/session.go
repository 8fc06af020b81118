package models

import "time"

// Session status constants
const (
	SessionStatusActive      = "active"
	SessionStatusDelayed     = "delayed"
	SessionStatusCompleted   = "completed"
	SessionStatusTransferred = "transferred"
	SessionStatusDropped     = "dropped"
)

// ChatSession is the resumable execution state of one customer's traversal
// through a flow. A session is created by the router, advanced by the
// interpreter on every inbound message, and becomes immutable once its
// status leaves "active"/"delayed".
type ChatSession struct {
	ID             string `json:"id" gorm:"primaryKey"`
	OrganizationID string `json:"organization_id" gorm:"index"`
	FlowID         string `json:"flow_id" gorm:"index"`
	CustomerID     string `json:"customer_id" gorm:"index"`
	Phone          string `json:"phone"`

	// CurrentNode is the node the session is positioned at: the node last
	// suspended on, or the flow's entry node for a fresh session.
	CurrentNode string `json:"current_node"`

	// Variables is the per-session string environment written by
	// set_variable/wait_input nodes and read via {{name}} interpolation.
	Variables map[string]string `json:"variables" gorm:"serializer:json"`

	Status       string `json:"status"` // "active", "delayed", "completed", "transferred", "dropped"
	WaitingInput bool   `json:"waiting_input"`

	// Delay node support: when Status is "delayed", ResumeNode is evaluated
	// once WakeAt passes. Never a blocking sleep.
	ResumeNode string     `json:"resume_node,omitempty"`
	WakeAt     *time.Time `json:"wake_at,omitempty"`

	StartedAt    time.Time  `json:"started_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// IsTerminal reports whether the session can never be resumed again
func (s *ChatSession) IsTerminal() bool {
	switch s.Status {
	case SessionStatusCompleted, SessionStatusTransferred, SessionStatusDropped:
		return true
	}
	return false
}

// SessionStats aggregates persisted sessions by status for analytics
type SessionStats struct {
	Total       int64 `json:"total"`
	Active      int64 `json:"active"`
	Delayed     int64 `json:"delayed"`
	Completed   int64 `json:"completed"`
	Transferred int64 `json:"transferred"`
	Dropped     int64 `json:"dropped"`
}
