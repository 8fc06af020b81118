package models

import "time"

// Trigger type constants
const (
	TriggerKeyword      = "keyword"
	TriggerFirstMessage = "first_message"
	TriggerButtonClick  = "button_click"
)

// Position is where the editor places a node on the canvas.
// Display-only, never consulted during execution.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one typed step inside a flow graph
type Node struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Config   map[string]any `json:"config"`
	Position Position       `json:"position"`
}

// Edge connects two nodes. SourceHandle names the output port taken
// (e.g. "true"/"false" on a condition node); empty for the default port.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// Flow is a persisted conversation graph owned by an organization
type Flow struct {
	ID             string `json:"id" gorm:"primaryKey"`
	OrganizationID string `json:"organization_id" gorm:"index"`
	Name           string `json:"name"`
	Description    string `json:"description"`

	// Trigger rule: how the router decides to start a session on this flow
	TriggerType     string   `json:"trigger_type"` // "keyword", "first_message", "button_click"
	TriggerKeywords []string `json:"trigger_keywords" gorm:"serializer:json"`

	Nodes []Node `json:"nodes" gorm:"serializer:json"`
	Edges []Edge `json:"edges" gorm:"serializer:json"`

	// Inactive flows never start new sessions; running sessions finish normally
	IsActive bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FindNode returns the node with the given id, or nil
func (f *Flow) FindNode(nodeID string) *Node {
	for i := range f.Nodes {
		if f.Nodes[i].ID == nodeID {
			return &f.Nodes[i]
		}
	}
	return nil
}
