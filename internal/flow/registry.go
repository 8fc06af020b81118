package flow

import (
	"fmt"

	"github.com/chatdesk-app/chatdesk-backend/internal/models"
)

// Node type constants
const (
	NodeTrigger     = "trigger"
	NodeMessage     = "message"
	NodeButtons     = "buttons"
	NodeList        = "list"
	NodeImage       = "image"
	NodeDocument    = "document"
	NodeWaitInput   = "wait_input"
	NodeDelay       = "delay"
	NodeSetVariable = "set_variable"
	NodeCondition   = "condition"
	NodeAPICall     = "api_call"
	NodeAIResponse  = "ai_response"
	NodeAssignAgent = "assign_agent"
	NodeAddTag      = "add_tag"
	NodeEnd         = "end"
)

// FieldSpec describes one config field of a node type, for editor tooling
type FieldSpec struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"` // "string", "number", "boolean", "select", "buttons", "sections", "map"
	Label    string   `json:"label"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
	Default  any      `json:"default,omitempty"`
}

// NodeTypeSpec is the static description of one node kind: its ports and
// the config fields the editor renders for it.
type NodeTypeSpec struct {
	Type         string      `json:"type"`
	Label        string      `json:"label"`
	Category     string      `json:"category"` // "trigger", "message", "logic", "action"
	Inputs       []string    `json:"inputs"`
	Outputs      []string    `json:"outputs"`
	ConfigFields []FieldSpec `json:"config_fields"`
}

// nodeTypes is the registry: loaded once, read-only afterwards
var nodeTypes = []NodeTypeSpec{
	{
		Type: NodeTrigger, Label: "Trigger", Category: "trigger",
		Inputs: nil, Outputs: []string{"default"},
		ConfigFields: []FieldSpec{
			{Name: "trigger_type", Type: "select", Label: "Trigger type", Required: true,
				Options: []string{models.TriggerKeyword, models.TriggerFirstMessage, models.TriggerButtonClick}},
			{Name: "keywords", Type: "string", Label: "Keywords (comma separated)"},
		},
	},
	{
		Type: NodeMessage, Label: "Send Message", Category: "message",
		Inputs: []string{"default"}, Outputs: []string{"default"},
		ConfigFields: []FieldSpec{
			{Name: "text", Type: "string", Label: "Message text", Required: true},
			{Name: "delay", Type: "number", Label: "Delay (seconds)", Default: 0},
		},
	},
	{
		Type: NodeButtons, Label: "Buttons", Category: "message",
		Inputs: []string{"default"}, Outputs: []string{"*"},
		ConfigFields: []FieldSpec{
			{Name: "text", Type: "string", Label: "Prompt text", Required: true},
			{Name: "buttons", Type: "buttons", Label: "Buttons", Required: true},
			{Name: "variable", Type: "string", Label: "Store reply in variable"},
		},
	},
	{
		Type: NodeList, Label: "List", Category: "message",
		Inputs: []string{"default"}, Outputs: []string{"*"},
		ConfigFields: []FieldSpec{
			{Name: "text", Type: "string", Label: "Prompt text", Required: true},
			{Name: "button_text", Type: "string", Label: "List button label", Default: "Options"},
			{Name: "sections", Type: "sections", Label: "Sections", Required: true},
			{Name: "variable", Type: "string", Label: "Store reply in variable"},
		},
	},
	{
		Type: NodeImage, Label: "Send Image", Category: "message",
		Inputs: []string{"default"}, Outputs: []string{"default"},
		ConfigFields: []FieldSpec{
			{Name: "url", Type: "string", Label: "Image URL", Required: true},
			{Name: "caption", Type: "string", Label: "Caption"},
		},
	},
	{
		Type: NodeDocument, Label: "Send Document", Category: "message",
		Inputs: []string{"default"}, Outputs: []string{"default"},
		ConfigFields: []FieldSpec{
			{Name: "url", Type: "string", Label: "Document URL", Required: true},
			{Name: "filename", Type: "string", Label: "Filename"},
			{Name: "caption", Type: "string", Label: "Caption"},
		},
	},
	{
		Type: NodeWaitInput, Label: "Wait for Input", Category: "logic",
		Inputs: []string{"default"}, Outputs: []string{"default"},
		ConfigFields: []FieldSpec{
			{Name: "variable", Type: "string", Label: "Store input in variable", Default: "input"},
		},
	},
	{
		Type: NodeDelay, Label: "Delay", Category: "logic",
		Inputs: []string{"default"}, Outputs: []string{"default"},
		ConfigFields: []FieldSpec{
			{Name: "seconds", Type: "number", Label: "Seconds", Required: true},
		},
	},
	{
		Type: NodeSetVariable, Label: "Set Variable", Category: "logic",
		Inputs: []string{"default"}, Outputs: []string{"default"},
		ConfigFields: []FieldSpec{
			{Name: "variable", Type: "string", Label: "Variable name", Required: true},
			{Name: "value", Type: "string", Label: "Value", Required: true},
		},
	},
	{
		Type: NodeCondition, Label: "Condition", Category: "logic",
		Inputs: []string{"default"}, Outputs: []string{"true", "false"},
		ConfigFields: []FieldSpec{
			{Name: "variable", Type: "string", Label: "Variable", Required: true},
			{Name: "operator", Type: "select", Label: "Operator", Required: true,
				Options: []string{"equals", "not_equals", "contains", "greater", "less", "expression"}},
			{Name: "value", Type: "string", Label: "Compare value", Required: true},
		},
	},
	{
		Type: NodeAPICall, Label: "API Call", Category: "action",
		Inputs: []string{"default"}, Outputs: []string{"success", "error"},
		ConfigFields: []FieldSpec{
			{Name: "method", Type: "select", Label: "Method", Required: true,
				Options: []string{"GET", "POST", "PUT", "PATCH", "DELETE"}, Default: "GET"},
			{Name: "url", Type: "string", Label: "URL", Required: true},
			{Name: "headers", Type: "map", Label: "Headers"},
			{Name: "body", Type: "string", Label: "Request body"},
			{Name: "result_variable", Type: "string", Label: "Store response in variable", Default: "api_response"},
			{Name: "response_path", Type: "string", Label: "JSON path to extract"},
		},
	},
	{
		Type: NodeAIResponse, Label: "AI Response", Category: "action",
		Inputs: []string{"default"}, Outputs: []string{"default"},
		ConfigFields: []FieldSpec{
			{Name: "prompt", Type: "string", Label: "Prompt", Required: true},
			{Name: "result_variable", Type: "string", Label: "Store response in variable", Default: "ai_response"},
			{Name: "fallback", Type: "string", Label: "Fallback text"},
		},
	},
	{
		Type: NodeAssignAgent, Label: "Assign to Agent", Category: "action",
		Inputs: []string{"default"}, Outputs: nil,
		ConfigFields: []FieldSpec{
			{Name: "agent_id", Type: "string", Label: "Agent"},
			{Name: "message", Type: "string", Label: "Handover message"},
		},
	},
	{
		Type: NodeAddTag, Label: "Add Tag", Category: "action",
		Inputs: []string{"default"}, Outputs: []string{"default"},
		ConfigFields: []FieldSpec{
			{Name: "tag", Type: "string", Label: "Tag", Required: true},
		},
	},
	{
		Type: NodeEnd, Label: "End", Category: "logic",
		Inputs: []string{"default"}, Outputs: nil,
	},
}

// registry indexes nodeTypes by type tag at package init
var registry = func() map[string]*NodeTypeSpec {
	m := make(map[string]*NodeTypeSpec, len(nodeTypes))
	for i := range nodeTypes {
		m[nodeTypes[i].Type] = &nodeTypes[i]
	}
	return m
}()

// Describe returns the registry entry for a node type
func Describe(nodeType string) (*NodeTypeSpec, bool) {
	spec, ok := registry[nodeType]
	return spec, ok
}

// NodeTypeList returns all registered node types, for the editor catalog
func NodeTypeList() []NodeTypeSpec {
	return nodeTypes
}

// ValidateFlow checks graph integrity: every edge endpoint must exist, every
// node type must be registered, and labeled edges must use handles the node
// type declares ("*" means any handle, used by buttons/list whose ports are
// the configured button ids).
func ValidateFlow(f *models.Flow) error {
	ids := make(map[string]*models.Node, len(f.Nodes))
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if n.ID == "" {
			return fmt.Errorf("node at index %d has no id", i)
		}
		if _, ok := registry[n.Type]; !ok {
			return fmt.Errorf("node %s: unknown type %q", n.ID, n.Type)
		}
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		ids[n.ID] = n
	}
	for _, e := range f.Edges {
		src, ok := ids[e.Source]
		if !ok {
			return fmt.Errorf("edge %s: source node %q not found", e.ID, e.Source)
		}
		if _, ok := ids[e.Target]; !ok {
			return fmt.Errorf("edge %s: target node %q not found", e.ID, e.Target)
		}
		if e.SourceHandle == "" {
			continue
		}
		spec := registry[src.Type]
		if !handleAllowed(spec, e.SourceHandle) {
			return fmt.Errorf("edge %s: node type %q has no output %q", e.ID, src.Type, e.SourceHandle)
		}
	}
	return nil
}

func handleAllowed(spec *NodeTypeSpec, handle string) bool {
	for _, out := range spec.Outputs {
		if out == "*" || out == handle {
			return true
		}
	}
	return false
}
