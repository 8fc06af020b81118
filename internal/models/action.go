package models

// Action type constants
const (
	ActionSendMessage  = "send_message"
	ActionSendButtons  = "send_buttons"
	ActionSendList     = "send_list"
	ActionSendImage    = "send_image"
	ActionSendDocument = "send_document"
	ActionAssignAgent  = "assign_agent"
	ActionAddTag       = "add_tag"
)

// Button is one reply option on a send_buttons action
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ListRow is one selectable row inside a list section
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ListSection groups rows on a send_list action
type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// Action is one side-effecting instruction emitted by the interpreter for
// the delivery channel to execute. Type selects which fields are set.
type Action struct {
	Type string `json:"type"`

	// send_message, send_buttons, send_list
	Text string `json:"text,omitempty"`

	// send_message: seconds to pause before sending (delivery-side pacing)
	Delay int `json:"delay,omitempty"`

	// send_buttons
	Buttons []Button `json:"buttons,omitempty"`

	// send_list
	ButtonText string        `json:"button_text,omitempty"`
	Sections   []ListSection `json:"sections,omitempty"`

	// send_image, send_document
	URL      string `json:"url,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`

	// assign_agent
	AgentID string `json:"agent_id,omitempty"`
	Message string `json:"message,omitempty"`

	// add_tag
	Tag string `json:"tag,omitempty"`
}
