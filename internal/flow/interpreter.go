package flow

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/expr-lang/expr"
	"github.com/go-resty/resty/v2"

	"github.com/chatdesk-app/chatdesk-backend/internal/models"
)

// maxNodesPerStep bounds one interpreter step. A well-formed flow reaches a
// suspending or terminal node long before this; hitting the bound means the
// graph has a cycle with no suspension point, which is a per-step error.
const maxNodesPerStep = 100

// apiCallTimeout bounds the api_call node's outbound request
const apiCallTimeout = 10 * time.Second

// SessionWriter is the persistence capability the interpreter needs:
// one write per visited node so a crash mid-step resumes at the right node.
type SessionWriter interface {
	UpdateSession(session *models.ChatSession) error
}

// Responder produces the ai_response node's text. Implementations call
// whatever model backend is configured; the interpreter only contracts for
// a synchronous answer or an error.
type Responder interface {
	Respond(prompt string, variables map[string]string) (string, error)
}

// StepResult is what one interpreter step produced: the ordered actions for
// the delivery channel, and whether the session reached a terminal state.
type StepResult struct {
	Actions   []models.Action `json:"actions"`
	Completed bool            `json:"completed"`
}

// Interpreter walks a flow graph for one session at a time
type Interpreter struct {
	sessions  SessionWriter
	http      *resty.Client
	responder Responder
}

// NewInterpreter creates an interpreter. responder may be nil, in which case
// ai_response nodes fall back to their configured fallback text.
func NewInterpreter(sessions SessionWriter, responder Responder) *Interpreter {
	return &Interpreter{
		sessions:  sessions,
		http:      resty.New().SetTimeout(apiCallTimeout),
		responder: responder,
	}
}

// SetHTTPClient swaps the client used by api_call nodes (tests)
func (it *Interpreter) SetHTTPClient(client *resty.Client) {
	it.http = client
}

// Step advances a session through the flow starting at nodeID, accumulating
// actions until execution suspends (waiting for input, delayed, transferred)
// or terminates (end node, or no outgoing edge). inbound carries the
// customer's message when the session is being resumed.
func (it *Interpreter) Step(f *models.Flow, session *models.ChatSession, nodeID string, inbound *string) (*StepResult, error) {
	if session.Variables == nil {
		session.Variables = make(map[string]string)
	}
	vars := Variables(session.Variables)
	result := &StepResult{}

	// Resume: the suspended node consumes the inbound message first
	if inbound != nil {
		nodeID = it.consumeInbound(f, session, nodeID, *inbound, vars)
	}

	visited := 0
	for {
		if nodeID == "" {
			it.complete(session)
			result.Completed = true
			break
		}
		node := f.FindNode(nodeID)
		if node == nil {
			// Unresolvable reference: silent termination, never an error
			// surfaced to the customer.
			log.Printf("flow %s: node %q not found, ending session %s", f.ID, nodeID, session.ID)
			it.complete(session)
			result.Completed = true
			break
		}

		visited++
		if visited > maxNodesPerStep {
			return result, fmt.Errorf("flow %s: aborted after %d nodes in one step (cycle without suspension?)", f.ID, maxNodesPerStep)
		}

		// Position the session before evaluating, so a crash mid-step
		// resumes here instead of replaying the whole step.
		session.CurrentNode = nodeID
		session.LastActiveAt = time.Now()
		if err := it.persist(session); err != nil {
			return result, err
		}

		next, halted, err := it.evaluate(f, node, session, vars, result)
		if err != nil {
			return result, err
		}
		if halted {
			break
		}
		if next == "" {
			// Pass-through node with no outgoing edge: the flow just ends
			it.complete(session)
			result.Completed = true
			break
		}
		nodeID = next
	}

	if session.IsTerminal() {
		result.Completed = true
	}
	if err := it.persist(session); err != nil {
		return result, err
	}
	return result, nil
}

// consumeInbound applies the inbound message to the node the session is
// suspended on and returns the node id evaluation should continue from.
func (it *Interpreter) consumeInbound(f *models.Flow, session *models.ChatSession, nodeID, inbound string, vars Variables) string {
	node := f.FindNode(nodeID)
	if node == nil {
		return nodeID
	}

	switch node.Type {
	case NodeWaitInput:
		var cfg WaitInputConfig
		if err := decodeConfig(node, &cfg); err != nil {
			log.Printf("flow %s: %v", f.ID, err)
		}
		name := cfg.Variable
		if name == "" {
			name = "input"
		}
		vars.Set(name, inbound)
		session.WaitingInput = false
		if edge := OutgoingEdge(f, node.ID, ""); edge != nil {
			return edge.Target
		}
		return ""

	case NodeButtons:
		var cfg ButtonsConfig
		if err := decodeConfig(node, &cfg); err != nil {
			log.Printf("flow %s: %v", f.ID, err)
		}
		if cfg.Variable != "" {
			vars.Set(cfg.Variable, inbound)
		}
		handle := matchButtonReply(cfg.Buttons, inbound)
		return it.resumeChoice(f, session, node, handle)

	case NodeList:
		var cfg ListConfig
		if err := decodeConfig(node, &cfg); err != nil {
			log.Printf("flow %s: %v", f.ID, err)
		}
		if cfg.Variable != "" {
			vars.Set(cfg.Variable, inbound)
		}
		handle := matchListReply(cfg.Sections, inbound)
		return it.resumeChoice(f, session, node, handle)
	}

	return nodeID
}

// resumeChoice follows the labeled edge for a button/list reply, falling
// back to the node's unlabeled edge. No match at all re-evaluates the node,
// which re-sends the prompt.
func (it *Interpreter) resumeChoice(f *models.Flow, session *models.ChatSession, node *models.Node, handle string) string {
	var edge *models.Edge
	if handle != "" {
		edge = OutgoingEdge(f, node.ID, handle)
	}
	if edge == nil {
		edge = OutgoingEdge(f, node.ID, "")
	}
	if edge == nil {
		return node.ID
	}
	session.WaitingInput = false
	return edge.Target
}

// matchButtonReply maps a customer reply onto a button id. Replies arrive
// either as the button id (interactive payload) or the title typed back.
func matchButtonReply(buttons []models.Button, reply string) string {
	r := strings.TrimSpace(strings.ToLower(reply))
	for _, b := range buttons {
		if strings.ToLower(b.ID) == r || strings.ToLower(b.Title) == r {
			return b.ID
		}
	}
	return ""
}

func matchListReply(sections []models.ListSection, reply string) string {
	r := strings.TrimSpace(strings.ToLower(reply))
	for _, sec := range sections {
		for _, row := range sec.Rows {
			if strings.ToLower(row.ID) == r || strings.ToLower(row.Title) == r {
				return row.ID
			}
		}
	}
	return ""
}

// evaluate runs one node and reports (nextNodeID, halted, err). halted means
// the step is over with the session left in whatever status the node set;
// otherwise the caller continues to nextNodeID ("" means no outgoing edge).
func (it *Interpreter) evaluate(f *models.Flow, node *models.Node, session *models.ChatSession, vars Variables, result *StepResult) (string, bool, error) {
	switch node.Type {
	case NodeTrigger:
		// Entry marker only; nothing to do
		return it.nextDefault(f, node), false, nil

	case NodeMessage:
		var cfg MessageConfig
		if err := decodeConfig(node, &cfg); err != nil {
			return "", false, err
		}
		result.Actions = append(result.Actions, models.Action{
			Type:  models.ActionSendMessage,
			Text:  vars.Interpolate(cfg.Text),
			Delay: cfg.Delay,
		})
		return it.nextDefault(f, node), false, nil

	case NodeButtons:
		var cfg ButtonsConfig
		if err := decodeConfig(node, &cfg); err != nil {
			return "", false, err
		}
		result.Actions = append(result.Actions, models.Action{
			Type:    models.ActionSendButtons,
			Text:    vars.Interpolate(cfg.Text),
			Buttons: cfg.Buttons,
		})
		session.WaitingInput = true
		return "", true, nil

	case NodeList:
		var cfg ListConfig
		if err := decodeConfig(node, &cfg); err != nil {
			return "", false, err
		}
		result.Actions = append(result.Actions, models.Action{
			Type:       models.ActionSendList,
			Text:       vars.Interpolate(cfg.Text),
			ButtonText: cfg.ButtonText,
			Sections:   cfg.Sections,
		})
		session.WaitingInput = true
		return "", true, nil

	case NodeImage:
		var cfg ImageConfig
		if err := decodeConfig(node, &cfg); err != nil {
			return "", false, err
		}
		result.Actions = append(result.Actions, models.Action{
			Type:    models.ActionSendImage,
			URL:     vars.Interpolate(cfg.URL),
			Caption: vars.Interpolate(cfg.Caption),
		})
		return it.nextDefault(f, node), false, nil

	case NodeDocument:
		var cfg DocumentConfig
		if err := decodeConfig(node, &cfg); err != nil {
			return "", false, err
		}
		result.Actions = append(result.Actions, models.Action{
			Type:     models.ActionSendDocument,
			URL:      vars.Interpolate(cfg.URL),
			Filename: cfg.Filename,
			Caption:  vars.Interpolate(cfg.Caption),
		})
		return it.nextDefault(f, node), false, nil

	case NodeWaitInput:
		// The next inbound message is captured on resume
		session.WaitingInput = true
		return "", true, nil

	case NodeDelay:
		var cfg DelayConfig
		if err := decodeConfig(node, &cfg); err != nil {
			return "", false, err
		}
		if cfg.Seconds <= 0 {
			return it.nextDefault(f, node), false, nil
		}
		// Non-blocking: park the session and let the wake-up job resume it
		wake := time.Now().Add(time.Duration(cfg.Seconds) * time.Second)
		session.Status = models.SessionStatusDelayed
		session.WakeAt = &wake
		session.ResumeNode = it.nextDefault(f, node)
		return "", true, nil

	case NodeSetVariable:
		var cfg SetVariableConfig
		if err := decodeConfig(node, &cfg); err != nil {
			return "", false, err
		}
		if cfg.Variable != "" {
			vars.Set(cfg.Variable, vars.Interpolate(cfg.Value))
		}
		return it.nextDefault(f, node), false, nil

	case NodeCondition:
		var cfg ConditionConfig
		if err := decodeConfig(node, &cfg); err != nil {
			return "", false, err
		}
		handle := "false"
		if it.evalCondition(cfg, vars) {
			handle = "true"
		}
		edge := OutgoingEdge(f, node.ID, handle)
		if edge == nil {
			// No edge for the computed branch: execution stalls on this
			// node, session stays active. Reported, not raised.
			log.Printf("flow %s: condition %s has no %q edge, session %s stalled", f.ID, node.ID, handle, session.ID)
			return "", true, nil
		}
		return edge.Target, false, nil

	case NodeAPICall:
		var cfg APICallConfig
		if err := decodeConfig(node, &cfg); err != nil {
			return "", false, err
		}
		value, callErr := it.execAPICall(cfg, vars)
		name := cfg.ResultVariable
		if name == "" {
			name = "api_response"
		}
		vars.Set(name, value)
		handle := "success"
		if callErr != nil {
			log.Printf("flow %s: api_call %s failed: %v", f.ID, node.ID, callErr)
			handle = "error"
		}
		edge := OutgoingEdge(f, node.ID, handle)
		if edge == nil {
			edge = OutgoingEdge(f, node.ID, "")
		}
		if edge == nil {
			log.Printf("flow %s: api_call %s has no %q edge, session %s stalled", f.ID, node.ID, handle, session.ID)
			return "", true, nil
		}
		return edge.Target, false, nil

	case NodeAIResponse:
		var cfg AIResponseConfig
		if err := decodeConfig(node, &cfg); err != nil {
			return "", false, err
		}
		name := cfg.ResultVariable
		if name == "" {
			name = "ai_response"
		}
		vars.Set(name, it.aiRespond(cfg, vars))
		return it.nextDefault(f, node), false, nil

	case NodeAssignAgent:
		var cfg AssignAgentConfig
		if err := decodeConfig(node, &cfg); err != nil {
			return "", false, err
		}
		result.Actions = append(result.Actions, models.Action{
			Type:    models.ActionAssignAgent,
			AgentID: cfg.AgentID,
			Message: vars.Interpolate(cfg.Message),
		})
		it.transfer(session)
		return "", true, nil

	case NodeAddTag:
		var cfg AddTagConfig
		if err := decodeConfig(node, &cfg); err != nil {
			return "", false, err
		}
		result.Actions = append(result.Actions, models.Action{
			Type: models.ActionAddTag,
			Tag:  vars.Interpolate(cfg.Tag),
		})
		return it.nextDefault(f, node), false, nil

	case NodeEnd:
		it.complete(session)
		return "", true, nil

	default:
		log.Printf("flow %s: unknown node type %q at %s, ending session %s", f.ID, node.Type, node.ID, session.ID)
		it.complete(session)
		return "", true, nil
	}
}

// nextDefault returns the target of the node's unlabeled edge, or ""
func (it *Interpreter) nextDefault(f *models.Flow, node *models.Node) string {
	if edge := OutgoingEdge(f, node.ID, ""); edge != nil {
		return edge.Target
	}
	return ""
}

// evalCondition computes the boolean for a condition node
func (it *Interpreter) evalCondition(cfg ConditionConfig, vars Variables) bool {
	val, set := vars.Get(cfg.Variable)
	compare := vars.Interpolate(cfg.Value)

	switch cfg.Operator {
	case "equals":
		return val == compare
	case "not_equals":
		return val != compare
	case "contains":
		return strings.Contains(val, compare)
	case "greater", "less":
		if !set {
			// An unset variable never compares numerically
			return false
		}
		a, errA := toNumber(val)
		b, errB := toNumber(compare)
		if errA != nil || errB != nil {
			// Non-numeric comparison is always false
			return false
		}
		if cfg.Operator == "greater" {
			return a > b
		}
		return a < b
	case "expression":
		program, err := expr.Compile(cfg.Value, expr.Env(vars.Env()), expr.AllowUndefinedVariables())
		if err != nil {
			log.Printf("condition expression %q: %v", cfg.Value, err)
			return false
		}
		out, err := expr.Run(program, vars.Env())
		if err != nil {
			log.Printf("condition expression %q: %v", cfg.Value, err)
			return false
		}
		b, ok := out.(bool)
		return ok && b
	}
	return false
}

// toNumber coerces a condition operand: blank strings count as zero,
// anything else must parse as a float.
func toNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// execAPICall performs the api_call node's HTTP request and returns the
// value to store in the result variable.
func (it *Interpreter) execAPICall(cfg APICallConfig, vars Variables) (string, error) {
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = "GET"
	}

	req := it.http.R()
	for k, v := range cfg.Headers {
		req.SetHeader(k, vars.Interpolate(v))
	}
	if cfg.Body != "" {
		req.SetBody(vars.Interpolate(cfg.Body))
	}

	resp, err := req.Execute(method, vars.Interpolate(cfg.URL))
	if err != nil {
		return "", err
	}

	value := resp.String()
	if cfg.ResponsePath != "" {
		if parsed, perr := gabs.ParseJSON(resp.Body()); perr == nil {
			if v := parsed.Path(cfg.ResponsePath); v != nil {
				if s, ok := v.Data().(string); ok {
					value = s
				} else {
					value = v.String()
				}
			}
		}
	}

	if resp.IsError() {
		return value, fmt.Errorf("status %d", resp.StatusCode())
	}
	return value, nil
}

// aiRespond resolves the ai_response node's text: the configured responder
// if available, else the interpolated fallback. Deterministic when stubbed.
func (it *Interpreter) aiRespond(cfg AIResponseConfig, vars Variables) string {
	if it.responder != nil {
		out, err := it.responder.Respond(vars.Interpolate(cfg.Prompt), vars)
		if err == nil {
			return out
		}
		log.Printf("ai_response failed, using fallback: %v", err)
	}
	return vars.Interpolate(cfg.Fallback)
}

func (it *Interpreter) complete(session *models.ChatSession) {
	now := time.Now()
	session.Status = models.SessionStatusCompleted
	session.WaitingInput = false
	session.EndedAt = &now
}

func (it *Interpreter) transfer(session *models.ChatSession) {
	now := time.Now()
	session.Status = models.SessionStatusTransferred
	session.WaitingInput = false
	session.EndedAt = &now
}

func (it *Interpreter) persist(session *models.ChatSession) error {
	if it.sessions == nil {
		return nil
	}
	return it.sessions.UpdateSession(session)
}
