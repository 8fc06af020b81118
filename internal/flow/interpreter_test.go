package flow_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdesk-app/chatdesk-backend/internal/flow"
	"github.com/chatdesk-app/chatdesk-backend/internal/models"
)

func newSession(f *models.Flow) *models.ChatSession {
	return &models.ChatSession{
		ID:             "ses-1",
		OrganizationID: f.OrganizationID,
		FlowID:         f.ID,
		CustomerID:     "cust-1",
		Phone:          "+15550001111",
		CurrentNode:    flow.EntryNode(f),
		Variables:      make(map[string]string),
		Status:         models.SessionStatusActive,
		StartedAt:      time.Now(),
	}
}

func TestStepMessageThenEnd(t *testing.T) {
	f := &models.Flow{
		ID: "f1",
		Nodes: []models.Node{
			{ID: "start", Type: flow.NodeTrigger},
			{ID: "hello", Type: flow.NodeMessage, Config: map[string]any{"text": "Hello {{name}}"}},
			{ID: "bye", Type: flow.NodeEnd},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "hello"},
			{ID: "e2", Source: "hello", Target: "bye"},
		},
	}
	session := newSession(f)
	engine := flow.NewInterpreter(nil, nil)

	result, err := engine.Step(f, session, "start", nil)
	require.NoError(t, err)

	require.Len(t, result.Actions, 1)
	assert.Equal(t, models.ActionSendMessage, result.Actions[0].Type)
	// No "name" variable set, the placeholder stays literal
	assert.Equal(t, "Hello {{name}}", result.Actions[0].Text)
	assert.True(t, result.Completed)
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.NotNil(t, session.EndedAt)
}

func TestStepNoOutgoingEdgeCompletes(t *testing.T) {
	f := &models.Flow{
		ID: "f1",
		Nodes: []models.Node{
			{ID: "start", Type: flow.NodeTrigger},
			{ID: "hello", Type: flow.NodeMessage, Config: map[string]any{"text": "Hi"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "hello"},
		},
	}
	session := newSession(f)

	result, err := flow.NewInterpreter(nil, nil).Step(f, session, "start", nil)
	require.NoError(t, err)

	assert.Len(t, result.Actions, 1)
	assert.True(t, result.Completed)
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
}

func TestStepUnresolvableNodeCompletesSilently(t *testing.T) {
	f := &models.Flow{ID: "f1", Nodes: []models.Node{{ID: "start", Type: flow.NodeTrigger}}}
	session := newSession(f)

	result, err := flow.NewInterpreter(nil, nil).Step(f, session, "ghost", nil)
	require.NoError(t, err)

	assert.Empty(t, result.Actions)
	assert.True(t, result.Completed)
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
}

func conditionFlow(operator, value string, edges []models.Edge) *models.Flow {
	return &models.Flow{
		ID: "f-cond",
		Nodes: []models.Node{
			{ID: "start", Type: flow.NodeTrigger},
			{ID: "check", Type: flow.NodeCondition, Config: map[string]any{
				"variable": "age", "operator": operator, "value": value,
			}},
			{ID: "adult_msg", Type: flow.NodeMessage, Config: map[string]any{"text": "adult"}},
			{ID: "minor_msg", Type: flow.NodeMessage, Config: map[string]any{"text": "minor"}},
		},
		Edges: append([]models.Edge{{ID: "e0", Source: "start", Target: "check"}}, edges...),
	}
}

func TestConditionOperators(t *testing.T) {
	edges := []models.Edge{
		{ID: "et", Source: "check", Target: "adult_msg", SourceHandle: "true"},
		{ID: "ef", Source: "check", Target: "minor_msg", SourceHandle: "false"},
	}

	tests := []struct {
		operator string
		want     string
	}{
		{"greater", "adult"},
		{"less", "minor"},
		{"equals", "minor"},
		{"not_equals", "adult"},
		{"contains", "minor"},
	}
	for _, tt := range tests {
		t.Run(tt.operator, func(t *testing.T) {
			f := conditionFlow(tt.operator, "3", edges)
			session := newSession(f)
			session.Variables["age"] = "5"

			result, err := flow.NewInterpreter(nil, nil).Step(f, session, "start", nil)
			require.NoError(t, err)
			require.Len(t, result.Actions, 1)
			assert.Equal(t, tt.want, result.Actions[0].Text)
		})
	}
}

func TestConditionNumericCoercionNaNIsFalse(t *testing.T) {
	edges := []models.Edge{
		{ID: "et", Source: "check", Target: "adult_msg", SourceHandle: "true"},
		{ID: "ef", Source: "check", Target: "minor_msg", SourceHandle: "false"},
	}
	f := conditionFlow("greater", "3", edges)
	session := newSession(f)
	session.Variables["age"] = "old enough"

	result, err := flow.NewInterpreter(nil, nil).Step(f, session, "start", nil)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "minor", result.Actions[0].Text)
}

func TestConditionBlankOperandCountsAsZero(t *testing.T) {
	edges := []models.Edge{
		{ID: "et", Source: "check", Target: "adult_msg", SourceHandle: "true"},
		{ID: "ef", Source: "check", Target: "minor_msg", SourceHandle: "false"},
	}

	tests := []struct {
		name     string
		operator string
		age      *string
		want     string
	}{
		{"empty string is zero", "less", ptr(""), "adult"},
		{"whitespace is zero", "less", ptr("   "), "adult"},
		{"empty never greater", "greater", ptr(""), "minor"},
		{"unset variable stays false", "less", nil, "minor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := conditionFlow(tt.operator, "3", edges)
			session := newSession(f)
			if tt.age != nil {
				session.Variables["age"] = *tt.age
			}

			result, err := flow.NewInterpreter(nil, nil).Step(f, session, "start", nil)
			require.NoError(t, err)
			require.Len(t, result.Actions, 1)
			assert.Equal(t, tt.want, result.Actions[0].Text)
		})
	}
}

func ptr(s string) *string { return &s }

func TestConditionBranchSelectionIgnoresEdgeOrder(t *testing.T) {
	// false edge declared first must not shadow the true branch
	edges := []models.Edge{
		{ID: "ef", Source: "check", Target: "minor_msg", SourceHandle: "false"},
		{ID: "et", Source: "check", Target: "adult_msg", SourceHandle: "true"},
	}
	f := conditionFlow("greater", "18", edges)
	session := newSession(f)
	session.Variables["age"] = "20"

	result, err := flow.NewInterpreter(nil, nil).Step(f, session, "start", nil)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "adult", result.Actions[0].Text)
}

func TestConditionExpressionOperator(t *testing.T) {
	edges := []models.Edge{
		{ID: "et", Source: "check", Target: "adult_msg", SourceHandle: "true"},
		{ID: "ef", Source: "check", Target: "minor_msg", SourceHandle: "false"},
	}
	f := conditionFlow("expression", `age == "20" and plan != "free"`, edges)
	session := newSession(f)
	session.Variables["age"] = "20"
	session.Variables["plan"] = "pro"

	result, err := flow.NewInterpreter(nil, nil).Step(f, session, "start", nil)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "adult", result.Actions[0].Text)
}

func TestConditionMissingBranchStalls(t *testing.T) {
	// Only a "true" edge exists; a false outcome stalls on the node with
	// the session still active.
	edges := []models.Edge{
		{ID: "et", Source: "check", Target: "adult_msg", SourceHandle: "true"},
	}
	f := conditionFlow("greater", "18", edges)
	session := newSession(f)
	session.Variables["age"] = "10"

	result, err := flow.NewInterpreter(nil, nil).Step(f, session, "start", nil)
	require.NoError(t, err)

	assert.Empty(t, result.Actions)
	assert.False(t, result.Completed)
	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Equal(t, "check", session.CurrentNode)
}

func TestWaitInputSuspendAndResume(t *testing.T) {
	f := &models.Flow{
		ID: "f-wait",
		Nodes: []models.Node{
			{ID: "start", Type: flow.NodeTrigger},
			{ID: "ask", Type: flow.NodeMessage, Config: map[string]any{"text": "What is your name?"}},
			{ID: "wait", Type: flow.NodeWaitInput, Config: map[string]any{"variable": "name"}},
			{ID: "greet", Type: flow.NodeMessage, Config: map[string]any{"text": "Nice to meet you, {{name}}!"}},
			{ID: "done", Type: flow.NodeEnd},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "ask"},
			{ID: "e2", Source: "ask", Target: "wait"},
			{ID: "e3", Source: "wait", Target: "greet"},
			{ID: "e4", Source: "greet", Target: "done"},
		},
	}
	session := newSession(f)
	engine := flow.NewInterpreter(nil, nil)

	// First step suspends on the wait node
	result, err := engine.Step(f, session, "start", nil)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.False(t, result.Completed)
	assert.Equal(t, "wait", session.CurrentNode)
	assert.True(t, session.WaitingInput)
	assert.Equal(t, models.SessionStatusActive, session.Status)

	// The next inbound message lands in the variable and the flow resumes
	// past the wait node.
	inbound := "Maria"
	result, err = engine.Step(f, session, session.CurrentNode, &inbound)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "Nice to meet you, Maria!", result.Actions[0].Text)
	assert.True(t, result.Completed)
	assert.Equal(t, "Maria", session.Variables["name"])
}

func TestWaitInputDefaultVariableName(t *testing.T) {
	f := &models.Flow{
		ID: "f-wait2",
		Nodes: []models.Node{
			{ID: "wait", Type: flow.NodeWaitInput},
			{ID: "echo", Type: flow.NodeMessage, Config: map[string]any{"text": "you said {{input}}"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "wait", Target: "echo"},
		},
	}
	session := newSession(f)
	session.CurrentNode = "wait"

	inbound := "ping"
	result, err := flow.NewInterpreter(nil, nil).Step(f, session, "wait", &inbound)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "you said ping", result.Actions[0].Text)
}

func buttonsFlow() *models.Flow {
	return &models.Flow{
		ID: "f-btn",
		Nodes: []models.Node{
			{ID: "start", Type: flow.NodeTrigger},
			{ID: "ask", Type: flow.NodeButtons, Config: map[string]any{
				"text": "Pick one",
				"buttons": []map[string]any{
					{"id": "opt_a", "title": "Plan A"},
					{"id": "opt_b", "title": "Plan B"},
				},
				"variable": "choice",
			}},
			{ID: "a", Type: flow.NodeMessage, Config: map[string]any{"text": "A it is"}},
			{ID: "b", Type: flow.NodeMessage, Config: map[string]any{"text": "B it is"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "ask"},
			{ID: "e2", Source: "ask", Target: "a", SourceHandle: "opt_a"},
			{ID: "e3", Source: "ask", Target: "b", SourceHandle: "opt_b"},
		},
	}
}

func TestButtonsSuspendAndResumeByTitle(t *testing.T) {
	f := buttonsFlow()
	session := newSession(f)
	engine := flow.NewInterpreter(nil, nil)

	result, err := engine.Step(f, session, "start", nil)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, models.ActionSendButtons, result.Actions[0].Type)
	require.Len(t, result.Actions[0].Buttons, 2)
	assert.True(t, session.WaitingInput)
	assert.Equal(t, "ask", session.CurrentNode)

	// Reply by title (typed back), matched case-insensitively to the button
	inbound := "plan b"
	result, err = engine.Step(f, session, session.CurrentNode, &inbound)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "B it is", result.Actions[0].Text)
	assert.Equal(t, "plan b", session.Variables["choice"])
}

func TestButtonsUnmatchedReplyRepromptsOnce(t *testing.T) {
	f := buttonsFlow()
	session := newSession(f)
	engine := flow.NewInterpreter(nil, nil)

	_, err := engine.Step(f, session, "start", nil)
	require.NoError(t, err)

	inbound := "banana"
	result, err := engine.Step(f, session, session.CurrentNode, &inbound)
	require.NoError(t, err)

	// No matching button and no default edge: the prompt goes out again
	require.Len(t, result.Actions, 1)
	assert.Equal(t, models.ActionSendButtons, result.Actions[0].Type)
	assert.Equal(t, "ask", session.CurrentNode)
	assert.True(t, session.WaitingInput)
}

func TestSetVariableInterpolates(t *testing.T) {
	f := &models.Flow{
		ID: "f-set",
		Nodes: []models.Node{
			{ID: "start", Type: flow.NodeTrigger},
			{ID: "set", Type: flow.NodeSetVariable, Config: map[string]any{
				"variable": "greeting", "value": "Hi {{name}}",
			}},
			{ID: "say", Type: flow.NodeMessage, Config: map[string]any{"text": "{{greeting}}"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "set"},
			{ID: "e2", Source: "set", Target: "say"},
		},
	}
	session := newSession(f)
	session.Variables["name"] = "Ana"

	result, err := flow.NewInterpreter(nil, nil).Step(f, session, "start", nil)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "Hi Ana", result.Actions[0].Text)
}

func TestAssignAgentTransfersTerminally(t *testing.T) {
	f := &models.Flow{
		ID: "f-agent",
		Nodes: []models.Node{
			{ID: "start", Type: flow.NodeTrigger},
			{ID: "handover", Type: flow.NodeAssignAgent, Config: map[string]any{
				"agent_id": "agent-7", "message": "Connecting you to {{team}}",
			}},
			// Unreachable: assign_agent halts with no edge lookup
			{ID: "after", Type: flow.NodeMessage, Config: map[string]any{"text": "never"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "handover"},
			{ID: "e2", Source: "handover", Target: "after"},
		},
	}
	session := newSession(f)
	session.Variables["team"] = "support"

	result, err := flow.NewInterpreter(nil, nil).Step(f, session, "start", nil)
	require.NoError(t, err)

	require.Len(t, result.Actions, 1)
	assert.Equal(t, models.ActionAssignAgent, result.Actions[0].Type)
	assert.Equal(t, "agent-7", result.Actions[0].AgentID)
	assert.Equal(t, "Connecting you to support", result.Actions[0].Message)
	assert.True(t, result.Completed)
	assert.Equal(t, models.SessionStatusTransferred, session.Status)
	assert.NotNil(t, session.EndedAt)
}

func TestAddTagAndImageContinue(t *testing.T) {
	f := &models.Flow{
		ID: "f-tag",
		Nodes: []models.Node{
			{ID: "start", Type: flow.NodeTrigger},
			{ID: "tag", Type: flow.NodeAddTag, Config: map[string]any{"tag": "lead"}},
			{ID: "pic", Type: flow.NodeImage, Config: map[string]any{
				"url": "https://cdn.example.com/menu.png", "caption": "Menu for {{name}}",
			}},
			{ID: "done", Type: flow.NodeEnd},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "tag"},
			{ID: "e2", Source: "tag", Target: "pic"},
			{ID: "e3", Source: "pic", Target: "done"},
		},
	}
	session := newSession(f)
	session.Variables["name"] = "Ana"

	result, err := flow.NewInterpreter(nil, nil).Step(f, session, "start", nil)
	require.NoError(t, err)

	require.Len(t, result.Actions, 2)
	assert.Equal(t, models.ActionAddTag, result.Actions[0].Type)
	assert.Equal(t, "lead", result.Actions[0].Tag)
	assert.Equal(t, models.ActionSendImage, result.Actions[1].Type)
	assert.Equal(t, "Menu for Ana", result.Actions[1].Caption)
	assert.True(t, result.Completed)
}

func TestDelayParksSession(t *testing.T) {
	f := &models.Flow{
		ID: "f-delay",
		Nodes: []models.Node{
			{ID: "start", Type: flow.NodeTrigger},
			{ID: "hello", Type: flow.NodeMessage, Config: map[string]any{"text": "one sec"}},
			{ID: "pause", Type: flow.NodeDelay, Config: map[string]any{"seconds": 30}},
			{ID: "later", Type: flow.NodeMessage, Config: map[string]any{"text": "back"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "hello"},
			{ID: "e2", Source: "hello", Target: "pause"},
			{ID: "e3", Source: "pause", Target: "later"},
		},
	}
	session := newSession(f)

	began := time.Now()
	result, err := flow.NewInterpreter(nil, nil).Step(f, session, "start", nil)
	require.NoError(t, err)

	// The step returned immediately with the pre-delay actions
	assert.WithinDuration(t, began, time.Now(), 2*time.Second)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "one sec", result.Actions[0].Text)
	assert.False(t, result.Completed)

	assert.Equal(t, models.SessionStatusDelayed, session.Status)
	assert.Equal(t, "later", session.ResumeNode)
	require.NotNil(t, session.WakeAt)
	assert.WithinDuration(t, began.Add(30*time.Second), *session.WakeAt, 2*time.Second)
}

func TestZeroDelayPassesThrough(t *testing.T) {
	f := &models.Flow{
		ID: "f-delay0",
		Nodes: []models.Node{
			{ID: "pause", Type: flow.NodeDelay, Config: map[string]any{"seconds": 0}},
			{ID: "after", Type: flow.NodeMessage, Config: map[string]any{"text": "no pause"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "pause", Target: "after"},
		},
	}
	session := newSession(f)

	result, err := flow.NewInterpreter(nil, nil).Step(f, session, "pause", nil)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "no pause", result.Actions[0].Text)
}

func TestCycleWithoutSuspensionIsStepError(t *testing.T) {
	f := &models.Flow{
		ID: "f-cycle",
		Nodes: []models.Node{
			{ID: "a", Type: flow.NodeSetVariable, Config: map[string]any{"variable": "x", "value": "1"}},
			{ID: "b", Type: flow.NodeSetVariable, Config: map[string]any{"variable": "y", "value": "2"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "a"},
		},
	}
	session := newSession(f)

	_, err := flow.NewInterpreter(nil, nil).Step(f, session, "a", nil)
	assert.Error(t, err)
}

func apiCallFlow(url string, extra map[string]any) *models.Flow {
	config := map[string]any{
		"method":          "GET",
		"url":             url,
		"result_variable": "resp",
	}
	for k, v := range extra {
		config[k] = v
	}
	return &models.Flow{
		ID: "f-api",
		Nodes: []models.Node{
			{ID: "start", Type: flow.NodeTrigger},
			{ID: "call", Type: flow.NodeAPICall, Config: config},
			{ID: "ok", Type: flow.NodeMessage, Config: map[string]any{"text": "got {{resp}}"}},
			{ID: "fail", Type: flow.NodeMessage, Config: map[string]any{"text": "api down"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "call"},
			{ID: "e2", Source: "call", Target: "ok", SourceHandle: "success"},
			{ID: "e3", Source: "call", Target: "fail", SourceHandle: "error"},
		},
	}
}

func TestAPICallSuccessPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"status":"shipped"}}`)
	}))
	defer server.Close()

	f := apiCallFlow(server.URL, map[string]any{"response_path": "data.status"})
	session := newSession(f)

	result, err := flow.NewInterpreter(nil, nil).Step(f, session, "start", nil)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "got shipped", result.Actions[0].Text)
	assert.Equal(t, "shipped", session.Variables["resp"])
}

func TestAPICallErrorPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := apiCallFlow(server.URL, nil)
	session := newSession(f)

	result, err := flow.NewInterpreter(nil, nil).Step(f, session, "start", nil)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "api down", result.Actions[0].Text)
}

type fixedResponder struct{ reply string }

func (r fixedResponder) Respond(prompt string, variables map[string]string) (string, error) {
	return r.reply, nil
}

func aiFlow() *models.Flow {
	return &models.Flow{
		ID: "f-ai",
		Nodes: []models.Node{
			{ID: "start", Type: flow.NodeTrigger},
			{ID: "ai", Type: flow.NodeAIResponse, Config: map[string]any{
				"prompt":          "Answer {{question}}",
				"result_variable": "answer",
				"fallback":        "Let me get back to you",
			}},
			{ID: "say", Type: flow.NodeMessage, Config: map[string]any{"text": "{{answer}}"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "ai"},
			{ID: "e2", Source: "ai", Target: "say"},
		},
	}
}

func TestAIResponseUsesResponder(t *testing.T) {
	f := aiFlow()
	session := newSession(f)

	result, err := flow.NewInterpreter(nil, fixedResponder{reply: "42"}).Step(f, session, "start", nil)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "42", result.Actions[0].Text)
}

func TestAIResponseFallsBackWithoutResponder(t *testing.T) {
	f := aiFlow()
	session := newSession(f)

	result, err := flow.NewInterpreter(nil, nil).Step(f, session, "start", nil)
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "Let me get back to you", result.Actions[0].Text)
}

func TestStepPersistsCurrentNodePerVisit(t *testing.T) {
	f := &models.Flow{
		ID: "f-persist",
		Nodes: []models.Node{
			{ID: "start", Type: flow.NodeTrigger},
			{ID: "hello", Type: flow.NodeMessage, Config: map[string]any{"text": "hi"}},
			{ID: "done", Type: flow.NodeEnd},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "hello"},
			{ID: "e2", Source: "hello", Target: "done"},
		},
	}
	session := newSession(f)
	writer := &recordingWriter{}

	_, err := flow.NewInterpreter(writer, nil).Step(f, session, "start", nil)
	require.NoError(t, err)

	// One positioning write per visited node, plus the final state write
	assert.Equal(t, []string{"start", "hello", "done", "done"}, writer.nodes)
}

type recordingWriter struct {
	nodes []string
}

func (w *recordingWriter) UpdateSession(session *models.ChatSession) error {
	w.nodes = append(w.nodes, session.CurrentNode)
	return nil
}
