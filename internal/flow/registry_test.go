package flow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdesk-app/chatdesk-backend/internal/flow"
	"github.com/chatdesk-app/chatdesk-backend/internal/models"
)

func TestDescribeKnownTypes(t *testing.T) {
	spec, ok := flow.Describe(flow.NodeCondition)
	require.True(t, ok)
	assert.Equal(t, []string{"true", "false"}, spec.Outputs)

	spec, ok = flow.Describe(flow.NodeEnd)
	require.True(t, ok)
	assert.Empty(t, spec.Outputs)

	_, ok = flow.Describe("teleport")
	assert.False(t, ok)
}

func TestNodeTypeListCoversAllVariants(t *testing.T) {
	types := make(map[string]bool)
	for _, spec := range flow.NodeTypeList() {
		types[spec.Type] = true
	}

	for _, want := range []string{
		flow.NodeTrigger, flow.NodeMessage, flow.NodeButtons, flow.NodeList,
		flow.NodeImage, flow.NodeDocument, flow.NodeWaitInput, flow.NodeDelay,
		flow.NodeSetVariable, flow.NodeCondition, flow.NodeAPICall,
		flow.NodeAIResponse, flow.NodeAssignAgent, flow.NodeAddTag, flow.NodeEnd,
	} {
		assert.True(t, types[want], "missing node type %q", want)
	}
}

func TestValidateFlow(t *testing.T) {
	valid := &models.Flow{
		Nodes: []models.Node{
			{ID: "start", Type: flow.NodeTrigger},
			{ID: "check", Type: flow.NodeCondition},
			{ID: "yes", Type: flow.NodeMessage},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "check"},
			{ID: "e2", Source: "check", Target: "yes", SourceHandle: "true"},
		},
	}
	assert.NoError(t, flow.ValidateFlow(valid))

	tests := []struct {
		name   string
		mutate func(f *models.Flow)
	}{
		{"dangling edge target", func(f *models.Flow) {
			f.Edges[1].Target = "ghost"
		}},
		{"dangling edge source", func(f *models.Flow) {
			f.Edges[0].Source = "ghost"
		}},
		{"unknown node type", func(f *models.Flow) {
			f.Nodes[1].Type = "teleport"
		}},
		{"undeclared handle", func(f *models.Flow) {
			f.Edges[1].SourceHandle = "maybe"
		}},
		{"duplicate node id", func(f *models.Flow) {
			f.Nodes[2].ID = "start"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := &models.Flow{
				Nodes: append([]models.Node{}, valid.Nodes...),
				Edges: append([]models.Edge{}, valid.Edges...),
			}
			tt.mutate(broken)
			assert.Error(t, flow.ValidateFlow(broken))
		})
	}
}

func TestValidateFlowAllowsAnyHandleOnButtons(t *testing.T) {
	f := &models.Flow{
		Nodes: []models.Node{
			{ID: "ask", Type: flow.NodeButtons},
			{ID: "a", Type: flow.NodeMessage},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "ask", Target: "a", SourceHandle: "btn_yes"},
		},
	}
	assert.NoError(t, flow.ValidateFlow(f))
}
