package flow

import "github.com/chatdesk-app/chatdesk-backend/internal/models"

// EntryNodeID is the conventional id of a flow's entry node
const EntryNodeID = "start"

// OutgoingEdge selects the edge leaving nodeID on the given output port.
// A named handle must match exactly; the default port ("") matches the
// first unlabeled edge. There is no fallback between labeled branches:
// a condition with no edge for the computed boolean simply has no edge.
func OutgoingEdge(f *models.Flow, nodeID, handle string) *models.Edge {
	for i := range f.Edges {
		e := &f.Edges[i]
		if e.Source == nodeID && e.SourceHandle == handle {
			return e
		}
	}
	return nil
}

// EntryNode returns the id of the node execution starts from: the node
// named "start", else the flow's trigger node, else the first node.
func EntryNode(f *models.Flow) string {
	if n := f.FindNode(EntryNodeID); n != nil {
		return n.ID
	}
	for i := range f.Nodes {
		if f.Nodes[i].Type == NodeTrigger {
			return f.Nodes[i].ID
		}
	}
	if len(f.Nodes) > 0 {
		return f.Nodes[0].ID
	}
	return ""
}
