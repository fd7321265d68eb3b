package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/engine/common/models"
)

func linearWorkflow(ids ...string) *models.Workflow {
	w := &models.Workflow{ID: "wf-1", TenantID: "t-1"}
	for _, id := range ids {
		w.Nodes = append(w.Nodes, models.Node{ID: id, Type: models.NodeAgent})
	}
	for i := 0; i < len(ids)-1; i++ {
		w.Edges = append(w.Edges, models.Edge{
			ID:     "e-" + ids[i] + "-" + ids[i+1],
			Source: ids[i],
			Target: ids[i+1],
		})
	}
	return w
}

func hasErrorCode(errs []ValidationError, code ErrorCode) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func TestValidateWorkflow_LinearChain(t *testing.T) {
	w := linearWorkflow("a", "b", "c")
	result := ValidateWorkflow(w, nil)

	require.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"a", "b", "c"}, result.ExecutionOrder)
}

func TestValidateWorkflow_EmptyWorkflow(t *testing.T) {
	w := &models.Workflow{ID: "wf-empty"}
	result := ValidateWorkflow(w, nil)

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, NoEntryNode, result.Errors[0].Code)
	assert.Empty(t, result.ExecutionOrder)
}

func TestValidateWorkflow_TwoNodeCycle(t *testing.T) {
	w := &models.Workflow{
		ID: "wf-cycle",
		Nodes: []models.Node{
			{ID: "a", Type: models.NodeAgent},
			{ID: "b", Type: models.NodeAgent},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "a"},
		},
	}
	result := ValidateWorkflow(w, nil)

	require.False(t, result.Valid)
	// a cycle over every node also leaves no entry node
	assert.True(t, hasErrorCode(result.Errors, NoEntryNode))
	assert.True(t, hasErrorCode(result.Errors, CycleDetected))
}

func TestValidateWorkflow_InvalidEdgeReference(t *testing.T) {
	w := &models.Workflow{
		ID:    "wf-badref",
		Nodes: []models.Node{{ID: "a", Type: models.NodeAgent}},
		Edges: []models.Edge{
			{ID: "e1", Source: "a", Target: "ghost"},
		},
	}
	result := ValidateWorkflow(w, nil)

	require.False(t, result.Valid)
	require.True(t, hasErrorCode(result.Errors, InvalidEdgeReference))
	for _, e := range result.Errors {
		if e.Code == InvalidEdgeReference {
			assert.Equal(t, []string{"e1"}, e.EdgeIDs)
			assert.Equal(t, []string{"ghost"}, e.NodeIDs)
		}
	}
}

func TestValidateWorkflow_DuplicateEdge(t *testing.T) {
	w := linearWorkflow("a", "b")
	w.Edges = append(w.Edges, models.Edge{ID: "e-dup", Source: "a", Target: "b"})

	result := ValidateWorkflow(w, nil)

	require.False(t, result.Valid)
	require.True(t, hasErrorCode(result.Errors, DuplicateEdge))
	for _, e := range result.Errors {
		if e.Code == DuplicateEdge {
			assert.Equal(t, []string{"e-a-b", "e-dup"}, e.EdgeIDs)
		}
	}
}

func TestValidateWorkflow_DifferentPortsNotDuplicate(t *testing.T) {
	w := linearWorkflow("a", "b")
	w.Edges = append(w.Edges, models.Edge{
		ID: "e-alt", Source: "a", SourcePort: "secondary", Target: "b", TargetPort: "aux",
	})

	result := ValidateWorkflow(w, nil)
	assert.True(t, result.Valid)
}

func TestValidateWorkflow_OrphanNode(t *testing.T) {
	w := linearWorkflow("a", "b")
	// c and d form an island cycle: unreachable from entries, cannot reach exits
	w.Nodes = append(w.Nodes,
		models.Node{ID: "c", Type: models.NodeAgent},
		models.Node{ID: "d", Type: models.NodeAgent},
	)
	w.Edges = append(w.Edges,
		models.Edge{ID: "e-cd", Source: "c", Target: "d"},
		models.Edge{ID: "e-dc", Source: "d", Target: "c"},
	)

	result := ValidateWorkflow(w, nil)

	require.False(t, result.Valid)
	assert.True(t, hasErrorCode(result.Errors, CycleDetected))
	assert.True(t, hasErrorCode(result.Errors, OrphanNode))
}

func TestValidateWorkflow_SingleNode(t *testing.T) {
	w := &models.Workflow{
		ID:    "wf-single",
		Nodes: []models.Node{{ID: "only", Type: models.NodeAgent}},
	}
	result := ValidateWorkflow(w, nil)

	require.True(t, result.Valid)
	assert.Equal(t, []string{"only"}, result.ExecutionOrder)
}

func TestValidateWorkflow_SelfLoop(t *testing.T) {
	w := &models.Workflow{
		ID: "wf-self",
		Nodes: []models.Node{
			{ID: "a", Type: models.NodeAgent},
			{ID: "b", Type: models.NodeAgent},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "b"},
		},
	}
	result := ValidateWorkflow(w, nil)

	require.False(t, result.Valid)
	assert.True(t, hasErrorCode(result.Errors, CycleDetected))
}

func testRegistry() AgentRegistry {
	return AgentRegistry{
		"summarizer": {
			ID:      "summarizer",
			Version: "1.0.0",
			InputPorts: []PortSchema{
				{Name: "text", Type: "string", Required: true},
			},
			OutputPorts: []PortSchema{
				{Name: "summary", Type: "string"},
			},
		},
		"scorer": {
			ID:      "scorer",
			Version: "2.1.0",
			InputPorts: []PortSchema{
				{Name: "document", Type: "string", Required: true},
				{Name: "weights", Type: "number", Required: false},
			},
			OutputPorts: []PortSchema{
				{Name: "score", Type: "number"},
			},
		},
	}
}

func TestValidateWorkflow_SemanticTypeMismatch(t *testing.T) {
	w := &models.Workflow{
		ID: "wf-sem",
		Nodes: []models.Node{
			{ID: "score", Type: models.NodeAgent, Config: models.NodeConfig{AgentID: "scorer"}},
			{ID: "sum", Type: models.NodeAgent, Config: models.NodeConfig{AgentID: "summarizer"}},
		},
		Edges: []models.Edge{
			// number output into a string input
			{ID: "e1", Source: "score", SourcePort: "score", Target: "sum", TargetPort: "text"},
		},
	}
	// scorer's required "document" port is also unconnected
	result := ValidateWorkflow(w, testRegistry())

	require.False(t, result.Valid)
	assert.True(t, hasErrorCode(result.Errors, TypeMismatch))
	assert.True(t, hasErrorCode(result.Errors, MissingRequiredInput))
}

func TestValidateWorkflow_SemanticValid(t *testing.T) {
	w := &models.Workflow{
		ID: "wf-sem-ok",
		Nodes: []models.Node{
			{ID: "in", Type: models.NodeInput},
			{ID: "sum", Type: models.NodeAgent, Config: models.NodeConfig{AgentID: "summarizer"}},
			{ID: "score", Type: models.NodeAgent, Config: models.NodeConfig{AgentID: "scorer"}},
			{ID: "out", Type: models.NodeOutput},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "in", Target: "sum", TargetPort: "text"},
			{ID: "e2", Source: "sum", SourcePort: "summary", Target: "score", TargetPort: "document"},
			{ID: "e3", Source: "score", SourcePort: "score", Target: "out"},
		},
	}
	result := ValidateWorkflow(w, testRegistry())

	require.True(t, result.Valid)
	assert.Equal(t, []string{"in", "sum", "score", "out"}, result.ExecutionOrder)
}

func TestValidateWorkflow_UnknownPort(t *testing.T) {
	w := &models.Workflow{
		ID: "wf-port",
		Nodes: []models.Node{
			{ID: "sum", Type: models.NodeAgent, Config: models.NodeConfig{AgentID: "summarizer"}},
			{ID: "score", Type: models.NodeAgent, Config: models.NodeConfig{AgentID: "scorer"}},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "sum", SourcePort: "nonexistent", Target: "score", TargetPort: "document"},
		},
	}
	result := ValidateWorkflow(w, testRegistry())

	require.False(t, result.Valid)
	assert.True(t, hasErrorCode(result.Errors, TypeMismatch))
}
