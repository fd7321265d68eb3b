package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/engine/common/models"
)

func diamondWorkflow() *models.Workflow {
	// a -> b, a -> c, b -> d, c -> d
	return &models.Workflow{
		ID: "wf-diamond",
		Nodes: []models.Node{
			{ID: "a", Type: models.NodeInput},
			{ID: "b", Type: models.NodeAgent},
			{ID: "c", Type: models.NodeAgent},
			{ID: "d", Type: models.NodeOutput},
		},
		Edges: []models.Edge{
			{ID: "e-ab", Source: "a", Target: "b"},
			{ID: "e-ac", Source: "a", Target: "c"},
			{ID: "e-bd", Source: "b", Target: "d"},
			{ID: "e-cd", Source: "c", Target: "d"},
		},
	}
}

func TestTopologicalSort_Diamond(t *testing.T) {
	order, ok := TopologicalSort(diamondWorkflow())

	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestTopologicalSort_Deterministic(t *testing.T) {
	w := diamondWorkflow()
	first, ok := TopologicalSort(w)
	require.True(t, ok)

	for i := 0; i < 20; i++ {
		order, ok := TopologicalSort(w)
		require.True(t, ok)
		assert.Equal(t, first, order)
	}
}

func TestTopologicalSort_DeclarationOrderTieBreak(t *testing.T) {
	// three independent roots feeding one sink; roots must come out in
	// declaration order, not map iteration order
	w := &models.Workflow{
		ID: "wf-roots",
		Nodes: []models.Node{
			{ID: "z", Type: models.NodeAgent},
			{ID: "m", Type: models.NodeAgent},
			{ID: "a", Type: models.NodeAgent},
			{ID: "sink", Type: models.NodeOutput},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "z", Target: "sink"},
			{ID: "e2", Source: "m", Target: "sink"},
			{ID: "e3", Source: "a", Target: "sink"},
		},
	}
	order, ok := TopologicalSort(w)

	require.True(t, ok)
	assert.Equal(t, []string{"z", "m", "a", "sink"}, order)
}

func TestTopologicalSort_CycleNotOK(t *testing.T) {
	w := &models.Workflow{
		ID: "wf-cycle",
		Nodes: []models.Node{
			{ID: "a"}, {ID: "b"},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "a"},
		},
	}
	order, ok := TopologicalSort(w)

	assert.False(t, ok)
	assert.Nil(t, order)
}

func TestFindEntryAndExitNodes(t *testing.T) {
	w := diamondWorkflow()

	assert.Equal(t, []string{"a"}, FindEntryNodes(w))
	assert.Equal(t, []string{"d"}, FindExitNodes(w))
}

func TestComputeDownstream_Partition(t *testing.T) {
	w := diamondWorkflow()

	skipped, rerun := ComputeDownstream(w, "b")

	assert.Equal(t, []string{"a", "c"}, skipped)
	assert.Equal(t, []string{"b", "d"}, rerun)

	// every node lands in exactly one partition
	assert.Len(t, append(skipped, rerun...), len(w.Nodes))
}

func TestComputeDownstream_FromEntry(t *testing.T) {
	w := diamondWorkflow()

	skipped, rerun := ComputeDownstream(w, "a")

	assert.Empty(t, skipped)
	assert.Equal(t, []string{"a", "b", "c", "d"}, rerun)
}

func TestBuildExecutionPlan(t *testing.T) {
	plan, err := BuildExecutionPlan("exec-1", diamondWorkflow())

	require.NoError(t, err)
	assert.Equal(t, "exec-1", plan.ExecutionID)
	assert.Equal(t, "wf-diamond", plan.WorkflowID)
	assert.Equal(t, []string{"a", "b", "c", "d"}, plan.ExecutionOrder)
	assert.ElementsMatch(t, []string{"b", "c"}, plan.Dependencies["d"])
	assert.ElementsMatch(t, []string{"b", "c"}, plan.Dependents["a"])
	assert.Empty(t, plan.Dependencies["a"])
	assert.Equal(t, []string{"a"}, plan.EntryNodes)
	assert.Equal(t, []string{"d"}, plan.ExitNodes)
}
