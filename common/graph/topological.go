package graph

import (
	"fmt"

	"github.com/agentforge/engine/common/models"
)

// TopologicalSort runs Kahn's algorithm over in-degree counts and returns
// the nodes in execution order, or ok=false when the graph has a cycle.
//
// Zero-in-degree nodes are admitted in workflow declaration order, which
// keeps the ordering stable across runs for the same workflow value.
func TopologicalSort(w *models.Workflow) (order []string, ok bool) {
	if len(w.Nodes) == 0 {
		return nil, true
	}

	adj := BuildAdjacencyList(w)
	edgeMap := w.EdgeMap()
	inDegrees := ComputeInDegrees(w)

	var queue []string
	for _, node := range w.Nodes {
		if inDegrees[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}

	order = make([]string, 0, len(w.Nodes))
	for len(queue) > 0 {
		nodeID := queue[0]
		queue = queue[1:]
		order = append(order, nodeID)

		for _, edgeID := range adj[nodeID] {
			edge, exists := edgeMap[edgeID]
			if !exists {
				continue
			}
			inDegrees[edge.Target]--
			if inDegrees[edge.Target] == 0 {
				queue = append(queue, edge.Target)
			}
		}
	}

	// Fewer emitted than |V| means a cycle kept some in-degrees above zero
	if len(order) != len(w.Nodes) {
		return nil, false
	}
	return order, true
}

// ExecutionOrder returns the topological order of an already-validated
// workflow. A cycle at this point indicates the caller skipped validation.
func ExecutionOrder(w *models.Workflow) ([]string, error) {
	order, ok := TopologicalSort(w)
	if !ok {
		return nil, fmt.Errorf("cannot compute execution order: cycle detected")
	}
	return order, nil
}
