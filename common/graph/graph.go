// Package graph implements DAG validation and planning over workflow
// definitions: adjacency maps, cycle detection, topological ordering and
// the structural/semantic invariant checks run before execution.
package graph

import "github.com/agentforge/engine/common/models"

// AdjacencyList maps a node id to its outgoing edge ids
type AdjacencyList map[string][]string

// ReverseAdjacencyList maps a node id to its incoming edge ids
type ReverseAdjacencyList map[string][]string

// BuildAdjacencyList maps each node to its outgoing edge ids.
// Edges referencing unknown sources are ignored.
func BuildAdjacencyList(w *models.Workflow) AdjacencyList {
	adj := make(AdjacencyList, len(w.Nodes))
	for _, node := range w.Nodes {
		adj[node.ID] = nil
	}
	for _, edge := range w.Edges {
		if _, ok := adj[edge.Source]; ok {
			adj[edge.Source] = append(adj[edge.Source], edge.ID)
		}
	}
	return adj
}

// BuildReverseAdjacencyList maps each node to its incoming edge ids
func BuildReverseAdjacencyList(w *models.Workflow) ReverseAdjacencyList {
	rev := make(ReverseAdjacencyList, len(w.Nodes))
	for _, node := range w.Nodes {
		rev[node.ID] = nil
	}
	for _, edge := range w.Edges {
		if _, ok := rev[edge.Target]; ok {
			rev[edge.Target] = append(rev[edge.Target], edge.ID)
		}
	}
	return rev
}

// ComputeInDegrees counts incoming edges per node
func ComputeInDegrees(w *models.Workflow) map[string]int {
	degrees := make(map[string]int, len(w.Nodes))
	for _, node := range w.Nodes {
		degrees[node.ID] = 0
	}
	for _, edge := range w.Edges {
		if _, ok := degrees[edge.Target]; ok {
			degrees[edge.Target]++
		}
	}
	return degrees
}

// FindEntryNodes returns nodes with no incoming edges, in declaration order
func FindEntryNodes(w *models.Workflow) []string {
	degrees := ComputeInDegrees(w)
	var entries []string
	for _, node := range w.Nodes {
		if degrees[node.ID] == 0 {
			entries = append(entries, node.ID)
		}
	}
	return entries
}

// FindExitNodes returns nodes with no outgoing edges, in declaration order
func FindExitNodes(w *models.Workflow) []string {
	adj := BuildAdjacencyList(w)
	var exits []string
	for _, node := range w.Nodes {
		if len(adj[node.ID]) == 0 {
			exits = append(exits, node.ID)
		}
	}
	return exits
}

// ComputeDownstream partitions workflow nodes for a resume from startNodeID.
// rerun is {start} plus everything reachable from start via edges (BFS);
// skipped is the remainder. Both slices follow node declaration order so
// resume construction is deterministic.
func ComputeDownstream(w *models.Workflow, startNodeID string) (skipped, rerun []string) {
	adjacency := make(map[string][]string, len(w.Nodes))
	for _, node := range w.Nodes {
		adjacency[node.ID] = nil
	}
	for _, edge := range w.Edges {
		if _, ok := adjacency[edge.Source]; ok {
			adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
		}
	}

	rerunSet := map[string]bool{startNodeID: true}
	queue := []string{startNodeID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, target := range adjacency[current] {
			if !rerunSet[target] {
				rerunSet[target] = true
				queue = append(queue, target)
			}
		}
	}

	for _, node := range w.Nodes {
		if rerunSet[node.ID] {
			rerun = append(rerun, node.ID)
		} else {
			skipped = append(skipped, node.ID)
		}
	}
	return skipped, rerun
}
