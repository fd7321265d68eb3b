package graph

import (
	"fmt"

	"github.com/agentforge/engine/common/models"
)

// validateEdgeReferences checks that every edge endpoint names an existing node
func validateEdgeReferences(w *models.Workflow) []ValidationError {
	var errs []ValidationError
	nodeIDs := make(map[string]bool, len(w.Nodes))
	for _, node := range w.Nodes {
		nodeIDs[node.ID] = true
	}

	for _, edge := range w.Edges {
		if !nodeIDs[edge.Source] {
			errs = append(errs, ValidationError{
				Code:    InvalidEdgeReference,
				Message: fmt.Sprintf("edge references non-existent source node: %s", edge.Source),
				EdgeIDs: []string{edge.ID},
				NodeIDs: []string{edge.Source},
			})
		}
		if !nodeIDs[edge.Target] {
			errs = append(errs, ValidationError{
				Code:    InvalidEdgeReference,
				Message: fmt.Sprintf("edge references non-existent target node: %s", edge.Target),
				EdgeIDs: []string{edge.ID},
				NodeIDs: []string{edge.Target},
			})
		}
	}
	return errs
}

// validateNoDuplicateEdges checks uniqueness of the
// (source, source_port, target, target_port) tuple
func validateNoDuplicateEdges(w *models.Workflow) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]string, len(w.Edges)) // tuple -> first edge id

	for _, edge := range w.Edges {
		key := fmt.Sprintf("%s:%s->%s:%s", edge.Source, edge.SourcePort, edge.Target, edge.TargetPort)
		if existing, dup := seen[key]; dup {
			errs = append(errs, ValidationError{
				Code:    DuplicateEdge,
				Message: "duplicate edge between same ports",
				EdgeIDs: []string{existing, edge.ID},
			})
		} else {
			seen[key] = edge.ID
		}
	}
	return errs
}

// validateHasEntryNode checks that at least one node has no incoming edges
func validateHasEntryNode(w *models.Workflow) []ValidationError {
	if len(w.Nodes) == 0 {
		return []ValidationError{{
			Code:    NoEntryNode,
			Message: "workflow has no nodes",
		}}
	}
	if len(FindEntryNodes(w)) == 0 {
		return []ValidationError{{
			Code:    NoEntryNode,
			Message: "workflow has no entry nodes (all nodes have incoming edges)",
		}}
	}
	return nil
}

// validateNoCycles detects cycles with a three-color DFS
func validateNoCycles(w *models.Workflow) []ValidationError {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	adj := BuildAdjacencyList(w)
	edgeMap := w.EdgeMap()
	state := make(map[string]int, len(w.Nodes))
	var cycleNodes []string

	var dfs func(nodeID string) bool
	dfs = func(nodeID string) bool {
		switch state[nodeID] {
		case visited:
			return false
		case visiting: // back edge
			return true
		}
		state[nodeID] = visiting

		for _, edgeID := range adj[nodeID] {
			edge, ok := edgeMap[edgeID]
			if !ok {
				continue
			}
			if dfs(edge.Target) {
				cycleNodes = append(cycleNodes, nodeID)
				return true
			}
		}

		state[nodeID] = visited
		return false
	}

	for _, node := range w.Nodes {
		if state[node.ID] == unvisited && dfs(node.ID) {
			return []ValidationError{{
				Code:    CycleDetected,
				Message: "workflow contains a cycle",
				NodeIDs: cycleNodes,
			}}
		}
	}
	return nil
}

// validateNoOrphans checks that every node is reachable from an entry node
// or can reach an exit node. Forward BFS from entries, backward from exits.
func validateNoOrphans(w *models.Workflow) []ValidationError {
	entries := FindEntryNodes(w)
	exits := FindExitNodes(w)
	adj := BuildAdjacencyList(w)
	rev := BuildReverseAdjacencyList(w)
	edgeMap := w.EdgeMap()

	reachableFromEntry := make(map[string]bool, len(w.Nodes))
	forward := append([]string(nil), entries...)
	for len(forward) > 0 {
		nodeID := forward[0]
		forward = forward[1:]
		if reachableFromEntry[nodeID] {
			continue
		}
		reachableFromEntry[nodeID] = true
		for _, edgeID := range adj[nodeID] {
			if edge, ok := edgeMap[edgeID]; ok {
				forward = append(forward, edge.Target)
			}
		}
	}

	reachesExit := make(map[string]bool, len(w.Nodes))
	backward := append([]string(nil), exits...)
	for len(backward) > 0 {
		nodeID := backward[0]
		backward = backward[1:]
		if reachesExit[nodeID] {
			continue
		}
		reachesExit[nodeID] = true
		for _, edgeID := range rev[nodeID] {
			if edge, ok := edgeMap[edgeID]; ok {
				backward = append(backward, edge.Source)
			}
		}
	}

	var orphans []string
	for _, node := range w.Nodes {
		if !reachableFromEntry[node.ID] && !reachesExit[node.ID] {
			orphans = append(orphans, node.ID)
		}
	}

	if len(orphans) > 0 {
		return []ValidationError{{
			Code:    OrphanNode,
			Message: fmt.Sprintf("found %d orphan node(s) not connected to workflow", len(orphans)),
			NodeIDs: orphans,
		}}
	}
	return nil
}
