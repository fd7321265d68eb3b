package graph

import "github.com/agentforge/engine/common/models"

// ValidateWorkflow runs all validation checks in a fixed order and returns
// a Result. Structural checks run first; semantic checks run only when a
// registry is supplied. On success the result carries the execution order.
func ValidateWorkflow(w *models.Workflow, registry AgentRegistry) Result {
	var errs []ValidationError

	errs = append(errs, validateEdgeReferences(w)...)
	errs = append(errs, validateNoDuplicateEdges(w)...)
	errs = append(errs, validateHasEntryNode(w)...)
	errs = append(errs, validateNoCycles(w)...)
	errs = append(errs, validateNoOrphans(w)...)

	if registry != nil {
		errs = append(errs, validateTypeCompatibility(w, registry)...)
		errs = append(errs, validateRequiredInputs(w, registry)...)
	}

	if len(errs) > 0 {
		return failure(errs)
	}

	order, ok := TopologicalSort(w)
	if !ok {
		// unreachable when cycle detection passed, kept as a safety net
		return failure([]ValidationError{{
			Code:    CycleDetected,
			Message: "workflow contains a cycle",
		}})
	}
	return success(order)
}

// ValidateStructure runs only the structural checks, skipping agent schema
// validation. Used when no agent registry is available.
func ValidateStructure(w *models.Workflow) Result {
	return ValidateWorkflow(w, nil)
}

// BuildExecutionPlan validates the workflow and derives the dependency maps
// the orchestrator needs to dispatch nodes.
func BuildExecutionPlan(executionID string, w *models.Workflow) (*models.ExecutionPlan, error) {
	order, err := ExecutionOrder(w)
	if err != nil {
		return nil, err
	}

	dependencies := make(map[string][]string, len(w.Nodes))
	dependents := make(map[string][]string, len(w.Nodes))
	for _, node := range w.Nodes {
		dependencies[node.ID] = nil
		dependents[node.ID] = nil
	}
	for _, edge := range w.Edges {
		dependencies[edge.Target] = append(dependencies[edge.Target], edge.Source)
		dependents[edge.Source] = append(dependents[edge.Source], edge.Target)
	}

	return &models.ExecutionPlan{
		ExecutionID:    executionID,
		WorkflowID:     w.ID,
		ExecutionOrder: order,
		Dependencies:   dependencies,
		Dependents:     dependents,
		EntryNodes:     FindEntryNodes(w),
		ExitNodes:      FindExitNodes(w),
	}, nil
}
