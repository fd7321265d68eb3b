package graph

import (
	"fmt"
	"strings"

	"github.com/agentforge/engine/common/models"
)

// DataType is a port data type in an agent schema
type DataType string

// PortSchema describes one input or output port of an agent
type PortSchema struct {
	Name     string   `json:"name"`
	Type     DataType `json:"type"`
	Required bool     `json:"required"`
}

// AgentDefinition is the typed schema of an agent, used for semantic checks
type AgentDefinition struct {
	ID          string       `json:"id"`
	Version     string       `json:"version"`
	InputPorts  []PortSchema `json:"input_ports"`
	OutputPorts []PortSchema `json:"output_ports"`
}

// AgentRegistry maps agent ids to their definitions
type AgentRegistry map[string]AgentDefinition

// typesCompatible checks whether a source type can flow into a target type.
// Strict equality for now.
func typesCompatible(source, target DataType) bool {
	return source == target
}

// validateTypeCompatibility checks that every edge between agent nodes
// connects ports of compatible types
func validateTypeCompatibility(w *models.Workflow, registry AgentRegistry) []ValidationError {
	var errs []ValidationError
	nodeMap := w.NodeMap()

	for _, edge := range w.Edges {
		sourceNode, sourceOK := nodeMap[edge.Source]
		targetNode, targetOK := nodeMap[edge.Target]
		if !sourceOK || !targetOK {
			continue // caught by structural validation
		}

		// Input/output nodes carry dynamic types
		sourceAgentID := sourceNode.Config.AgentID
		targetAgentID := targetNode.Config.AgentID
		if sourceAgentID == "" || targetAgentID == "" {
			continue
		}

		sourceAgent, sourceKnown := registry[sourceAgentID]
		targetAgent, targetKnown := registry[targetAgentID]
		if !sourceKnown || !targetKnown {
			errs = append(errs, ValidationError{
				Code:    TypeMismatch,
				Message: "unknown agent definition referenced",
				NodeIDs: []string{edge.Source, edge.Target},
				EdgeIDs: []string{edge.ID},
			})
			continue
		}

		sourcePort := findPort(sourceAgent.OutputPorts, edge.SourcePort)
		if sourcePort == nil {
			errs = append(errs, ValidationError{
				Code:    TypeMismatch,
				Message: fmt.Sprintf("source node has no output port: %s", edge.SourcePort),
				NodeIDs: []string{edge.Source},
				EdgeIDs: []string{edge.ID},
			})
			continue
		}

		targetPort := findPort(targetAgent.InputPorts, edge.TargetPort)
		if targetPort == nil {
			errs = append(errs, ValidationError{
				Code:    TypeMismatch,
				Message: fmt.Sprintf("target node has no input port: %s", edge.TargetPort),
				NodeIDs: []string{edge.Target},
				EdgeIDs: []string{edge.ID},
			})
			continue
		}

		if !typesCompatible(sourcePort.Type, targetPort.Type) {
			errs = append(errs, ValidationError{
				Code:    TypeMismatch,
				Message: fmt.Sprintf("type mismatch: %s -> %s", sourcePort.Type, targetPort.Type),
				NodeIDs: []string{edge.Source, edge.Target},
				EdgeIDs: []string{edge.ID},
			})
		}
	}
	return errs
}

// validateRequiredInputs checks that every required input port of an agent
// node has at least one incoming edge
func validateRequiredInputs(w *models.Workflow, registry AgentRegistry) []ValidationError {
	var errs []ValidationError
	rev := BuildReverseAdjacencyList(w)
	edgeMap := w.EdgeMap()

	for _, node := range w.Nodes {
		agentID := node.Config.AgentID
		if agentID == "" {
			continue
		}
		agent, known := registry[agentID]
		if !known {
			continue // reported by type compatibility
		}

		connected := make(map[string]bool)
		for _, edgeID := range rev[node.ID] {
			if edge, ok := edgeMap[edgeID]; ok {
				connected[edge.TargetPort] = true
			}
		}

		var missing []string
		for _, port := range agent.InputPorts {
			if port.Required && !connected[port.Name] {
				missing = append(missing, port.Name)
			}
		}

		if len(missing) > 0 {
			errs = append(errs, ValidationError{
				Code:    MissingRequiredInput,
				Message: fmt.Sprintf("missing required inputs: %s", strings.Join(missing, ", ")),
				NodeIDs: []string{node.ID},
			})
		}
	}
	return errs
}

func findPort(ports []PortSchema, name string) *PortSchema {
	for i := range ports {
		if ports[i].Name == name {
			return &ports[i]
		}
	}
	return nil
}
