package models

import "time"

// WorkflowStatus is the lifecycle status of a workflow definition
type WorkflowStatus string

const (
	WorkflowDraft    WorkflowStatus = "draft"
	WorkflowValid    WorkflowStatus = "valid"
	WorkflowInvalid  WorkflowStatus = "invalid"
	WorkflowArchived WorkflowStatus = "archived"
)

// NodeType determines the execution behavior of a node
type NodeType string

const (
	NodeAgent  NodeType = "agent"  // invokes an AI agent
	NodeTool   NodeType = "tool"   // deterministic tool/function
	NodeInput  NodeType = "input"  // workflow entry point
	NodeOutput NodeType = "output" // workflow exit point
)

// Position is the node's place on the editor canvas. Not load-bearing
// for execution.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeConfig holds node-specific configuration
type NodeConfig struct {
	AgentID    string         `json:"agent_id,omitempty"`
	ToolID     string         `json:"tool_id,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Node is a single unit of work in the workflow DAG
type Node struct {
	ID       string     `json:"id"`
	Type     NodeType   `json:"type"`
	Label    string     `json:"label,omitempty"`
	Position Position   `json:"position"`
	Config   NodeConfig `json:"config"`
}

// Edge is a directed dependency from a source node's output port to a
// target node's input port. The (source, source_port, target, target_port)
// tuple is unique within a workflow.
type Edge struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	SourcePort string `json:"source_port,omitempty"`
	Target     string `json:"target"`
	TargetPort string `json:"target_port,omitempty"`
}

// Workflow is a versioned DAG of nodes and edges, owned by one tenant.
// Mutations supersede the record and bump Version by one.
type Workflow struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Status      WorkflowStatus `json:"status"`
	Version     int            `json:"version"`
	Nodes       []Node         `json:"nodes"`
	Edges       []Edge         `json:"edges"`
	CreatedBy   string         `json:"created_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NodeMap builds a node lookup map
func (w *Workflow) NodeMap() map[string]Node {
	m := make(map[string]Node, len(w.Nodes))
	for _, n := range w.Nodes {
		m[n.ID] = n
	}
	return m
}

// EdgeMap builds an edge lookup map
func (w *Workflow) EdgeMap() map[string]Edge {
	m := make(map[string]Edge, len(w.Edges))
	for _, e := range w.Edges {
		m[e.ID] = e
	}
	return m
}

// Clone returns a deep copy of the workflow
func (w *Workflow) Clone() *Workflow {
	cp := *w
	cp.Nodes = make([]Node, len(w.Nodes))
	for i, n := range w.Nodes {
		cp.Nodes[i] = n
		if n.Config.Parameters != nil {
			params := make(map[string]any, len(n.Config.Parameters))
			for k, v := range n.Config.Parameters {
				params[k] = v
			}
			cp.Nodes[i].Config.Parameters = params
		}
	}
	cp.Edges = append([]Edge(nil), w.Edges...)
	return &cp
}
