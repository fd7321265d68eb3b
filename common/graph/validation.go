package graph

// ErrorCode categorizes validation failures
type ErrorCode string

const (
	// Structural
	CycleDetected        ErrorCode = "CYCLE_DETECTED"
	InvalidEdgeReference ErrorCode = "INVALID_EDGE_REFERENCE"
	DuplicateEdge        ErrorCode = "DUPLICATE_EDGE"
	NoEntryNode          ErrorCode = "NO_ENTRY_NODE"
	OrphanNode           ErrorCode = "ORPHAN_NODE"

	// Semantic (require an agent registry)
	TypeMismatch         ErrorCode = "TYPE_MISMATCH"
	MissingRequiredInput ErrorCode = "MISSING_REQUIRED_INPUT"
)

// ValidationError is a single validation failure with affected ids
type ValidationError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	NodeIDs []string  `json:"node_ids,omitempty"`
	EdgeIDs []string  `json:"edge_ids,omitempty"`
}

// Result is the outcome of validating a workflow. When Valid is true,
// ExecutionOrder holds a topological ordering of the nodes.
type Result struct {
	Valid          bool              `json:"valid"`
	Errors         []ValidationError `json:"errors"`
	ExecutionOrder []string          `json:"execution_order,omitempty"`
}

func success(order []string) Result {
	return Result{Valid: true, Errors: []ValidationError{}, ExecutionOrder: order}
}

func failure(errs []ValidationError) Result {
	return Result{Valid: false, Errors: errs}
}
