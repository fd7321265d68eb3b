// Package apperr defines the structured error surface of the engine.
//
// Every error that crosses the API boundary is an *Error carrying a code
// from the closed enumeration below. Wrong-tenant lookups are reported as
// not-found so resource ids cannot be enumerated across tenants.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an API error category
type Code string

const (
	CodeValidationError   Code = "VALIDATION_ERROR"
	CodeWorkflowNotFound  Code = "WORKFLOW_NOT_FOUND"
	CodeExecutionNotFound Code = "EXECUTION_NOT_FOUND"
	CodeWorkflowInvalid   Code = "WORKFLOW_INVALID"
	CodeWorkflowArchived  Code = "WORKFLOW_ARCHIVED"
	CodeMissingInputs     Code = "MISSING_INPUTS"
	CodeVersionConflict   Code = "VERSION_CONFLICT"
	CodeInvalidCursor     Code = "INVALID_CURSOR"
	CodeResumeNotAllowed  Code = "RESUME_NOT_ALLOWED"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// Detail carries per-field or per-entity error context
type Detail struct {
	Field    string         `json:"field,omitempty"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Error is the structured API error
type Error struct {
	Code    Code     `json:"code"`
	Message string   `json:"message"`
	Status  int      `json:"-"`
	Details []Detail `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Response is the wire shape of an API error
type Response struct {
	Code      Code     `json:"code"`
	Message   string   `json:"message"`
	Details   []Detail `json:"details"`
	RequestID string   `json:"request_id,omitempty"`
}

// ToResponse converts the error to its wire shape
func (e *Error) ToResponse(requestID string) *Response {
	details := e.Details
	if details == nil {
		details = []Detail{}
	}
	return &Response{
		Code:      e.Code,
		Message:   e.Message,
		Details:   details,
		RequestID: requestID,
	}
}

// As extracts an *Error from an error chain
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// New creates an error with an explicit status
func New(code Code, status int, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Status:  status,
	}
}

// WorkflowNotFound reports a missing (or foreign-tenant) workflow
func WorkflowNotFound(workflowID string) *Error {
	return New(CodeWorkflowNotFound, http.StatusNotFound, "workflow not found: %s", workflowID)
}

// ExecutionNotFound reports a missing (or foreign-tenant) execution
func ExecutionNotFound(executionID string) *Error {
	return New(CodeExecutionNotFound, http.StatusNotFound, "execution not found: %s", executionID)
}

// WorkflowInvalid reports a workflow that failed validation
func WorkflowInvalid(details []Detail) *Error {
	return &Error{
		Code:    CodeWorkflowInvalid,
		Message: "workflow is invalid and cannot be executed",
		Status:  http.StatusBadRequest,
		Details: details,
	}
}

// WorkflowArchived reports a mutation or execution of an archived workflow
func WorkflowArchived(workflowID string) *Error {
	return New(CodeWorkflowArchived, http.StatusBadRequest, "workflow is archived: %s", workflowID)
}

// VersionConflict reports an optimistic-concurrency failure
func VersionConflict(expected, actual int) *Error {
	return New(CodeVersionConflict, http.StatusConflict,
		"version conflict: expected %d, found %d", expected, actual)
}

// ResumeNotAllowed reports an execution that cannot be resumed
func ResumeNotAllowed(executionID, reason string) *Error {
	return New(CodeResumeNotAllowed, http.StatusBadRequest,
		"cannot resume execution %s: %s", executionID, reason)
}

// Validation reports a malformed request payload
func Validation(format string, args ...any) *Error {
	return New(CodeValidationError, http.StatusBadRequest, format, args...)
}

// Unauthorized reports a missing or invalid credential
func Unauthorized(message string) *Error {
	return New(CodeUnauthorized, http.StatusUnauthorized, "%s", message)
}

// Forbidden reports an insufficient role
func Forbidden(message string) *Error {
	return New(CodeForbidden, http.StatusForbidden, "%s", message)
}

// Internal reports an unexpected failure
func Internal() *Error {
	return New(CodeInternal, http.StatusInternalServerError, "internal error")
}
