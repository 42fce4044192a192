package services

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds surfaced by the workflow engine. Match them with errors.Is.
var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrMissingRemarks    = errors.New("missing remarks")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrPersistence       = errors.New("workflow store unavailable")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
)

// WorkflowError carries the context a client needs to render an actionable message.
// Cause holds the infrastructure error behind an ErrPersistence and is never sent to clients.
type WorkflowError struct {
	Kind          error
	Message       string
	CurrentStatus int
	Action        Action
	RequiredRole  Role
	Cause         error
}

func (e *WorkflowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *WorkflowError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func invalidTransition(statuses *StatusRegistry, current int, action Action) *WorkflowError {
	return &WorkflowError{
		Kind:          ErrInvalidTransition,
		Message:       fmt.Sprintf("action %s is not allowed while the screen is %s", action, statuses.Name(current)),
		CurrentStatus: current,
		Action:        action,
	}
}

func missingRemarks(action Action) *WorkflowError {
	return &WorkflowError{
		Kind:    ErrMissingRemarks,
		Message: fmt.Sprintf("remarks are required for %s", action),
		Action:  action,
	}
}

func permissionDenied(action Action, required, caller Role) *WorkflowError {
	return &WorkflowError{
		Kind:         ErrPermissionDenied,
		Message:      fmt.Sprintf("%s requires the %s role; your role is %s", action, required, caller),
		Action:       action,
		RequiredRole: required,
	}
}

func notFound(format string, args ...interface{}) *WorkflowError {
	return &WorkflowError{
		Kind:    ErrNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

func invalidInput(format string, args ...interface{}) *WorkflowError {
	return &WorkflowError{
		Kind:    ErrInvalidInput,
		Message: fmt.Sprintf(format, args...),
	}
}

// persistenceFailure wraps an infrastructure error with a stack trace for the logs.
func persistenceFailure(op string, err error) *WorkflowError {
	return &WorkflowError{
		Kind:    ErrPersistence,
		Message: "workflow store unavailable, please retry",
		Cause:   errors.Wrap(err, op),
	}
}

// asWorkflowError passes typed workflow errors through and treats anything else as
// an infrastructure failure.
func asWorkflowError(op string, err error) error {
	if err == nil {
		return nil
	}
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr
	}
	return persistenceFailure(op, err)
}
