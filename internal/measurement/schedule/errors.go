package schedule

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is matched by every *ValidationError.
	ErrInvalidRequest = errors.New("invalid schedule update request")
	// ErrUnsupportedContext is matched by every *UnsupportedContextError.
	ErrUnsupportedContext = errors.New("unsupported schedule context")
	// ErrRemoteCall is matched by every *RemoteCallError.
	ErrRemoteCall = errors.New("schedule remote call failed")
)

// ValidationError reports a malformed request. It is returned before any remote call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidRequest, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// UnsupportedContextError carries a context value that is neither resource nor group.
type UnsupportedContextError struct {
	Context Context
}

func (e *UnsupportedContextError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnsupportedContext, string(e.Context))
}

func (e *UnsupportedContextError) Unwrap() error { return ErrUnsupportedContext }

// RemoteCallError wraps a collaborator failure. Group is nil when the schedule query
// failed, otherwise it names the action group whose batch call failed.
type RemoteCallError struct {
	Op    string
	Group *ActionGroup
	Err   error
}

func (e *RemoteCallError) Error() string {
	if e.Group != nil {
		return fmt.Sprintf("%s: %s %s: %v", ErrRemoteCall, e.Op, e.Group, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrRemoteCall, e.Op, e.Err)
}

func (e *RemoteCallError) Is(target error) bool { return target == ErrRemoteCall }

func (e *RemoteCallError) Unwrap() error { return e.Err }
