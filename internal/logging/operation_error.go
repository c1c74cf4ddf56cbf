package logging

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

// OperationError ties a pipeline failure to the stage that raised it and the
// session it belonged to.
type OperationError struct {
	Operation string
	SessionID string
	Err       error
}

func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.SessionID != "" {
		return fmt.Sprintf("%s (session=%s): %v", e.Operation, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Kind is the waste error kind of the wrapped cause, "internal" for anything
// outside the pipeline's taxonomy.
func (e *OperationError) Kind() string {
	if e == nil {
		return ""
	}
	return waste.Kind(e.Err)
}

// NewOperationError wraps err with the failing stage and session. A nil err
// yields nil so call sites can wrap unconditionally.
func NewOperationError(operation, sessionID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, SessionID: sessionID, Err: err}
}

// ErrorFields expands err into log fields. An OperationError anywhere in the
// chain contributes its stage and kind; the session id comes from
// WithOperation.
func ErrorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		fields = append(fields,
			zap.String("failed_operation", opErr.Operation),
			zap.String("error_kind", opErr.Kind()),
		)
	}
	return fields
}
