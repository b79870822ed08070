package ir

import (
	"errors"
	"fmt"
	"strings"
)

// Error is the typed failure returned by every procflow operation.
//
// Callers branch on Code through the IsXxx helpers, which use errors.As so
// wrapped errors still match.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Entity names the kind of thing involved ("definition", "task", ...).
	Entity string

	// ID identifies the entity (definition key, instance id, task id).
	ID string

	// Details carries one line per underlying problem, e.g. each
	// validation failure of an invalid definition.
	Details []string
}

// ErrorCode categorizes errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates an unknown definition key, instance id or task id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidDefinition indicates a malformed flow graph at deploy time.
	ErrCodeInvalidDefinition ErrorCode = "INVALID_DEFINITION"

	// ErrCodeAmbiguousResult indicates a single-result query matched more than one entity.
	ErrCodeAmbiguousResult ErrorCode = "AMBIGUOUS_RESULT"

	// ErrCodeAlreadyCompleted indicates a task was completed twice.
	ErrCodeAlreadyCompleted ErrorCode = "ALREADY_COMPLETED"

	// ErrCodeQuotaExceeded indicates an advance cycle exceeded the step limit.
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Entity != "" && e.ID != "" {
		fmt.Fprintf(&b, " (%s=%s)", e.Entity, e.ID)
	}
	if len(e.Details) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Details, "; "))
	}
	return b.String()
}

// NotFound builds an ErrCodeNotFound error.
func NotFound(entity, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: entity + " not found",
		Entity:  entity,
		ID:      id,
	}
}

// InvalidDefinition builds an ErrCodeInvalidDefinition error.
func InvalidDefinition(key string, details []string) *Error {
	return &Error{
		Code:    ErrCodeInvalidDefinition,
		Message: "invalid process definition",
		Entity:  "definition",
		ID:      key,
		Details: details,
	}
}

// AmbiguousResult builds an ErrCodeAmbiguousResult error.
func AmbiguousResult(entity string, count int) *Error {
	return &Error{
		Code:    ErrCodeAmbiguousResult,
		Message: fmt.Sprintf("query expected a single %s but matched %d", entity, count),
		Entity:  entity,
	}
}

// AlreadyCompleted builds an ErrCodeAlreadyCompleted error.
func AlreadyCompleted(taskID string) *Error {
	return &Error{
		Code:    ErrCodeAlreadyCompleted,
		Message: "task already completed",
		Entity:  "task",
		ID:      taskID,
	}
}

// AlreadyCompletedInstance builds an ErrCodeAlreadyCompleted error for an instance
// that has already reached an END node.
func AlreadyCompletedInstance(instanceID string) *Error {
	return &Error{
		Code:    ErrCodeAlreadyCompleted,
		Message: "process instance already completed",
		Entity:  "instance",
		ID:      instanceID,
	}
}

// QuotaExceeded builds an ErrCodeQuotaExceeded error.
func QuotaExceeded(instanceID string, maxSteps int) *Error {
	return &Error{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("advance cycle exceeded %d steps", maxSteps),
		Entity:  "instance",
		ID:      instanceID,
	}
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsInvalidDefinition reports whether err is an InvalidDefinition error.
func IsInvalidDefinition(err error) bool { return hasCode(err, ErrCodeInvalidDefinition) }

// IsAmbiguous reports whether err is an AmbiguousResult error.
func IsAmbiguous(err error) bool { return hasCode(err, ErrCodeAmbiguousResult) }

// IsAlreadyCompleted reports whether err is an AlreadyCompleted error.
func IsAlreadyCompleted(err error) bool { return hasCode(err, ErrCodeAlreadyCompleted) }

// IsQuotaExceeded reports whether err is a QuotaExceeded error.
func IsQuotaExceeded(err error) bool { return hasCode(err, ErrCodeQuotaExceeded) }

// CodeOf returns the code of err, or "" if err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
