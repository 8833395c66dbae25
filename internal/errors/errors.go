package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a pipeline failure class.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // caller bug, not retryable
	ErrMessageNotFound  ErrorCode = "MESSAGE_NOT_FOUND" // retryable once upstream stores the message
	ErrTenantUnresolved ErrorCode = "TENANT_UNRESOLVED" // data integrity
	ErrDraftNotAllowed  ErrorCode = "DRAFT_NOT_ALLOWED" // draft for a snapshot with allow_draft=false
	ErrPersistence      ErrorCode = "PERSISTENCE"       // store unreachable or query failed, retryable
	ErrInternal         ErrorCode = "INTERNAL"
)

// PipelineError is a structured error carrying a code and optional details.
type PipelineError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates an error for malformed input.
func NewInvalidRequest(msg string) *PipelineError {
	return &PipelineError{
		Code:    ErrInvalidRequest,
		Message: msg,
	}
}

// NewMessageNotFound creates an error for a message the messaging layer has not stored yet.
func NewMessageNotFound(conversationID, externalMessageID string) *PipelineError {
	return &PipelineError{
		Code:    ErrMessageNotFound,
		Message: fmt.Sprintf("message %q not found in conversation %q", externalMessageID, conversationID),
		Details: map[string]any{
			"conversation_id":     conversationID,
			"external_message_id": externalMessageID,
		},
	}
}

// NewTenantUnresolved creates an error for a conversation without an owning instructor.
func NewTenantUnresolved(conversationID string) *PipelineError {
	return &PipelineError{
		Code:    ErrTenantUnresolved,
		Message: fmt.Sprintf("cannot resolve instructor for conversation %q", conversationID),
		Details: map[string]any{"conversation_id": conversationID},
	}
}

// NewDraftNotAllowed creates an error for a draft whose snapshot did not allow drafting.
func NewDraftNotAllowed(snapshotID string) *PipelineError {
	return &PipelineError{
		Code:    ErrDraftNotAllowed,
		Message: fmt.Sprintf("snapshot %q does not allow drafts", snapshotID),
		Details: map[string]any{"snapshot_id": snapshotID},
	}
}

// NewPersistence wraps a store failure.
func NewPersistence(op string, err error) *PipelineError {
	return &PipelineError{
		Code:    ErrPersistence,
		Message: op,
		Details: map[string]any{"op": op},
		Err:     err,
	}
}

// NewInternal creates an error for unexpected internal failures.
func NewInternal(err error) *PipelineError {
	return &PipelineError{
		Code:    ErrInternal,
		Message: "internal error",
		Err:     err,
	}
}

// Is checks if err, or anything it wraps, is a PipelineError with the given code.
func Is(err error, code ErrorCode) bool {
	var pErr *PipelineError
	if stderrors.As(err, &pErr) {
		return pErr.Code == code
	}
	return false
}

// Retryable reports whether retrying the whole orchestration may succeed.
func Retryable(err error) bool {
	return Is(err, ErrMessageNotFound) || Is(err, ErrPersistence)
}
