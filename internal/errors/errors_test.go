package errors

import (
	"fmt"
	"testing"
)

func TestPipelineError_Error(t *testing.T) {
	err := &PipelineError{
		Code:    ErrMessageNotFound,
		Message: "message not found",
	}

	expected := "MESSAGE_NOT_FOUND: message not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestPipelineError_ErrorWithCause(t *testing.T) {
	err := NewPersistence("insert snapshot", fmt.Errorf("connection refused"))

	expected := "PERSISTENCE: insert snapshot: connection refused"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewMessageNotFound(t *testing.T) {
	err := NewMessageNotFound("conv-1", "ext-9")

	if err.Code != ErrMessageNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrMessageNotFound)
	}
	if err.Details["conversation_id"] != "conv-1" {
		t.Errorf("Details[conversation_id] = %v, want %q", err.Details["conversation_id"], "conv-1")
	}
	if err.Details["external_message_id"] != "ext-9" {
		t.Errorf("Details[external_message_id] = %v, want %q", err.Details["external_message_id"], "ext-9")
	}
}

func TestNewTenantUnresolved(t *testing.T) {
	err := NewTenantUnresolved("conv-1")

	if err.Code != ErrTenantUnresolved {
		t.Errorf("Code = %q, want %q", err.Code, ErrTenantUnresolved)
	}
}

func TestIs_Wrapped(t *testing.T) {
	err := fmt.Errorf("orchestrate: %w", NewPersistence("lookup", fmt.Errorf("timeout")))

	if !Is(err, ErrPersistence) {
		t.Error("Is() should see through fmt.Errorf wrapping")
	}
	if Is(err, ErrInternal) {
		t.Error("Is() matched the wrong code")
	}
	if Is(fmt.Errorf("plain"), ErrPersistence) {
		t.Error("Is() matched a non-pipeline error")
	}
	if Is(nil, ErrPersistence) {
		t.Error("Is() matched nil")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not found", NewMessageNotFound("c", "m"), true},
		{"persistence", NewPersistence("op", nil), true},
		{"tenant", NewTenantUnresolved("c"), false},
		{"invalid", NewInvalidRequest("bad"), false},
		{"internal", NewInternal(nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
