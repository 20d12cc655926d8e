package apperr

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err:  &Error{Type: TypeConfig, Message: "test message", Cause: errors.New("underlying error")},
			want: "config_error: test message: underlying error",
		},
		{
			name: "error without cause",
			err:  &Error{Type: TypeInternal, Message: "test message", Cause: nil},
			want: "internal: test message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &Error{Type: TypeInternal, Message: "test message", Cause: cause}

	if got := err.Unwrap(); got != cause {
		t.Errorf("Error.Unwrap() = %v, want %v", got, cause)
	}

	errNoCause := &Error{Type: TypeInternal, Message: "test message"}
	if got := errNoCause.Unwrap(); got != nil {
		t.Errorf("Error.Unwrap() = %v, want nil", got)
	}
}

func TestNewConstructors(t *testing.T) {
	cause := errors.New("cause")

	tests := []struct {
		name        string
		constructor func(string, error) *Error
		wantType    string
	}{
		{"NewConfigError", NewConfigError, TypeConfig},
		{"NewEmbedderError", NewEmbedderError, TypeEmbedder},
		{"NewDuplicateIDError", NewDuplicateIDError, TypeDuplicateID},
		{"NewUnknownToolError", NewUnknownToolError, TypeUnknownTool},
		{"NewConnectError", NewConnectError, TypeConnect},
		{"NewShutdownError", NewShutdownError, TypeShutdown},
		{"NewInternalError", NewInternalError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor("test message", cause)
			if err.Type != tt.wantType {
				t.Errorf("%s().Type = %v, want %v", tt.name, err.Type, tt.wantType)
			}
			if err.Message != "test message" {
				t.Errorf("%s().Message = %v, want %v", tt.name, err.Message, "test message")
			}
			if err.Cause != cause {
				t.Errorf("%s().Cause = %v, want %v", tt.name, err.Cause, cause)
			}
		})
	}
}

func TestNewCallError(t *testing.T) {
	cause := errors.New("cause")
	err := NewCallError(CallKindTimeout, "call timed out", cause)

	if err.Type != TypeCall {
		t.Errorf("Type = %v, want %v", err.Type, TypeCall)
	}
	if err.Kind != CallKindTimeout {
		t.Errorf("Kind = %v, want %v", err.Kind, CallKindTimeout)
	}
	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
}

func TestIsCallKind(t *testing.T) {
	timeout := NewCallError(CallKindTimeout, "x", nil)
	lost := NewCallError(CallKindSessionLost, "x", nil)

	if !IsCallKind(timeout, CallKindTimeout) {
		t.Error("IsCallKind(timeout, CallKindTimeout) = false, want true")
	}
	if IsCallKind(timeout, CallKindSessionLost) {
		t.Error("IsCallKind(timeout, CallKindSessionLost) = true, want false")
	}
	if !IsCallKind(lost, CallKindSessionLost) {
		t.Error("IsCallKind(lost, CallKindSessionLost) = false, want true")
	}
	if IsCallKind(errors.New("plain"), CallKindTimeout) {
		t.Error("IsCallKind(plain error) = true, want false")
	}
}

func TestTypeCheckers(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		checker func(error) bool
		want    bool
	}{
		{"IsConfig matching", NewConfigError("x", nil), IsConfig, true},
		{"IsConfig non-matching", NewEmbedderError("x", nil), IsConfig, false},
		{"IsConfig non-Error type", errors.New("plain"), IsConfig, false},
		{"IsDuplicateID matching", NewDuplicateIDError("x", nil), IsDuplicateID, true},
		{"IsUnknownTool matching", NewUnknownToolError("x", nil), IsUnknownTool, true},
		{"IsConnect matching", NewConnectError("x", nil), IsConnect, true},
		{"IsCall matching", NewCallError(CallKindTimeout, "x", nil), IsCall, true},
		{"IsShutdown matching", NewShutdownError("x", nil), IsShutdown, true},
		{"IsEmbedder nil error", nil, IsEmbedder, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.checker(tt.err); got != tt.want {
				t.Errorf("%s() = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
