// Package apperr provides the typed error used at process and HTTP
// boundaries. The registry's package-level sentinel errors (ErrDuplicateID,
// ErrNotFound) remain the primary error values there; apperr.Error wraps
// them and other failures with a stable machine-readable Type for callers
// that need to map an error to an exit code or an HTTP status.
package apperr

import "fmt"

// Error types, matching the taxonomy of the error handling design.
const (
	// TypeConfig is returned for malformed configuration or conflicting
	// backend names. Fatal at startup.
	TypeConfig = "config_error"

	// TypeEmbedder is returned when the embedding backend is unavailable.
	// Fatal at startup; per-call failures are retried once then surfaced
	// under this type.
	TypeEmbedder = "embedder_error"

	// TypeDuplicateID is returned when a tool id already exists in the
	// registry.
	TypeDuplicateID = "duplicate_id"

	// TypeUnknownTool is returned when a tool id does not exist.
	TypeUnknownTool = "unknown_tool"

	// TypeConnect is returned for backend spawn failure, handshake timeout,
	// or handshake protocol mismatch.
	TypeConnect = "connect_error"

	// TypeCall is returned for per-call failures: timeout, session loss,
	// a structured backend error payload, or cancellation. Kind
	// discriminates which of those four applies.
	TypeCall = "call_error"

	// TypeShutdown is the sentinel type for in-flight calls cancelled by a
	// shutdown signal.
	TypeShutdown = "shutdown"

	// TypeInternal covers anything not otherwise classified.
	TypeInternal = "internal"
)

// CallKind discriminates the four TypeCall variants: a client needs to
// tell a timeout apart from a lost session, a structured backend error, or
// its own cancellation.
type CallKind string

const (
	CallKindTimeout      CallKind = "timeout"
	CallKindSessionLost  CallKind = "session_lost"
	CallKindBackendError CallKind = "backend_error"
	CallKindCancelled    CallKind = "cancelled"
)

// Error is a typed, wrapped error suitable for crossing the HTTP boundary or
// driving process exit codes.
type Error struct {
	Type    string
	Message string
	Cause   error

	// Kind is set only on TypeCall errors; it is empty for every other
	// Type.
	Kind CallKind
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new typed Error.
func New(errType, message string, cause error) *Error {
	return &Error{Type: errType, Message: message, Cause: cause}
}

// NewConfigError creates a TypeConfig error.
func NewConfigError(message string, cause error) *Error { return New(TypeConfig, message, cause) }

// NewEmbedderError creates a TypeEmbedder error.
func NewEmbedderError(message string, cause error) *Error {
	return New(TypeEmbedder, message, cause)
}

// NewDuplicateIDError creates a TypeDuplicateID error.
func NewDuplicateIDError(message string, cause error) *Error {
	return New(TypeDuplicateID, message, cause)
}

// NewUnknownToolError creates a TypeUnknownTool error.
func NewUnknownToolError(message string, cause error) *Error {
	return New(TypeUnknownTool, message, cause)
}

// NewConnectError creates a TypeConnect error.
func NewConnectError(message string, cause error) *Error { return New(TypeConnect, message, cause) }

// NewCallError creates a TypeCall error carrying kind, so callers can
// machine-distinguish a timeout from a lost session, a structured backend
// error, or a cancellation.
func NewCallError(kind CallKind, message string, cause error) *Error {
	return &Error{Type: TypeCall, Kind: kind, Message: message, Cause: cause}
}

// NewShutdownError creates a TypeShutdown error.
func NewShutdownError(message string, cause error) *Error {
	return New(TypeShutdown, message, cause)
}

// NewInternalError creates a TypeInternal error.
func NewInternalError(message string, cause error) *Error {
	return New(TypeInternal, message, cause)
}

// IsConfig reports whether err is a TypeConfig error.
func IsConfig(err error) bool { return isType(err, TypeConfig) }

// IsEmbedder reports whether err is a TypeEmbedder error.
func IsEmbedder(err error) bool { return isType(err, TypeEmbedder) }

// IsDuplicateID reports whether err is a TypeDuplicateID error.
func IsDuplicateID(err error) bool { return isType(err, TypeDuplicateID) }

// IsUnknownTool reports whether err is a TypeUnknownTool error.
func IsUnknownTool(err error) bool { return isType(err, TypeUnknownTool) }

// IsConnect reports whether err is a TypeConnect error.
func IsConnect(err error) bool { return isType(err, TypeConnect) }

// IsCall reports whether err is a TypeCall error.
func IsCall(err error) bool { return isType(err, TypeCall) }

// IsCallKind reports whether err is a TypeCall error of the given kind.
func IsCallKind(err error, kind CallKind) bool {
	e, ok := err.(*Error)
	return ok && e.Type == TypeCall && e.Kind == kind
}

// IsShutdown reports whether err is a TypeShutdown error.
func IsShutdown(err error) bool { return isType(err, TypeShutdown) }

func isType(err error, t string) bool {
	e, ok := err.(*Error)
	return ok && e.Type == t
}
