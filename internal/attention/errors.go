package attention

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrInvalidShape is returned when an input tensor's rank or dimensions
	// do not match the entry point's contract. Detected before any device
	// work is issued.
	ErrInvalidShape = errors.New("invalid input shape")

	// ErrDType is returned when an input element type is not one of the two
	// supported reduced-precision floating formats, or when q/k/v disagree.
	ErrDType = errors.New("unsupported element type")

	// ErrUnavailable is returned when no attention primitive is linked in or
	// registered. The original framework silently no-opped in this case;
	// failing loudly is a deliberate behavior change.
	ErrUnavailable = errors.New("accelerated attention primitive not available")
)

// Phase identifies which invocation phase the primitive failed in.
type Phase string

// Invocation phases of the two-call protocol.
const (
	PhaseSizing  Phase = "sizing"
	PhaseCompute Phase = "compute"
)

// ExternalError wraps a failure reported by the attention primitive itself.
// The message originates from the primitive; no partial output is valid after
// one of these, and the call is not retried.
type ExternalError struct {
	Phase Phase
	Err   error
}

// Error implements the error interface.
func (e *ExternalError) Error() string {
	return fmt.Sprintf("attention primitive failed during %s: %v", e.Phase, e.Err)
}

// Unwrap returns the primitive's own error.
func (e *ExternalError) Unwrap() error {
	return e.Err
}
