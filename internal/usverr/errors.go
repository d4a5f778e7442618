// Package usverr defines the typed error taxonomy shared by every package
// in the digital-twin numerical core. Every error surfaced across a
// predict/update/simulate/encode/decode boundary is a *Error carrying a
// Kind, the offending component, and enough detail to diagnose without
// re-deriving the call stack.
package usverr

import "fmt"

// Kind enumerates the error taxonomy from the estimation and codec design.
type Kind string

const (
	// InvalidArgument covers shape, dtype, finiteness, or positivity
	// violations on inputs. Core state is left unmodified.
	InvalidArgument Kind = "invalid_argument"
	// NumericError covers a non-invertible innovation covariance or a
	// non-finite result produced during predict/update.
	NumericError Kind = "numeric_error"
	// CorruptHeader covers a bad magic or unsupported endianness marker
	// in a timeseries file header.
	CorruptHeader Kind = "corrupt_header"
	// TruncatedHeader covers a file or record header cut short by EOF.
	TruncatedHeader Kind = "truncated_header"
	// TruncatedPayload covers a record payload that runs past EOF.
	TruncatedPayload Kind = "truncated_payload"
	// PayloadLengthMismatch covers a known record id with the wrong
	// payload length: not exactly the layout size in strict mode, or
	// shorter than it in lenient mode.
	PayloadLengthMismatch Kind = "payload_length_mismatch"
	// IncompatibleDataset covers a schema id or model id mismatch
	// between a file and the reader compiled against it.
	IncompatibleDataset Kind = "incompatible_dataset"
)

// Error is the concrete error type for every taxonomy entry above.
type Error struct {
	Kind      Kind
	Component string // e.g. "ekf.Predict", "codec.Reader"
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Component, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Kind, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new taxonomy error with no wrapped cause.
func New(kind Kind, component, message string) *Error {
	return &Error{Kind: kind, Component: component, Message: message}
}

// Wrap creates a new taxonomy error wrapping an underlying cause.
func Wrap(err error, kind Kind, component, message string) *Error {
	return &Error{Kind: kind, Component: component, Message: message, Err: err}
}

// Is reports whether err (or anything it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
