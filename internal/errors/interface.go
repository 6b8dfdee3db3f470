// Package errors carries coded application errors. Each package declares its
// own ErrorCode values and builds errors through a Factory so logs can report
// a stable error_code next to the message.
package errors

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

// Error is an error tagged with an ErrorCode. Optional message and data
// refine it; the wrapped cause stays reachable through Unwrap.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory builds coded errors.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
