package errors

import "errors"

// WithPosition decorates the error with the 1-indexed byte offset into the
// original query string the backend points at (ErrorResponse field 'P').
func WithPosition(err error, position string) error {
	if err == nil {
		return nil
	}

	return &withPosition{cause: err, position: position}
}

// GetPosition returns the Postgres error position inside the given error.
func GetPosition(err error) string {
	if p, ok := err.(*withPosition); ok {
		return p.position
	}

	if n := errors.Unwrap(err); n != nil {
		return GetPosition(n)
	}

	return ""
}

type withPosition struct {
	cause    error
	position string
}

func (w *withPosition) Error() string { return w.cause.Error() }
func (w *withPosition) Unwrap() error { return w.cause }
