package pgwire

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	pgwireerr "github.com/riftpg/pgwire/errors"
	"github.com/riftpg/pgwire/pkg/types"
)

// Kind classifies the error kinds from §7, used with errors.As to recover
// structured detail from any error this package returns.
type Kind int

const (
	// KindProtocol covers a malformed frame, an unexpected message in the
	// current state, or a frame exceeding the configured size limit.
	KindProtocol Kind = iota
	// KindAuth covers a SCRAM step failure, a server verifier mismatch, or
	// an unsupported auth mechanism. Fatal to the session.
	KindAuth
	// KindConnectionLost covers a transport EOF or write failure. Fatal;
	// the pool replaces the connection.
	KindConnectionLost
	// KindServerError covers a backend ErrorResponse carrying a SQLSTATE.
	// Recoverable outside the failed statement; poisons an open
	// transaction until rollback.
	KindServerError
	// KindTransactionAborted covers an attempted operation on a session
	// whose transaction-status is 'E'. Recovered by rollback.
	KindTransactionAborted
	// KindTimeout covers a connect or query deadline exceeded.
	KindTimeout
	// KindUnsupportedType covers an encode requested for an unregistered
	// OID or an incompatible value.
	KindUnsupportedType
	// KindPoolExhausted covers a non-blocking lease request with no idle
	// connection and the pool already at capacity.
	KindPoolExhausted
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "ProtocolError"
	case KindAuth:
		return "AuthError"
	case KindConnectionLost:
		return "ConnectionLost"
	case KindServerError:
		return "ServerError"
	case KindTransactionAborted:
		return "TransactionAborted"
	case KindTimeout:
		return "Timeout"
	case KindUnsupportedType:
		return "UnsupportedType"
	case KindPoolExhausted:
		return "PoolExhausted"
	default:
		return "Unknown"
	}
}

// Error is the error type every public operation in this package returns.
// It decorates a cause with a Kind and, for KindServerError, the full set
// of fields the backend sent.
type Error struct {
	Kind    Kind
	cause   error
	Details *pgwireerr.Error
}

func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Details.Message, e.Details.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// newError wraps cause with kind, adding a stack trace via github.com/pkg/
// errors for protocol-layer failures (decode errors, unexpected EOF) where
// the trace is worth preserving across a pool lease boundary.
func newError(kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, cause: pkgerrors.WithStack(cause)}
}

// newServerError builds a KindServerError from a parsed backend
// ErrorResponse field map.
func newServerError(fields map[types.ServerErrFieldType]string) *Error {
	details := pgwireerr.Parse(fields)
	return &Error{Kind: KindServerError, cause: details.Wrap(), Details: &details}
}

// IsKind reports whether err (or anything it wraps) is a pgwire *Error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
