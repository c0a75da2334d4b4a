package buffer

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/riftpg/pgwire/codes"
	pgwireerr "github.com/riftpg/pgwire/errors"
)

// ErrMissingNulTerminator is thrown whenever a string field is missing its
// null terminator.
var ErrMissingNulTerminator = errors.New("NUL terminator not found")

// NewMissingNulTerminator decorates ErrMissingNulTerminator with a Postgres
// error code and severity.
func NewMissingNulTerminator() error {
	return pgwireerr.WithSeverity(pgwireerr.WithCode(ErrMissingNulTerminator, codes.DataCorrupted), pgwireerr.LevelFatal)
}

// ErrInsufficientData is thrown whenever a message ends before its declared
// field could be read in full.
var ErrInsufficientData = errors.New("insufficient data")

// NewInsufficientData decorates ErrInsufficientData with the number of bytes
// that were actually available.
func NewInsufficientData(length int) error {
	return fmt.Errorf("%w: %d bytes remaining", ErrInsufficientData, length)
}

// MessageSizeExceeded is thrown whenever a backend message declares a length
// greater than the reader's configured MaxMessageSize.
type MessageSizeExceeded struct {
	Message string
	Size    int
	Max     int
}

// ErrMessageSizeExceeded is the sentinel compared against with errors.Is.
var ErrMessageSizeExceeded = MessageSizeExceeded{Message: "maximum message size exceeded"}

func (e MessageSizeExceeded) Error() string {
	return fmt.Sprintf("%s: size %d exceeds max %d", e.Message, e.Size, e.Max)
}

// Is reports whether target is also a MessageSizeExceeded, regardless of its
// Size/Max fields, matching the sentinel comparison pattern used elsewhere in
// this package.
func (e MessageSizeExceeded) Is(target error) bool {
	return reflect.TypeOf(target) == reflect.TypeOf(e)
}

// NewMessageSizeExceeded decorates a MessageSizeExceeded with a Postgres
// error code and severity.
func NewMessageSizeExceeded(max, size int) error {
	err := MessageSizeExceeded{Message: ErrMessageSizeExceeded.Message, Size: size, Max: max}
	return pgwireerr.WithSeverity(pgwireerr.WithCode(err, codes.ProgramLimitExceeded), pgwireerr.LevelError)
}

// UnwrapMessageSizeExceeded extracts the MessageSizeExceeded value, if any,
// wrapped inside err.
func UnwrapMessageSizeExceeded(err error) (MessageSizeExceeded, bool) {
	var exceeded MessageSizeExceeded
	ok := errors.As(err, &exceeded)
	return exceeded, ok
}
