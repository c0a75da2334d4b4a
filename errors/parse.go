package errors

import (
	"github.com/riftpg/pgwire/codes"
	"github.com/riftpg/pgwire/pkg/types"
)

// Parse is the reverse of Flatten: it constructs an Error from the raw field
// map carried by an incoming ErrorResponse or NoticeResponse message.
func Parse(fields map[types.ServerErrFieldType]string) Error {
	result := Error{
		Code:           codes.Code(fields[types.ServerErrFieldSQLState]),
		Message:        fields[types.ServerErrFieldMsgPrimary],
		Detail:         fields[types.ServerErrFieldDetail],
		Hint:           fields[types.ServerErrFieldHint],
		Position:       fields[types.ServerErrFieldPosition],
		Severity:       Severity(fields[types.ServerErrFieldSeverity]),
		ConstraintName: fields[types.ServerErrFieldConstraintName],
	}

	if result.Code == "" {
		result.Code = codes.Uncategorized
	}

	result.Severity = DefaultSeverity(result.Severity)

	if file, ok := fields[types.ServerErrFieldSrcFile]; ok {
		result.Source = &Source{File: file, Function: fields[types.ServerErrFieldSrcFunction]}
	}

	return result
}

// Wrap turns a parsed Error back into a Go error value, decorated the same
// way Flatten expects to read it back, so a ServerError can be constructed
// from a field map and still participate in errors.As/GetCode/GetSeverity.
func (e Error) Wrap() error {
	var err error = &serverError{message: e.Message}
	err = WithCode(err, e.Code)
	err = WithSeverity(err, e.Severity)

	if e.Detail != "" {
		err = WithDetail(err, e.Detail)
	}

	if e.Hint != "" {
		err = WithHint(err, e.Hint)
	}

	if e.Position != "" {
		err = WithPosition(err, e.Position)
	}

	if e.ConstraintName != "" {
		err = WithConstraintName(err, e.ConstraintName)
	}

	if e.Source != nil {
		err = WithSource(err, e.Source.File, e.Source.Line, e.Source.Function)
	}

	return err
}

// serverError is the leaf cause produced by Error.Wrap: a message with no
// further structure of its own, everything else riding along as a decorator.
type serverError struct {
	message string
}

func (e *serverError) Error() string { return e.message }
