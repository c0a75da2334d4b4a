package pgwire

import (
	"github.com/riftpg/pgwire/pkg/types"
)

// readFields consumes the field/value pairs of an ErrorResponse or
// NoticeResponse body: a sequence of (byte code, NUL-terminated string)
// pairs terminated by a zero byte.
func (s *Session) readFields() map[types.ServerErrFieldType]string {
	fields := make(map[types.ServerErrFieldType]string)
	for {
		code, err := s.reader.GetByte()
		if err != nil || code == 0 {
			return fields
		}

		value, err := s.reader.GetString()
		if err != nil {
			return fields
		}

		fields[types.ServerErrFieldType(code)] = value
	}
}

// readError parses the ErrorResponse body already read into s.reader.Msg
// into a *Error of KindServerError.
func (s *Session) readError() *Error {
	return newServerError(s.readFields())
}

// dispatchNotice parses a NoticeResponse body and fans it out to every
// OnNotice subscriber.
func (s *Session) dispatchNotice() {
	fields := s.readFields()
	if len(s.notices) == 0 {
		return
	}

	event := pgwireerrEvent{
		Severity: fields[types.ServerErrFieldSeverity],
		Message:  fields[types.ServerErrFieldMsgPrimary],
		Detail:   fields[types.ServerErrFieldDetail],
		Hint:     fields[types.ServerErrFieldHint],
	}

	for _, sub := range s.notices {
		sub.send(event)
	}
}

// dispatchNotification parses a NotificationResponse body (pid, channel,
// payload) and fans it out to every OnNotification subscriber.
func (s *Session) dispatchNotification() error {
	pid, err := s.reader.GetInt32()
	if err != nil {
		return err
	}
	channel, err := s.reader.GetString()
	if err != nil {
		return err
	}
	payload, err := s.reader.GetString()
	if err != nil {
		return err
	}

	n := Notification{ProcessID: pid, Channel: channel, Payload: payload}
	for _, sub := range s.notifications {
		sub.send(n)
	}
	return nil
}
