package pgwire

import (
	"context"

	"go.uber.org/zap"

	"github.com/riftpg/pgwire/pkg/buffer"
)

// cancelRequestCode is the magic number that replaces the protocol version
// in a CancelRequest's untyped header.
const cancelRequestCode int32 = 80877102

// Cancel opens a second, short-lived transport to the same endpoint and
// sends a CancelRequest carrying this session's BackendKeyData, per §4.5's
// timeout handling. Delivery is best-effort: the in-flight execution
// normally terminates with a 57014 ErrorResponse, but cancellation may also
// race with completion and be silently dropped.
func (s *Session) Cancel(ctx context.Context) error {
	transport, err := s.dialer.Dial(ctx, s.endpoint)
	if err != nil {
		return newError(KindConnectionLost, err)
	}
	defer transport.Close()

	logger := s.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := buffer.NewWriter(logger, transport)
	writer.StartUntyped()
	writer.AddInt32(cancelRequestCode)
	writer.AddInt32(s.backendPID)
	writer.AddInt32(s.backendSecret)
	return writer.EndUntyped()
}
