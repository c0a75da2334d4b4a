package pgwire

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/riftpg/pgwire/pkg/buffer"
	"github.com/riftpg/pgwire/pkg/types"
)

// dialerFunc adapts a function to the Dialer interface, letting a test
// hand back a prebuilt net.Pipe end as the auxiliary cancel connection.
type dialerFunc func(ctx context.Context, endpoint Endpoint) (Transport, error)

func (f dialerFunc) Dial(ctx context.Context, endpoint Endpoint) (Transport, error) {
	return f(ctx, endpoint)
}

// writeErrorResponse writes an ErrorResponse carrying the given SQLSTATE,
// matching the field layout readFields expects.
func writeErrorResponse(t *testing.T, writer *buffer.Writer, code, message string) {
	t.Helper()

	writer.Start(types.ClientMessage(types.ServerErrorResponse))
	writer.AddByte(byte(types.ServerErrFieldSeverity))
	writer.AddString("ERROR")
	writer.AddNullTerminate()
	writer.AddByte(byte(types.ServerErrFieldSQLState))
	writer.AddString(code)
	writer.AddNullTerminate()
	writer.AddByte(byte(types.ServerErrFieldMsgPrimary))
	writer.AddString(message)
	writer.AddNullTerminate()
	writer.AddByte(0)
	require.NoError(t, writer.End())
}

// TestSessionQueryTimeoutCancelsAndReportsKindTimeout exercises the §4.5
// timeout pipeline end to end: a QueryTimeout shorter than the backend's
// reply forces a CancelRequest over an auxiliary connection, and the
// query_canceled ServerError that eventually arrives on the main
// connection is reclassified as KindTimeout.
func TestSessionQueryTimeoutCancelsAndReportsKindTimeout(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })

	cancelClient, cancelServer := net.Pipe()
	t.Cleanup(func() { cancelClient.Close(); cancelServer.Close() })

	logger := zap.NewNop()
	settings := DefaultSettings()
	settings.Registry.seal()
	settings.QueryTimeout = 15 * time.Millisecond

	cancelReceived := make(chan struct{})

	sess := &Session{
		endpoint:      Endpoint{Host: "localhost", Port: 5432},
		settings:      settings,
		logger:        logger,
		transport:     client,
		reader:        buffer.NewReader(logger, client, buffer.DefaultBufferSize),
		writer:        buffer.NewWriter(logger, client),
		statements:    newStatementCache(),
		parameters:    make(map[string]string),
		backendPID:    4242,
		backendSecret: 24242,
		dialer: dialerFunc(func(ctx context.Context, endpoint Endpoint) (Transport, error) {
			return cancelClient, nil
		}),
	}
	sess.state.Store(int32(StateReady))

	// Auxiliary cancel-connection backend: decodes the CancelRequest frame
	// this session's own timer should dial out with.
	go func() {
		reader := buffer.NewReader(logger, cancelServer, buffer.DefaultBufferSize)
		n, err := reader.ReadUntypedMsg()
		if err != nil || n == 0 {
			return
		}
		code, _ := reader.GetInt32()
		pid, _ := reader.GetInt32()
		secret, _ := reader.GetInt32()
		if code == cancelRequestCode && pid == sess.backendPID && secret == sess.backendSecret {
			close(cancelReceived)
		}
	}()

	// Main connection backend: holds the simple-query response until the
	// cancel request arrived, then replies as Postgres itself would after
	// honoring a CancelRequest for the in-flight statement.
	go func() {
		serverReader := buffer.NewReader(logger, server, buffer.DefaultBufferSize)
		serverWriter := buffer.NewWriter(logger, server)

		_, _, err := serverReader.ReadTypedMsg()
		require.NoError(t, err)

		select {
		case <-cancelReceived:
		case <-time.After(time.Second):
			t.Errorf("cancel request never arrived")
			return
		}

		writeErrorResponse(t, serverWriter, "57014", "canceling statement due to user request")

		serverWriter.Start(types.ClientMessage(types.ServerReady))
		serverWriter.AddByte('I')
		require.NoError(t, serverWriter.End())
	}()

	_, err := sess.SimpleQuery(context.Background(), "SELECT pg_sleep(10)")
	require.Error(t, err)

	var pgErr *Error
	require.ErrorAs(t, err, &pgErr)
	require.Equal(t, KindTimeout, pgErr.Kind)
}

// TestSessionQueryTimeoutDoesNotReclassifyUnrelatedErrors confirms that a
// ServerError unrelated to this session's own timer (no QueryTimeout armed
// at all) passes through unchanged, rather than every error becoming a
// false KindTimeout.
func TestSessionQueryTimeoutDoesNotReclassifyUnrelatedErrors(t *testing.T) {
	sess := newTestSession(t, func(t *testing.T, reader *buffer.Reader, writer *buffer.Writer) {
		_, _, err := reader.ReadTypedMsg()
		require.NoError(t, err)

		writeErrorResponse(t, writer, "57014", "canceling statement due to user request")

		writer.Start(types.ClientMessage(types.ServerReady))
		writer.AddByte('I')
		require.NoError(t, writer.End())
	})

	_, err := sess.SimpleQuery(context.Background(), "SELECT 1")
	require.Error(t, err)

	var pgErr *Error
	require.ErrorAs(t, err, &pgErr)
	require.Equal(t, KindServerError, pgErr.Kind)
}
