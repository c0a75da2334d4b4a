package pgwire

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/riftpg/pgwire/pkg/buffer"
	"github.com/riftpg/pgwire/pkg/types"
)

// newTestSession wires a Session directly onto one end of an in-memory
// net.Pipe, bypassing Open/handshake, and hands the other end's framed
// reader/writer to backend for a goroutine to play a scripted backend.
func newTestSession(t *testing.T, backend func(t *testing.T, reader *buffer.Reader, writer *buffer.Writer)) *Session {
	t.Helper()

	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })

	logger := zap.NewNop()
	settings := DefaultSettings()
	settings.Registry.seal()

	sess := &Session{
		settings:   settings,
		logger:     logger,
		transport:  client,
		reader:     buffer.NewReader(logger, client, buffer.DefaultBufferSize),
		writer:     buffer.NewWriter(logger, client),
		statements: newStatementCache(),
		parameters: make(map[string]string),
	}
	sess.state.Store(int32(StateReady))

	serverReader := buffer.NewReader(logger, server, buffer.DefaultBufferSize)
	serverWriter := buffer.NewWriter(logger, server)
	go backend(t, serverReader, serverWriter)

	return sess
}

// respondSimpleQuery drains one frontend message and replies with a
// CommandComplete/ReadyForQuery pair, the shape every transaction control
// statement (BEGIN/SAVEPOINT/COMMIT/ROLLBACK) gets back from a real backend.
func respondSimpleQuery(t *testing.T, reader *buffer.Reader, writer *buffer.Writer, tag string, status byte) {
	t.Helper()

	_, _, err := reader.ReadTypedMsg()
	require.NoError(t, err)

	writer.Start(types.ClientMessage(types.ServerCommandComplete))
	writer.AddString(tag)
	writer.AddNullTerminate()
	require.NoError(t, writer.End())

	writer.Start(types.ClientMessage(types.ServerReady))
	writer.AddByte(status)
	require.NoError(t, writer.End())
}

func TestSessionSimpleQuerySelect(t *testing.T) {
	sess := newTestSession(t, func(t *testing.T, reader *buffer.Reader, writer *buffer.Writer) {
		_, _, err := reader.ReadTypedMsg()
		require.NoError(t, err)

		writer.Start(types.ClientMessage(types.ServerRowDescription))
		writer.AddInt16(1)
		writer.AddString("?column?")
		writer.AddNullTerminate()
		writer.AddInt32(0)  // table OID
		writer.AddInt16(0)  // column attribute
		writer.AddInt32(23) // type OID: int4
		writer.AddInt16(4)  // type size
		writer.AddInt32(-1) // type modifier
		writer.AddInt16(0)  // text format
		require.NoError(t, writer.End())

		writer.Start(types.ClientMessage(types.ServerDataRow))
		writer.AddInt16(1)
		writer.AddInt32(1)
		writer.AddBytes([]byte("1"))
		require.NoError(t, writer.End())

		writer.Start(types.ClientMessage(types.ServerCommandComplete))
		writer.AddString("SELECT 1")
		writer.AddNullTerminate()
		require.NoError(t, writer.End())

		writer.Start(types.ClientMessage(types.ServerReady))
		writer.AddByte('I')
		require.NoError(t, writer.End())
	})

	result, err := sess.SimpleQuery(context.Background(), "SELECT 1")
	require.NoError(t, err)
	require.Equal(t, "SELECT 1", result.CommandTag)
	require.Len(t, result.Rows, 1)
	require.Equal(t, []byte("1"), result.Rows[0].Raw(0))
}

func TestSessionRunCommitsTopLevelTransaction(t *testing.T) {
	sess := newTestSession(t, func(t *testing.T, reader *buffer.Reader, writer *buffer.Writer) {
		respondSimpleQuery(t, reader, writer, "BEGIN", 'T')
		respondSimpleQuery(t, reader, writer, "COMMIT", 'I')
	})

	err := sess.Run(context.Background(), TxOptions{}, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, sess.tx.depth)
	require.Equal(t, types.TransactionStatus('I'), sess.tx.status)
}

func TestSessionRunRollsBackOnError(t *testing.T) {
	sess := newTestSession(t, func(t *testing.T, reader *buffer.Reader, writer *buffer.Writer) {
		respondSimpleQuery(t, reader, writer, "BEGIN", 'T')
		respondSimpleQuery(t, reader, writer, "ROLLBACK", 'I')
	})

	sentinel := context.Canceled
	err := sess.Run(context.Background(), TxOptions{}, func(ctx context.Context) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 0, sess.tx.depth)
}

func TestSessionRunNestedSavepointPreservesOuter(t *testing.T) {
	sess := newTestSession(t, func(t *testing.T, reader *buffer.Reader, writer *buffer.Writer) {
		respondSimpleQuery(t, reader, writer, "BEGIN", 'T')
		respondSimpleQuery(t, reader, writer, "SAVEPOINT", 'T')
		respondSimpleQuery(t, reader, writer, "ROLLBACK", 'T')
		respondSimpleQuery(t, reader, writer, "RELEASE", 'T')
		respondSimpleQuery(t, reader, writer, "COMMIT", 'I')
	})

	innerErr := context.Canceled
	err := sess.Run(context.Background(), TxOptions{}, func(ctx context.Context) error {
		err := sess.Run(ctx, TxOptions{}, func(ctx context.Context) error {
			return innerErr
		})
		require.ErrorIs(t, err, innerErr)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, sess.tx.depth)
}

func TestSessionClosedExecuteFails(t *testing.T) {
	sess := newTestSession(t, func(t *testing.T, reader *buffer.Reader, writer *buffer.Writer) {})
	sess.state.Store(int32(StateClosed))

	_, err := sess.Execute(context.Background(), "SELECT 1", nil, QueryOptions{})
	require.Error(t, err)

	var pgErr *Error
	require.ErrorAs(t, err, &pgErr)
	require.Equal(t, KindConnectionLost, pgErr.Kind)
}
