package pgwire

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riftpg/pgwire/pkg/buffer"
	"github.com/riftpg/pgwire/pkg/types"
)

// writeRowDescription emits a single-column int4 RowDescription, the shape
// every test in this file's backend scripts needs before a DataRow.
func writeRowDescription(t *testing.T, writer *buffer.Writer) {
	t.Helper()

	writer.Start(types.ClientMessage(types.ServerRowDescription))
	writer.AddInt16(1)
	writer.AddString("n")
	writer.AddNullTerminate()
	writer.AddInt32(0)
	writer.AddInt16(0)
	writer.AddInt32(23)
	writer.AddInt16(4)
	writer.AddInt32(-1)
	writer.AddInt16(0)
	require.NoError(t, writer.End())
}

func writeIntDataRow(t *testing.T, writer *buffer.Writer, value byte) {
	t.Helper()

	writer.Start(types.ClientMessage(types.ServerDataRow))
	writer.AddInt16(1)
	writer.AddInt32(1)
	writer.AddBytes([]byte{value})
	require.NoError(t, writer.End())
}

// TestSessionContinuePortalResumesSuspendedPortal exercises §4.5's
// continue-portal operation: a first Execute capped by MaxRows comes back
// Suspended, and ContinuePortal fetches the remaining rows with a bare
// Execute/Sync against the same portal, no re-Bind or re-Describe.
func TestSessionContinuePortalResumesSuspendedPortal(t *testing.T) {
	sess := newTestSession(t, func(t *testing.T, reader *buffer.Reader, writer *buffer.Writer) {
		// Parse/Describe/Sync for the unnamed statement.
		_, _, err := reader.ReadTypedMsg() // Parse
		require.NoError(t, err)
		_, _, err = reader.ReadTypedMsg() // Describe
		require.NoError(t, err)
		_, _, err = reader.ReadTypedMsg() // Sync
		require.NoError(t, err)

		writer.Start(types.ClientMessage(types.ServerParseComplete))
		require.NoError(t, writer.End())
		writeRowDescription(t, writer)
		writer.Start(types.ClientMessage(types.ServerReady))
		writer.AddByte('I')
		require.NoError(t, writer.End())

		// Bind/Execute/Sync: first page, capped short of the full result.
		_, _, err = reader.ReadTypedMsg() // Bind
		require.NoError(t, err)
		_, _, err = reader.ReadTypedMsg() // Execute
		require.NoError(t, err)
		_, _, err = reader.ReadTypedMsg() // Sync
		require.NoError(t, err)

		writer.Start(types.ClientMessage(types.ServerBindComplete))
		require.NoError(t, writer.End())
		writeIntDataRow(t, writer, '1')
		writer.Start(types.ClientMessage(types.ServerPortalSuspended))
		require.NoError(t, writer.End())
		writer.Start(types.ClientMessage(types.ServerReady))
		writer.AddByte('I')
		require.NoError(t, writer.End())

		// ContinuePortal: bare Execute/Sync, no Bind.
		_, _, err = reader.ReadTypedMsg() // Execute
		require.NoError(t, err)
		_, _, err = reader.ReadTypedMsg() // Sync
		require.NoError(t, err)

		writeIntDataRow(t, writer, '2')
		writer.Start(types.ClientMessage(types.ServerCommandComplete))
		writer.AddString("SELECT 2")
		writer.AddNullTerminate()
		require.NoError(t, writer.End())
		writer.Start(types.ClientMessage(types.ServerReady))
		writer.AddByte('I')
		require.NoError(t, writer.End())
	})

	first, err := sess.Execute(context.Background(), "SELECT n FROM generate_series(1,2) n", nil, QueryOptions{MaxRows: 1})
	require.NoError(t, err)
	require.True(t, first.Suspended)
	require.NotNil(t, first.Portal)
	require.Len(t, first.Rows, 1)

	second, err := sess.ContinuePortal(context.Background(), first.Portal, 0)
	require.NoError(t, err)
	require.False(t, second.Suspended)
	require.Len(t, second.Rows, 1)
	require.Equal(t, "SELECT 2", second.CommandTag)
}

// TestSessionContinuePortalRejectsNonSuspendedPortal confirms ContinuePortal
// refuses a portal that never reported PortalSuspended, rather than sending
// a meaningless bare Execute against an already-exhausted portal.
func TestSessionContinuePortalRejectsNonSuspendedPortal(t *testing.T) {
	sess := newTestSession(t, func(t *testing.T, reader *buffer.Reader, writer *buffer.Writer) {})

	portal := &Portal{Name: "p1", Statement: &PreparedStatement{described: true}}
	_, err := sess.ContinuePortal(context.Background(), portal, 0)
	require.Error(t, err)

	var pgErr *Error
	require.ErrorAs(t, err, &pgErr)
	require.Equal(t, KindProtocol, pgErr.Kind)
}
