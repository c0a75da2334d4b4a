package pgwire

import (
	"context"
	"fmt"

	"github.com/lib/pq/oid"

	"github.com/riftpg/pgwire/internal/typecodec"
	"github.com/riftpg/pgwire/pkg/types"
)

// Param is a single positional parameter for the extended-query protocol.
// OID, when non-zero, selects the binary codec to encode Value with;
// OID zero sends Value as text via fmt.Sprint.
type Param struct {
	OID   oid.Oid
	Value any
}

// Result is the outcome of one Execute: the command tag, the affected-row
// count the backend reported on CommandComplete, and the rows collected
// while draining the portal. Building an ergonomic scan-into-struct layer
// on top of Result is explicitly out of scope; callers consult Row
// directly.
type Result struct {
	CommandTag   string
	RowsAffected int64
	Rows         []*Row
	Suspended    bool
	// Portal is set when Suspended is true: pass it to ContinuePortal to
	// fetch the next batch of rows without re-Bind or re-Describe.
	Portal *Portal
}

// QueryOptions configures one Execute call.
type QueryOptions struct {
	// Named caches the prepared statement keyed by SQL text. Unnamed
	// statements are re-parsed on every call.
	Named bool
	// MaxRows limits the number of rows a single Execute frame returns; 0
	// requests all rows.
	MaxRows int32
}

// Execute runs sql with params using the extended-query sub-protocol
// described in §4.5: Parse/Describe once per distinct statement, then
// Bind/Execute/Sync per call.
func (s *Session) Execute(ctx context.Context, sql string, params []Param, opts QueryOptions) (result *Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateClosed {
		return nil, s.fail(KindConnectionLost, fmt.Errorf("pgwire: session is closed"))
	}
	if s.tx.status == types.TxFailed {
		return nil, newError(KindTransactionAborted, fmt.Errorf("pgwire: transaction is aborted, rollback required"))
	}

	stop := s.armQueryTimeout()
	defer func() { err = s.resolveTimeout(err, stop()) }()

	stmt := s.lookupOrCreateStatement(sql, opts.Named)
	if !stmt.described {
		if err := s.describeStatement(ctx, stmt, params); err != nil {
			return nil, err
		}
	}

	s.state.Store(int32(StateBusy))
	defer s.state.Store(int32(StateReady))

	return s.bindAndExecute(ctx, stmt, params, opts.MaxRows)
}

// ContinuePortal resumes a portal left suspended by a prior Execute whose
// Result.Suspended was true: it sends a bare Execute/Sync against the
// already-bound portal (no re-Bind, no re-Describe), per §4.5's
// continue-portal operation.
func (s *Session) ContinuePortal(ctx context.Context, portal *Portal, maxRows int32) (result *Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateClosed {
		return nil, s.fail(KindConnectionLost, fmt.Errorf("pgwire: session is closed"))
	}
	if !portal.suspended {
		return nil, newError(KindProtocol, fmt.Errorf("pgwire: portal %q is not suspended", portal.Name))
	}

	s.state.Store(int32(StateBusy))
	defer s.state.Store(int32(StateReady))

	stop := s.armQueryTimeout()
	defer func() { err = s.resolveTimeout(err, stop()) }()

	if err := s.sendExecute(portal.Name, maxRows); err != nil {
		return nil, err
	}

	resultFormats := s.resultFormatsFor(portal.Statement)
	result, err = s.drainResult(portal.Statement, resultFormats)
	if err != nil {
		return nil, err
	}

	portal.suspended = result.Suspended
	result.Portal = portal
	return result, nil
}

// SimpleQuery runs sql with no parameters via the simple-query sub-protocol
// (a single Query frame), per §9's supplemented-feature note: useful for
// DDL and multi-statement scripts the extended protocol rejects.
func (s *Session) SimpleQuery(ctx context.Context, sql string) (result *Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateClosed {
		return nil, s.fail(KindConnectionLost, fmt.Errorf("pgwire: session is closed"))
	}

	stop := s.armQueryTimeout()
	defer func() { err = s.resolveTimeout(err, stop()) }()

	s.state.Store(int32(StateBusy))
	defer s.state.Store(int32(StateReady))

	s.writer.Start(types.ClientSimpleQuery)
	s.writer.AddString(sql)
	s.writer.AddNullTerminate()
	if err := s.writer.End(); err != nil {
		return nil, s.fail(KindConnectionLost, err)
	}

	result = &Result{}
	var fields []Field
	var pending error

	for {
		typed, _, err := s.reader.ReadTypedMsg()
		if err != nil {
			return nil, s.fail(KindConnectionLost, err)
		}

		switch typed {
		case types.ServerRowDescription:
			fields, err = s.readRowDescription()
			if err != nil {
				return nil, s.fail(KindProtocol, err)
			}
		case types.ServerDataRow:
			if pending != nil {
				continue
			}
			row, err := s.readDataRow(fields)
			if err != nil {
				return nil, s.fail(KindProtocol, err)
			}
			result.Rows = append(result.Rows, row)
		case types.ServerCommandComplete:
			tag, err := s.reader.GetString()
			if err != nil {
				return nil, s.fail(KindProtocol, err)
			}
			result.CommandTag = tag
			result.RowsAffected = parseRowsAffected(tag)
		case types.ServerEmptyQuery:
		case types.ServerNoticeResponse:
			s.dispatchNotice()
		case types.ServerNotificationResponse:
			if err := s.dispatchNotification(); err != nil {
				return nil, s.fail(KindProtocol, err)
			}
		case types.ServerErrorResponse:
			pending = s.readError()
		case types.ServerReady:
			status, err := s.reader.GetByte()
			if err != nil {
				return nil, s.fail(KindProtocol, err)
			}
			s.tx.status = types.TransactionStatus(status)
			if pending != nil {
				return nil, pending
			}
			return result, nil
		default:
			return nil, s.fail(KindProtocol, fmt.Errorf("pgwire: unexpected message %s during simple query", typed))
		}
	}
}

// describeStatement sends Parse+Describe(Statement)+Sync for a new
// statement and records its parameter OIDs and row description.
func (s *Session) describeStatement(ctx context.Context, stmt *PreparedStatement, params []Param) error {
	paramOIDs := make([]oid.Oid, len(params))
	for i, p := range params {
		paramOIDs[i] = p.OID
	}

	s.writer.Start(types.ClientParse)
	s.writer.AddString(stmt.Name)
	s.writer.AddNullTerminate()
	s.writer.AddString(stmt.SQL)
	s.writer.AddNullTerminate()
	s.writer.AddInt16(int16(len(paramOIDs)))
	for _, o := range paramOIDs {
		s.writer.AddInt32(int32(o))
	}
	if err := s.writer.End(); err != nil {
		return s.fail(KindConnectionLost, err)
	}

	s.writer.Start(types.ClientDescribe)
	s.writer.AddByte(byte(types.DescribeStatement))
	s.writer.AddString(stmt.Name)
	s.writer.AddNullTerminate()
	if err := s.writer.End(); err != nil {
		return s.fail(KindConnectionLost, err)
	}

	s.writer.Start(types.ClientSync)
	if err := s.writer.End(); err != nil {
		return s.fail(KindConnectionLost, err)
	}

	for {
		typed, _, err := s.reader.ReadTypedMsg()
		if err != nil {
			return s.fail(KindConnectionLost, err)
		}

		switch typed {
		case types.ServerParseComplete:
		case types.ServerParameterDescription:
			n, err := s.reader.GetInt16()
			if err != nil {
				return s.fail(KindProtocol, err)
			}
			oids := make([]oid.Oid, n)
			for i := range oids {
				v, err := s.reader.GetInt32()
				if err != nil {
					return s.fail(KindProtocol, err)
				}
				oids[i] = oid.Oid(v)
			}
			stmt.ParameterOIDs = oids
		case types.ServerRowDescription:
			fields, err := s.readRowDescription()
			if err != nil {
				return s.fail(KindProtocol, err)
			}
			stmt.RowDescription = fields
		case types.ServerNoData:
			stmt.RowDescription = nil
		case types.ServerNoticeResponse:
			s.dispatchNotice()
		case types.ServerErrorResponse:
			return s.fail(KindServerError, s.readError())
		case types.ServerReady:
			status, err := s.reader.GetByte()
			if err != nil {
				return s.fail(KindProtocol, err)
			}
			s.tx.status = types.TransactionStatus(status)
			stmt.described = true
			return nil
		default:
			return s.fail(KindProtocol, fmt.Errorf("pgwire: unexpected message %s during describe", typed))
		}
	}
}

// bindAndExecute sends Bind/Execute/Sync for an already-described statement
// and drains the resulting frames, implementing Testable Property 1 and 2's
// frame ordering and error-pending drain.
func (s *Session) bindAndExecute(ctx context.Context, stmt *PreparedStatement, params []Param, maxRows int32) (*Result, error) {
	portal := s.newPortal(stmt)
	registry := s.settings.Registry.inner

	s.writer.Start(types.ClientBind)
	s.writer.AddString(portal.Name)
	s.writer.AddNullTerminate()
	s.writer.AddString(stmt.Name)
	s.writer.AddNullTerminate()

	s.writer.AddInt16(int16(len(params)))
	encoded := make([][]byte, len(params))
	formats := make([]typecodec.Format, len(params))
	for i, p := range params {
		format, data, err := s.encodeParam(registry, p)
		if err != nil {
			return nil, newError(KindUnsupportedType, err)
		}
		encoded[i], formats[i] = data, format
		s.writer.AddInt16(int16(format))
	}

	s.writer.AddInt16(int16(len(params)))
	for i := range params {
		if encoded[i] == nil {
			s.writer.AddInt32(-1)
			continue
		}
		s.writer.AddInt32(int32(len(encoded[i])))
		s.writer.AddBytes(encoded[i])
	}

	resultFormats := s.resultFormatsFor(stmt)
	s.writer.AddInt16(int16(len(resultFormats)))
	for _, f := range resultFormats {
		s.writer.AddInt16(f)
	}
	if err := s.writer.End(); err != nil {
		return nil, s.fail(KindConnectionLost, err)
	}

	if err := s.sendExecute(portal.Name, maxRows); err != nil {
		return nil, err
	}

	result, err := s.drainResult(stmt, resultFormats)
	if err != nil {
		return nil, err
	}

	portal.suspended = result.Suspended
	result.Portal = portal
	return result, nil
}

// resultFormatsFor picks the preferred wire format (text or binary) for each
// column of stmt's row description, used by both Bind and a continued
// portal's drain loop to decode DataRow payloads.
func (s *Session) resultFormatsFor(stmt *PreparedStatement) []int16 {
	registry := s.settings.Registry.inner
	resultFormats := make([]int16, len(stmt.RowDescription))
	for i, f := range stmt.RowDescription {
		if registry.Lookup(f.TypeOID) {
			resultFormats[i] = int16(registry.PreferredFormat(f.TypeOID))
		}
	}
	return resultFormats
}

// sendExecute writes the Execute+Sync frames for portalName, shared by a
// fresh Bind/Execute and a continued-portal's bare Execute.
func (s *Session) sendExecute(portalName string, maxRows int32) error {
	s.writer.Start(types.ClientExecute)
	s.writer.AddString(portalName)
	s.writer.AddNullTerminate()
	s.writer.AddInt32(maxRows)
	if err := s.writer.End(); err != nil {
		return s.fail(KindConnectionLost, err)
	}

	s.writer.Start(types.ClientSync)
	if err := s.writer.End(); err != nil {
		return s.fail(KindConnectionLost, err)
	}

	return nil
}

// drainResult reads frames up to the closing ReadyForQuery, implementing
// Testable Property 1 and 2's frame ordering and error-pending drain. It is
// shared by a fresh Bind/Execute and a continued-portal's bare Execute.
func (s *Session) drainResult(stmt *PreparedStatement, resultFormats []int16) (*Result, error) {
	result := &Result{}
	var pending error

	for {
		typed, _, err := s.reader.ReadTypedMsg()
		if err != nil {
			return nil, s.fail(KindConnectionLost, err)
		}

		switch typed {
		case types.ServerBindComplete:
		case types.ServerDataRow:
			if pending != nil {
				continue
			}
			row, err := s.readDataRowFormatted(stmt.RowDescription, resultFormats)
			if err != nil {
				return nil, s.fail(KindProtocol, err)
			}
			result.Rows = append(result.Rows, row)
		case types.ServerCommandComplete:
			tag, err := s.reader.GetString()
			if err != nil {
				return nil, s.fail(KindProtocol, err)
			}
			result.CommandTag = tag
			result.RowsAffected = parseRowsAffected(tag)
		case types.ServerPortalSuspended:
			result.Suspended = true
		case types.ServerEmptyQuery:
		case types.ServerNoticeResponse:
			s.dispatchNotice()
		case types.ServerNotificationResponse:
			if err := s.dispatchNotification(); err != nil {
				return nil, s.fail(KindProtocol, err)
			}
		case types.ServerErrorResponse:
			pending = s.readError()
		case types.ServerReady:
			status, err := s.reader.GetByte()
			if err != nil {
				return nil, s.fail(KindProtocol, err)
			}
			s.tx.status = types.TransactionStatus(status)
			if pending != nil {
				return nil, pending
			}
			return result, nil
		default:
			return nil, s.fail(KindProtocol, fmt.Errorf("pgwire: unexpected message %s during execute", typed))
		}
	}
}

func (s *Session) encodeParam(registry *typecodec.Registry, p Param) (typecodec.Format, []byte, error) {
	if p.Value == nil {
		return typecodec.TextFormat, nil, nil
	}
	if p.OID != 0 && registry.Lookup(uint32(p.OID)) {
		return registry.Encode(uint32(p.OID), p.Value)
	}
	return typecodec.TextFormat, []byte(fmt.Sprint(p.Value)), nil
}

func (s *Session) readRowDescription() ([]Field, error) {
	n, err := s.reader.GetInt16()
	if err != nil {
		return nil, err
	}

	fields := make([]Field, n)
	for i := range fields {
		name, err := s.reader.GetString()
		if err != nil {
			return nil, err
		}
		tableOID, err := s.reader.GetUint32()
		if err != nil {
			return nil, err
		}
		attr, err := s.reader.GetInt16()
		if err != nil {
			return nil, err
		}
		typeOID, err := s.reader.GetUint32()
		if err != nil {
			return nil, err
		}
		typeSize, err := s.reader.GetInt16()
		if err != nil {
			return nil, err
		}
		typeMod, err := s.reader.GetInt32()
		if err != nil {
			return nil, err
		}
		format, err := s.reader.GetInt16()
		if err != nil {
			return nil, err
		}

		fields[i] = Field{
			Name:            name,
			TableOID:        tableOID,
			ColumnAttribute: attr,
			TypeOID:         typeOID,
			TypeSize:        typeSize,
			TypeModifier:    typeMod,
			Format:          format,
		}
	}

	return fields, nil
}

func (s *Session) readDataRow(fields []Field) (*Row, error) {
	formats := make([]int16, len(fields))
	for i, f := range fields {
		formats[i] = f.Format
	}
	return s.readDataRowFormatted(fields, formats)
}

func (s *Session) readDataRowFormatted(fields []Field, formats []int16) (*Row, error) {
	n, err := s.reader.GetInt16()
	if err != nil {
		return nil, err
	}

	raw := make([][]byte, n)
	for i := range raw {
		size, err := s.reader.GetInt32()
		if err != nil {
			return nil, err
		}
		data, err := s.reader.GetBytes(int(size))
		if err != nil {
			return nil, err
		}
		if data != nil {
			data = append([]byte(nil), data...)
		}
		raw[i] = data
	}

	if len(formats) != int(n) {
		formats = make([]int16, n)
	}

	return &Row{fields: fields, raw: raw, format: formats, reg: s.settings.Registry.inner}, nil
}
