package pgwire

import (
	"github.com/lib/pq/oid"
)

// Field describes one column of a prepared statement's row description.
type Field struct {
	Name            string
	TableOID        uint32
	ColumnAttribute int16
	TypeOID         uint32
	TypeSize        int16
	TypeModifier    int32
	Format          int16
}

// PreparedStatement is the server-side object created by Parse: a name, the
// SQL text it was parsed from, the parameter type OIDs the backend reports
// from Describe, and the row description. Named statements live in a
// session's statement cache, keyed by SQL text, and survive a transaction
// abort (only unnamed statements are invalidated by one).
type PreparedStatement struct {
	Name           string
	SQL            string
	ParameterOIDs  []oid.Oid
	RowDescription []Field

	described bool
}

// unnamedStatementName is the empty statement name the wire protocol uses
// to mean "the unnamed prepared statement", which is always re-parsed.
const unnamedStatementName = ""

func (s *Session) lookupOrCreateStatement(sql string, named bool) *PreparedStatement {
	if !named {
		return &PreparedStatement{Name: unnamedStatementName, SQL: sql}
	}

	key := xxhashString(sql)

	s.statements.mu.Lock()
	defer s.statements.mu.Unlock()

	if stmt, ok := s.statements.entries[key]; ok {
		return stmt
	}

	stmt := &PreparedStatement{Name: s.nextName("stmt"), SQL: sql}
	s.statements.entries[key] = stmt
	return stmt
}
