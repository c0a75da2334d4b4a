package pgwire

import (
	"github.com/riftpg/pgwire/internal/typecodec"
)

// Value is an optional decoded column value: the explicit wrapper §9's
// "Null-OR-value columns" design note calls for, rather than overloading a
// sentinel like nil to mean both "absent" and "decoded nil".
type Value struct {
	Valid bool
	Data  any
}

// Row is one DataRow, decoded against its portal's row description via the
// session's type registry. Columns keep the ordering of the RowDescription.
type Row struct {
	fields []Field
	raw    [][]byte
	format []int16
	reg    *typecodec.Registry
}

// Len returns the number of columns in the row.
func (r *Row) Len() int { return len(r.raw) }

// Field returns the row description field for column i.
func (r *Row) Field(i int) Field { return r.fields[i] }

// Value decodes column i using the registry that produced this row.
func (r *Row) Value(i int) (Value, error) {
	if r.raw[i] == nil {
		return Value{}, nil
	}

	decoded, err := r.reg.Decode(r.fields[i].TypeOID, typecodec.Format(r.format[i]), r.raw[i])
	if err != nil {
		return Value{}, newError(KindUnsupportedType, err)
	}

	return Value{Valid: true, Data: decoded}, nil
}

// Raw returns the undecoded wire payload for column i, or nil if the column
// is SQL NULL.
func (r *Row) Raw(i int) []byte { return r.raw[i] }
