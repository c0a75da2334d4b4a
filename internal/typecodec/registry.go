// Package typecodec implements the type codec registry (L3): a mapping from
// PostgreSQL type OID to a pair of encode/decode functions, binary where
// defined and text as fallback. It wraps jackc/pgx/v5/pgtype's Map, which
// already ships binary/text codecs for the full built-in catalog, and layers
// the registry's own semantics on top: OID keys from lib/pq/oid, an
// immutable-after-open guard, and the few types pgtype's default Map does
// not register against the exact constant this module expects (numeric as
// shopspring/decimal, uuid as google/uuid, jsonb's version byte through
// goccy/go-json).
package typecodec

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lib/pq/oid"
)

// Format mirrors the wire protocol's per-value format code.
type Format int16

const (
	// TextFormat is PostgreSQL's default, human-readable encoding.
	TextFormat Format = 0
	// BinaryFormat is the compact, type-specific encoding.
	BinaryFormat Format = 1
)

// Value is whatever Go value a decode produced, or whatever value an encode
// consumes. The registry does not constrain it further; conversion between
// a Go type and the wire bytes is the codec's job.
type Value = any

// EncodeFunc converts a Go value into its wire bytes for the given OID,
// returning the format the bytes are encoded in.
type EncodeFunc func(m *pgtype.Map, oid uint32, value Value) (Format, []byte, error)

// DecodeFunc converts wire bytes for the given OID and format back into a
// Go value.
type DecodeFunc func(m *pgtype.Map, oid uint32, format Format, src []byte) (Value, error)

// codec pairs one OID's encode/decode functions.
type codec struct {
	encode EncodeFunc
	decode DecodeFunc
}

// Registry is the L3 type codec registry: OID -> (encode, decode). Built on
// top of a pgtype.Map so every OID pgtype already understands (the bulk of
// the built-in catalog) works without this package repeating pgtype's own
// binary layouts; codec entries in this map only override or add to what
// pgtype.Map provides.
type Registry struct {
	pg     *pgtype.Map
	extra  map[uint32]codec
	sealed bool
}

// NewRegistry constructs a Registry with the built-in type set from §4.3
// registered: bool, int2/int4/int8, float4/float8, numeric, text/varchar/
// char/name/bytea, uuid, json/jsonb, date/timestamp/timestamptz/time/
// interval, arrays, and the geometric types.
func NewRegistry() *Registry {
	r := &Registry{
		pg:    pgtype.NewMap(),
		extra: make(map[uint32]codec),
	}
	registerNumeric(r)
	registerUUIDAndJSON(r)
	registerGeometric(r)
	return r
}

// Register adds a codec for oid at runtime. Per §4.3's user hook, this
// panics if called after the registry has been Seal()ed, which a session
// does the moment it opens against the registry.
func (r *Registry) Register(o oid.Oid, encode EncodeFunc, decode DecodeFunc) {
	if r.sealed {
		panic("typecodec: cannot register against a sealed registry")
	}
	r.extra[uint32(o)] = codec{encode: encode, decode: decode}
}

// Seal freezes the registry against further registrations. A Session calls
// this once, when it opens.
func (r *Registry) Seal() { r.sealed = true }

// Encode converts value into wire bytes for oid, preferring binary. Returns
// an *unsupportedType error if oid is unregistered or value is
// incompatible.
func (r *Registry) Encode(o uint32, value Value) (Format, []byte, error) {
	if c, ok := r.extra[o]; ok {
		return c.encode(r.pg, o, value)
	}

	if dt, ok := r.pg.TypeForOID(o); ok {
		buf, err := r.pg.Encode(dt.OID, pgtype.BinaryFormatCode, value, nil)
		if err == nil {
			return BinaryFormat, buf, nil
		}
		buf, err = r.pg.Encode(dt.OID, pgtype.TextFormatCode, value, nil)
		if err != nil {
			return 0, nil, newUnsupportedType(o, err)
		}
		return TextFormat, buf, nil
	}

	return 0, nil, newUnsupportedType(o, nil)
}

// Decode converts wire bytes back into a Go value. Unknown OIDs decode as
// raw bytes, per §4.3's "Unknown OIDs" rule.
func (r *Registry) Decode(o uint32, format Format, src []byte) (Value, error) {
	if src == nil {
		return nil, nil
	}

	if c, ok := r.extra[o]; ok {
		return c.decode(r.pg, o, format, src)
	}

	if _, ok := r.pg.TypeForOID(o); ok {
		var dst any
		fc := pgtype.TextFormatCode
		if format == BinaryFormat {
			fc = pgtype.BinaryFormatCode
		}
		if err := r.pg.Scan(o, fc, src, &dst); err != nil {
			return nil, fmt.Errorf("typecodec: decoding oid %d: %w", o, err)
		}
		return dst, nil
	}

	raw := make([]byte, len(src))
	copy(raw, src)
	return raw, nil
}

// Lookup reports whether oid is known to this registry, either via an extra
// codec or pgtype's own built-in map.
func (r *Registry) Lookup(o uint32) bool {
	if _, ok := r.extra[o]; ok {
		return true
	}
	_, ok := r.pg.TypeForOID(o)
	return ok
}

// PreferredFormat reports binary for any oid this registry knows (an extra
// codec or pgtype's map) and text otherwise. It does not consult the value,
// so Encode can still produce text for a known oid (json, or a value
// pgtype can only encode as text). The session uses this to pick result
// formats for Bind.
func (r *Registry) PreferredFormat(o uint32) Format {
	if _, ok := r.extra[o]; ok {
		return BinaryFormat
	}
	if _, ok := r.pg.TypeForOID(o); ok {
		return BinaryFormat
	}
	return TextFormat
}

// unsupportedType is returned by Encode for an unregistered OID or an
// incompatible value; the session wraps it in an *Error of kind
// KindUnsupportedType.
type unsupportedType struct {
	oid   uint32
	cause error
}

func newUnsupportedType(o uint32, cause error) error {
	return &unsupportedType{oid: o, cause: cause}
}

func (e *unsupportedType) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("typecodec: unsupported type for oid %d: %v", e.oid, e.cause)
	}
	return fmt.Sprintf("typecodec: unsupported type for oid %d", e.oid)
}

func (e *unsupportedType) Unwrap() error { return e.cause }
