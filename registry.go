package pgwire

import (
	"github.com/lib/pq/oid"

	"github.com/riftpg/pgwire/internal/typecodec"
)

// Registry is the opaque handle to the L3 type codec registry settings
// reference. It wraps internal/typecodec.Registry: the registry's own
// implementation is not part of this package's public surface (per the
// Non-goal excluding a user-facing custom type registry), but registering
// an additional encoder/decoder for a given OID is.
type Registry struct {
	inner *typecodec.Registry
}

// DefaultRegistry returns a Registry with every built-in type from §4.3
// registered.
func DefaultRegistry() *Registry {
	return &Registry{inner: typecodec.NewRegistry()}
}

// Encoder converts a Go value to wire bytes for a type OID.
type Encoder = typecodec.EncodeFunc

// Decoder converts wire bytes for a type OID back to a Go value.
type Decoder = typecodec.DecodeFunc

// Register adds a codec for oid. Panics if called after the registry has
// been sealed by an opened session.
func (r *Registry) Register(o oid.Oid, encode Encoder, decode Decoder) {
	r.inner.Register(o, encode, decode)
}

func (r *Registry) seal() { r.inner.Seal() }
