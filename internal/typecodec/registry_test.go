package typecodec

import (
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq/oid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// TestRoundTrip asserts property 4: encoding then decoding any value via L3
// for any registered OID yields the original value.
func TestRoundTrip(t *testing.T) {
	r := NewRegistry()

	cases := []struct {
		name  string
		oid   uint32
		value Value
	}{
		{"numeric", uint32(oid.T_numeric), decimal.RequireFromString("1234.5678")},
		{"numeric-negative", uint32(oid.T_numeric), decimal.RequireFromString("-42.0")},
		{"uuid", uint32(oid.T_uuid), uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")},
		{"point", uint32(oid.T_point), Point{X: 1.5, Y: -2.25}},
		{"line", uint32(oid.T_line), Line{A: 1, B: -1, C: 0}},
		{"lseg", uint32(oid.T_lseg), Lseg{P1: Point{X: 0, Y: 0}, P2: Point{X: 1, Y: 1}}},
		{"box", uint32(oid.T_box), Box{High: Point{X: 2, Y: 2}, Low: Point{X: 0, Y: 0}}},
		{"path-open", uint32(oid.T_path), Path{Closed: false, Points: []Point{{X: 0, Y: 0}, {X: 1, Y: 1}}}},
		{"polygon", uint32(oid.T_polygon), Polygon{Points: []Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}}},
		{"circle", uint32(oid.T_circle), Circle{Center: Point{X: 1, Y: 1}, Radius: 5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			format, raw, err := r.Encode(tc.oid, tc.value)
			require.NoError(t, err)
			require.Equal(t, BinaryFormat, format)

			decoded, err := r.Decode(tc.oid, format, raw)
			require.NoError(t, err)
			require.Equal(t, tc.value, decoded)
		})
	}
}

func TestDecodeNullIsNilWithoutConsultingRegistry(t *testing.T) {
	r := NewRegistry()
	v, err := r.Decode(uint32(oid.T_text), TextFormat, nil)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestEncodeUnregisteredOIDFails(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Encode(999999, "anything")
	require.Error(t, err)

	var unsupported *unsupportedType
	require.ErrorAs(t, err, &unsupported)
}

func TestDecodeUnknownOIDReturnsRawBytes(t *testing.T) {
	r := NewRegistry()
	v, err := r.Decode(999999, BinaryFormat, []byte{0x01, 0x02})
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, v)
}

func TestRegisterPanicsAfterSeal(t *testing.T) {
	r := NewRegistry()
	r.Seal()

	require.Panics(t, func() {
		r.Register(oid.T_int4, encodeUUID, decodeUUID)
	})
}

func TestJSONBRoundTrip(t *testing.T) {
	r := NewRegistry()

	format, raw, err := r.Encode(uint32(oid.T_jsonb), map[string]any{"a": float64(1)})
	require.NoError(t, err)
	require.Equal(t, BinaryFormat, format)
	require.Equal(t, byte(0x01), raw[0])

	decoded, err := r.Decode(uint32(oid.T_jsonb), format, raw)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": float64(1)}, decoded)
}
