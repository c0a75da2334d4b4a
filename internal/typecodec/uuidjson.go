package typecodec

import (
	"fmt"

	goccyjson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lib/pq/oid"
)

// jsonbVersion is the single leading byte every JSONB binary value carries,
// per §4.3.
const jsonbVersion = 0x01

// registerUUIDAndJSON wires google/uuid as the Go representation for UUID
// (grounded on packetd's own dependency on google/uuid) and goccy/go-json
// for JSON/JSONB marshaling (grounded on packetd's use of goccy/go-json in
// place of encoding/json on its hot path).
func registerUUIDAndJSON(r *Registry) {
	r.extra[uint32(oid.T_uuid)] = codec{encode: encodeUUID, decode: decodeUUID}
	r.extra[uint32(oid.T_json)] = codec{encode: encodeJSON, decode: decodeJSON}
	r.extra[uint32(oid.T_jsonb)] = codec{encode: encodeJSONB, decode: decodeJSONB}
}

func encodeUUID(_ *pgtype.Map, _ uint32, value Value) (Format, []byte, error) {
	var id uuid.UUID
	switch v := value.(type) {
	case uuid.UUID:
		id = v
	case [16]byte:
		id = uuid.UUID(v)
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return 0, nil, fmt.Errorf("typecodec: encoding uuid: %w", err)
		}
		id = parsed
	default:
		return 0, nil, fmt.Errorf("typecodec: cannot encode %T as uuid", value)
	}

	raw, err := id.MarshalBinary()
	if err != nil {
		return 0, nil, err
	}
	return BinaryFormat, raw, nil
}

func decodeUUID(_ *pgtype.Map, _ uint32, format Format, src []byte) (Value, error) {
	if format == TextFormat {
		return uuid.Parse(string(src))
	}
	return uuid.FromBytes(src)
}

func encodeJSON(_ *pgtype.Map, _ uint32, value Value) (Format, []byte, error) {
	raw, err := marshalJSON(value)
	if err != nil {
		return 0, nil, err
	}
	return TextFormat, raw, nil
}

func decodeJSON(_ *pgtype.Map, _ uint32, _ Format, src []byte) (Value, error) {
	return unmarshalJSON(src)
}

func encodeJSONB(_ *pgtype.Map, _ uint32, value Value) (Format, []byte, error) {
	raw, err := marshalJSON(value)
	if err != nil {
		return 0, nil, err
	}
	return BinaryFormat, append([]byte{jsonbVersion}, raw...), nil
}

func decodeJSONB(_ *pgtype.Map, _ uint32, format Format, src []byte) (Value, error) {
	if format == BinaryFormat {
		if len(src) == 0 || src[0] != jsonbVersion {
			return nil, fmt.Errorf("typecodec: unsupported jsonb version byte")
		}
		src = src[1:]
	}
	return unmarshalJSON(src)
}

func marshalJSON(value Value) ([]byte, error) {
	if raw, ok := value.([]byte); ok {
		return raw, nil
	}
	if s, ok := value.(string); ok {
		return []byte(s), nil
	}
	return goccyjson.Marshal(value)
}

func unmarshalJSON(src []byte) (Value, error) {
	var v any
	if err := goccyjson.Unmarshal(src, &v); err != nil {
		return nil, fmt.Errorf("typecodec: decoding json: %w", err)
	}
	return v, nil
}
