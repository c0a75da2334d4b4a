package typecodec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lib/pq/oid"
)

// Point is PostgreSQL's point: (x, y), two float8s.
type Point struct{ X, Y float64 }

// Line is PostgreSQL's line, stored as the coefficients of Ax + By + C = 0.
type Line struct{ A, B, C float64 }

// Lseg is a line segment: two endpoints.
type Lseg struct{ P1, P2 Point }

// Box is an axis-aligned rectangle: two opposite corners.
type Box struct{ High, Low Point }

// Path is an open or closed sequence of points.
type Path struct {
	Closed bool
	Points []Point
}

// Polygon is a closed sequence of points with no separate Closed flag on the
// wire (polygons are always closed).
type Polygon struct{ Points []Point }

// Circle is a center point and a radius.
type Circle struct {
	Center Point
	Radius float64
}

// registerGeometric wires the double-precision geometric types named in
// §4.3 directly against their PostgreSQL binary catalog layouts. pgtype.Map
// does not register these by default in the slim build this module pins,
// so they are implemented here on the standard library's encoding/binary
// and math/bits-free float64 bit conversion — no third-party geometry
// package in the retrieved pack models PostgreSQL's exact point/box/path/
// polygon/circle wire layout, so this is a justified stdlib-only codec
// (see DESIGN.md).
func registerGeometric(r *Registry) {
	r.extra[uint32(oid.T_point)] = codec{encode: encodePoint, decode: decodePoint}
	r.extra[uint32(oid.T_line)] = codec{encode: encodeLine, decode: decodeLine}
	r.extra[uint32(oid.T_lseg)] = codec{encode: encodeLseg, decode: decodeLseg}
	r.extra[uint32(oid.T_box)] = codec{encode: encodeBox, decode: decodeBox}
	r.extra[uint32(oid.T_path)] = codec{encode: encodePath, decode: decodePath}
	r.extra[uint32(oid.T_polygon)] = codec{encode: encodePolygon, decode: decodePolygon}
	r.extra[uint32(oid.T_circle)] = codec{encode: encodeCircle, decode: decodeCircle}
}

func putFloat8(buf []byte, v float64) {
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
}

func getFloat8(src []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(src))
}

func encodePoint(_ *pgtype.Map, _ uint32, value Value) (Format, []byte, error) {
	p, ok := value.(Point)
	if !ok {
		return 0, nil, fmt.Errorf("typecodec: cannot encode %T as point", value)
	}
	buf := make([]byte, 16)
	putFloat8(buf[0:8], p.X)
	putFloat8(buf[8:16], p.Y)
	return BinaryFormat, buf, nil
}

func decodePoint(_ *pgtype.Map, _ uint32, _ Format, src []byte) (Value, error) {
	if len(src) != 16 {
		return nil, fmt.Errorf("typecodec: point binary must be 16 bytes, got %d", len(src))
	}
	return Point{X: getFloat8(src[0:8]), Y: getFloat8(src[8:16])}, nil
}

func encodeLine(_ *pgtype.Map, _ uint32, value Value) (Format, []byte, error) {
	l, ok := value.(Line)
	if !ok {
		return 0, nil, fmt.Errorf("typecodec: cannot encode %T as line", value)
	}
	buf := make([]byte, 24)
	putFloat8(buf[0:8], l.A)
	putFloat8(buf[8:16], l.B)
	putFloat8(buf[16:24], l.C)
	return BinaryFormat, buf, nil
}

func decodeLine(_ *pgtype.Map, _ uint32, _ Format, src []byte) (Value, error) {
	if len(src) != 24 {
		return nil, fmt.Errorf("typecodec: line binary must be 24 bytes, got %d", len(src))
	}
	return Line{A: getFloat8(src[0:8]), B: getFloat8(src[8:16]), C: getFloat8(src[16:24])}, nil
}

func encodeLseg(_ *pgtype.Map, _ uint32, value Value) (Format, []byte, error) {
	s, ok := value.(Lseg)
	if !ok {
		return 0, nil, fmt.Errorf("typecodec: cannot encode %T as lseg", value)
	}
	buf := make([]byte, 32)
	putFloat8(buf[0:8], s.P1.X)
	putFloat8(buf[8:16], s.P1.Y)
	putFloat8(buf[16:24], s.P2.X)
	putFloat8(buf[24:32], s.P2.Y)
	return BinaryFormat, buf, nil
}

func decodeLseg(_ *pgtype.Map, _ uint32, _ Format, src []byte) (Value, error) {
	if len(src) != 32 {
		return nil, fmt.Errorf("typecodec: lseg binary must be 32 bytes, got %d", len(src))
	}
	return Lseg{
		P1: Point{X: getFloat8(src[0:8]), Y: getFloat8(src[8:16])},
		P2: Point{X: getFloat8(src[16:24]), Y: getFloat8(src[24:32])},
	}, nil
}

func encodeBox(_ *pgtype.Map, _ uint32, value Value) (Format, []byte, error) {
	b, ok := value.(Box)
	if !ok {
		return 0, nil, fmt.Errorf("typecodec: cannot encode %T as box", value)
	}
	buf := make([]byte, 32)
	putFloat8(buf[0:8], b.High.X)
	putFloat8(buf[8:16], b.High.Y)
	putFloat8(buf[16:24], b.Low.X)
	putFloat8(buf[24:32], b.Low.Y)
	return BinaryFormat, buf, nil
}

func decodeBox(_ *pgtype.Map, _ uint32, _ Format, src []byte) (Value, error) {
	if len(src) != 32 {
		return nil, fmt.Errorf("typecodec: box binary must be 32 bytes, got %d", len(src))
	}
	return Box{
		High: Point{X: getFloat8(src[0:8]), Y: getFloat8(src[8:16])},
		Low:  Point{X: getFloat8(src[16:24]), Y: getFloat8(src[24:32])},
	}, nil
}

func encodePath(_ *pgtype.Map, _ uint32, value Value) (Format, []byte, error) {
	p, ok := value.(Path)
	if !ok {
		return 0, nil, fmt.Errorf("typecodec: cannot encode %T as path", value)
	}
	buf := make([]byte, 5+len(p.Points)*16)
	if p.Closed {
		buf[0] = 1
	}
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(p.Points)))
	for i, pt := range p.Points {
		off := 5 + i*16
		putFloat8(buf[off:off+8], pt.X)
		putFloat8(buf[off+8:off+16], pt.Y)
	}
	return BinaryFormat, buf, nil
}

func decodePath(_ *pgtype.Map, _ uint32, _ Format, src []byte) (Value, error) {
	if len(src) < 5 {
		return nil, fmt.Errorf("typecodec: path binary too short")
	}
	closed := src[0] == 1
	n := binary.BigEndian.Uint32(src[1:5])
	if len(src) != 5+int(n)*16 {
		return nil, fmt.Errorf("typecodec: path binary length mismatch")
	}
	points := make([]Point, n)
	for i := range points {
		off := 5 + i*16
		points[i] = Point{X: getFloat8(src[off : off+8]), Y: getFloat8(src[off+8 : off+16])}
	}
	return Path{Closed: closed, Points: points}, nil
}

func encodePolygon(_ *pgtype.Map, _ uint32, value Value) (Format, []byte, error) {
	p, ok := value.(Polygon)
	if !ok {
		return 0, nil, fmt.Errorf("typecodec: cannot encode %T as polygon", value)
	}
	buf := make([]byte, 4+len(p.Points)*16)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(p.Points)))
	for i, pt := range p.Points {
		off := 4 + i*16
		putFloat8(buf[off:off+8], pt.X)
		putFloat8(buf[off+8:off+16], pt.Y)
	}
	return BinaryFormat, buf, nil
}

func decodePolygon(_ *pgtype.Map, _ uint32, _ Format, src []byte) (Value, error) {
	if len(src) < 4 {
		return nil, fmt.Errorf("typecodec: polygon binary too short")
	}
	n := binary.BigEndian.Uint32(src[0:4])
	if len(src) != 4+int(n)*16 {
		return nil, fmt.Errorf("typecodec: polygon binary length mismatch")
	}
	points := make([]Point, n)
	for i := range points {
		off := 4 + i*16
		points[i] = Point{X: getFloat8(src[off : off+8]), Y: getFloat8(src[off+8 : off+16])}
	}
	return Polygon{Points: points}, nil
}

func encodeCircle(_ *pgtype.Map, _ uint32, value Value) (Format, []byte, error) {
	c, ok := value.(Circle)
	if !ok {
		return 0, nil, fmt.Errorf("typecodec: cannot encode %T as circle", value)
	}
	buf := make([]byte, 24)
	putFloat8(buf[0:8], c.Center.X)
	putFloat8(buf[8:16], c.Center.Y)
	putFloat8(buf[16:24], c.Radius)
	return BinaryFormat, buf, nil
}

func decodeCircle(_ *pgtype.Map, _ uint32, _ Format, src []byte) (Value, error) {
	if len(src) != 24 {
		return nil, fmt.Errorf("typecodec: circle binary must be 24 bytes, got %d", len(src))
	}
	return Circle{Center: Point{X: getFloat8(src[0:8]), Y: getFloat8(src[8:16])}, Radius: getFloat8(src[16:24])}, nil
}
