package typecodec

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lib/pq/oid"
	"github.com/shopspring/decimal"
)

// numericDigitsBase is the base PostgreSQL's NUMERIC binary format groups
// digits in: each "digit" holds four base-10 digits, encoded big-endian
// as an int16.
const numericDigitsBase = 10000

// registerNumeric registers shopspring/decimal as the Go representation for
// NUMERIC, in place of pgtype's own big.Rat-shaped Numeric: decimal.Decimal
// is the representation the rest of the pack (tqdbproxy) exchanges with
// callers, and it round-trips through PostgreSQL's binary NUMERIC layout
// without going through an intermediate rational.
func registerNumeric(r *Registry) {
	r.extra[uint32(oid.T_numeric)] = codec{
		encode: encodeNumeric,
		decode: decodeNumeric,
	}
}

func encodeNumeric(_ *pgtype.Map, _ uint32, value Value) (Format, []byte, error) {
	d, err := toDecimal(value)
	if err != nil {
		return 0, nil, err
	}

	return BinaryFormat, marshalNumericBinary(d), nil
}

func decodeNumeric(_ *pgtype.Map, _ uint32, format Format, src []byte) (Value, error) {
	if format == TextFormat {
		d, err := decimal.NewFromString(string(src))
		if err != nil {
			return nil, fmt.Errorf("typecodec: decoding text numeric: %w", err)
		}
		return d, nil
	}

	return unmarshalNumericBinary(src)
}

func toDecimal(value Value) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case *decimal.Decimal:
		return *v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		return decimal.NewFromString(v)
	default:
		return decimal.Decimal{}, fmt.Errorf("typecodec: cannot encode %T as numeric", value)
	}
}

// marshalNumericBinary writes PostgreSQL's NUMERIC binary format: ndigits
// (int16), weight (int16), sign (uint16), dscale (uint16), digits
// ([ndigits]int16), each digit base-10000.
func marshalNumericBinary(d decimal.Decimal) []byte {
	sign := uint16(0x0000)
	coeff := d.Coefficient()
	if coeff.Sign() < 0 {
		sign = 0x4000
		coeff = new(big.Int).Abs(coeff)
	}

	dscale := uint16(0)
	if d.Exponent() < 0 {
		dscale = uint16(-d.Exponent())
	}

	digits, weight := toBase10000(coeff, d.Exponent())

	buf := make([]byte, 8+len(digits)*2)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(digits)))
	binary.BigEndian.PutUint16(buf[2:4], uint16(weight))
	binary.BigEndian.PutUint16(buf[4:6], sign)
	binary.BigEndian.PutUint16(buf[6:8], dscale)

	for i, dg := range digits {
		binary.BigEndian.PutUint16(buf[8+i*2:10+i*2], dg)
	}

	return buf
}

func unmarshalNumericBinary(src []byte) (decimal.Decimal, error) {
	if len(src) < 8 {
		return decimal.Decimal{}, fmt.Errorf("typecodec: numeric binary too short")
	}

	ndigits := binary.BigEndian.Uint16(src[0:2])
	weight := int16(binary.BigEndian.Uint16(src[2:4]))
	sign := binary.BigEndian.Uint16(src[4:6])
	dscale := binary.BigEndian.Uint16(src[6:8])

	if len(src) < 8+int(ndigits)*2 {
		return decimal.Decimal{}, fmt.Errorf("typecodec: numeric binary truncated")
	}

	coeff := new(big.Int)
	for i := 0; i < int(ndigits); i++ {
		dg := binary.BigEndian.Uint16(src[8+i*2 : 10+i*2])
		coeff.Mul(coeff, big.NewInt(numericDigitsBase))
		coeff.Add(coeff, big.NewInt(int64(dg)))
	}

	// weight is the power-of-10000 position of the first digit group; the
	// accumulated coefficient is scaled by 10^4 per trailing group, so its
	// decimal exponent is -(ndigits-1-weight)*4.
	exponent := (int(weight) - (int(ndigits) - 1)) * 4

	result := decimal.NewFromBigInt(coeff, int32(exponent))
	if sign == 0x4000 {
		result = result.Neg()
	}

	return result.Truncate(int32(dscale)), nil
}

// toBase10000 splits coeff (already scaled by 10^-exponent) into
// base-10000 digit groups and computes the weight of the first group.
func toBase10000(coeff *big.Int, exponent int32) ([]uint16, int16) {
	if coeff.Sign() == 0 {
		return nil, 0
	}

	// Align coeff to a multiple-of-4 decimal scale so each group is exactly
	// four decimal digits.
	pad := int(exponent) % 4
	if pad < 0 {
		pad += 4
	}
	scaled := new(big.Int).Set(coeff)
	if pad != 0 {
		scaled.Mul(scaled, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(pad)), nil))
	}

	var digits []uint16
	rem := new(big.Int)
	base := big.NewInt(numericDigitsBase)
	tmp := new(big.Int).Set(scaled)
	for tmp.Sign() != 0 {
		tmp.DivMod(tmp, base, rem)
		digits = append([]uint16{uint16(rem.Int64())}, digits...)
	}

	intDigits := (-int(exponent) + pad) / 4
	weight := int16(len(digits) - intDigits - 1)

	return digits, weight
}
