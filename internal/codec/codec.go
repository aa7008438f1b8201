// Package codec converts legacy packed-decimal fields to exact decimals and
// back. Packed decimal stores one digit per nibble, with the final nibble of
// the last byte carrying the sign.
//
// All arithmetic is exact fixed-point via shopspring/decimal. Binary floats
// never appear on either side of the conversion.
package codec

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Default sign nibbles. The legacy snippets this layer was built against do
// not agree on a single convention, so layouts may override these; the
// decoder additionally accepts 0xF as unsigned-positive, which every
// convention shares.
const (
	SignPositive = 0xC
	SignNegative = 0xD
	SignUnsigned = 0xF
)

// FieldLayout describes one packed numeric field.
//
// A field of N bytes holds 2N-1 digits plus the sign nibble. Scale is the
// implied number of digits after the decimal point.
type FieldLayout struct {
	// Bytes is the exact byte length of the field on the wire.
	Bytes int
	// Scale is the implied decimal scale (digits after the point).
	Scale int
	// PositiveNibble overrides the positive sign nibble. Zero means
	// SignPositive (0xC).
	PositiveNibble byte
	// NegativeNibble overrides the negative sign nibble. Zero means
	// SignNegative (0xD).
	NegativeNibble byte
}

// Digits returns the number of decimal digits the field can hold.
func (l FieldLayout) Digits() int {
	return l.Bytes*2 - 1
}

func (l FieldLayout) positive() byte {
	if l.PositiveNibble != 0 {
		return l.PositiveNibble
	}
	return SignPositive
}

func (l FieldLayout) negative() byte {
	if l.NegativeNibble != 0 {
		return l.NegativeNibble
	}
	return SignNegative
}

// MalformedNumericError reports an unrecoverable packed-decimal failure.
// The affected record is rejected; the pipeline keeps running.
type MalformedNumericError struct {
	// Reason is a short machine-readable cause: "length", "digit", "sign",
	// or "capacity".
	Reason string
	// Detail is a human-readable description.
	Detail string
}

// Error implements the error interface.
func (e *MalformedNumericError) Error() string {
	return fmt.Sprintf("malformed numeric (%s): %s", e.Reason, e.Detail)
}

// IsMalformed reports whether err is a MalformedNumericError.
// Uses errors.As to handle wrapped errors.
func IsMalformed(err error) bool {
	var me *MalformedNumericError
	return errors.As(err, &me)
}

// Decode converts a packed-decimal field to an exact decimal.
//
// Each nibble holds one decimal digit except the last nibble of the final
// byte, which holds the sign. Returns MalformedNumericError when the byte
// length does not match the layout, a digit nibble is not 0-9, or the sign
// nibble matches no known convention.
func Decode(raw []byte, layout FieldLayout) (decimal.Decimal, error) {
	if layout.Bytes <= 0 {
		return decimal.Zero, &MalformedNumericError{
			Reason: "length",
			Detail: fmt.Sprintf("layout byte length %d is not positive", layout.Bytes),
		}
	}
	if len(raw) != layout.Bytes {
		return decimal.Zero, &MalformedNumericError{
			Reason: "length",
			Detail: fmt.Sprintf("field is %d bytes, layout expects %d", len(raw), layout.Bytes),
		}
	}

	// Digits accumulate as a decimal string, not a machine integer, so
	// wide fields decode exactly: a 10-byte field already holds 19
	// digits, past what an int64 can carry.
	digits := make([]byte, 0, layout.Digits())
	for i, b := range raw {
		hi := b >> 4
		lo := b & 0x0F

		if hi > 9 {
			return decimal.Zero, &MalformedNumericError{
				Reason: "digit",
				Detail: fmt.Sprintf("byte %d high nibble 0x%X is not a decimal digit", i, hi),
			}
		}
		digits = append(digits, '0'+hi)

		if i == len(raw)-1 {
			// Final low nibble is the sign.
			break
		}
		if lo > 9 {
			return decimal.Zero, &MalformedNumericError{
				Reason: "digit",
				Detail: fmt.Sprintf("byte %d low nibble 0x%X is not a decimal digit", i, lo),
			}
		}
		digits = append(digits, '0'+lo)
	}

	neg := false
	sign := raw[len(raw)-1] & 0x0F
	switch sign {
	case layout.negative():
		neg = true
	case layout.positive(), SignUnsigned:
		// Positive or unsigned.
	default:
		return decimal.Zero, &MalformedNumericError{
			Reason: "sign",
			Detail: fmt.Sprintf("sign nibble 0x%X matches neither 0x%X (positive), 0x%X (negative), nor 0x%X (unsigned)",
				sign, layout.positive(), layout.negative(), SignUnsigned),
		}
	}

	units, err := decimal.NewFromString(string(digits))
	if err != nil {
		return decimal.Zero, &MalformedNumericError{
			Reason: "digit",
			Detail: fmt.Sprintf("digits %q: %v", digits, err),
		}
	}
	if neg {
		units = units.Neg()
	}
	return units.Shift(int32(-layout.Scale)), nil
}

// Encode converts an exact decimal to a packed-decimal field.
//
// The value is first rescaled to the layout's scale with Rescale (round
// half up). Returns MalformedNumericError with reason "capacity" when the
// rescaled value needs more digits than the field can hold.
func Encode(d decimal.Decimal, layout FieldLayout) ([]byte, error) {
	if layout.Bytes <= 0 {
		return nil, &MalformedNumericError{
			Reason: "length",
			Detail: fmt.Sprintf("layout byte length %d is not positive", layout.Bytes),
		}
	}

	scaled := Rescale(d, layout.Scale)

	// Units as a positive integer string, sign handled separately.
	units := scaled.Shift(int32(layout.Scale))
	neg := units.IsNegative()
	digits := units.Abs().String()

	if len(digits) > layout.Digits() {
		return nil, &MalformedNumericError{
			Reason: "capacity",
			Detail: fmt.Sprintf("value %s needs %d digits, field holds %d", scaled, len(digits), layout.Digits()),
		}
	}

	// Left-pad with zeros to fill the field exactly.
	padded := make([]byte, layout.Digits())
	pad := layout.Digits() - len(digits)
	for i := range padded {
		if i < pad {
			padded[i] = 0
		} else {
			padded[i] = digits[i-pad] - '0'
		}
	}

	sign := layout.positive()
	if neg {
		sign = layout.negative()
	}

	out := make([]byte, layout.Bytes)
	for i := 0; i < layout.Bytes-1; i++ {
		out[i] = padded[2*i]<<4 | padded[2*i+1]
	}
	out[layout.Bytes-1] = padded[len(padded)-1]<<4 | sign

	return out, nil
}

// Rescale reduces (or extends) a decimal to the given scale using round
// half up, matching the legacy processor's ROUNDED clause: ties move away
// from zero, so 0.005 becomes 0.01 and -0.005 becomes -0.01.
func Rescale(d decimal.Decimal, scale int) decimal.Decimal {
	return d.Round(int32(scale))
}
