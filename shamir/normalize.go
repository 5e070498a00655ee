package shamir

import (
	"fmt"
	"time"
)

// dateLayout is the ISO-8601 civil-date layout spec.md §4.7 names;
// matches the original's "%Y-%m-%d" mktime/strptime format exactly.
const dateLayout = "2006-01-02"

// Normalize converts t's 16 attributes to the uniform int64
// representation spec.md §4.7's table specifies, in Attribute order.
func Normalize(t Tuple) ([TupleWidth]int64, error) {
	var out [TupleWidth]int64

	out[OrderKey] = t.OrderKey
	out[PartKey] = t.PartKey
	out[SuppKey] = t.SuppKey
	out[LineNumber] = t.LineNumber
	out[Quantity] = t.Quantity
	out[ExtPrice] = NormalizeDecimal(t.ExtPrice)
	out[Discount] = NormalizeDecimal(t.Discount)
	out[Tax] = NormalizeDecimal(t.Tax)
	out[RetFlag] = NormalizeChar(t.RetFlag)
	out[LineStatus] = NormalizeChar(t.LineStatus)

	shipDate, err := NormalizeDate(t.ShipDate)
	if err != nil {
		return out, fmt.Errorf("shamir: normalize ship date: %w", err)
	}
	out[ShipDate] = shipDate

	commitDate, err := NormalizeDate(t.CommitDate)
	if err != nil {
		return out, fmt.Errorf("shamir: normalize commit date: %w", err)
	}
	out[CommitDate] = commitDate

	recDate, err := NormalizeDate(t.RecDate)
	if err != nil {
		return out, fmt.Errorf("shamir: normalize receipt date: %w", err)
	}
	out[RecDate] = recDate

	out[ShipInstruct] = NormalizeString(t.ShipInstruct)
	out[ShipMode] = NormalizeString(t.ShipMode)
	out[Comment] = NormalizeString(t.Comment)

	return out, nil
}

// NormalizeDecimal scales a fixed-point decimal (extended price, discount,
// tax) to centi-units, truncating rather than rounding — spec.md §9
// documents this as the source's behavior and leaves rounding as an open
// question; truncation is kept as the default to match the reconstructed
// sums existing query fixtures were built against.
func NormalizeDecimal(v float64) int64 {
	return int64(v * 100)
}

// DecodeDecimal reverses NormalizeDecimal for client-side reconstruction.
func DecodeDecimal(v int64) float64 {
	return float64(v) / 100.0
}

// NormalizeChar encodes a single-character flag (return flag, line
// status) as its ASCII code.
func NormalizeChar(c byte) int64 {
	return int64(c)
}

// DecodeChar reverses NormalizeChar.
func DecodeChar(v int64) byte {
	return byte(v)
}

// NormalizeDate converts an ISO-8601 date to a Unix timestamp in seconds,
// the Go equivalent of the original's mktime-based civil-date conversion.
func NormalizeDate(s string) (int64, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return 0, fmt.Errorf("shamir: parse date %q: %w", s, err)
	}
	return t.Unix(), nil
}

// DecodeDate reverses NormalizeDate.
func DecodeDate(v int64) string {
	return time.Unix(v, 0).UTC().Format(dateLayout)
}

// NormalizeString packs a short ASCII string (ship instruct, ship mode,
// comment) into a single int64 via base-256 big-endian accumulation:
// acc = acc*256 + byte, matching the original's stringToInt.
func NormalizeString(s string) int64 {
	var acc int64
	for i := 0; i < len(s); i++ {
		acc = acc*256 + int64(s[i])
	}
	return acc
}

// DecodeString reverses NormalizeString.
func DecodeString(v int64) string {
	if v == 0 {
		return ""
	}
	var buf []byte
	for v > 0 {
		buf = append([]byte{byte(v % 256)}, buf...)
		v /= 256
	}
	return string(buf)
}
