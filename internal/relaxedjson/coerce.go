package relaxedjson

import (
	"math"
	"strconv"
	"strings"
)

// CoerceKey converts a textual object key into its natural scalar Value.
// The rules form an ordered chain; the first match wins:
//
//  1. "true"/"false" in any case -> bool
//  2. integer literal (no '.', 'e', 'E') -> int32 when it fits, else int64
//  3. decimal or exponential literal -> float64
//  4. anything else -> the string, unchanged
//
// The original textual form is not retained, so "1e2" becomes float64(100)
// while "100" becomes int32(100), and neither is addressable as a string
// afterwards.
func CoerceKey(key string) Value {
	if strings.EqualFold(key, "true") {
		return BoolValue(true)
	}
	if strings.EqualFold(key, "false") {
		return BoolValue(false)
	}

	if !strings.ContainsAny(key, ".eE") {
		if n, err := strconv.ParseInt(key, 10, 64); err == nil {
			if n >= math.MinInt32 && n <= math.MaxInt32 {
				return Int32Value(int32(n))
			}
			return Int64Value(n)
		}
		// Out-of-range or malformed integers fall through to the float rule:
		// "99999999999999999999" is still a valid decimal literal.
	}

	if f, err := strconv.ParseFloat(key, 64); err == nil {
		return Float64Value(f)
	}

	return StringValue(key)
}
