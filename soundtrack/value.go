// SPDX-License-Identifier: EPL-2.0

package soundtrack

import (
	"math"
	"strconv"
	"strings"
)

// Value is a flow-control value: either a byte string or a finite number.
// The zero Value is the empty string.
type Value struct {
	str      string
	num      float64
	isNumber bool
}

// Number returns a numeric Value.
func Number(n float64) Value {
	return Value{num: n, isNumber: true}
}

// String returns a string Value.
func String(s string) Value {
	return Value{str: s}
}

// Bool returns 1 for true and 0 for false, as a numeric Value.
func Bool(b bool) Value {
	if b {
		return Number(1)
	}
	return Number(0)
}

// ParseValue interprets a token the way the soundtrack language does: if it
// parses as a number it is a number, otherwise it is a string. Strings may not
// contain expression operator characters.
func ParseValue(s string) (Value, error) {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return Number(n), nil
	}
	if i := strings.IndexAny(s, expressionSplitChars); i >= 0 {
		return Value{}, &ParseError{Message: "character " + strconv.Quote(string(s[i])) + " is not allowed in a flow control string"}
	}
	return String(s), nil
}

// IsNumber reports whether the value is numeric.
func (v Value) IsNumber() bool { return v.isNumber }

// IsTruthy reports the value's truthiness:
//   - strings: not empty, not "0", not "false"
//   - numbers: not equal to zero (NaN is truthy)
func (v Value) IsTruthy() bool {
	if v.isNumber {
		return v.num != 0
	}
	return v.str != "" && v.str != "0" && v.str != "false"
}

// AsNumber coerces the value to a number. The empty string is zero, an
// unparseable string is NaN.
func (v Value) AsNumber() float64 {
	if v.isNumber {
		return v.num
	}
	if v.str == "" {
		return 0
	}
	n, err := strconv.ParseFloat(v.str, 64)
	if err != nil {
		return math.NaN()
	}
	return n
}

// AsString coerces the value to a string. Numbers render with the default
// formatting.
func (v Value) AsString() string {
	if v.isNumber {
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	}
	return v.str
}

// Equal reports whether two values are equal. Values of different kinds are
// never equal.
func (v Value) Equal(o Value) bool {
	if v.isNumber != o.isNumber {
		return false
	}
	if v.isNumber {
		return v.num == o.num
	}
	return v.str == o.str
}

// Compare orders two values of the same kind. The second result is false when
// the values are of different kinds or not ordered (NaN).
func (v Value) Compare(o Value) (int, bool) {
	if v.isNumber != o.isNumber {
		return 0, false
	}
	if v.isNumber {
		switch {
		case math.IsNaN(v.num) || math.IsNaN(o.num):
			return 0, false
		case v.num < o.num:
			return -1, true
		case v.num > o.num:
			return 1, true
		}
		return 0, true
	}
	return strings.Compare(v.str, o.str), true
}
