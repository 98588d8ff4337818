// SPDX-License-Identifier: EPL-2.0

package soundtrack

import (
	"math"
	"testing"
)

func TestValueTruthiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value Value
		want  bool
	}{
		{Number(0), false},
		{Number(1), true},
		{Number(-0.5), true},
		{Number(math.NaN()), true}, // NaN != 0, so it's truthy
		{String(""), false},
		{String("0"), false},
		{String("false"), false},
		{String("no"), true},
		{String("1"), true},
		{Bool(true), true},
		{Bool(false), false},
		{Value{}, false}, // zero value is the empty string
	}
	for _, tt := range tests {
		if got := tt.value.IsTruthy(); got != tt.want {
			t.Errorf("IsTruthy(%v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestValueCoercion(t *testing.T) {
	t.Parallel()

	if got := String("").AsNumber(); got != 0 {
		t.Errorf("empty string as number = %v, want 0", got)
	}
	if got := String("2.5").AsNumber(); got != 2.5 {
		t.Errorf("\"2.5\" as number = %v", got)
	}
	if got := String("pelican").AsNumber(); !math.IsNaN(got) {
		t.Errorf("\"pelican\" as number = %v, want NaN", got)
	}
	if got := Number(2.5).AsString(); got != "2.5" {
		t.Errorf("2.5 as string = %q", got)
	}
	if got := String("x").AsString(); got != "x" {
		t.Errorf("\"x\" as string = %q", got)
	}
}

func TestValueCompare(t *testing.T) {
	t.Parallel()

	if c, ok := Number(1).Compare(Number(2)); !ok || c != -1 {
		t.Errorf("1 vs 2 = %v, %v", c, ok)
	}
	if c, ok := String("b").Compare(String("a")); !ok || c != 1 {
		t.Errorf("b vs a = %v, %v", c, ok)
	}
	if _, ok := Number(1).Compare(String("1")); ok {
		t.Error("number and string must not compare")
	}
	if _, ok := Number(math.NaN()).Compare(Number(1)); ok {
		t.Error("NaN must not compare")
	}
	if !Number(1).Equal(Number(1)) || Number(1).Equal(String("1")) {
		t.Error("equality must respect kinds")
	}
}

func TestParseValue(t *testing.T) {
	t.Parallel()

	v, err := ParseValue("42")
	if err != nil || !v.IsNumber() || v.AsNumber() != 42 {
		t.Errorf("ParseValue(42) = %v, %v", v, err)
	}
	v, err = ParseValue("swamp")
	if err != nil || v.IsNumber() || v.AsString() != "swamp" {
		t.Errorf("ParseValue(swamp) = %v, %v", v, err)
	}
	if _, err = ParseValue("a+b"); err == nil {
		t.Error("operator characters are not allowed in control strings")
	}
}
