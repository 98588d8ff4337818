// SPDX-License-Identifier: EPL-2.0

package soundtrack

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestParseTimebaseStages(t *testing.T) {
	t.Parallel()

	// One-based measures of 4 beats, 120 beats per minute, 32 subdivisions
	// per beat: multipliers 2s, 0.5s, 1/64s.
	tb, err := parseTimebase([]string{"@4", "120/m", "32"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tb.stages) != 3 {
		t.Fatalf("got %d stages, want 3", len(tb.stages))
	}
	wantMultipliers := []float64{2, 0.5, 1.0 / 64.0}
	wantOneBased := []bool{true, false, false}
	for i, stage := range tb.stages {
		if !almostEqual(stage.multiplier, wantMultipliers[i]) {
			t.Errorf("stage %d multiplier = %v, want %v", i, stage.multiplier, wantMultipliers[i])
		}
		if stage.oneBased != wantOneBased[i] {
			t.Errorf("stage %d oneBased = %v, want %v", i, stage.oneBased, wantOneBased[i])
		}
	}
}

func TestTimebaseEval(t *testing.T) {
	t.Parallel()

	tb, err := parseTimebase([]string{"@4", "120/m", "32"})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		code     string
		oneBased bool
		want     float64
	}{
		// measure 1 beat 0 = start of the piece when one-based
		{"1.0.0", true, 0},
		{"2.0.0", true, 2},
		{"0.1.0", false, 0.5},
		{"0.0.32", false, 0.5},
		{"1.1.16", true, 0.75},
	}
	for _, tt := range tests {
		got, err := tb.eval(tt.code, tt.oneBased)
		if err != nil {
			t.Errorf("eval(%q): %v", tt.code, err)
			continue
		}
		if !almostEqual(got, tt.want) {
			t.Errorf("eval(%q, oneBased=%v) = %v, want %v", tt.code, tt.oneBased, got, tt.want)
		}
	}
}

func TestTimebaseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stages []string
	}{
		{"no basis", []string{"4", "32"}},
		{"two bases", []string{"120/m", "4/s"}},
		{"bad suffix", []string{"120/fortnight"}},
		{"bad number", []string{"x/m"}},
	}
	for _, tt := range tests {
		if _, err := parseTimebase(tt.stages); err == nil {
			t.Errorf("%s: expected error for %v", tt.name, tt.stages)
		}
	}
}

func TestTimebaseCollectionScoping(t *testing.T) {
	t.Parallel()

	parent := newTimebaseCollection()
	node := &dinNode{items: []string{"timebase", "beats", "60/m"}, lineno: 1}
	if err := parent.parseTimebaseNode(node); err != nil {
		t.Fatal(err)
	}
	child := parent.makeChild()
	// the child sees the parent's timebase and its active default
	got, err := child.parseTime([]string{"wait", "3"})
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(got, 3) {
		t.Errorf("wait 3 at 60/m = %v, want 3", got)
	}
	// an explicit timebase name works too
	got, err = child.parseTime([]string{"at", "beats", "2"})
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(got, 2) {
		t.Errorf("at beats 2 = %v, want 2", got)
	}
	// a child override doesn't leak up
	override := &dinNode{items: []string{"timebase", "beats", "120/m"}, lineno: 2}
	if err := child.parseTimebaseNode(override); err != nil {
		t.Fatal(err)
	}
	got, _ = child.parseTime([]string{"wait", "2"})
	if !almostEqual(got, 1) {
		t.Errorf("child wait 2 at 120/m = %v, want 1", got)
	}
	got, _ = parent.parseTime([]string{"wait", "2"})
	if !almostEqual(got, 2) {
		t.Errorf("parent wait 2 at 60/m = %v, want 2", got)
	}
}

func TestSuffixTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stage string
		code  string
		want  float64
	}{
		{"1000/s", "500", 0.5},
		{"1/ms", "2", 0.002},
		{"4/m", "1", 15},
		{"2s", "3", 6},
		{"500ms", "2", 1},
	}
	for _, tt := range tests {
		tb, err := parseTimebase([]string{tt.stage})
		if err != nil {
			t.Errorf("parseTimebase(%q): %v", tt.stage, err)
			continue
		}
		got, err := tb.eval(tt.code, false)
		if err != nil {
			t.Errorf("eval(%q): %v", tt.code, err)
			continue
		}
		if !almostEqual(got, tt.want) {
			t.Errorf("%q eval %q = %v, want %v", tt.stage, tt.code, got, tt.want)
		}
	}
}
