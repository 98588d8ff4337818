// SPDX-License-Identifier: EPL-2.0

package soundtrack

import (
	"strconv"
	"strings"
)

// A Timebase converts timecodes written in musical units (beats, measures,
// SMPTE-ish subdivisions...) into seconds. A timebase is a chain of stages;
// a timecode supplies one dot-separated field per stage, e.g. "2.3.1" for
// measure 2, beat 3, subdivision 1. Exactly one stage carries a basis suffix
// anchoring the chain to wall-clock time, e.g. "120/m" = 120 per minute.
type Timebase struct {
	stages []timebaseStage
}

type timebaseStage struct {
	oneBased   bool
	multiplier float64
}

// defaultTimebase is plain seconds.
var defaultTimebase = &Timebase{
	stages: []timebaseStage{{oneBased: false, multiplier: 1}},
}

type timebaseSuffix int

const (
	suffixSeconds timebaseSuffix = iota
	suffixMilliseconds
	suffixMicroseconds
	suffixNanoseconds
	suffixMinutes
	suffixHours
	suffixDays
)

var timebaseSuffixes = map[string]timebaseSuffix{
	"s": suffixSeconds, "sec": suffixSeconds, "second": suffixSeconds,
	"ms": suffixMilliseconds, "msec": suffixMilliseconds,
	"msecond": suffixMilliseconds, "millis": suffixMilliseconds,
	"millisec": suffixMilliseconds, "millisecond": suffixMilliseconds,
	"us": suffixMicroseconds, "usec": suffixMicroseconds,
	"usecond": suffixMicroseconds, "µs": suffixMicroseconds,
	"µsec": suffixMicroseconds, "µsecond": suffixMicroseconds,
	"micros": suffixMicroseconds, "microsec": suffixMicroseconds,
	"microsecond": suffixMicroseconds,
	"ns":          suffixNanoseconds, "nsec": suffixNanoseconds,
	"nsecond": suffixNanoseconds, "nanos": suffixNanoseconds,
	"nanosec": suffixNanoseconds, "nanosecond": suffixNanoseconds,
	"m": suffixMinutes, "min": suffixMinutes, "minute": suffixMinutes,
	"h": suffixHours, "hr": suffixHours, "hour": suffixHours,
	"d": suffixDays, "day": suffixDays,
}

func (s timebaseSuffix) seconds() float64 {
	switch s {
	case suffixMilliseconds:
		return 1e-3
	case suffixMicroseconds:
		return 1e-6
	case suffixNanoseconds:
		return 1e-9
	case suffixMinutes:
		return 60
	case suffixHours:
		return 3600
	case suffixDays:
		return 86400
	}
	return 1
}

// secondsPer returns seconds per tick given x ticks per suffix unit.
func (s timebaseSuffix) secondsPer(x float64) float64 { return s.seconds() / x }

// secondsTimes returns seconds per tick given that each tick is x suffix
// units long.
func (s timebaseSuffix) secondsTimes(x float64) float64 { return s.seconds() * x }

type timeSpec int

const (
	specBasic timeSpec = iota
	specPer
	specTimes
)

// parseTimebaseStage parses a single stage token like "@4", "120/m" or "32".
func parseTimebaseStage(source string) (oneBased bool, number float64, spec timeSpec, suffix timebaseSuffix, err error) {
	if strings.HasPrefix(source, "@") {
		oneBased = true
		source = source[1:]
	}
	end := strings.IndexFunc(source, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	spec = specBasic
	if end >= 0 {
		tail := source[end:]
		source = source[:end]
		if rest, ok := strings.CutPrefix(tail, "/"); ok {
			if source == "" {
				return false, 0, 0, 0, &ParseError{Message: "missing number"}
			}
			suffix, ok = timebaseSuffixes[rest]
			if !ok {
				return false, 0, 0, 0, &ParseError{Message: "unknown suffix " + strconv.Quote(tail)}
			}
			spec = specPer
		} else {
			if source == "" {
				source = "1"
			}
			var found bool
			suffix, found = timebaseSuffixes[tail]
			if !found {
				return false, 0, 0, 0, &ParseError{Message: "unknown suffix " + strconv.Quote(tail)}
			}
			spec = specTimes
		}
	}
	number, perr := strconv.ParseFloat(source, 64)
	if perr != nil || number < 0 {
		return false, 0, 0, 0, &ParseError{Message: "invalid number"}
	}
	return oneBased, number, spec, suffix, nil
}

// parseTimebase parses the stage tokens of a timebase declaration.
func parseTimebase(source []string) (*Timebase, error) {
	type stage struct {
		oneBased bool
		number   float64
	}
	stages := make([]stage, 0, len(source))
	basisIndex := -1
	var basisSpec timeSpec
	var basisSuffix timebaseSuffix
	for n, tok := range source {
		oneBased, number, spec, suffix, err := parseTimebaseStage(tok)
		if err != nil {
			return nil, &ParseError{Message: "error parsing resolution #" + strconv.Itoa(n+1) + ": " + err.(*ParseError).Message}
		}
		if spec != specBasic {
			if basisIndex >= 0 {
				return nil, &ParseError{Message: "resolution #" + strconv.Itoa(n+1) + " contains a second basis, only one basis is allowed"}
			}
			basisIndex, basisSpec, basisSuffix = n, spec, suffix
		}
		stages = append(stages, stage{oneBased, number})
	}
	if basisIndex < 0 {
		return nil, &ParseError{Message: "this timebase doesn't specify a basis (e.g. \"/minute\")"}
	}
	ret := make([]timebaseStage, 0, len(stages))
	for n := 0; n <= basisIndex; n++ {
		multiplier := stages[n].number
		if n == basisIndex {
			if basisSpec == specPer {
				multiplier = basisSuffix.secondsPer(multiplier)
			} else {
				multiplier = basisSuffix.secondsTimes(multiplier)
			}
		}
		for i := range ret {
			ret[i].multiplier *= multiplier
		}
		ret = append(ret, timebaseStage{stages[n].oneBased, multiplier})
	}
	multiplier := ret[len(ret)-1].multiplier
	for n := basisIndex + 1; n < len(stages); n++ {
		multiplier /= stages[n].number
		ret = append(ret, timebaseStage{stages[n].oneBased, multiplier})
	}
	return &Timebase{stages: ret}, nil
}

// eval converts a timecode like "2.3.1" into seconds. When oneBased is true,
// stages declared with "@" count from one instead of zero; lengths and fade
// durations are always zero-based.
func (t *Timebase) eval(specifier string, oneBased bool) (float64, error) {
	var ret float64
	for i, stage := range t.stages {
		last := i+1 == len(t.stages)
		var raw float64
		if last {
			n, err := strconv.ParseFloat(specifier, 64)
			if err != nil || n < 0 {
				return 0, &ParseError{Message: "invalid timecode"}
			}
			raw = n
		} else {
			periodPos := strings.IndexByte(specifier, '.')
			if periodPos < 0 {
				periodPos = len(specifier)
			}
			field := specifier[:periodPos]
			if periodPos < len(specifier) {
				specifier = specifier[periodPos+1:]
			} else {
				specifier = ""
			}
			n, err := strconv.Atoi(field)
			if err != nil || n < 0 {
				return 0, &ParseError{Message: "invalid timecode"}
			}
			raw = float64(n)
		}
		if oneBased && stage.oneBased {
			raw = max(raw-1, 0)
		}
		ret += raw * stage.multiplier
	}
	return ret, nil
}

// timebaseCollection is a lexical scope of named timebases. Each block that
// can declare timebases gets a child collection; lookups walk outward.
type timebaseCollection struct {
	parent    *timebaseCollection
	timebases map[string]*Timebase
	active    string
	hasActive bool
}

func newTimebaseCollection() *timebaseCollection {
	return &timebaseCollection{}
}

func (c *timebaseCollection) makeChild() *timebaseCollection {
	return &timebaseCollection{
		parent:    c,
		active:    c.active,
		hasActive: c.hasActive,
	}
}

func (c *timebaseCollection) getTimebase(name string) *Timebase {
	for cur := c; cur != nil; cur = cur.parent {
		if tb, ok := cur.timebases[name]; ok {
			return tb
		}
	}
	return nil
}

func (c *timebaseCollection) activeTimebase() *Timebase {
	if !c.hasActive {
		return nil
	}
	return c.getTimebase(c.active)
}

// parseTimebaseNode handles a "timebase ..." element: either a declaration or
// the selection of an existing timebase as active.
func (c *timebaseCollection) parseTimebaseNode(node *dinNode) error {
	if len(node.children) != 0 {
		return errLine(node.lineno, "timebase elements must have no children (check indentation)")
	}
	if len(node.items) < 2 {
		return errLine(node.lineno, "not enough items in timebase spec")
	}
	name := "default"
	stages := node.items[1:]
	first := node.items[1][0]
	if first != '.' && first != '@' && (first < '0' || first > '9') {
		name = node.items[1]
		stages = node.items[2:]
	}
	if len(stages) == 0 {
		if c.getTimebase(name) == nil {
			return errLine(node.lineno, "can't set timebase "+strconv.Quote(name)+" as active because it doesn't exist")
		}
		c.active, c.hasActive = name, true
		return nil
	}
	tb, err := parseTimebase(stages)
	if err != nil {
		return at(node.lineno, err)
	}
	if c.timebases == nil {
		c.timebases = make(map[string]*Timebase)
	}
	c.timebases[name] = tb
	if !c.hasActive {
		c.active, c.hasActive = name, true
	}
	return nil
}

// parseTime converts element items like ["at", "2.1"] or
// ["wait", "beats", "4"] into seconds. Length-like keywords (length, fade_*,
// over, for) are zero-based; positional ones honor one-based stages.
func (c *timebaseCollection) parseTime(items []string) (float64, error) {
	var tb *Timebase
	var code string
	switch len(items) {
	case 2:
		tb = c.activeTimebase()
		if tb == nil {
			tb = defaultTimebase
		}
		code = items[1]
	case 3:
		tb = c.getTimebase(items[1])
		if tb == nil {
			return 0, &ParseError{Message: "no known timebase named " + strconv.Quote(items[1])}
		}
		code = items[2]
	default:
		return 0, &ParseError{Message: "either specify a time in the default timebase, or the name of a timebase followed by a time in that timebase"}
	}
	keyword := items[0]
	oneBased := !(strings.HasSuffix(keyword, "length") ||
		strings.HasPrefix(keyword, "fade") ||
		strings.HasPrefix(keyword, "over") ||
		keyword == "for")
	return tb.eval(code, oneBased)
}

func (c *timebaseCollection) parseTimeNode(node *dinNode) (float64, error) {
	if len(node.children) != 0 {
		return 0, errLine(node.lineno, strconv.Quote(node.items[0])+" elements must have no children (check indentation)")
	}
	t, err := c.parseTime(node.items)
	if err != nil {
		return 0, at(node.lineno, err)
	}
	return t, nil
}
