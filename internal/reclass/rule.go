// Package reclass maps continuous grids to binary suitability masks through
// ordered interval rules.
package reclass

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// ErrInvalidRule marks a rule whose intervals do not partition the real line.
var ErrInvalidRule = eris.New("reclass: invalid rule")

// RuleError reports which interval of a rule is malformed. It is a caller
// bug and is never recovered from.
type RuleError struct {
	Index  int
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("reclass: interval %d: %s", e.Index, e.Reason)
}

func (e *RuleError) Unwrap() error { return ErrInvalidRule }

// Criterion is the acceptable range of one environmental variable. Both
// thresholds are inclusive.
type Criterion struct {
	Name string  `json:"name" yaml:"name" mapstructure:"name"`
	Min  float64 `json:"min" yaml:"min" mapstructure:"min"`
	Max  float64 `json:"max" yaml:"max" mapstructure:"max"`
}

// Validate checks that the thresholds are finite and ordered.
func (c Criterion) Validate() error {
	if math.IsNaN(c.Min) || math.IsNaN(c.Max) || math.IsInf(c.Min, 0) || math.IsInf(c.Max, 0) {
		return eris.Wrapf(ErrInvalidRule, "reclass: criterion %q thresholds must be finite", c.Name)
	}
	if c.Min > c.Max {
		return eris.Wrapf(ErrInvalidRule, "reclass: criterion %q min %v exceeds max %v", c.Name, c.Min, c.Max)
	}
	return nil
}

// Interval maps values between Lower and Upper to suitable (1) or nodata.
// Infinite bounds are open regardless of their inclusive flag.
type Interval struct {
	Lower          float64 `json:"lower"`
	Upper          float64 `json:"upper"`
	LowerInclusive bool    `json:"lower_inclusive"`
	UpperInclusive bool    `json:"upper_inclusive"`
	Suitable       bool    `json:"suitable"`
}

// Contains reports whether v falls inside the interval.
func (iv Interval) Contains(v float64) bool {
	if v < iv.Lower || v > iv.Upper {
		return false
	}
	if v == iv.Lower && !iv.LowerInclusive && !math.IsInf(v, -1) {
		return false
	}
	if v == iv.Upper && !iv.UpperInclusive && !math.IsInf(v, 1) {
		return false
	}
	return true
}

// Rule is an ordered list of intervals that must cover (-Inf, +Inf)
// exactly once.
type Rule struct {
	Name      string     `json:"name"`
	Intervals []Interval `json:"intervals"`
}

// RuleFor builds the three-interval rule for a criterion: values in
// [Min, Max] are suitable, everything else is nodata.
func RuleFor(c Criterion) (Rule, error) {
	if err := c.Validate(); err != nil {
		return Rule{}, err
	}
	r := Rule{
		Name: c.Name,
		Intervals: []Interval{
			{Lower: math.Inf(-1), Upper: c.Min, LowerInclusive: true, UpperInclusive: false},
			{Lower: c.Min, Upper: c.Max, LowerInclusive: true, UpperInclusive: true, Suitable: true},
			{Lower: c.Max, Upper: math.Inf(1), LowerInclusive: false, UpperInclusive: true},
		},
	}
	return r, r.Validate()
}

// Validate checks that the intervals are ordered, contiguous,
// non-overlapping, and exhaustive.
func (r Rule) Validate() error {
	if len(r.Intervals) == 0 {
		return &RuleError{Index: 0, Reason: "rule has no intervals"}
	}
	for i, iv := range r.Intervals {
		if math.IsNaN(iv.Lower) || math.IsNaN(iv.Upper) {
			return &RuleError{Index: i, Reason: "NaN bound"}
		}
		if iv.Lower > iv.Upper {
			return &RuleError{Index: i, Reason: fmt.Sprintf("lower %v exceeds upper %v", iv.Lower, iv.Upper)}
		}
		// A degenerate interval only makes sense as a closed point.
		if iv.Lower == iv.Upper && !(iv.LowerInclusive && iv.UpperInclusive) {
			return &RuleError{Index: i, Reason: "empty interval"}
		}
	}

	first, last := r.Intervals[0], r.Intervals[len(r.Intervals)-1]
	if !math.IsInf(first.Lower, -1) {
		return &RuleError{Index: 0, Reason: "does not start at -Inf"}
	}
	if !math.IsInf(last.Upper, 1) {
		return &RuleError{Index: len(r.Intervals) - 1, Reason: "does not end at +Inf"}
	}

	for i := 1; i < len(r.Intervals); i++ {
		prev, cur := r.Intervals[i-1], r.Intervals[i]
		if cur.Lower != prev.Upper {
			if cur.Lower > prev.Upper {
				return &RuleError{Index: i, Reason: fmt.Sprintf("gap between %v and %v", prev.Upper, cur.Lower)}
			}
			return &RuleError{Index: i, Reason: fmt.Sprintf("overlaps previous interval below %v", prev.Upper)}
		}
		switch {
		case prev.UpperInclusive && cur.LowerInclusive:
			return &RuleError{Index: i, Reason: fmt.Sprintf("boundary %v claimed by two intervals", cur.Lower)}
		case !prev.UpperInclusive && !cur.LowerInclusive:
			return &RuleError{Index: i, Reason: fmt.Sprintf("boundary %v not covered", cur.Lower)}
		}
	}
	return nil
}

// Match returns the first interval containing v.
func (r Rule) Match(v float64) (Interval, bool) {
	for _, iv := range r.Intervals {
		if iv.Contains(v) {
			return iv, true
		}
	}
	return Interval{}, false
}
