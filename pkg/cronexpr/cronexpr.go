// Package cronexpr parses and evaluates standard 5-field cron
// expressions (minute hour day-of-month month day-of-week), grounded on
// the hand-rolled newsletter-scheduler cron parser in the broader example
// pack: field-by-field parsing, a matches(t) predicate, and a NextRun
// search bounded to a few years of iteration. No external cron library is
// pulled in — the pack itself reaches for nothing heavier than this for
// the same 5-field grammar spec.md §6 requires.
package cronexpr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Expr is a parsed 5-field cron expression.
type Expr struct {
	minutes     map[int]bool
	hours       map[int]bool
	daysOfMonth map[int]bool
	months      map[int]bool
	daysOfWeek  map[int]bool
	domWildcard bool
	dowWildcard bool
}

// Parse parses a 5-field expression ("*", "n", "n-m", "n,m,o", "*/n",
// "n-m/s" per field).
func Parse(expr string) (*Expr, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cronexpr: expected 5 fields, got %d", len(fields))
	}

	minutes, err := parseField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("cronexpr: invalid minute field: %w", err)
	}
	hours, err := parseField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("cronexpr: invalid hour field: %w", err)
	}
	dom, err := parseField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("cronexpr: invalid day-of-month field: %w", err)
	}
	months, err := parseField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("cronexpr: invalid month field: %w", err)
	}
	dow, err := parseField(fields[4], 0, 7)
	if err != nil {
		return nil, fmt.Errorf("cronexpr: invalid day-of-week field: %w", err)
	}
	normalizedDOW := make(map[int]bool, len(dow))
	for d := range dow {
		if d == 7 {
			d = 0
		}
		normalizedDOW[d] = true
	}

	return &Expr{
		minutes: minutes, hours: hours, daysOfMonth: dom, months: months, daysOfWeek: normalizedDOW,
		domWildcard: fields[2] == "*", dowWildcard: fields[4] == "*",
	}, nil
}

// NextRun returns the first time after `after` (UTC-aligned to the
// minute) that matches the expression, searching at most 4 years forward.
func (e *Expr) NextRun(after time.Time) time.Time {
	t := after.UTC().Add(time.Minute)
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)

	const maxIterations = 365 * 24 * 60 * 4
	for i := 0; i < maxIterations; i++ {
		if e.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (e *Expr) matches(t time.Time) bool {
	if !e.minutes[t.Minute()] {
		return false
	}
	if !e.hours[t.Hour()] {
		return false
	}
	if !e.months[int(t.Month())] {
		return false
	}

	domMatch := e.daysOfMonth[t.Day()]
	dowMatch := e.daysOfWeek[int(t.Weekday())]

	if e.domWildcard && e.dowWildcard {
		return true
	}
	if e.domWildcard {
		return dowMatch
	}
	if e.dowWildcard {
		return domMatch
	}
	return domMatch || dowMatch
}

func parseField(field string, minVal, maxVal int) (map[int]bool, error) {
	out := make(map[int]bool)
	if field == "*" {
		for i := minVal; i <= maxVal; i++ {
			out[i] = true
		}
		return out, nil
	}
	for _, part := range strings.Split(field, ",") {
		values, err := parseFieldPart(part, minVal, maxVal)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			out[v] = true
		}
	}
	return out, nil
}

func parseFieldPart(part string, minVal, maxVal int) ([]int, error) {
	if strings.Contains(part, "/") {
		halves := strings.SplitN(part, "/", 2)
		step, err := strconv.Atoi(halves[1])
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("invalid step %q", halves[1])
		}
		start, end := minVal, maxVal
		switch {
		case halves[0] == "*":
		case strings.Contains(halves[0], "-"):
			rangeParts := strings.SplitN(halves[0], "-", 2)
			start, err = strconv.Atoi(rangeParts[0])
			if err != nil {
				return nil, err
			}
			end, err = strconv.Atoi(rangeParts[1])
			if err != nil {
				return nil, err
			}
		default:
			start, err = strconv.Atoi(halves[0])
			if err != nil {
				return nil, err
			}
			end = maxVal
		}
		var out []int
		for i := start; i <= end; i += step {
			if i >= minVal && i <= maxVal {
				out = append(out, i)
			}
		}
		return out, nil
	}

	if strings.Contains(part, "-") {
		rangeParts := strings.SplitN(part, "-", 2)
		start, err := strconv.Atoi(rangeParts[0])
		if err != nil {
			return nil, err
		}
		end, err := strconv.Atoi(rangeParts[1])
		if err != nil {
			return nil, err
		}
		if start > end || start < minVal || end > maxVal {
			return nil, fmt.Errorf("invalid range %d-%d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}

	v, err := strconv.Atoi(part)
	if err != nil {
		return nil, err
	}
	if v < minVal || v > maxVal {
		return nil, fmt.Errorf("value %d out of range [%d,%d]", v, minVal, maxVal)
	}
	return []int{v}, nil
}

// Fields returns the expression back out in a stable, sorted numeric
// form (one ascending value list per field), used only by tests that want
// to assert a round-trip.
func (e *Expr) Fields() [5][]int {
	return [5][]int{
		sortedKeys(e.minutes), sortedKeys(e.hours), sortedKeys(e.daysOfMonth),
		sortedKeys(e.months), sortedKeys(e.daysOfWeek),
	}
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
