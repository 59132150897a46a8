package domain

import (
	"strconv"
	"strings"
)

// Any marks a wildcard slot in an expanded schedule tuple.
const Any = -1

// Schedule is one concrete (minute, hour, day, month, weekday) tuple;
// Any (-1) in a slot means "every".
type Schedule [5]int

// Cron is a five-field calendar entry owned by a Caller. Each field is
// "*", a single integer, or an inclusive "N-M" range; empty reads as
// "*". Entries are immutable after creation.
type Cron struct {
	ID       string `json:"id"`
	CallerID string `json:"caller"`
	Minute   string `json:"minute"`
	Hour     string `json:"hour"`
	Day      string `json:"day"`
	Month    string `json:"month"`
	Weekday  string `json:"weekday"`
}

// Matrix expands the entry into the cartesian product of its five
// fields, in left-to-right nested order (minute outermost).
func (c *Cron) Matrix() ([]Schedule, error) {
	fields := []struct {
		name string
		raw  string
	}{
		{"minute", c.Minute},
		{"hour", c.Hour},
		{"day", c.Day},
		{"month", c.Month},
		{"weekday", c.Weekday},
	}

	slots := make([][]int, len(fields))
	for i, f := range fields {
		vals, err := parseCronField(f.name, f.raw)
		if err != nil {
			return nil, err
		}
		slots[i] = vals
	}

	var out []Schedule
	for _, minute := range slots[0] {
		for _, hour := range slots[1] {
			for _, day := range slots[2] {
				for _, month := range slots[3] {
					for _, weekday := range slots[4] {
						out = append(out, Schedule{minute, hour, day, month, weekday})
					}
				}
			}
		}
	}
	return out, nil
}

// parseCronField expands one field: "*" (or empty) to the wildcard,
// "N-M" to the inclusive range, anything else to a single integer.
// Step or list syntax is not supported. An inverted range expands to
// nothing, matching inclusive-range construction.
func parseCronField(name, raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" {
		return []int{Any}, nil
	}

	if lo, hi, ok := strings.Cut(raw, "-"); ok {
		n, err := strconv.Atoi(lo)
		if err != nil {
			return nil, &ParseError{Field: name, Value: raw, Err: err}
		}
		m, err := strconv.Atoi(hi)
		if err != nil {
			return nil, &ParseError{Field: name, Value: raw, Err: err}
		}
		vals := []int{}
		for v := n; v <= m; v++ {
			vals = append(vals, v)
		}
		return vals, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &ParseError{Field: name, Value: raw, Err: err}
	}
	return []int{v}, nil
}
