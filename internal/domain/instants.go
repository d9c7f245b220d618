package domain

import (
	"errors"
	"time"
)

// BuildInstants expands an inclusive [start, end] range into target fetch
// instants spaced stepHours apart.
func BuildInstants(start, end time.Time, stepHours int) ([]time.Time, error) {
	if stepHours <= 0 {
		return nil, errors.New("step must be greater than 0 hours")
	}
	if start.After(end) {
		return nil, errors.New("start is after end")
	}
	step := time.Duration(stepHours) * time.Hour
	var out []time.Time
	for cur := start; !cur.After(end); cur = cur.Add(step) {
		out = append(out, cur)
	}
	return out, nil
}
