package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseHHMMSS converts a "HH:MM:SS" clock string to seconds since midnight.
// Used for the regular-trading-hours window boundaries.
func ParseHHMMSS(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day %q, want HH:MM:SS", s)
	}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
		}
		vals[i] = v
	}
	hh, mm, ss := vals[0], vals[1], vals[2]
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 || ss < 0 || ss > 59 {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return hh*3600 + mm*60 + ss, nil
}
