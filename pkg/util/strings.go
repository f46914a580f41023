package util

import (
	"strconv"
	"strings"
)

// ParseFloatDefault parses a decimal cell, accepting a comma decimal separator.
// Empty or invalid input yields def.
func ParseFloatDefault(s string, def float64) float64 {
	if v, ok := ParseFloat(s); ok {
		return v
	}
	return def
}

// ParseFloat is ParseFloatDefault without the fallback.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
