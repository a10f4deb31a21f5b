package graph

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// MinutesPerDay is the wall-clock boundary; end times at or past it roll over.
	MinutesPerDay = 24 * 60
	// RolloverStart is where a task lands when its dependencies end past midnight.
	RolloverStart = "09:00"
)

// ParseClock converts an HH:MM 24h wall-clock string into minutes since midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("graph: invalid clock time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 || len(hh) != 2 {
		return 0, fmt.Errorf("graph: invalid clock time %q: hour out of range", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("graph: invalid clock time %q: minute out of range", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as HH:MM. Values past midnight
// keep counting hours ("25:30") so end times can be displayed unambiguously.
func FormatClock(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// DurationMinutes converts an hour estimate into whole minutes.
func DurationMinutes(hours float64) int {
	if hours <= 0 || math.IsNaN(hours) || math.IsInf(hours, 0) {
		return 0
	}
	return int(math.Round(hours * 60))
}
