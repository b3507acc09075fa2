package weather

import (
	"math"
	"strings"
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// round rounds half up (toward positive infinity), matching how the display
// client's toolchain rounds.
func round(v float64) float64 {
	return math.Floor(v + 0.5)
}

// ToKelvin converts a Celsius temperature to whole kelvin.
func ToKelvin(celsius float64) int {
	return int(round(celsius + 273.15))
}

// ParseTimeOfDay parses an "H:MM AM/PM" string onto today's date.
func ParseTimeOfDay(s string) time.Time {
	return ParseTimeOfDayAt(s, time.Now())
}

// ParseTimeOfDayAt parses an "H:MM AM/PM" string onto the date of now.
// Input that is not exactly two space separated tokens, or whose clock part
// cannot be read, returns now unchanged. A "pm" meridiem adds 12 hours unless
// the hour is already 12. Seconds are dropped.
func ParseTimeOfDayAt(s string, now time.Time) time.Time {
	tokens := strings.Split(s, " ")
	if len(tokens) != 2 {
		return now
	}

	clock := strings.Split(tokens[0], ":")
	if len(clock) < 2 {
		return now
	}
	hour, ok := leadingInt(clock[0])
	if !ok {
		return now
	}
	minute, ok := leadingInt(clock[1])
	if !ok {
		return now
	}

	if strings.ToLower(tokens[1]) == "pm" && hour != 12 {
		hour += 12
	}

	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
}

// SolarTimes computes sunrise and sunset for the given coordinates on the
// UTC calendar day of date. Polar day or night yields zero times.
func SolarTimes(coords Coordinates, date time.Time) (sunriseAt, sunsetAt time.Time) {
	d := date.UTC()
	return sunrise.SunriseSunset(coords.Latitude, coords.Longitude, d.Year(), d.Month(), d.Day())
}

// Epoch returns the Unix timestamp of t, or 0 for the zero time.
func Epoch(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
