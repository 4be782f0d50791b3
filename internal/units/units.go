// Package units provides the angular rate units accepted for gyroscope samples.
package units

import (
	"fmt"
	"math"
	"strings"
)

// Unit constants
const (
	RadPerSec = "rad/s"
	DegPerSec = "deg/s"
	RPM       = "rpm"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{RadPerSec, DegPerSec, RPM}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ToRadPerSec converts an angular rate in unit to radians per second, the
// unit of raw gyroscope samples and of calibration offsets.
func ToRadPerSec(rate float64, unit string) (float64, error) {
	switch unit {
	case RadPerSec:
		return rate, nil
	case DegPerSec:
		return rate * math.Pi / 180, nil
	case RPM:
		return rate * 2 * math.Pi / 60, nil
	default:
		return 0, fmt.Errorf("invalid unit %q, expected one of: %s", unit, GetValidUnitsString())
	}
}
