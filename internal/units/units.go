// Package units provides the time and throughput units used by sweep axes and
// result columns. Delays are stored in milliseconds; throughput in Kbps.
package units

import (
	"fmt"
	"strconv"
	"strings"
)

// Time unit constants
const (
	NS = "ns"
	US = "us"
	MS = "ms"
	S  = "s"
)

// Throughput unit constants
const (
	BPS  = "bps"
	KBPS = "kbps"
	MBPS = "mbps"
	GBPS = "gbps"
)

// CanonicalTime is the unit every delay is normalised to before storage or
// comparison.
const CanonicalTime = MS

// ValidTimeUnits contains all accepted time suffixes.
var ValidTimeUnits = []string{NS, US, MS, S}

// ValidThroughputUnits contains all accepted throughput units.
var ValidThroughputUnits = []string{BPS, KBPS, MBPS, GBPS}

var timeInMS = map[string]float64{
	NS: 1e-6,
	US: 1e-3,
	"µs": 1e-3,
	MS: 1,
	S:  1e3,
}

var throughputInKbps = map[string]float64{
	BPS:  1e-3,
	KBPS: 1,
	MBPS: 1e3,
	GBPS: 1e6,
}

// IsValidTime checks if unit is an accepted time suffix.
func IsValidTime(unit string) bool {
	_, ok := timeInMS[unit]
	return ok
}

// IsValidThroughput checks if unit is an accepted throughput unit.
func IsValidThroughput(unit string) bool {
	_, ok := throughputInKbps[strings.ToLower(unit)]
	return ok
}

// GetValidTimeUnitsString returns the time units for error messages.
func GetValidTimeUnitsString() string {
	return strings.Join(ValidTimeUnits, ", ")
}

// GetValidThroughputUnitsString returns the throughput units for error
// messages.
func GetValidThroughputUnitsString() string {
	return strings.Join(ValidThroughputUnits, ", ")
}

// SplitQuantity splits text such as "10ms" or "0.5 us" into its number and
// trailing time unit. Text with no recognised suffix returns an empty unit.
func SplitQuantity(text string) (float64, string, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, "", fmt.Errorf("empty quantity")
	}
	unit := ""
	// Longest suffix first so "ms" wins over "s".
	for _, u := range []string{NS, US, "µs", MS, S} {
		if strings.HasSuffix(s, u) {
			num := strings.TrimSpace(strings.TrimSuffix(s, u))
			if _, err := strconv.ParseFloat(num, 64); err == nil {
				unit = u
				s = num
				break
			}
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid quantity %q: %w", text, err)
	}
	if unit == "µs" {
		unit = US
	}
	return v, unit, nil
}

// ConvertTime converts v between two time units.
func ConvertTime(v float64, from, to string) (float64, error) {
	f, ok := timeInMS[from]
	if !ok {
		return 0, fmt.Errorf("unknown time unit %q (valid: %s)", from, GetValidTimeUnitsString())
	}
	t, ok := timeInMS[to]
	if !ok {
		return 0, fmt.Errorf("unknown time unit %q (valid: %s)", to, GetValidTimeUnitsString())
	}
	return v * f / t, nil
}

// ToMillis parses text as a delay and returns it in milliseconds. A bare
// number is taken to already be in milliseconds.
func ToMillis(text string) (float64, error) {
	v, unit, err := SplitQuantity(text)
	if err != nil {
		return 0, err
	}
	if unit == "" {
		return v, nil
	}
	return ConvertTime(v, unit, MS)
}

// ConvertThroughput converts a Kbps value to the target unit. Unknown units
// leave the value in Kbps.
func ConvertThroughput(kbps float64, target string) float64 {
	f, ok := throughputInKbps[strings.ToLower(target)]
	if !ok {
		return kbps
	}
	return kbps / f
}

// ThroughputKbps computes throughput in Kbps from a received byte count over
// a duration in seconds. A non-positive duration yields zero.
func ThroughputKbps(rxBytes, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return rxBytes * 8 / 1e3 / seconds
}
