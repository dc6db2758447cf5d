// Package stats holds the size arithmetic and per-user rollups behind event
// dashboards.
package stats

import (
	"math"

	"photomatch/src/app"
)

const (
	bytesPerMB = 1024 * 1024
	mbPerGB    = 1024
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// BytesToMB converts a byte count to megabytes without rounding.
func BytesToMB(bytes int64) float64 {
	return float64(bytes) / bytesPerMB
}

// ToAppropriateUnit expresses bytes in MB below 1024 MB and in GB from
// there on, rounded to two decimals.
func ToAppropriateUnit(bytes int64) (float64, app.SizeUnit) {
	if bytes < 0 {
		bytes = 0
	}
	mb := BytesToMB(bytes)
	if mb < mbPerGB {
		return round2(mb), app.UnitMB
	}
	return round2(mb / mbPerGB), app.UnitGB
}

// ConvertUnits converts size between MB and GB, rounded to two decimals.
// Unknown units are treated as MB.
func ConvertUnits(size float64, from, to app.SizeUnit) float64 {
	return round2(fromMB(toMB(size, from), to))
}

// AddSizes adds two sized quantities and re-expresses the sum in the
// appropriate unit.
func AddSizes(s1 float64, u1 app.SizeUnit, s2 float64, u2 app.SizeUnit) (float64, app.SizeUnit) {
	return ToAppropriateUnit(mbToBytes(toMB(s1, u1) + toMB(s2, u2)))
}

// SubtractSizes subtracts the second quantity from the first, clamping at
// zero. A recorded blob size may exceed the tracked total after earlier
// undercounting; that is not an error.
func SubtractSizes(s1 float64, u1 app.SizeUnit, s2 float64, u2 app.SizeUnit) (float64, app.SizeUnit) {
	diff := toMB(s1, u1) - toMB(s2, u2)
	if diff < 0 {
		diff = 0
	}
	return ToAppropriateUnit(mbToBytes(diff))
}

func toMB(size float64, unit app.SizeUnit) float64 {
	if unit == app.UnitGB {
		return size * mbPerGB
	}
	return size
}

func fromMB(mb float64, unit app.SizeUnit) float64 {
	if unit == app.UnitGB {
		return mb / mbPerGB
	}
	return mb
}

func mbToBytes(mb float64) int64 {
	return int64(math.Round(mb * bytesPerMB))
}
