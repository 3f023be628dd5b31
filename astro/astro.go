// Package astro holds the stateless conversions the mount needs between
// angle units, civil time, sidereal time and the equatorial and horizontal
// frames.
package astro

import (
	"math"
	"time"
)

const (
	// HoursPerDegree converts degrees of hour angle to hours.
	HoursPerDegree = 1.0 / 15
	// unixEpochJD is the Julian date of 1970-01-01T00:00:00Z.
	unixEpochJD = 2440587.5
	// j2000JD is the Julian date of 2000-01-01T12:00:00Z.
	j2000JD = 2451545.0
)

func DegToRad(x float64) float64 {
	return x * math.Pi / 180
}

func RadToDeg(x float64) float64 {
	return x * 180 / math.Pi
}

func DegToHours(x float64) float64 {
	return x / 15
}

func HoursToDeg(x float64) float64 {
	return x * 15
}

func HoursToRad(x float64) float64 {
	return DegToRad(HoursToDeg(x))
}

func RadToHours(x float64) float64 {
	return DegToHours(RadToDeg(x))
}

func wrap(x, period float64) float64 {
	x = math.Mod(x, period)
	if x < 0 {
		x += period
	}
	// math.Mod of a tiny negative number plus period can round to period.
	if x >= period {
		x -= period
	}
	return x
}

// WrapHours returns x in [0, 24).
func WrapHours(x float64) float64 {
	return wrap(x, 24)
}

// WrapHoursSigned returns x in [-12, 12).
func WrapHoursSigned(x float64) float64 {
	return wrap(x+12, 24) - 12
}

// WrapDegrees returns x in [0, 360).
func WrapDegrees(x float64) float64 {
	return wrap(x, 360)
}

// WrapDegreesSigned returns x in [-180, 180).
func WrapDegreesSigned(x float64) float64 {
	return wrap(x+180, 360) - 180
}

// JulianDate returns the Julian date of t.
func JulianDate(t time.Time) float64 {
	return float64(t.UnixNano())/float64(24*time.Hour) + unixEpochJD
}

// GreenwichSiderealTime returns the Greenwich mean sidereal time at t, in
// hours.
func GreenwichSiderealTime(t time.Time) float64 {
	d := JulianDate(t) - j2000JD
	return WrapHours(18.697374558 + 24.06570982441908*d)
}

// LocalSiderealTime returns the mean sidereal time at t for an observer at
// longitude degrees east, in hours.
func LocalSiderealTime(t time.Time, longitude float64) float64 {
	return WrapHours(GreenwichSiderealTime(t) + DegToHours(longitude))
}

// HourAngle returns the hour angle in [0, 24) of right ascension ra at local
// sidereal time lst. Both are in hours.
func HourAngle(lst, ra float64) float64 {
	return WrapHours(lst - ra)
}

// RightAscension is the inverse of HourAngle.
func RightAscension(lst, ha float64) float64 {
	return WrapHours(lst - ha)
}
