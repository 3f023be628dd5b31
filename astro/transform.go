package astro

import "math"

// equhor converts between azimuth/altitude and hour-angle/declination.
// The transform is its own inverse: feeding it (HA, dec) yields (az, alt)
// and feeding it (az, alt) yields (HA, dec). Azimuth is measured from north
// through east.
// Phi is the observer's latitude
// Arguments are in radians
// Algorithm from https://metacpan.org/dist/Astro-Montenbruck/source/lib/Astro/Montenbruck/CoCo.pm
func equhor(x, y, phi float64) (float64, float64) {
	sx, sy, sphi := math.Sin(x), math.Sin(y), math.Sin(phi)
	cx, cy, cphi := math.Cos(x), math.Cos(y), math.Cos(phi)

	sq := clamp((sy * sphi) + (cy * cphi * cx))
	q := math.Asin(sq)

	denom := cphi * math.Cos(q)
	if denom == 0 {
		// At a pole or at the zenith the azimuthal angle is undefined.
		return 0, q
	}
	p := math.Acos(clamp((sy - (sphi * sq)) / denom))
	if sx > 0 {
		p = 2*math.Pi - p
	}
	return p, q
}

func clamp(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}

// EquatorialToHorizontal converts an hour angle (hours) and declination
// (degrees) seen from latitude (degrees) to azimuth and altitude in degrees.
// Azimuth is returned in [-180, 180).
func EquatorialToHorizontal(ha, dec, latitude float64) (az, alt float64) {
	p, q := equhor(HoursToRad(ha), DegToRad(dec), DegToRad(latitude))
	return WrapDegreesSigned(RadToDeg(p)), RadToDeg(q)
}

// HorizontalToEquatorial converts azimuth and altitude (degrees) seen from
// latitude (degrees) to an hour angle in [0, 24) hours and a declination in
// degrees.
func HorizontalToEquatorial(az, alt, latitude float64) (ha, dec float64) {
	p, q := equhor(DegToRad(az), DegToRad(alt), DegToRad(latitude))
	return WrapHours(RadToHours(p)), RadToDeg(q)
}
