package slew

import (
	"math"
)

// MountLimits bounds the mechanical hour angle the axis may reach. West is
// at least East and may exceed 24 when the window wraps past 24h.
type MountLimits struct {
	East float64
	West float64
}

// Unrestricted allows any mechanical hour angle.
var Unrestricted = MountLimits{East: 0, West: 24}

// NewMountLimits returns limits from east to west in hours. A west limit
// below the east limit wraps through 24h.
func NewMountLimits(east, west float64) MountLimits {
	if west < east {
		west += 24
	}
	return MountLimits{East: east, West: west}
}

func (l MountLimits) unrestricted() bool {
	return l.West-l.East >= 24
}

// normalize maps ha into [East, East+24).
func (l MountLimits) normalize(ha float64) float64 {
	x := math.Mod(ha-l.East, 24)
	if x < 0 {
		x += 24
	}
	return l.East + x
}

// IsValidHA reports whether the mechanical hour angle ha is inside the
// limits.
func (l MountLimits) IsValidHA(ha float64) bool {
	if l.unrestricted() {
		return true
	}
	return l.normalize(ha) <= l.West
}

// IsValidSlew reports whether s, started from mechanical hour angle current,
// stays inside the limits. A slew starting outside the limits is allowed
// only if it heads back towards the nearer limit and ends inside.
func (l MountLimits) IsValidSlew(current float64, s Slew) bool {
	if s.Distance < 0 || s.Distance > 24 {
		return false
	}
	if l.unrestricted() {
		return true
	}
	forward := s.Forward()
	pos := l.normalize(current)
	width := l.West - l.East
	if pos <= l.West {
		if forward {
			return s.Distance <= l.West-pos
		}
		return s.Distance <= pos-l.East
	}
	toEast := l.East + 24 - pos
	toWest := pos - l.West
	if toEast <= toWest {
		return forward && s.Distance >= toEast && s.Distance <= toEast+width
	}
	return !forward && s.Distance >= toWest && s.Distance <= toWest+width
}
