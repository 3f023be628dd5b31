// Package slew plans single-axis slews in the mechanical hour angle frame.
//
// Mechanical hour angle increases as the axis turns in the tracking
// direction, so a slew "forward" runs with the sky and a slew in reverse
// runs against it.
package slew

import (
	"errors"
	"fmt"

	"github.com/w1xm/staradventurer/astro"
	"github.com/w1xm/staradventurer/motor"
)

// ErrOutsideLimits is returned when every candidate slew would leave the
// mount limits.
var ErrOutsideLimits = errors.New("target outside mount limits")

// Slew is a planned movement of the axis.
type Slew struct {
	// Distance in hours, never negative.
	Distance  float64
	Direction motor.Direction
	// MeridianFlip is set when the slew ends on the other side of the pier.
	MeridianFlip bool
}

// Forward reports whether the slew runs in the tracking direction.
func (s Slew) Forward() bool {
	return s.Direction == motor.TrackingDirection
}

// Change is the signed change in mechanical hour angle.
func (s Slew) Change() float64 {
	if s.Forward() {
		return s.Distance
	}
	return -s.Distance
}

// Degrees is the signed change in motor position.
func (s Slew) Degrees() float64 {
	return astro.HoursToDeg(s.Change())
}

func (s Slew) String() string {
	flip := ""
	if s.MeridianFlip {
		flip = " with meridian flip"
	}
	return fmt.Sprintf("%.4fh %v%s", s.Distance, s.Direction, flip)
}

// skyFactor is the sky's drift in hours per hour of slewing at speed
// degrees/second.
func skyFactor(speed float64) float64 {
	hoursPerHour := speed * 3600 / 15
	return 1 / hoursPerHour
}

func best(current float64, limits MountLimits, candidates []Slew) (Slew, error) {
	var chosen Slew
	found := false
	for _, c := range candidates {
		if !limits.IsValidSlew(current, c) {
			continue
		}
		if !found || c.Distance < chosen.Distance {
			chosen, found = c, true
		}
	}
	if !found {
		return Slew{}, ErrOutsideLimits
	}
	return chosen, nil
}

// both returns the forward and reverse slews covering a signed change in
// hours.
func both(change float64, flip bool) (forward, reverse Slew) {
	fwd := astro.WrapHours(change)
	rev := astro.WrapHours(-change)
	return Slew{Distance: fwd, Direction: motor.TrackingDirection, MeridianFlip: flip},
		Slew{Distance: rev, Direction: motor.TrackingDirection.Opposite(), MeridianFlip: flip}
}

// ToMechanicalHA plans a slew to a fixed mechanical hour angle, such as the
// park position. It never flips.
func ToMechanicalHA(current, target float64, limits MountLimits) (Slew, error) {
	fwd, rev := both(target-current, false)
	return best(current, limits, []Slew{fwd, rev})
}

// ToHourAngle plans a slew that points at hour angle target, which is fixed
// relative to the horizon. Both pier sides are considered; pierWest is the
// current side.
func ToHourAngle(current float64, pierWest bool, target float64, limits MountLimits) (Slew, error) {
	var candidates []Slew
	for _, flip := range []bool{false, true} {
		west := pierWest != flip
		mech := target
		if west {
			mech -= 12
		}
		fwd, rev := both(mech-current, flip)
		candidates = append(candidates, fwd, rev)
	}
	return best(current, limits, candidates)
}

// ToRightAscension plans a slew that changes the pointing hour angle by
// change hours as measured at the start of the slew. The target drifts with
// the sky while the axis moves at speed degrees/second, so each distance is
// corrected for the time the slew takes.
func ToRightAscension(current, change float64, limits MountLimits, speed float64) (Slew, error) {
	k := skyFactor(speed)
	var candidates []Slew
	for _, flip := range []bool{false, true} {
		c := change
		if flip {
			c += 12
		}
		fwd, rev := both(c, flip)
		// Running with the sky the target recedes; against it, it
		// approaches.
		fwd.Distance /= 1 - k
		rev.Distance /= 1 + k
		candidates = append(candidates, fwd, rev)
	}
	return best(current, limits, candidates)
}
