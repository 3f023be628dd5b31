package motor

import (
	"fmt"
	"math"
)

type Direction int

const (
	// Clockwise increases the position counter and the mechanical hour
	// angle. It is the direction the axis turns while tracking.
	Clockwise Direction = iota
	CounterClockwise
)

// TrackingDirection is the direction that follows the sky.
const TrackingDirection = Clockwise

func (d Direction) Opposite() Direction {
	if d == Clockwise {
		return CounterClockwise
	}
	return Clockwise
}

// Sign is +1 for Clockwise and -1 for CounterClockwise.
func (d Direction) Sign() float64 {
	if d == Clockwise {
		return 1
	}
	return -1
}

func (d Direction) String() string {
	switch d {
	case Clockwise:
		return "Clockwise"
	case CounterClockwise:
		return "CounterClockwise"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// MotionRate is an angular speed in degrees/second together with a
// direction. The zero value is the stationary rate; every zero-speed rate is
// normalized to it, so MotionRate values compare with ==.
type MotionRate struct {
	speed float64
	dir   Direction
}

// Stationary is the zero rate.
var Stationary = MotionRate{}

// NewMotionRate returns a rate of speed degrees/second in direction dir. A
// negative speed reverses dir.
func NewMotionRate(speed float64, dir Direction) MotionRate {
	if speed < 0 {
		speed, dir = -speed, dir.Opposite()
	}
	if speed == 0 {
		return Stationary
	}
	return MotionRate{speed: speed, dir: dir}
}

// SignedRate returns a rate from a signed speed; positive is Clockwise.
func SignedRate(degPerSec float64) MotionRate {
	return NewMotionRate(degPerSec, Clockwise)
}

// Speed is the unsigned speed in degrees/second.
func (r MotionRate) Speed() float64 { return r.speed }

func (r MotionRate) Direction() Direction { return r.dir }

// Signed is the speed with Clockwise positive.
func (r MotionRate) Signed() float64 { return r.speed * r.dir.Sign() }

func (r MotionRate) IsZero() bool { return r.speed == 0 }

// Plus returns the sum of two rates.
func (r MotionRate) Plus(o MotionRate) MotionRate {
	return SignedRate(r.Signed() + o.Signed())
}

// Minus returns r - o.
func (r MotionRate) Minus(o MotionRate) MotionRate {
	return SignedRate(r.Signed() - o.Signed())
}

// Scale multiplies the speed by f; a negative f reverses direction.
func (r MotionRate) Scale(f float64) MotionRate {
	return NewMotionRate(r.speed*f, r.dir)
}

// Near reports whether a measured speed and direction are within tolerance
// of r. Zero rates ignore direction.
func (r MotionRate) Near(speed float64, dir Direction) bool {
	tol := math.Max(RateToleranceAbs, r.speed*RateToleranceRel)
	if r.IsZero() {
		return speed <= tol
	}
	return dir == r.dir && math.Abs(speed-r.speed) <= tol
}

func (r MotionRate) String() string {
	if r.IsZero() {
		return "0°/s"
	}
	return fmt.Sprintf("%g°/s %s", r.speed, r.dir)
}
