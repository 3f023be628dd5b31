package motor

import (
	"fmt"
	"math"
	"time"
)

// Tracking rates in degrees/second.
const (
	SiderealRate = 0.00417809
	LunarRate    = 0.00407917
	SolarRate    = 0.00416667
	KingRate     = 0.00417692
)

// Slew speeds in degrees/second. MaxSlewSpeed is also the speed the
// controller uses for gotos.
const (
	MinSlewSpeed = SiderealRate / 2
	MaxSlewSpeed = SiderealRate * 128
)

// Tolerances used when comparing a commanded rate with the rate the
// controller reports.
const (
	RateToleranceAbs = 1e-6
	RateToleranceRel = 0.01
)

// Default polling intervals. The controller has no way to notify the host,
// so completion of every motion is observed by polling.
const (
	DefaultRatePoll = 100 * time.Millisecond
	DefaultStopPoll = 250 * time.Millisecond
	DefaultGotoPoll = 1 * time.Second
	// DefaultSettleTimeout bounds how long a rate change may take to be
	// observed before the controller is considered unresponsive.
	DefaultSettleTimeout = 30 * time.Second
)

type TrackingRate int

const (
	Sidereal TrackingRate = iota
	Lunar
	Solar
	King
)

// TrackingRates lists every supported rate.
var TrackingRates = []TrackingRate{Sidereal, Lunar, Solar, King}

func (r TrackingRate) Valid() bool {
	return r >= Sidereal && r <= King
}

// DegreesPerSecond panics on an invalid rate; validate caller input with
// Valid first.
func (r TrackingRate) DegreesPerSecond() float64 {
	switch r {
	case Sidereal:
		return SiderealRate
	case Lunar:
		return LunarRate
	case Solar:
		return SolarRate
	case King:
		return KingRate
	}
	panic(fmt.Sprintf("invalid tracking rate %d", int(r)))
}

// MotionRate is the rate the axis turns at while tracking.
func (r TrackingRate) MotionRate() MotionRate {
	return NewMotionRate(r.DegreesPerSecond(), TrackingDirection)
}

func (r TrackingRate) String() string {
	switch r {
	case Sidereal:
		return "Sidereal"
	case Lunar:
		return "Lunar"
	case Solar:
		return "Solar"
	case King:
		return "King"
	}
	return fmt.Sprintf("TrackingRate(%d)", int(r))
}

// AutoguideSpeed is the pulse guiding speed as a fraction of the tracking
// rate. The numeric values are the controller's encoding.
type AutoguideSpeed int

const (
	AutoguideOne AutoguideSpeed = iota
	AutoguideThreeQuarters
	AutoguideHalf
	AutoguideQuarter
	AutoguideEighth
)

var AutoguideSpeeds = []AutoguideSpeed{AutoguideOne, AutoguideThreeQuarters, AutoguideHalf, AutoguideQuarter, AutoguideEighth}

func (s AutoguideSpeed) Valid() bool {
	return s >= AutoguideOne && s <= AutoguideEighth
}

func (s AutoguideSpeed) Factor() float64 {
	switch s {
	case AutoguideOne:
		return 1
	case AutoguideThreeQuarters:
		return 0.75
	case AutoguideHalf:
		return 0.5
	case AutoguideQuarter:
		return 0.25
	case AutoguideEighth:
		return 0.125
	}
	panic(fmt.Sprintf("invalid autoguide speed %d", int(s)))
}

// NearestAutoguideSpeed returns the speed whose factor is closest to f.
func NearestAutoguideSpeed(f float64) AutoguideSpeed {
	best := AutoguideOne
	for _, s := range AutoguideSpeeds {
		if math.Abs(s.Factor()-f) < math.Abs(best.Factor()-f) {
			best = s
		}
	}
	return best
}

func (s AutoguideSpeed) String() string {
	if !s.Valid() {
		return fmt.Sprintf("AutoguideSpeed(%d)", int(s))
	}
	return fmt.Sprintf("%gx", s.Factor())
}
