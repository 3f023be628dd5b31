package mount

import (
	"fmt"

	"github.com/w1xm/staradventurer/motor"
)

// AfterSlewState is the state restored once an interruptible operation
// ends.
type AfterSlewState int

const (
	AfterStationary AfterSlewState = iota
	AfterTracking
	AfterParked
)

func (a AfterSlewState) String() string {
	switch a {
	case AfterStationary:
		return "Stationary"
	case AfterTracking:
		return "Tracking"
	case AfterParked:
		return "Parked"
	}
	return fmt.Sprintf("AfterSlewState(%d)", int(a))
}

// Guiding is an in-progress pulse guide. Its rate is added on top of
// whatever rate the axis is otherwise moving at.
type Guiding struct {
	Rate motor.MotionRate
}

type Kind int

const (
	KindParked Kind = iota
	KindStationary
	KindConstant
	KindGotoing
	KindStopping
	KindSettling
)

func (k Kind) String() string {
	switch k {
	case KindParked:
		return "Parked"
	case KindStationary:
		return "Stationary"
	case KindConstant:
		return "Constant"
	case KindGotoing:
		return "Gotoing"
	case KindStopping:
		return "Stopping"
	case KindSettling:
		return "Settling"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ConstantMotion says why the axis is turning at a constant rate.
type ConstantMotion int

const (
	Tracking ConstantMotion = iota
	MoveAxis
)

// MotorState is the device-visible motion state. Only the constructors
// below produce valid values; guiding can only be attached to Stationary
// and Constant states.
type MotorState struct {
	kind     Kind
	constant ConstantMotion
	rate     motor.MotionRate
	guide    *Guiding
	// restore is the state a MoveAxis returns to.
	restore AfterSlewState
	// after is the state a slew ends in.
	after       AfterSlewState
	destination float64
}

func Parked() MotorState { return MotorState{kind: KindParked} }

func Stationary() MotorState { return MotorState{kind: KindStationary} }

func TrackingAt(rate motor.MotionRate) MotorState {
	return MotorState{kind: KindConstant, constant: Tracking, rate: rate}
}

// MovingAxis is a manual move at rate that returns to restore when it
// ends.
func MovingAxis(rate motor.MotionRate, restore AfterSlewState) MotorState {
	return MotorState{kind: KindConstant, constant: MoveAxis, rate: rate, restore: restore}
}

// Gotoing is a goto to destination, in motor degrees.
func Gotoing(destination float64, after AfterSlewState) MotorState {
	return MotorState{kind: KindGotoing, destination: destination, after: after}
}

func Stopping(after AfterSlewState) MotorState {
	return MotorState{kind: KindStopping, after: after}
}

func Settling(after AfterSlewState) MotorState {
	return MotorState{kind: KindSettling, after: after}
}

func (s MotorState) Kind() Kind { return s.kind }

// Constant reports the kind of constant motion; it is only meaningful
// when Kind is KindConstant.
func (s MotorState) Constant() ConstantMotion { return s.constant }

// BaseRate is the rate excluding any guide correction.
func (s MotorState) BaseRate() motor.MotionRate { return s.rate }

func (s MotorState) Guide() *Guiding { return s.guide }

// WithGuide attaches or, with nil, removes a guide correction.
func (s MotorState) WithGuide(g *Guiding) MotorState {
	if g != nil && s.kind != KindStationary && s.kind != KindConstant {
		panic(fmt.Sprintf("guiding in %v state", s.kind))
	}
	s.guide = g
	return s
}

func (s MotorState) Destination() float64 { return s.destination }

// MotionRate is the rate the axis should be moving at. It is undefined
// while a goto or the stop before one is in progress.
func (s MotorState) MotionRate() (motor.MotionRate, bool) {
	switch s.kind {
	case KindParked, KindSettling:
		return motor.Stationary, true
	case KindStationary, KindConstant:
		rate := s.rate
		if s.guide != nil {
			rate = rate.Plus(s.guide.Rate)
		}
		return rate, true
	}
	return motor.Stationary, false
}

func (s MotorState) IsMoving() bool {
	rate, ok := s.MotionRate()
	return !ok || !rate.IsZero()
}

// AfterSlewState is the state to restore when the current motion ends. It
// is only defined for constant motion and slews.
func (s MotorState) AfterSlewState() AfterSlewState {
	switch s.kind {
	case KindConstant:
		if s.constant == MoveAxis {
			return s.restore
		}
		return AfterTracking
	case KindGotoing, KindStopping, KindSettling:
		return s.after
	}
	panic(fmt.Sprintf("no after-slew state for %v", s.kind))
}

// restoreFor returns the state an operation started from s should return
// to.
func restoreFor(s MotorState) AfterSlewState {
	switch s.kind {
	case KindParked:
		return AfterParked
	case KindStationary:
		return AfterStationary
	}
	return s.AfterSlewState()
}

// WithAfter replaces the state restored at the end of the current motion.
// It is a no-op for states that restore nothing.
func (s MotorState) WithAfter(after AfterSlewState) MotorState {
	switch {
	case s.kind == KindConstant && s.constant == MoveAxis:
		s.restore = after
	case s.kind == KindGotoing, s.kind == KindStopping, s.kind == KindSettling:
		s.after = after
	}
	return s
}

func (s MotorState) IsSlewing() bool {
	switch s.kind {
	case KindGotoing, KindStopping, KindSettling:
		return true
	case KindConstant:
		return s.constant == MoveAxis
	}
	return false
}

// IsTracking reports whether the mount tracks now or will once the current
// slew ends.
func (s MotorState) IsTracking() bool {
	switch s.kind {
	case KindConstant:
		return s.AfterSlewState() == AfterTracking
	case KindGotoing, KindStopping, KindSettling:
		return s.after == AfterTracking
	}
	return false
}

func (s MotorState) IsParked() bool { return s.kind == KindParked }

func (s MotorState) IsGuiding() bool { return s.guide != nil }

func (s MotorState) String() string {
	switch s.kind {
	case KindConstant:
		name := "Tracking"
		if s.constant == MoveAxis {
			name = fmt.Sprintf("MoveAxis(restore %v)", s.restore)
		}
		if s.guide != nil {
			return fmt.Sprintf("%s at %v guiding %v", name, s.rate, s.guide.Rate)
		}
		return fmt.Sprintf("%s at %v", name, s.rate)
	case KindStationary:
		if s.guide != nil {
			return fmt.Sprintf("Stationary guiding %v", s.guide.Rate)
		}
	case KindGotoing:
		return fmt.Sprintf("Gotoing %.4f° then %v", s.destination, s.after)
	case KindStopping, KindSettling:
		return fmt.Sprintf("%v then %v", s.kind, s.after)
	}
	return s.kind.String()
}
