package mount

import (
	"testing"

	"github.com/w1xm/staradventurer/motor"
)

func TestMotionRateAgreesWithIsMoving(t *testing.T) {
	track := motor.Sidereal.MotionRate()
	guide := &Guiding{Rate: track.Scale(0.5)}
	for _, test := range []struct {
		state    MotorState
		defined  bool
		moving   bool
		slewing  bool
		tracking bool
	}{
		{Parked(), true, false, false, false},
		{Stationary(), true, false, false, false},
		{Stationary().WithGuide(guide), true, true, false, false},
		{TrackingAt(track), true, true, false, true},
		{TrackingAt(track).WithGuide(&Guiding{Rate: track.Scale(-1)}), true, false, false, true},
		{MovingAxis(track.Scale(-4), AfterTracking), true, true, true, true},
		{MovingAxis(track.Scale(4), AfterStationary), true, true, true, false},
		{Gotoing(10, AfterTracking), false, true, true, true},
		{Stopping(AfterParked), false, true, true, false},
		{Settling(AfterTracking), true, false, true, true},
	} {
		t.Run(test.state.String(), func(t *testing.T) {
			rate, ok := test.state.MotionRate()
			if ok != test.defined {
				t.Fatalf("MotionRate() defined = %v, want %v", ok, test.defined)
			}
			if ok && !rate.IsZero() != test.state.IsMoving() {
				t.Errorf("MotionRate() = %v but IsMoving() = %v", rate, test.state.IsMoving())
			}
			if got := test.state.IsMoving(); got != test.moving {
				t.Errorf("IsMoving() = %v, want %v", got, test.moving)
			}
			if got := test.state.IsSlewing(); got != test.slewing {
				t.Errorf("IsSlewing() = %v, want %v", got, test.slewing)
			}
			if got := test.state.IsTracking(); got != test.tracking {
				t.Errorf("IsTracking() = %v, want %v", got, test.tracking)
			}
		})
	}
}

func TestAfterSlewState(t *testing.T) {
	track := motor.Sidereal.MotionRate()
	for _, test := range []struct {
		state MotorState
		want  AfterSlewState
	}{
		{TrackingAt(track), AfterTracking},
		{MovingAxis(track, AfterStationary), AfterStationary},
		{Gotoing(1, AfterParked), AfterParked},
		{Stopping(AfterTracking), AfterTracking},
		{Settling(AfterStationary), AfterStationary},
	} {
		if got := test.state.AfterSlewState(); got != test.want {
			t.Errorf("%v.AfterSlewState() = %v, want %v", test.state, got, test.want)
		}
	}
}

func TestAfterSlewStateUndefined(t *testing.T) {
	for _, s := range []MotorState{Parked(), Stationary()} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%v.AfterSlewState() did not panic", s)
				}
			}()
			s.AfterSlewState()
		}()
	}
}

func TestGuidingOnlyWhenStationaryOrConstant(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("guiding during a goto did not panic")
		}
	}()
	Gotoing(1, AfterTracking).WithGuide(&Guiding{Rate: motor.Sidereal.MotionRate()})
}

func TestWithAfter(t *testing.T) {
	s := MovingAxis(motor.Sidereal.MotionRate(), AfterTracking).WithAfter(AfterStationary)
	if got := s.AfterSlewState(); got != AfterStationary {
		t.Errorf("AfterSlewState() = %v, want Stationary", got)
	}
	if got := TrackingAt(motor.Sidereal.MotionRate()).WithAfter(AfterStationary).AfterSlewState(); got != AfterTracking {
		t.Errorf("WithAfter changed a tracking state to %v", got)
	}
}
