package motor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestNewMotionRate(t *testing.T) {
	for _, test := range []struct {
		name      string
		speed     float64
		dir       Direction
		wantSpeed float64
		wantDir   Direction
		wantZero  bool
	}{
		{"clockwise", 1, Clockwise, 1, Clockwise, false},
		{"negative reverses", -2, Clockwise, 2, CounterClockwise, false},
		{"negative ccw", -2, CounterClockwise, 2, Clockwise, false},
		{"zero", 0, CounterClockwise, 0, Clockwise, true},
	} {
		t.Run(test.name, func(t *testing.T) {
			r := NewMotionRate(test.speed, test.dir)
			if r.Speed() != test.wantSpeed || r.Direction() != test.wantDir || r.IsZero() != test.wantZero {
				t.Errorf("NewMotionRate(%v, %v) = %v, want %v %v", test.speed, test.dir, r, test.wantSpeed, test.wantDir)
			}
		})
	}
}

func TestZeroRateIsCanonical(t *testing.T) {
	if NewMotionRate(0, CounterClockwise) != Stationary {
		t.Error("zero counter-clockwise rate != Stationary")
	}
	r := NewMotionRate(1, Clockwise)
	if r.Minus(r) != Stationary {
		t.Errorf("r - r = %v, want Stationary", r.Minus(r))
	}
}

func TestRateArithmetic(t *testing.T) {
	track := Sidereal.MotionRate()
	for _, test := range []struct {
		name string
		got  MotionRate
		want float64
	}{
		{"guide west adds", track.Plus(track.Scale(0.5)), SiderealRate * 1.5},
		{"guide east subtracts", track.Minus(track.Scale(0.5)), SiderealRate * 0.5},
		{"full east stops", track.Minus(track), 0},
		{"reverse", track.Scale(-2), -SiderealRate * 2},
	} {
		t.Run(test.name, func(t *testing.T) {
			if diff := cmp.Diff(test.got.Signed(), test.want, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
				t.Errorf("signed rate mismatch got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestNear(t *testing.T) {
	r := NewMotionRate(SiderealRate, Clockwise)
	for _, test := range []struct {
		name  string
		rate  MotionRate
		speed float64
		dir   Direction
		want  bool
	}{
		{"exact", r, SiderealRate, Clockwise, true},
		{"within 1%", r, SiderealRate * 1.005, Clockwise, true},
		{"outside 1%", r, SiderealRate * 1.02, Clockwise, false},
		{"wrong direction", r, SiderealRate, CounterClockwise, false},
		{"zero ignores direction", Stationary, 0, CounterClockwise, true},
		{"zero tolerance", Stationary, 2e-6, Clockwise, false},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := test.rate.Near(test.speed, test.dir); got != test.want {
				t.Errorf("%v.Near(%v, %v) = %v, want %v", test.rate, test.speed, test.dir, got, test.want)
			}
		})
	}
}

func TestNearestAutoguideSpeed(t *testing.T) {
	for _, test := range []struct {
		factor float64
		want   AutoguideSpeed
	}{
		{1.5, AutoguideOne},
		{0.8, AutoguideThreeQuarters},
		{0.5, AutoguideHalf},
		{0.3, AutoguideQuarter},
		{0, AutoguideEighth},
	} {
		if got := NearestAutoguideSpeed(test.factor); got != test.want {
			t.Errorf("NearestAutoguideSpeed(%v) = %v, want %v", test.factor, got, test.want)
		}
	}
}

func TestTrackingRateValid(t *testing.T) {
	for _, r := range TrackingRates {
		if !r.Valid() {
			t.Errorf("%v not valid", r)
		}
		if r.DegreesPerSecond() <= 0 {
			t.Errorf("%v.DegreesPerSecond() = %v", r, r.DegreesPerSecond())
		}
	}
	if TrackingRate(4).Valid() || TrackingRate(-1).Valid() {
		t.Error("out of range tracking rate reported valid")
	}
}
