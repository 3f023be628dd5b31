package slew

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/w1xm/staradventurer/motor"
)

var (
	withSky    = motor.TrackingDirection
	againstSky = motor.TrackingDirection.Opposite()
)

func TestIsValidHA(t *testing.T) {
	limits := NewMountLimits(22, 2)
	for _, test := range []struct {
		ha   float64
		want bool
	}{
		{23, true},
		{12, false},
		{22, true},
		{2, true},
		{0, true},
		{1, true},
		{21.9, false},
		{2.1, false},
		{-1, true},
		{47, true},
	} {
		if got := limits.IsValidHA(test.ha); got != test.want {
			t.Errorf("%+v.IsValidHA(%v) = %v, want %v", limits, test.ha, got, test.want)
		}
	}
	for _, ha := range []float64{0, 6, 12, 23.99, -5} {
		if !Unrestricted.IsValidHA(ha) {
			t.Errorf("Unrestricted.IsValidHA(%v) = false", ha)
		}
	}
}

func TestNewMountLimits(t *testing.T) {
	if diff := cmp.Diff(NewMountLimits(22, 2), MountLimits{East: 22, West: 26}); diff != "" {
		t.Errorf("wrapping limits mismatch got(-)/want(+):\n%s", diff)
	}
	if diff := cmp.Diff(NewMountLimits(18, 23), MountLimits{East: 18, West: 23}); diff != "" {
		t.Errorf("plain limits mismatch got(-)/want(+):\n%s", diff)
	}
}

func TestIsValidSlew(t *testing.T) {
	limits := NewMountLimits(22, 2)
	for _, test := range []struct {
		name    string
		limits  MountLimits
		current float64
		slew    Slew
		want    bool
	}{
		{"inside forward within margin", limits, 23, Slew{Distance: 3, Direction: withSky}, true},
		{"inside forward past west", limits, 23, Slew{Distance: 3.5, Direction: withSky}, false},
		{"inside reverse within margin", limits, 1, Slew{Distance: 3, Direction: againstSky}, true},
		{"inside reverse past east", limits, 1, Slew{Distance: 3.5, Direction: againstSky}, false},
		{"outside towards nearer west", limits, 4, Slew{Distance: 3, Direction: againstSky}, true},
		{"outside away from nearer", limits, 4, Slew{Distance: 19, Direction: withSky}, false},
		{"outside overshooting", limits, 4, Slew{Distance: 7, Direction: againstSky}, false},
		{"outside not reaching", limits, 4, Slew{Distance: 1, Direction: againstSky}, false},
		{"outside towards nearer east", limits, 20, Slew{Distance: 3, Direction: withSky}, true},
		{"unrestricted", Unrestricted, 20, Slew{Distance: 23, Direction: withSky}, true},
		{"unrestricted too far", Unrestricted, 20, Slew{Distance: 24.5, Direction: withSky}, false},
		{"restricted too far", NewMountLimits(0, 23.99), 0, Slew{Distance: 25, Direction: withSky}, false},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := test.limits.IsValidSlew(test.current, test.slew); got != test.want {
				t.Errorf("%+v.IsValidSlew(%v, %v) = %v, want %v", test.limits, test.current, test.slew, got, test.want)
			}
		})
	}
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestToMechanicalHA(t *testing.T) {
	for _, test := range []struct {
		name    string
		current float64
		target  float64
		limits  MountLimits
		want    Slew
	}{
		{"short way back", 1, 23, Unrestricted, Slew{Distance: 2, Direction: againstSky}},
		{"short way forward", 23, 1, Unrestricted, Slew{Distance: 2, Direction: withSky}},
		{"reverse inside limits", 3, 1, NewMountLimits(0, 23.5), Slew{Distance: 2, Direction: againstSky}},
		{"limits force long way", 23, 1, NewMountLimits(0.5, 23.5), Slew{Distance: 22, Direction: againstSky}},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := ToMechanicalHA(test.current, test.target, test.limits)
			if err != nil {
				t.Fatalf("ToMechanicalHA: %v", err)
			}
			if diff := cmp.Diff(got, test.want, approx); diff != "" {
				t.Errorf("slew mismatch got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestToHourAngle(t *testing.T) {
	for _, test := range []struct {
		name     string
		current  float64
		pierWest bool
		target   float64
		limits   MountLimits
		want     Slew
	}{
		{"same side", 0, false, 2, Unrestricted, Slew{Distance: 2, Direction: withSky}},
		{"west pier", 14, true, 1, Unrestricted, Slew{Distance: 1, Direction: againstSky}},
		{"flip is shorter", 0, false, 11, Unrestricted, Slew{Distance: 1, Direction: againstSky, MeridianFlip: true}},
		{"limits force flip", 0, false, 10, NewMountLimits(20, 2), Slew{Distance: 2, Direction: againstSky, MeridianFlip: true}},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := ToHourAngle(test.current, test.pierWest, test.target, test.limits)
			if err != nil {
				t.Fatalf("ToHourAngle: %v", err)
			}
			if diff := cmp.Diff(got, test.want, approx); diff != "" {
				t.Errorf("slew mismatch got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestToRightAscension(t *testing.T) {
	k := 15 / (motor.MaxSlewSpeed * 3600)
	for _, test := range []struct {
		name    string
		current float64
		change  float64
		limits  MountLimits
		want    Slew
	}{
		{"against sky", 0, -1, Unrestricted, Slew{Distance: 1 / (1 + k), Direction: againstSky}},
		{"with sky", 0, 1, Unrestricted, Slew{Distance: 1 / (1 - k), Direction: withSky}},
		{"limits force flip", 5, 3, NewMountLimits(18, 6), Slew{Distance: 9 / (1 + k), Direction: againstSky, MeridianFlip: true}},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := ToRightAscension(test.current, test.change, test.limits, motor.MaxSlewSpeed)
			if err != nil {
				t.Fatalf("ToRightAscension: %v", err)
			}
			if diff := cmp.Diff(got, test.want, approx); diff != "" {
				t.Errorf("slew mismatch got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestSkyCorrectionFixedPoint(t *testing.T) {
	// distance = raw + time spent slewing, in hours.
	speed := motor.MaxSlewSpeed * 3600 / 15
	got, err := ToRightAscension(0, 3, Unrestricted, motor.MaxSlewSpeed)
	if err != nil {
		t.Fatalf("ToRightAscension: %v", err)
	}
	if diff := cmp.Diff(got.Distance, 3+got.Distance/speed, approx); diff != "" {
		t.Errorf("distance is not a fixed point got(-)/want(+):\n%s", diff)
	}
}

func TestOutsideLimits(t *testing.T) {
	// A window narrower than the gap to every candidate.
	limits := NewMountLimits(0, 1)
	if _, err := ToMechanicalHA(0.5, 6, limits); !errors.Is(err, ErrOutsideLimits) {
		t.Errorf("ToMechanicalHA outside limits = %v, want %v", err, ErrOutsideLimits)
	}
	if _, err := ToHourAngle(0.5, false, 6, limits); !errors.Is(err, ErrOutsideLimits) {
		t.Errorf("ToHourAngle outside limits = %v, want %v", err, ErrOutsideLimits)
	}
}

func TestSlewDegrees(t *testing.T) {
	for _, test := range []struct {
		slew Slew
		want float64
	}{
		{Slew{Distance: 2, Direction: withSky}, 30},
		{Slew{Distance: 2, Direction: againstSky}, -30},
		{Slew{}, 0},
	} {
		if got := test.slew.Degrees(); got != test.want {
			t.Errorf("%v.Degrees() = %v, want %v", test.slew, got, test.want)
		}
	}
}
