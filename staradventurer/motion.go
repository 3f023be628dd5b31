package staradventurer

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/w1xm/staradventurer/ascom"
	"github.com/w1xm/staradventurer/astro"
	"github.com/w1xm/staradventurer/internal/logging"
	"github.com/w1xm/staradventurer/motor"
	"github.com/w1xm/staradventurer/mount"
	"github.com/w1xm/staradventurer/slew"
)

// sync realigns the mechanical frame so the telescope points at hour
// angle ha and declination dec on its current pier side.
func (s *StarAdventurer) sync(ctx context.Context, ha, dec float64) error {
	return s.conn.Sync(ctx, func(pos float64) error {
		mech := ha
		if s.settings.PierWest.Get() {
			mech -= 12
		}
		offset := astro.WrapHours(mech - astro.DegToHours(pos))
		s.settings.MechanicalHourAngleOffset.Set(offset)
		s.dec.reset(dec)
		s.log.Info(ctx, "synced",
			logging.Float("hour_angle", ha),
			logging.Float("declination", dec),
			logging.Float("offset", offset))
		return nil
	})
}

func (s *StarAdventurer) SyncToCoordinates(ctx context.Context, ra, dec float64) error {
	if err := validRA(ra); err != nil {
		return err
	}
	if err := validDec(dec); err != nil {
		return err
	}
	if err := s.sync(ctx, astro.HourAngle(s.SiderealTime(), ra), dec); err != nil {
		return err
	}
	s.settings.TargetRA.Set(some(ra))
	s.settings.TargetDec.Set(some(dec))
	return nil
}

func (s *StarAdventurer) SyncToAltAz(ctx context.Context, alt, az float64) error {
	if err := validAltAz(alt, az); err != nil {
		return err
	}
	ha, dec := astro.HorizontalToEquatorial(az, alt, s.Latitude())
	return s.sync(ctx, ha, dec)
}

func (s *StarAdventurer) SyncToTarget(ctx context.Context) error {
	ra, dec, err := s.target()
	if err != nil {
		return err
	}
	return s.SyncToCoordinates(ctx, ra, dec)
}

// commit records the consequences of an accepted slew that ends at
// declination dec.
func (s *StarAdventurer) commit(sl slew.Slew, dec float64) {
	if sl.MeridianFlip {
		s.settings.PierWest.Update(func(west bool) bool { return !west })
	}
	s.dec.begin(dec, sl.MeridianFlip, s.cfg.InstantDecSlew)
	s.log.Info(context.Background(), "slewing",
		logging.String("slew", sl.String()),
		logging.Float("declination", dec))
}

func (s *StarAdventurer) planRA(ra, dec float64, commit func()) mount.Planner {
	return func(pos float64) (mount.Plan, error) {
		sl, err := s.raSlew(pos, ra)
		if err != nil {
			return mount.Plan{}, limitsError(err)
		}
		return mount.Plan{Degrees: sl.Degrees(), Commit: func() {
			if commit != nil {
				commit()
			}
			s.commit(sl, dec)
		}}, nil
	}
}

func (s *StarAdventurer) raSlew(pos, ra float64) (slew.Slew, error) {
	mech := s.mechanicalHA(pos)
	current := pointingHA(mech, s.settings.PierWest.Get())
	change := astro.HourAngle(s.SiderealTime(), ra) - current
	return slew.ToRightAscension(mech, change, s.cfg.Limits, motor.MaxSlewSpeed)
}

// SlewToCoordinates starts a slew to ra and dec and sets the target. The
// returned Completion resolves when the slew, including the settle time,
// is over.
func (s *StarAdventurer) SlewToCoordinates(ra, dec float64) (*mount.Completion, error) {
	if err := validRA(ra); err != nil {
		return nil, err
	}
	if err := validDec(dec); err != nil {
		return nil, err
	}
	return s.conn.SlewTo(s.planRA(ra, dec, func() {
		s.settings.TargetRA.Set(some(ra))
		s.settings.TargetDec.Set(some(dec))
	}))
}

func (s *StarAdventurer) SlewToTarget() (*mount.Completion, error) {
	ra, dec, err := s.target()
	if err != nil {
		return nil, err
	}
	return s.SlewToCoordinates(ra, dec)
}

// SlewToAltAz slews to a fixed position relative to the horizon.
func (s *StarAdventurer) SlewToAltAz(alt, az float64) (*mount.Completion, error) {
	if err := validAltAz(alt, az); err != nil {
		return nil, err
	}
	ha, dec := astro.HorizontalToEquatorial(az, alt, s.Latitude())
	return s.conn.SlewTo(func(pos float64) (mount.Plan, error) {
		sl, err := slew.ToHourAngle(s.mechanicalHA(pos), s.settings.PierWest.Get(), ha, s.cfg.Limits)
		if err != nil {
			return mount.Plan{}, limitsError(err)
		}
		return mount.Plan{Degrees: sl.Degrees(), Commit: func() { s.commit(sl, dec) }}, nil
	})
}

// DestinationSideOfPier is the pier side a slew to ra would end on.
func (s *StarAdventurer) DestinationSideOfPier(ra, dec float64) (PierSide, error) {
	if err := validRA(ra); err != nil {
		return PierUnknown, err
	}
	if err := validDec(dec); err != nil {
		return PierUnknown, err
	}
	pos, err := s.conn.Position()
	if err != nil {
		return PierUnknown, err
	}
	sl, err := s.raSlew(pos, ra)
	if err != nil {
		return PierUnknown, limitsError(err)
	}
	return pierSide(s.settings.PierWest.Get() != sl.MeridianFlip), nil
}

func (s *StarAdventurer) AbortSlew(ctx context.Context) error {
	return s.conn.AbortSlew(ctx)
}

// Park slews to the park position and stops there.
func (s *StarAdventurer) Park() (*mount.Completion, error) {
	park := s.settings.ParkPosition.Get()
	return s.conn.Park(func(pos float64) (mount.Plan, error) {
		sl, err := slew.ToMechanicalHA(s.mechanicalHA(pos), park, s.cfg.Limits)
		if err != nil {
			return mount.Plan{}, limitsError(err)
		}
		return mount.Plan{Degrees: sl.Degrees()}, nil
	})
}

func (s *StarAdventurer) Unpark(ctx context.Context) error {
	return s.conn.Unpark(ctx)
}

// SetPark makes the current mechanical hour angle the park position.
func (s *StarAdventurer) SetPark() error {
	mech, _, _, err := s.pointing()
	if err != nil {
		return err
	}
	if !s.cfg.Limits.IsValidHA(mech) {
		return ascom.InvalidValuef("mechanical hour angle %vh is outside the mount limits", mech)
	}
	s.settings.ParkPosition.Set(mech)
	return nil
}

func (s *StarAdventurer) FindHome(context.Context) error {
	return ascom.NotImplementedf("the mount has no home sensor")
}

// GuideDirection follows the device protocol's numbering.
type GuideDirection int

const (
	GuideNorth GuideDirection = iota
	GuideSouth
	GuideEast
	GuideWest
)

// PulseGuide moves the axis at the guide rate on top of its current motion
// for d. East runs against the tracking direction and West with it.
func (s *StarAdventurer) PulseGuide(dir GuideDirection, d time.Duration) (*mount.Completion, error) {
	if d < 0 {
		return nil, ascom.InvalidValuef("negative pulse duration %v", d)
	}
	var sign float64
	switch dir {
	case GuideNorth, GuideSouth:
		return nil, ascom.NotImplementedf("declination is not motorized")
	case GuideEast:
		sign = -1
	case GuideWest:
		sign = 1
	default:
		return nil, ascom.InvalidValuef("invalid guide direction %d", int(dir))
	}
	rate := s.TrackingRate().MotionRate().Scale(sign * s.settings.AutoguideSpeed.Get().Factor())
	return s.conn.PulseGuide(rate, d)
}

// Axis follows the device protocol's numbering.
type Axis int

const (
	AxisPrimary Axis = iota
	AxisSecondary
	AxisTertiary
)

func validAxis(axis Axis) error {
	if axis < AxisPrimary || axis > AxisTertiary {
		return ascom.InvalidValuef("invalid axis %d", int(axis))
	}
	return nil
}

// RateRange is an inclusive range of axis rates in degrees/second.
type RateRange struct {
	Minimum float64
	Maximum float64
}

func (s *StarAdventurer) CanMoveAxis(axis Axis) bool { return axis == AxisPrimary }

func (s *StarAdventurer) AxisRates(axis Axis) ([]RateRange, error) {
	if err := validAxis(axis); err != nil {
		return nil, err
	}
	if axis != AxisPrimary {
		return nil, nil
	}
	return []RateRange{{Minimum: motor.MinSlewSpeed, Maximum: motor.MaxSlewSpeed}}, nil
}

// MoveAxis turns the primary axis at rate degrees/second until called with
// zero. Positive rates increase right ascension, which runs against the
// tracking direction.
func (s *StarAdventurer) MoveAxis(ctx context.Context, axis Axis, rate float64) error {
	if err := validAxis(axis); err != nil {
		return err
	}
	if axis != AxisPrimary {
		return ascom.NotImplementedf("only the primary axis can be moved")
	}
	speed := math.Abs(rate)
	if speed != 0 && !(speed >= motor.MinSlewSpeed && speed <= motor.MaxSlewSpeed) {
		return ascom.InvalidValuef("rate %v outside [%v, %v]", rate, motor.MinSlewSpeed, motor.MaxSlewSpeed)
	}
	dir := motor.TrackingDirection.Opposite()
	if rate < 0 {
		dir = motor.TrackingDirection
	}
	return s.conn.MoveAxis(ctx, motor.NewMotionRate(speed, dir))
}

// Custom actions for the manual declination axis.
const (
	ActionDecChange       = "dec_change"
	ActionMeridianFlip    = "meridian_flip"
	ActionFinishDecChange = "finish_dec_change"
	ActionAbortDecChange  = "abort_dec_change"
)

func (s *StarAdventurer) SupportedActions() []string {
	return []string{ActionDecChange, ActionMeridianFlip, ActionFinishDecChange, ActionAbortDecChange}
}

// PendingDecChange returns the declination change waiting on the operator.
func (s *StarAdventurer) PendingDecChange() (DecChange, bool) {
	return s.dec.Pending()
}

// Action runs a custom action. dec_change reports the pending change in
// degrees and meridian_flip whether it includes a flip; finish_dec_change
// and abort_dec_change resolve it.
func (s *StarAdventurer) Action(name, _ string) (string, error) {
	switch name {
	case ActionDecChange:
		d, _ := s.dec.Pending()
		return strconv.FormatFloat(d.Degrees(), 'f', -1, 64), nil
	case ActionMeridianFlip:
		d, _ := s.dec.Pending()
		return strconv.FormatBool(d.MeridianFlip), nil
	case ActionFinishDecChange:
		s.dec.finish()
		return "", nil
	case ActionAbortDecChange:
		s.dec.abort()
		return "", nil
	}
	return "", ascom.Errorf(ascom.ActionNotImplemented, "action %q is not implemented", name)
}
