// Package staradventurer is the telescope-level driver for a Star
// Adventurer tracking mount. It translates celestial coordinates into the
// mechanical hour angle of the right ascension axis and drives the axis
// through a mount.Connection.
//
// Only the right ascension axis is motorized. Declination is tracked as a
// setting that the operator changes by hand; slews that need a new
// declination leave a pending DecChange until the operator reports it done.
package staradventurer

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/w1xm/staradventurer/ascom"
	"github.com/w1xm/staradventurer/astro"
	"github.com/w1xm/staradventurer/internal/logging"
	"github.com/w1xm/staradventurer/internal/metrics"
	"github.com/w1xm/staradventurer/motor"
	"github.com/w1xm/staradventurer/mount"
	"github.com/w1xm/staradventurer/skywatcher"
	"github.com/w1xm/staradventurer/slew"
)

const (
	Name             = "Star Adventurer"
	Description      = "Sky-Watcher Star Adventurer tracking mount"
	DriverInfo       = "Star Adventurer mount driver"
	DriverVersion    = "1.0"
	InterfaceVersion = 3
)

// PierSide follows the device protocol's numbering.
type PierSide int

const (
	PierUnknown PierSide = -1
	PierEast    PierSide = 0
	PierWest    PierSide = 1
)

func pierSide(west bool) PierSide {
	if west {
		return PierWest
	}
	return PierEast
}

func (p PierSide) String() string {
	switch p {
	case PierEast:
		return "East"
	case PierWest:
		return "West"
	}
	return "Unknown"
}

// Options supplies the collaborators of a StarAdventurer. All are
// optional; Dial defaults to opening the configured serial port.
type Options struct {
	Dial    func(ctx context.Context) (motor.Controller, error)
	Logger  logging.Logger
	Metrics *metrics.Metrics
	// Now is the system clock.
	Now func() time.Time
}

type StarAdventurer struct {
	cfg      Config
	settings *Settings
	dec      *declination
	conn     *mount.Connection
	log      logging.Logger
	now      func() time.Time
}

// New validates cfg and returns a disconnected driver.
func New(cfg Config, opts Options) (*StarAdventurer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.Noop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Dial == nil {
		opts.Dial = func(context.Context) (motor.Controller, error) {
			return skywatcher.Dial(skywatcher.Config{
				Port:    cfg.SerialPath,
				Baud:    cfg.SerialBaud,
				Timeout: cfg.SerialTimeout,
				Logger:  opts.Logger.With(logging.String("component", "skywatcher")),
			})
		}
	}
	settings := NewSettings(cfg)
	s := &StarAdventurer{
		cfg:      cfg,
		settings: settings,
		dec:      &declination{setting: settings.Declination},
		log:      opts.Logger,
		now:      opts.Now,
	}
	s.conn = mount.NewConnection(mount.Options{
		Dial:  opts.Dial,
		Motor: cfg.Motor,
		TrackingRate: func() motor.MotionRate {
			return settings.TrackingRate.Get().MotionRate()
		},
		SettleTime:     settings.SlewSettleTime.Get,
		AutoguideSpeed: settings.AutoguideSpeed.Get,
		Logger:         opts.Logger.With(logging.String("component", "mount")),
		Metrics:        opts.Metrics,
	})
	return s, nil
}

func (s *StarAdventurer) Settings() *Settings { return s.settings }

func (s *StarAdventurer) Connected() bool { return s.conn.Connected() }

func (s *StarAdventurer) SetConnected(ctx context.Context, connected bool) error {
	if connected {
		return s.conn.Connect(ctx)
	}
	return s.conn.Disconnect(ctx)
}

func (s *StarAdventurer) requireConnected() error {
	if !s.conn.Connected() {
		return ascom.NotConnectedf("mount is not connected")
	}
	return nil
}

func (s *StarAdventurer) Latitude() float64 { return s.settings.Latitude.Get() }

func (s *StarAdventurer) SetLatitude(v float64) error {
	if err := validLatitude(v); err != nil {
		return err
	}
	s.settings.Latitude.Set(v)
	return nil
}

func (s *StarAdventurer) Longitude() float64 { return s.settings.Longitude.Get() }

func (s *StarAdventurer) SetLongitude(v float64) error {
	if err := validLongitude(v); err != nil {
		return err
	}
	s.settings.Longitude.Set(v)
	return nil
}

func (s *StarAdventurer) Elevation() float64 { return s.settings.Elevation.Get() }

func (s *StarAdventurer) SetElevation(v float64) error {
	if err := validElevation(v); err != nil {
		return err
	}
	s.settings.Elevation.Set(v)
	return nil
}

// UTCDate is the driver's clock, which may be skewed from the system clock
// by SetUTCDate.
func (s *StarAdventurer) UTCDate() time.Time {
	return s.now().Add(s.settings.ClockOffset.Get()).UTC()
}

func (s *StarAdventurer) SetUTCDate(t time.Time) {
	s.settings.ClockOffset.Set(t.Sub(s.now()))
}

// SiderealTime is the local sidereal time in hours.
func (s *StarAdventurer) SiderealTime() float64 {
	return astro.LocalSiderealTime(s.UTCDate(), s.Longitude())
}

// mechanicalHA converts a motor position in degrees to mechanical hour
// angle.
func (s *StarAdventurer) mechanicalHA(pos float64) float64 {
	return astro.WrapHours(s.settings.MechanicalHourAngleOffset.Get() + astro.DegToHours(pos))
}

func pointingHA(mech float64, west bool) float64 {
	if west {
		mech += 12
	}
	return astro.WrapHours(mech)
}

// pointing returns the mechanical hour angle, the hour angle the telescope
// points at and the pier side.
func (s *StarAdventurer) pointing() (mech, ha float64, west bool, err error) {
	pos, err := s.conn.Position()
	if err != nil {
		return 0, 0, false, err
	}
	mech = s.mechanicalHA(pos)
	west = s.settings.PierWest.Get()
	return mech, pointingHA(mech, west), west, nil
}

// HourAngle is the hour angle the telescope points at.
func (s *StarAdventurer) HourAngle() (float64, error) {
	_, ha, _, err := s.pointing()
	return ha, err
}

func (s *StarAdventurer) RightAscension() (float64, error) {
	ha, err := s.HourAngle()
	if err != nil {
		return 0, err
	}
	return astro.RightAscension(s.SiderealTime(), ha), nil
}

func (s *StarAdventurer) Declination() (float64, error) {
	if err := s.requireConnected(); err != nil {
		return 0, err
	}
	return s.settings.Declination.Get(), nil
}

func (s *StarAdventurer) horizontal() (az, alt float64, err error) {
	ha, err := s.HourAngle()
	if err != nil {
		return 0, 0, err
	}
	az, alt = astro.EquatorialToHorizontal(ha, s.settings.Declination.Get(), s.Latitude())
	return az, alt, nil
}

func (s *StarAdventurer) Altitude() (float64, error) {
	_, alt, err := s.horizontal()
	return alt, err
}

// Azimuth is in [-180, 180) degrees.
func (s *StarAdventurer) Azimuth() (float64, error) {
	az, _, err := s.horizontal()
	return az, err
}

func (s *StarAdventurer) SideOfPier() (PierSide, error) {
	if err := s.requireConnected(); err != nil {
		return PierUnknown, err
	}
	return pierSide(s.settings.PierWest.Get()), nil
}

// SetSideOfPier is not supported; the pier side changes only through a
// slew that flips.
func (s *StarAdventurer) SetSideOfPier(PierSide) error {
	return ascom.NotImplementedf("pier side can only be changed by slewing")
}

func validRA(ra float64) error {
	if !(ra >= 0 && ra < 24) {
		return ascom.InvalidValuef("right ascension %v outside [0, 24)", ra)
	}
	return nil
}

func validDec(dec float64) error {
	if !(dec >= -90 && dec <= 90) {
		return ascom.InvalidValuef("declination %v outside [-90, 90]", dec)
	}
	return nil
}

func validAltAz(alt, az float64) error {
	if !(alt >= -90 && alt <= 90) {
		return ascom.InvalidValuef("altitude %v outside [-90, 90]", alt)
	}
	if !(az >= -360 && az <= 360) {
		return ascom.InvalidValuef("azimuth %v outside [-360, 360]", az)
	}
	return nil
}

func (s *StarAdventurer) TargetRightAscension() (float64, error) {
	return s.settings.TargetRA.Get().get("target right ascension")
}

func (s *StarAdventurer) SetTargetRightAscension(ra float64) error {
	if err := validRA(ra); err != nil {
		return err
	}
	s.settings.TargetRA.Set(some(ra))
	return nil
}

func (s *StarAdventurer) TargetDeclination() (float64, error) {
	return s.settings.TargetDec.Get().get("target declination")
}

func (s *StarAdventurer) SetTargetDeclination(dec float64) error {
	if err := validDec(dec); err != nil {
		return err
	}
	s.settings.TargetDec.Set(some(dec))
	return nil
}

func (s *StarAdventurer) target() (ra, dec float64, err error) {
	if ra, err = s.TargetRightAscension(); err != nil {
		return 0, 0, err
	}
	if dec, err = s.TargetDeclination(); err != nil {
		return 0, 0, err
	}
	return ra, dec, nil
}

func (s *StarAdventurer) ApertureDiameter() (float64, error) {
	return s.settings.ApertureDiameter.Get().get("aperture diameter")
}

func (s *StarAdventurer) ApertureArea() (float64, error) {
	return s.settings.ApertureArea.Get().get("aperture area")
}

func (s *StarAdventurer) FocalLength() (float64, error) {
	return s.settings.FocalLength.Get().get("focal length")
}

func (s *StarAdventurer) SlewSettleTime() time.Duration { return s.settings.SlewSettleTime.Get() }

func (s *StarAdventurer) SetSlewSettleTime(d time.Duration) error {
	if d < 0 {
		return ascom.InvalidValuef("slew settle time %v is negative", d)
	}
	s.settings.SlewSettleTime.Set(d)
	return nil
}

func (s *StarAdventurer) TrackingRate() motor.TrackingRate { return s.settings.TrackingRate.Get() }

func (s *StarAdventurer) TrackingRates() []motor.TrackingRate { return motor.TrackingRates }

// SetTrackingRate changes the rate and, if the mount is tracking, applies
// it at once.
func (s *StarAdventurer) SetTrackingRate(ctx context.Context, r motor.TrackingRate) error {
	if !r.Valid() {
		return ascom.InvalidValuef("unsupported tracking rate %d", int(r))
	}
	s.settings.TrackingRate.Set(r)
	if !s.conn.Connected() {
		return nil
	}
	return s.conn.UpdateTrackingRate(ctx)
}

// GuideRateRightAscension is the pulse guide rate in degrees/second.
func (s *StarAdventurer) GuideRateRightAscension() float64 {
	return s.settings.AutoguideSpeed.Get().Factor() * s.TrackingRate().DegreesPerSecond()
}

// SetGuideRateRightAscension picks the autoguide speed nearest to rate and
// sends it to the controller.
func (s *StarAdventurer) SetGuideRateRightAscension(rate float64) error {
	if !(rate >= 0) || math.IsInf(rate, 0) {
		return ascom.InvalidValuef("invalid guide rate %v", rate)
	}
	speed := motor.NearestAutoguideSpeed(rate / s.TrackingRate().DegreesPerSecond())
	s.settings.AutoguideSpeed.Set(speed)
	if !s.conn.Connected() {
		return nil
	}
	return s.conn.SetAutoguideSpeed(speed)
}

func (s *StarAdventurer) GuideRateDeclination() float64 { return 0 }

func (s *StarAdventurer) SetGuideRateDeclination(float64) error {
	return ascom.NotImplementedf("declination is not motorized")
}

func (s *StarAdventurer) RightAscensionRate() float64 { return 0 }

func (s *StarAdventurer) SetRightAscensionRate(rate float64) error {
	if rate != 0 {
		return ascom.NotImplementedf("right ascension rate offsets are not supported")
	}
	return nil
}

func (s *StarAdventurer) DeclinationRate() float64 { return 0 }

func (s *StarAdventurer) SetDeclinationRate(rate float64) error {
	if rate != 0 {
		return ascom.NotImplementedf("declination is not motorized")
	}
	return nil
}

func (s *StarAdventurer) state() (mount.MotorState, error) {
	return s.conn.State()
}

func (s *StarAdventurer) Tracking() (bool, error) {
	st, err := s.state()
	return st.IsTracking(), err
}

func (s *StarAdventurer) SetTracking(ctx context.Context, on bool) error {
	return s.conn.SetTracking(ctx, on)
}

func (s *StarAdventurer) Slewing() (bool, error) {
	st, err := s.state()
	return st.IsSlewing(), err
}

func (s *StarAdventurer) AtPark() (bool, error) {
	st, err := s.state()
	return st.IsParked(), err
}

func (s *StarAdventurer) IsPulseGuiding() (bool, error) {
	st, err := s.state()
	return st.IsGuiding(), err
}

// limitsError maps a planner failure to the client error taxonomy.
func limitsError(err error) error {
	if errors.Is(err, slew.ErrOutsideLimits) {
		return ascom.InvalidValuef("%v", err)
	}
	return err
}
