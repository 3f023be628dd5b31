package staradventurer

import (
	"time"

	"github.com/w1xm/staradventurer/ascom"
	"github.com/w1xm/staradventurer/motor"
	"github.com/w1xm/staradventurer/skywatcher"
	"github.com/w1xm/staradventurer/slew"
)

// Site limits accepted for the observing location.
const (
	MinLatitude   = -90.0
	MaxLatitude   = 90.0
	MinLongitude  = -180.0
	MaxLongitude  = 180.0
	MinElevation  = -300.0
	MaxElevation  = 10000.0
	DefaultSerial = "/dev/ttyUSB0"
)

// Config is the startup configuration of the driver. Optional telescope
// details left nil read back as ValueNotSet.
type Config struct {
	Latitude  float64
	Longitude float64
	Elevation float64

	SerialPath    string
	SerialBaud    int
	SerialTimeout time.Duration

	ApertureDiameter *float64
	ApertureArea     *float64
	FocalLength      *float64

	SlewSettleTime time.Duration
	// InstantDecSlew commits declination changes as soon as a slew starts
	// instead of waiting for the operator.
	InstantDecSlew bool

	Limits slew.MountLimits
	// ParkPosition is the mechanical hour angle of the park position.
	ParkPosition float64
	// PierWest is the pier side at startup.
	PierWest bool

	TrackingRate   motor.TrackingRate
	AutoguideSpeed motor.AutoguideSpeed

	Motor motor.Config
}

func DefaultConfig() Config {
	return Config{
		SerialPath:     DefaultSerial,
		SerialBaud:     skywatcher.DefaultBaud,
		SerialTimeout:  skywatcher.DefaultTimeout,
		Limits:         slew.Unrestricted,
		TrackingRate:   motor.Sidereal,
		AutoguideSpeed: motor.AutoguideHalf,
	}
}

func validLatitude(v float64) error {
	if !(v >= MinLatitude && v <= MaxLatitude) {
		return ascom.InvalidValuef("latitude %v outside [%v, %v]", v, MinLatitude, MaxLatitude)
	}
	return nil
}

func validLongitude(v float64) error {
	if !(v >= MinLongitude && v <= MaxLongitude) {
		return ascom.InvalidValuef("longitude %v outside [%v, %v]", v, MinLongitude, MaxLongitude)
	}
	return nil
}

func validElevation(v float64) error {
	if !(v >= MinElevation && v <= MaxElevation) {
		return ascom.InvalidValuef("elevation %v outside [%v, %v]", v, MinElevation, MaxElevation)
	}
	return nil
}

func validOptional(name string, v *float64) error {
	if v != nil && !(*v > 0) {
		return ascom.InvalidValuef("%s must be positive, got %v", name, *v)
	}
	return nil
}

// Validate checks every field and returns the first problem as an
// InvalidValue error.
func (c Config) Validate() error {
	for _, err := range []error{
		validLatitude(c.Latitude),
		validLongitude(c.Longitude),
		validElevation(c.Elevation),
		validOptional("aperture diameter", c.ApertureDiameter),
		validOptional("aperture area", c.ApertureArea),
		validOptional("focal length", c.FocalLength),
	} {
		if err != nil {
			return err
		}
	}
	if c.SerialPath == "" {
		return ascom.InvalidValuef("serial path is empty")
	}
	if c.SerialBaud <= 0 {
		return ascom.InvalidValuef("serial baud %d is not positive", c.SerialBaud)
	}
	if c.SerialTimeout < 0 || c.SlewSettleTime < 0 {
		return ascom.InvalidValuef("durations must not be negative")
	}
	// An empty window would reject every slew.
	if c.Limits.West <= c.Limits.East || c.Limits.West-c.Limits.East > 24 {
		return ascom.InvalidValuef("invalid mount limits %v", c.Limits)
	}
	if !c.Limits.IsValidHA(c.ParkPosition) {
		return ascom.InvalidValuef("park position %vh is outside the mount limits", c.ParkPosition)
	}
	if !c.TrackingRate.Valid() {
		return ascom.InvalidValuef("invalid tracking rate %d", int(c.TrackingRate))
	}
	if !c.AutoguideSpeed.Valid() {
		return ascom.InvalidValuef("invalid autoguide speed %d", int(c.AutoguideSpeed))
	}
	return nil
}
