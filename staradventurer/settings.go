package staradventurer

import (
	"sync"
	"time"

	"github.com/w1xm/staradventurer/ascom"
	"github.com/w1xm/staradventurer/motor"
)

// locked guards a single setting. Settings are independent of each other;
// a reader combining several of them may observe an interleaving of
// writes.
type locked[T any] struct {
	mu sync.RWMutex
	v  T
}

func newLocked[T any](v T) *locked[T] {
	return &locked[T]{v: v}
}

func (l *locked[T]) Get() T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.v
}

func (l *locked[T]) Set(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.v = v
}

// Update replaces the value with fn applied to it, atomically.
func (l *locked[T]) Update(fn func(T) T) T {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.v = fn(l.v)
	return l.v
}

// optional is a value that may never have been assigned.
type optional[T any] struct {
	v   T
	set bool
}

func some[T any](v T) optional[T] { return optional[T]{v: v, set: true} }

func fromPtr[T any](p *T) optional[T] {
	if p == nil {
		return optional[T]{}
	}
	return some(*p)
}

func (o optional[T]) get(name string) (T, error) {
	if !o.set {
		var zero T
		return zero, ascom.ValueNotSetf("%s has not been set", name)
	}
	return o.v, nil
}

// Settings holds the mutable configuration of the driver.
type Settings struct {
	Latitude  *locked[float64]
	Longitude *locked[float64]
	Elevation *locked[float64]
	// ClockOffset is added to the system clock to give the driver's UTC
	// time.
	ClockOffset *locked[time.Duration]

	TargetRA  *locked[optional[float64]]
	TargetDec *locked[optional[float64]]
	// Declination is where the operator has set the declination axis.
	Declination *locked[float64]
	// MechanicalHourAngleOffset is the mechanical hour angle at motor
	// position zero, set by syncing.
	MechanicalHourAngleOffset *locked[float64]
	PierWest                  *locked[bool]

	TrackingRate   *locked[motor.TrackingRate]
	AutoguideSpeed *locked[motor.AutoguideSpeed]
	ParkPosition   *locked[float64]
	SlewSettleTime *locked[time.Duration]

	ApertureDiameter *locked[optional[float64]]
	ApertureArea     *locked[optional[float64]]
	FocalLength      *locked[optional[float64]]
}

func NewSettings(cfg Config) *Settings {
	return &Settings{
		Latitude:                  newLocked(cfg.Latitude),
		Longitude:                 newLocked(cfg.Longitude),
		Elevation:                 newLocked(cfg.Elevation),
		ClockOffset:               newLocked(time.Duration(0)),
		TargetRA:                  newLocked(optional[float64]{}),
		TargetDec:                 newLocked(optional[float64]{}),
		Declination:               newLocked(0.0),
		MechanicalHourAngleOffset: newLocked(0.0),
		PierWest:                  newLocked(cfg.PierWest),
		TrackingRate:              newLocked(cfg.TrackingRate),
		AutoguideSpeed:            newLocked(cfg.AutoguideSpeed),
		ParkPosition:              newLocked(cfg.ParkPosition),
		SlewSettleTime:            newLocked(cfg.SlewSettleTime),
		ApertureDiameter:          newLocked(fromPtr(cfg.ApertureDiameter)),
		ApertureArea:              newLocked(fromPtr(cfg.ApertureArea)),
		FocalLength:               newLocked(fromPtr(cfg.FocalLength)),
	}
}
