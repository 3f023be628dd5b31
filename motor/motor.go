package motor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/w1xm/staradventurer/internal/logging"
	"github.com/w1xm/staradventurer/internal/metrics"
)

// Phase is the motor's cached view of what the axis is doing.
type Phase int

const (
	PhaseStationary Phase = iota
	PhaseMovingAtRate
	PhaseGotoing
	PhaseChangingRate
)

func (p Phase) String() string {
	switch p {
	case PhaseStationary:
		return "Stationary"
	case PhaseMovingAtRate:
		return "MovingAtRate"
	case PhaseGotoing:
		return "Gotoing"
	case PhaseChangingRate:
		return "ChangingRate"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

type Config struct {
	RatePoll      time.Duration
	StopPoll      time.Duration
	GotoPoll      time.Duration
	SettleTimeout time.Duration
	Retry         RetryPolicy
	Logger        logging.Logger
	Metrics       *metrics.Metrics
}

func (c Config) withDefaults() Config {
	if c.RatePoll <= 0 {
		c.RatePoll = DefaultRatePoll
	}
	if c.StopPoll <= 0 {
		c.StopPoll = DefaultStopPoll
	}
	if c.GotoPoll <= 0 {
		c.GotoPoll = DefaultGotoPoll
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = DefaultSettleTimeout
	}
	if c.Retry == (RetryPolicy{}) {
		c.Retry = DefaultRetryPolicy
	}
	if c.Logger == nil {
		c.Logger = logging.Noop()
	}
	return c
}

// Motor drives the single axis. Its cached phase and rate are updated when
// a command is issued and confirmed by polling, since the controller cannot
// report changes on its own.
//
// Motor does not serialize callers; the owner is expected to hold its own
// lock around ChangeRate and Goto.
type Motor struct {
	ch  *Channel
	cfg Config
	log logging.Logger

	mu    sync.Mutex
	phase Phase
	rate  MotionRate
	// gen is bumped by every motion command so that handles for superseded
	// motions stop updating the cached state.
	gen uint64
}

func New(ctrl Controller, cfg Config) *Motor {
	cfg = cfg.withDefaults()
	return &Motor{
		ch:  NewChannel(ctrl, cfg.Retry, cfg.Logger, cfg.Metrics),
		cfg: cfg,
		log: cfg.Logger,
	}
}

// Init stops the axis if the controller reports it running and waits for it
// to come to rest.
func (m *Motor) Init(ctx context.Context) error {
	status, err := m.ch.Status()
	if err != nil {
		return err
	}
	if status.Running {
		m.log.Info(ctx, "axis running at connect, stopping", logging.String("mode", status.Mode.String()))
		if err := m.Stop(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.phase, m.rate = PhaseStationary, Stationary
	m.gen++
	m.mu.Unlock()
	return nil
}

func (m *Motor) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Rate is the most recently commanded rate; it is Stationary during a goto.
func (m *Motor) Rate() MotionRate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

// Position returns the axis position in degrees.
func (m *Motor) Position() (float64, error) {
	return m.ch.Position()
}

func (m *Motor) SetAutoguideSpeed(speed AutoguideSpeed) error {
	return m.ch.SetAutoguideSpeed(speed)
}

// begin records a new motion and returns its generation.
func (m *Motor) begin(phase Phase, rate MotionRate) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.phase, m.rate = phase, rate
	return m.gen
}

// settle records the outcome of the motion with generation gen, unless it
// has been superseded. It reports whether gen was still current.
func (m *Motor) settle(gen uint64, phase Phase, rate MotionRate) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return false
	}
	m.phase, m.rate = phase, rate
	return true
}

func (m *Motor) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen
}

// ChangeRate moves the axis from rate from to rate to. The returned handle
// resolves once the controller is observed running within tolerance of to,
// or stopped when to is zero. A failure while issuing commands leaves the
// axis in whatever state the controller is in.
func (m *Motor) ChangeRate(from, to MotionRate) (*RateChange, error) {
	if from == to {
		return resolvedRateChange(), nil
	}
	m.log.Debug(context.Background(), "changing rate",
		logging.String("from", from.String()),
		logging.String("to", to.String()))
	gen := m.begin(PhaseChangingRate, to)

	var err error
	switch {
	case to.IsZero():
		err = m.ch.Stop()
	case from.IsZero():
		err = m.startAt(to)
	case from.Direction() != to.Direction():
		// The controller ignores a direction change while running.
		if err = m.Stop(); err == nil {
			err = m.startAt(to)
		}
	default:
		err = m.ch.SetRate(to.Direction(), to.Speed())
	}
	if err != nil {
		return nil, err
	}
	return m.watchRate(gen, to), nil
}

func (m *Motor) startAt(rate MotionRate) error {
	if err := m.ch.SetRate(rate.Direction(), rate.Speed()); err != nil {
		return err
	}
	return m.ch.Start()
}

// Stop stops the axis and blocks until the controller reports it stopped.
// The wait is bounded by the settle timeout but is not otherwise
// cancellable.
func (m *Motor) Stop() error {
	if err := m.ch.Stop(); err != nil {
		return err
	}
	return m.waitStopped()
}

func (m *Motor) waitStopped() error {
	deadline := time.Now().Add(m.cfg.SettleTimeout)
	for {
		status, err := m.ch.Status()
		if err != nil {
			return err
		}
		if !status.Running {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("axis did not stop within %v: %w", m.cfg.SettleTimeout, ErrDisconnected)
		}
		time.Sleep(m.cfg.StopPoll)
	}
}

// Goto starts a goto to the absolute position target in degrees. The motor
// must be stationary; anything else is a bug in the caller.
func (m *Motor) Goto(target float64) (*GotoTask, error) {
	if phase := m.Phase(); phase != PhaseStationary {
		panic(fmt.Sprintf("goto while motor is %v", phase))
	}
	pos, err := m.ch.Position()
	if err != nil {
		return nil, err
	}
	dir := Clockwise
	if target < pos {
		dir = CounterClockwise
	}
	m.log.Debug(context.Background(), "starting goto",
		logging.Float("from", pos),
		logging.Float("to", target),
		logging.String("direction", dir.String()))
	gen := m.begin(PhaseGotoing, Stationary)
	if err := m.ch.EnterGotoMode(dir); err != nil {
		return nil, err
	}
	if err := m.ch.SetGotoTarget(target); err != nil {
		return nil, err
	}
	if err := m.ch.Start(); err != nil {
		return nil, err
	}
	return m.watchGoto(gen, target), nil
}

func (m *Motor) Close() error {
	return m.ch.Close()
}

// Halt stops the axis whatever it is doing, superseding any pending rate
// change. The handle resolves once the controller reports it stopped.
func (m *Motor) Halt() (*RateChange, error) {
	gen := m.begin(PhaseChangingRate, Stationary)
	if err := m.ch.Stop(); err != nil {
		return nil, err
	}
	return m.watchRate(gen, Stationary), nil
}
