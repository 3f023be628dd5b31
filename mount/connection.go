// Package mount owns the link to the mount and arbitrates which operation
// may drive the axis.
//
// Short operations (tracking, manual moves, unpark, abort) run to
// completion under the connection lock. Long operations (slews, parking,
// pulse guiding) claim a single task slot, return a Completion, and finish
// in the background. A new operation always pre-empts a pulse guide and is
// refused while a slew or park is outstanding unless it targets that task.
package mount

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/w1xm/staradventurer/ascom"
	"github.com/w1xm/staradventurer/internal/logging"
	"github.com/w1xm/staradventurer/internal/metrics"
	"github.com/w1xm/staradventurer/motor"
)

// Task is the kind of long-running operation occupying the task slot.
type Task int

const (
	TaskNone Task = iota
	TaskSlewing
	TaskParking
	TaskGuiding
)

func (t Task) String() string {
	switch t {
	case TaskNone:
		return "none"
	case TaskSlewing:
		return "slew"
	case TaskParking:
		return "park"
	case TaskGuiding:
		return "guide"
	}
	return fmt.Sprintf("Task(%d)", int(t))
}

// ErrAborted is the result of a long task that was aborted or pre-empted.
var ErrAborted = errors.New("task aborted")

// Options configures a Connection. Dial is required; the providers are
// read whenever the connection needs the current setting.
type Options struct {
	Dial           func(ctx context.Context) (motor.Controller, error)
	Motor          motor.Config
	TrackingRate   func() motor.MotionRate
	SettleTime     func() time.Duration
	AutoguideSpeed func() motor.AutoguideSpeed
	Logger         logging.Logger
	Metrics        *metrics.Metrics
}

type task struct {
	kind   Task
	cancel context.CancelFunc
	done   chan struct{}
}

// session exists while the hardware link is open.
type session struct {
	state MotorState
	motor *motor.Motor
	task  *task
}

type Connection struct {
	opts Options
	log  logging.Logger

	mu      sync.RWMutex
	session *session
}

func NewConnection(opts Options) *Connection {
	if opts.Logger == nil {
		opts.Logger = logging.Noop()
	}
	if opts.TrackingRate == nil {
		opts.TrackingRate = motor.Sidereal.MotionRate
	}
	if opts.SettleTime == nil {
		opts.SettleTime = func() time.Duration { return 0 }
	}
	if opts.Motor.Logger == nil {
		opts.Motor.Logger = opts.Logger
	}
	if opts.Motor.Metrics == nil {
		opts.Motor.Metrics = opts.Metrics
	}
	return &Connection{opts: opts, log: opts.Logger}
}

func notConnected() error {
	return ascom.NotConnectedf("mount is not connected")
}

func isHardwareError(err error) bool {
	return errors.Is(err, motor.ErrDisconnected) || errors.Is(err, motor.ErrCommunication)
}

// Connect opens the hardware link and stops the axis. Connecting an open
// connection does nothing.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return nil
	}
	ctrl, err := c.opts.Dial(ctx)
	if err != nil {
		c.log.Error(ctx, "connecting to mount", logging.Err(err))
		return ascom.NotConnectedf("connecting to mount: %v", err)
	}
	m := motor.New(ctrl, c.opts.Motor)
	if err := m.Init(ctx); err != nil {
		ctrl.Close()
		return ascom.NotConnectedf("initializing mount: %v", err)
	}
	if c.opts.AutoguideSpeed != nil {
		if err := m.SetAutoguideSpeed(c.opts.AutoguideSpeed()); err != nil {
			ctrl.Close()
			return ascom.NotConnectedf("initializing mount: %v", err)
		}
	}
	c.session = &session{state: Stationary(), motor: m}
	c.log.Info(ctx, "connected")
	return nil
}

// Disconnect cancels any outstanding task, makes a best effort to stop the
// axis and closes the link. The connection reports disconnected as soon as
// the stop is issued. The link is closed once the stop settles or ctx is
// done.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	cs := c.session
	if cs == nil {
		c.mu.Unlock()
		return nil
	}
	if cs.task != nil {
		cs.task.cancel()
	}
	h, err := cs.motor.Halt()
	if err != nil {
		c.log.Warn(ctx, "stopping axis on disconnect", logging.Err(err))
	}
	c.session = nil
	c.mu.Unlock()

	if h != nil {
		if err := h.Wait(ctx); err != nil {
			c.log.Warn(ctx, "waiting for axis to stop on disconnect", logging.Err(err))
		}
	}
	if err := cs.motor.Close(); err != nil {
		c.log.Warn(ctx, "closing link", logging.Err(err))
	}
	c.log.Info(ctx, "disconnected")
	return nil
}

func (c *Connection) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil
}

// teardown drops cs after a hardware failure. c.mu must be held.
func (c *Connection) teardown(cs *session, cause error) {
	if c.session != cs {
		return
	}
	c.log.Error(context.Background(), "hardware failure, disconnecting", logging.Err(cause))
	c.opts.Metrics.ObserveDisconnect()
	if cs.task != nil {
		cs.task.cancel()
	}
	cs.motor.Close()
	c.session = nil
}

// fail maps a hardware error to NotConnected after tearing down cs. Other
// errors pass through. c.mu must be held.
func (c *Connection) fail(cs *session, err error) error {
	if err == nil || !isHardwareError(err) {
		return err
	}
	c.teardown(cs, err)
	return ascom.NotConnectedf("lost connection to mount: %v", err)
}

// State returns the current motion state.
func (c *Connection) State() (MotorState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return MotorState{}, notConnected()
	}
	return c.session.state, nil
}

// Task returns the kind of task occupying the task slot.
func (c *Connection) Task() Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil || c.session.task == nil {
		return TaskNone
	}
	return c.session.task.kind
}

// Position returns the motor position in degrees.
func (c *Connection) Position() (float64, error) {
	c.mu.RLock()
	cs := c.session
	if cs == nil {
		c.mu.RUnlock()
		return 0, notConnected()
	}
	pos, err := cs.motor.Position()
	c.mu.RUnlock()
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		return 0, c.fail(cs, err)
	}
	return pos, nil
}

// SetAutoguideSpeed pushes the pulse guide speed to the controller.
func (c *Connection) SetAutoguideSpeed(speed motor.AutoguideSpeed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs := c.session
	if cs == nil {
		return notConnected()
	}
	return c.fail(cs, cs.motor.SetAutoguideSpeed(speed))
}

// lock acquires the write lock on a connected session.
func (c *Connection) lock() (*session, error) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil, notConnected()
	}
	return c.session, nil
}

// claim empties the task slot for a new operation. An outstanding guide is
// always cancelled; a slew or park is cancelled only if its kind is in
// targets and otherwise refuses the operation. Waiting for a cancelled task
// drops the lock, so claim returns the session that is current afterwards.
// c.mu must be held and is held on return unless err is non-nil.
func (c *Connection) claim(cs *session, targets ...Task) (*session, error) {
	for cs.task != nil {
		t := cs.task
		if t.kind != TaskGuiding && !containsTask(targets, t.kind) {
			c.mu.Unlock()
			return nil, ascom.InvalidOperationf("%v in progress", t.kind)
		}
		c.log.Debug(context.Background(), "cancelling task", logging.String("task", t.kind.String()))
		t.cancel()
		c.mu.Unlock()
		<-t.done
		c.mu.Lock()
		if c.session != cs {
			c.mu.Unlock()
			return nil, notConnected()
		}
	}
	return cs, nil
}

func containsTask(tasks []Task, t Task) bool {
	for _, x := range tasks {
		if x == t {
			return true
		}
	}
	return false
}

// shortTask runs fn under the lock after claiming the task slot, then waits
// for any rate change fn started with the lock released.
func (c *Connection) shortTask(ctx context.Context, name string, targets []Task, fn func(cs *session) (*motor.RateChange, error)) error {
	cs, err := c.lock()
	if err != nil {
		return err
	}
	if cs, err = c.claim(cs, targets...); err != nil {
		return err
	}
	h, err := fn(cs)
	if err != nil {
		err = c.fail(cs, err)
		c.mu.Unlock()
		return err
	}
	c.log.Debug(ctx, name, logging.String("state", cs.state.String()))
	c.mu.Unlock()
	return c.await(ctx, cs, h)
}

// await waits for a rate change without holding the lock. Giving up on ctx
// does not undo the change.
func (c *Connection) await(ctx context.Context, cs *session, h *motor.RateChange) error {
	if h == nil {
		return nil
	}
	if err := h.Wait(ctx); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// The change carries on without the caller.
			return ascom.Wrap(ascom.InvalidOperation, err, "stopped waiting for the axis")
		}
		if !isHardwareError(err) {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.fail(cs, err)
	}
	return nil
}

// changeTo moves cs to next, issuing the rate change between the two.
// c.mu must be held.
func (c *Connection) changeTo(cs *session, next MotorState) (*motor.RateChange, error) {
	from, ok := cs.state.MotionRate()
	if !ok {
		panic(fmt.Sprintf("changing rate from %v", cs.state))
	}
	to, ok := next.MotionRate()
	if !ok {
		panic(fmt.Sprintf("changing rate to %v", next))
	}
	h, err := cs.motor.ChangeRate(from, to)
	if err != nil {
		return nil, err
	}
	cs.state = next
	return h, nil
}

// restored is the state that after stands for.
func (c *Connection) restored(after AfterSlewState) MotorState {
	switch after {
	case AfterTracking:
		return TrackingAt(c.opts.TrackingRate())
	case AfterParked:
		return Parked()
	}
	return Stationary()
}

// Completion resolves when a long task finishes.
type Completion struct {
	done chan struct{}
	err  error
}

// Done is closed once the task has finished.
func (c *Completion) Done() <-chan struct{} { return c.done }

// Err is valid once Done is closed. It is ErrAborted for an aborted task.
func (c *Completion) Err() error { return c.err }

// Wait blocks until the task finishes or ctx is done. Giving up does not
// abort the task.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// job is the body of a long task. run executes without the lock and
// returns when the work is complete or ctx is cancelled. complete and abort
// finalize the state under the lock and may start a rate change that is
// awaited once the lock is released.
type job struct {
	run      func(ctx context.Context) error
	complete func(cs *session) (*motor.RateChange, error)
	abort    func(cs *session) (*motor.RateChange, error)
}

// longTask claims the slot, calls start under the lock and finishes the
// returned job in the background.
func (c *Connection) longTask(kind Task, targets []Task, start func(cs *session) (*job, error)) (*Completion, error) {
	cs, err := c.lock()
	if err != nil {
		return nil, err
	}
	if cs, err = c.claim(cs, targets...); err != nil {
		return nil, err
	}
	j, err := start(cs)
	if err != nil {
		err = c.fail(cs, err)
		c.mu.Unlock()
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{kind: kind, cancel: cancel, done: make(chan struct{})}
	cs.task = t
	c.log.Info(ctx, "task started", logging.String("task", kind.String()), logging.String("state", cs.state.String()))
	c.mu.Unlock()

	comp := &Completion{done: make(chan struct{})}
	go func() {
		defer close(comp.done)
		defer close(t.done)
		defer cancel()
		comp.err = c.finish(ctx, cs, t, j)
	}()
	return comp, nil
}

func (c *Connection) finish(ctx context.Context, cs *session, t *task, j *job) error {
	runErr := j.run(ctx)
	// A cancellation that raced natural completion still aborts.
	aborted := ctx.Err() != nil

	c.mu.Lock()
	if c.session != cs || cs.task != t {
		// Disconnected while running; the session is gone.
		c.mu.Unlock()
		c.opts.Metrics.ObserveTask(t.kind.String(), "orphaned")
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			return runErr
		}
		return ErrAborted
	}
	var (
		h       *motor.RateChange
		err     error
		outcome string
	)
	switch {
	case runErr != nil && isHardwareError(runErr):
		err, outcome = runErr, "error"
	case aborted:
		h, err = j.abort(cs)
		outcome = "abort"
	default:
		h, err = j.complete(cs)
		outcome = "complete"
	}
	cs.task = nil
	if err != nil {
		err = c.fail(cs, err)
		outcome = "error"
	}
	c.log.Info(ctx, "task finished",
		logging.String("task", t.kind.String()),
		logging.String("outcome", outcome),
		logging.String("state", cs.state.String()))
	c.mu.Unlock()
	c.opts.Metrics.ObserveTask(t.kind.String(), outcome)
	if err != nil {
		return err
	}
	if err := c.await(context.Background(), cs, h); err != nil {
		return err
	}
	if aborted {
		return ErrAborted
	}
	return nil
}

// locked runs fn under the lock if cs is still the current session.
func (c *Connection) locked(cs *session, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != cs {
		return notConnected()
	}
	return c.fail(cs, fn())
}
