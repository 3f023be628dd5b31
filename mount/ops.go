package mount

import (
	"context"
	"time"

	"github.com/w1xm/staradventurer/ascom"
	"github.com/w1xm/staradventurer/motor"
)

// Plan is a slew worked out against the motor position.
type Plan struct {
	// Degrees is the signed motor movement.
	Degrees float64
	// Commit, if set, records the effects of the slew once it has been
	// accepted.
	Commit func()
}

// Planner works out a slew from the motor position in degrees. It runs
// under the connection lock.
type Planner func(position float64) (Plan, error)

func parked() error {
	return ascom.InvalidWhileParkedf("mount is parked")
}

// SetTracking starts or stops tracking. During a manual move it changes
// the state the move returns to.
func (c *Connection) SetTracking(ctx context.Context, on bool) error {
	return c.shortTask(ctx, "set tracking", nil, func(cs *session) (*motor.RateChange, error) {
		s := cs.state
		switch {
		case s.IsParked():
			return nil, parked()
		case s.Kind() == KindConstant && s.Constant() == MoveAxis:
			after := AfterStationary
			if on {
				after = AfterTracking
			}
			cs.state = s.WithAfter(after)
			return nil, nil
		case on && s.Kind() == KindStationary:
			return c.changeTo(cs, TrackingAt(c.opts.TrackingRate()))
		case !on && s.Kind() == KindConstant:
			return c.changeTo(cs, Stationary())
		}
		return nil, nil
	})
}

// UpdateTrackingRate applies a changed tracking rate if the mount is
// tracking.
func (c *Connection) UpdateTrackingRate(ctx context.Context) error {
	return c.shortTask(ctx, "update tracking rate", nil, func(cs *session) (*motor.RateChange, error) {
		s := cs.state
		if s.Kind() != KindConstant || s.Constant() != Tracking {
			return nil, nil
		}
		return c.changeTo(cs, TrackingAt(c.opts.TrackingRate()))
	})
}

// MoveAxis turns the axis at rate until it is called again with a zero
// rate, which returns the mount to the state it was in before.
func (c *Connection) MoveAxis(ctx context.Context, rate motor.MotionRate) error {
	return c.shortTask(ctx, "move axis", nil, func(cs *session) (*motor.RateChange, error) {
		s := cs.state
		if s.IsParked() {
			return nil, parked()
		}
		moving := s.Kind() == KindConstant && s.Constant() == MoveAxis
		if rate.IsZero() {
			if !moving {
				return nil, nil
			}
			return c.changeTo(cs, c.restored(s.AfterSlewState()))
		}
		return c.changeTo(cs, MovingAxis(rate, restoreFor(s)))
	})
}

// Unpark leaves the parked state, aborting a park in progress.
func (c *Connection) Unpark(ctx context.Context) error {
	return c.shortTask(ctx, "unpark", []Task{TaskParking}, func(cs *session) (*motor.RateChange, error) {
		if cs.state.IsParked() {
			cs.state = Stationary()
		}
		return nil, nil
	})
}

// AbortSlew aborts a slew, park or manual move. With nothing to abort it
// does nothing.
func (c *Connection) AbortSlew(ctx context.Context) error {
	return c.shortTask(ctx, "abort slew", []Task{TaskSlewing, TaskParking}, func(cs *session) (*motor.RateChange, error) {
		s := cs.state
		if s.Kind() == KindConstant && s.Constant() == MoveAxis {
			return c.changeTo(cs, c.restored(s.AfterSlewState()))
		}
		return nil, nil
	})
}

// Sync calls fn with the motor position. It is used to realign the
// coordinate frames and does not move the axis.
func (c *Connection) Sync(ctx context.Context, fn func(position float64) error) error {
	return c.shortTask(ctx, "sync", nil, func(cs *session) (*motor.RateChange, error) {
		if cs.state.IsParked() {
			return nil, parked()
		}
		pos, err := cs.motor.Position()
		if err != nil {
			return nil, err
		}
		return nil, fn(pos)
	})
}

// SlewTo stops the axis, performs the goto planned by plan, waits for the
// settle time and then restores the state the mount was in. Aborting also
// restores that state.
func (c *Connection) SlewTo(plan Planner) (*Completion, error) {
	return c.longTask(TaskSlewing, nil, func(cs *session) (*job, error) {
		if cs.state.IsParked() {
			return nil, parked()
		}
		after := restoreFor(cs.state)
		return c.startSlew(cs, plan, after, false)
	})
}

// Park slews to the position planned by plan and parks. Aborting leaves the
// mount stationary. Parking a parked mount does nothing.
func (c *Connection) Park(plan Planner) (*Completion, error) {
	return c.longTask(TaskParking, nil, func(cs *session) (*job, error) {
		if cs.state.IsParked() {
			none := func(*session) (*motor.RateChange, error) { return nil, nil }
			return &job{
				run:      func(context.Context) error { return nil },
				complete: none,
				abort:    none,
			}, nil
		}
		return c.startSlew(cs, plan, AfterParked, true)
	})
}

// startSlew plans the slew from the current position and begins stopping
// the axis. An aborted slew
// restores after; an aborted park leaves the axis stationary. c.mu must be
// held.
func (c *Connection) startSlew(cs *session, plan Planner, after AfterSlewState, park bool) (*job, error) {
	pos, err := cs.motor.Position()
	if err != nil {
		return nil, err
	}
	p, err := plan(pos)
	if err != nil {
		return nil, err
	}
	// The target is fixed now; the axis may coast while it stops.
	dest := pos + p.Degrees
	stop, err := cs.motor.Halt()
	if err != nil {
		return nil, err
	}
	cs.state = Stopping(after)
	if p.Commit != nil {
		p.Commit()
	}

	run := func(ctx context.Context) error {
		// The stop is waited for even when aborting.
		if err := stop.Wait(context.Background()); err != nil {
			return err
		}
		var g *motor.GotoTask
		err := c.locked(cs, func() error {
			if ctx.Err() != nil {
				return nil
			}
			var err error
			if g, err = cs.motor.Goto(dest); err != nil {
				return err
			}
			cs.state = Gotoing(dest, cs.state.AfterSlewState())
			return nil
		})
		if err != nil {
			return err
		}
		if g == nil {
			return ctx.Err()
		}
		if err := g.Wait(ctx); err != nil {
			return err
		}
		d := c.opts.SettleTime()
		if park || d <= 0 {
			return nil
		}
		if err := c.locked(cs, func() error {
			cs.state = Settling(cs.state.AfterSlewState())
			return nil
		}); err != nil {
			return err
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return &job{
		run: run,
		complete: func(cs *session) (*motor.RateChange, error) {
			return c.restore(cs, cs.state.AfterSlewState())
		},
		abort: func(cs *session) (*motor.RateChange, error) {
			if park {
				return c.restore(cs, AfterStationary)
			}
			return c.restore(cs, cs.state.AfterSlewState())
		},
	}, nil
}

// restore moves a stopped axis into the state after stands for. c.mu must
// be held.
func (c *Connection) restore(cs *session, after AfterSlewState) (*motor.RateChange, error) {
	next := c.restored(after)
	to, _ := next.MotionRate()
	h, err := cs.motor.ChangeRate(motor.Stationary, to)
	if err != nil {
		return nil, err
	}
	cs.state = next
	return h, nil
}

// PulseGuide adds rate on top of the current motion for duration d.
func (c *Connection) PulseGuide(rate motor.MotionRate, d time.Duration) (*Completion, error) {
	return c.longTask(TaskGuiding, nil, func(cs *session) (*job, error) {
		s := cs.state
		switch s.Kind() {
		case KindParked:
			return nil, parked()
		case KindStationary, KindConstant:
		default:
			return nil, ascom.InvalidOperationf("cannot guide while %v", s.Kind())
		}
		deadline := time.Now().Add(d)
		h, err := c.changeTo(cs, s.WithGuide(&Guiding{Rate: rate}))
		if err != nil {
			return nil, err
		}
		end := func(cs *session) (*motor.RateChange, error) {
			return c.changeTo(cs, cs.state.WithGuide(nil))
		}
		return &job{
			run: func(ctx context.Context) error {
				if err := h.Wait(ctx); err != nil {
					return err
				}
				t := time.NewTimer(time.Until(deadline))
				defer t.Stop()
				select {
				case <-t.C:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
			complete: end,
			abort:    end,
		}, nil
	})
}
