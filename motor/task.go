package motor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/w1xm/staradventurer/internal/logging"
)

// ErrAborted is returned by a GotoTask that was aborted before reaching its
// target.
var ErrAborted = errors.New("goto aborted")

// RateChange resolves once a commanded rate has been observed on the
// controller.
type RateChange struct {
	done chan struct{}
	err  error
}

func resolvedRateChange() *RateChange {
	r := &RateChange{done: make(chan struct{})}
	close(r.done)
	return r
}

// Done is closed once the rate change has resolved.
func (r *RateChange) Done() <-chan struct{} { return r.done }

// Err is valid once Done is closed.
func (r *RateChange) Err() error { return r.err }

// Wait blocks until the change resolves or ctx is done. Giving up does not
// undo the change.
func (r *RateChange) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Motor) watchRate(gen uint64, to MotionRate) *RateChange {
	r := &RateChange{done: make(chan struct{})}
	interval := m.cfg.RatePoll
	if to.IsZero() {
		interval = m.cfg.StopPoll
	}
	go func() {
		defer close(r.done)
		deadline := time.Now().Add(m.cfg.SettleTimeout)
		for {
			if !m.current(gen) {
				return
			}
			reached, err := m.reached(to)
			if err != nil {
				r.err = err
				return
			}
			if reached {
				phase := PhaseMovingAtRate
				if to.IsZero() {
					phase = PhaseStationary
				}
				m.settle(gen, phase, to)
				return
			}
			if time.Now().After(deadline) {
				r.err = fmt.Errorf("rate %v not reached within %v: %w", to, m.cfg.SettleTimeout, ErrDisconnected)
				return
			}
			time.Sleep(interval)
		}
	}()
	return r
}

func (m *Motor) reached(to MotionRate) (bool, error) {
	status, err := m.ch.Status()
	if err != nil {
		return false, err
	}
	if to.IsZero() {
		return !status.Running, nil
	}
	if !status.Running || status.Mode != ModeTracking {
		return false, nil
	}
	speed, err := m.ch.Rate()
	if err != nil {
		return false, err
	}
	return to.Near(speed, status.Direction), nil
}

// GotoTask is an in-progress goto.
type GotoTask struct {
	m      *Motor
	gen    uint64
	target float64

	abortOnce sync.Once
	abort     chan struct{}
	done      chan struct{}
	err       error
}

func (m *Motor) watchGoto(gen uint64, target float64) *GotoTask {
	g := &GotoTask{
		m:      m,
		gen:    gen,
		target: target,
		abort:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go g.run()
	return g
}

func (g *GotoTask) run() {
	defer close(g.done)
	ticker := time.NewTicker(g.m.cfg.GotoPoll)
	defer ticker.Stop()
	for {
		select {
		case <-g.abort:
			g.finishAborted()
			return
		case <-ticker.C:
		}
		// An abort that raced the tick wins.
		select {
		case <-g.abort:
			g.finishAborted()
			return
		default:
		}
		status, err := g.m.ch.Status()
		if err != nil {
			g.err = err
			return
		}
		if !status.Running || status.Mode != ModeGoto {
			g.m.settle(g.gen, PhaseStationary, Stationary)
			g.m.log.Debug(context.Background(), "goto complete", logging.Float("target", g.target))
			return
		}
	}
}

func (g *GotoTask) finishAborted() {
	g.m.log.Debug(context.Background(), "aborting goto", logging.Float("target", g.target))
	if err := g.m.Stop(); err != nil {
		g.err = err
		return
	}
	g.m.settle(g.gen, PhaseStationary, Stationary)
	g.err = ErrAborted
}

// Done is closed once the goto has finished or been aborted.
func (g *GotoTask) Done() <-chan struct{} { return g.done }

// Err is valid once Done is closed. It is nil for a goto that reached its
// target and ErrAborted for one that was aborted.
func (g *GotoTask) Err() error { return g.err }

// Abort stops the axis and blocks until the controller reports it stopped.
// Aborting a finished goto returns its result.
func (g *GotoTask) Abort() error {
	g.abortOnce.Do(func() { close(g.abort) })
	<-g.done
	return g.err
}

// Wait blocks until the goto finishes. If ctx is done first the goto is
// aborted and ctx.Err is returned.
func (g *GotoTask) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return g.err
	case <-ctx.Done():
		if err := g.Abort(); err != nil && !errors.Is(err, ErrAborted) {
			return err
		}
		return ctx.Err()
	}
}
