package motor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/w1xm/staradventurer/internal/logging"
	"github.com/w1xm/staradventurer/internal/metrics"
)

// RetryPolicy bounds how hard a single command is retried after a
// communication error.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      4,
	InitialInterval: 20 * time.Millisecond,
	MaxInterval:     250 * time.Millisecond,
}

// Channel wraps a Controller so that every command is retried with
// exponential backoff on communication errors. A command the controller
// rejects is never retried: Channel panics, since the driver and the
// hardware no longer agree on the state of the axis.
type Channel struct {
	ctrl    Controller
	policy  RetryPolicy
	log     logging.Logger
	metrics *metrics.Metrics
}

func NewChannel(ctrl Controller, policy RetryPolicy, log logging.Logger, m *metrics.Metrics) *Channel {
	if log == nil {
		log = logging.Noop()
	}
	return &Channel{ctrl: ctrl, policy: policy, log: log, metrics: m}
}

func (c *Channel) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.InitialInterval
	if c.policy.MaxInterval > 0 {
		b.MaxInterval = c.policy.MaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, c.policy.MaxRetries)
}

func (c *Channel) do(command string, op func() error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op()
		var perr *ProtocolError
		if errors.As(err, &perr) {
			return backoff.Permanent(err)
		}
		return err
	}, c.backoff(), func(err error, next time.Duration) {
		c.metrics.ObserveRetry()
		c.log.Warn(context.Background(), "retrying motor command",
			logging.String("command", command),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", next),
			logging.Err(err))
	})
	c.metrics.ObserveCommand(command, err)
	if err == nil {
		return nil
	}
	var perr *ProtocolError
	if errors.As(err, &perr) {
		panic(fmt.Sprintf("motor command %s: %v", command, err))
	}
	return fmt.Errorf("%s: %w (after %d attempts: %v)", command, ErrDisconnected, attempt, err)
}

func (c *Channel) SetRate(dir Direction, degPerSec float64) error {
	return c.do("set_rate", func() error { return c.ctrl.SetRate(dir, degPerSec) })
}

func (c *Channel) Start() error {
	return c.do("start", c.ctrl.StartMotion)
}

func (c *Channel) Stop() error {
	return c.do("stop", c.ctrl.StopMotion)
}

func (c *Channel) EnterGotoMode(dir Direction) error {
	return c.do("goto_mode", func() error { return c.ctrl.EnterGotoMode(dir) })
}

func (c *Channel) SetGotoTarget(degrees float64) error {
	return c.do("goto_target", func() error { return c.ctrl.SetGotoTarget(degrees) })
}

func (c *Channel) Position() (float64, error) {
	var pos float64
	err := c.do("position", func() (err error) {
		pos, err = c.ctrl.QueryPosition()
		return err
	})
	return pos, err
}

func (c *Channel) Status() (Status, error) {
	var status Status
	err := c.do("status", func() (err error) {
		status, err = c.ctrl.QueryStatus()
		return err
	})
	return status, err
}

func (c *Channel) Rate() (float64, error) {
	var rate float64
	err := c.do("rate", func() (err error) {
		rate, err = c.ctrl.QueryRate()
		return err
	})
	return rate, err
}

func (c *Channel) SetAutoguideSpeed(speed AutoguideSpeed) error {
	return c.do("autoguide_speed", func() error { return c.ctrl.SetAutoguideSpeed(speed) })
}

func (c *Channel) Close() error {
	return c.ctrl.Close()
}
