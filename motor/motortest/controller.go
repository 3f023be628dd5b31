// Package motortest provides an in-memory motor.Controller for tests.
package motortest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/w1xm/staradventurer/motor"
)

// Controller is a motor.Controller with instantaneous physics: rates take
// effect immediately and a goto arrives as soon as it is started, unless
// HoldGotos is set. Every call is recorded.
type Controller struct {
	mu sync.Mutex

	running   bool
	mode      motor.Mode
	dir       motor.Direction
	speed     float64
	position  float64
	target    float64
	autoguide motor.AutoguideSpeed

	holdGotos bool
	calls     []string
	failures  int
	broken    bool
	rejects   map[string]int
	closed    bool
}

func New() *Controller {
	return &Controller{rejects: make(map[string]int)}
}

// HoldGotos makes started gotos keep running until Stop or FinishGoto.
func (c *Controller) HoldGotos(hold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdGotos = hold
}

// FinishGoto completes a held goto.
func (c *Controller) FinishGoto() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running && c.mode == motor.ModeGoto {
		c.position = c.target
		c.running = false
	}
}

// SetPosition moves the axis without recording a call.
func (c *Controller) SetPosition(deg float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = deg
}

// SetRunning forces the running flag, as if the axis had been left moving
// by a previous session.
func (c *Controller) SetRunning(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = running
}

// FailNext makes the next n calls fail with a communication error.
func (c *Controller) FailNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = n
}

// Break makes every following call fail with a communication error.
func (c *Controller) Break() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken = true
}

// Reject makes the next call to the named command fail with code.
func (c *Controller) Reject(command string, code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejects[command] = code
}

// Calls returns the recorded calls, including failed ones.
func (c *Controller) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Commands returns the recorded calls that change controller state,
// leaving out queries.
func (c *Controller) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, call := range c.calls {
		if strings.HasPrefix(call, "Query") {
			continue
		}
		out = append(out, call)
	}
	return out
}

// CallCount returns how many times the named command was called.
func (c *Controller) CallCount(command string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call == command || strings.HasPrefix(call, command+"(") {
			n++
		}
	}
	return n
}

// ResetCalls clears the call record.
func (c *Controller) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

func (c *Controller) Autoguide() motor.AutoguideSpeed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoguide
}

func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// call records a call and applies injected failures. It must be called
// with mu held.
func (c *Controller) call(command, args string) error {
	if args == "" {
		c.calls = append(c.calls, command)
	} else {
		c.calls = append(c.calls, fmt.Sprintf("%s(%s)", command, args))
	}
	if c.broken {
		return fmt.Errorf("%s: %w: link down", command, motor.ErrCommunication)
	}
	if c.failures > 0 {
		c.failures--
		return fmt.Errorf("%s: %w: injected failure", command, motor.ErrCommunication)
	}
	if code, ok := c.rejects[command]; ok {
		delete(c.rejects, command)
		return &motor.ProtocolError{Command: command, Code: code}
	}
	return nil
}

func (c *Controller) SetRate(dir motor.Direction, degPerSec float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("SetRate", fmt.Sprintf("%v, %g", dir, degPerSec)); err != nil {
		return err
	}
	if !c.running {
		c.mode = motor.ModeTracking
		c.dir = dir
	}
	c.speed = degPerSec
	return nil
}

func (c *Controller) StartMotion() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("StartMotion", ""); err != nil {
		return err
	}
	c.running = true
	if c.mode == motor.ModeGoto && !c.holdGotos {
		c.position = c.target
		c.running = false
	}
	return nil
}

func (c *Controller) StopMotion() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("StopMotion", ""); err != nil {
		return err
	}
	c.running = false
	return nil
}

func (c *Controller) EnterGotoMode(dir motor.Direction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("EnterGotoMode", dir.String()); err != nil {
		return err
	}
	if c.running {
		return &motor.ProtocolError{Command: "EnterGotoMode", Code: 2}
	}
	c.mode = motor.ModeGoto
	c.dir = dir
	return nil
}

func (c *Controller) SetGotoTarget(degrees float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("SetGotoTarget", fmt.Sprintf("%g", degrees)); err != nil {
		return err
	}
	c.target = degrees
	return nil
}

func (c *Controller) QueryPosition() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("QueryPosition", ""); err != nil {
		return 0, err
	}
	return c.position, nil
}

func (c *Controller) QueryStatus() (motor.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("QueryStatus", ""); err != nil {
		return motor.Status{}, err
	}
	return motor.Status{Mode: c.mode, Running: c.running, Direction: c.dir}, nil
}

func (c *Controller) QueryRate() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("QueryRate", ""); err != nil {
		return 0, err
	}
	return c.speed, nil
}

func (c *Controller) SetAutoguideSpeed(speed motor.AutoguideSpeed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.call("SetAutoguideSpeed", speed.String()); err != nil {
		return err
	}
	c.autoguide = speed
	return nil
}

func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "Close")
	c.closed = true
	return nil
}
