// Package simulator emulates a Star Adventurer motor controller on the other
// end of a net.Pipe.
package simulator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/w1xm/staradventurer/internal/logging"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCPR       = 2764800
	DefaultTimerFreq = 1000000

	positionOffset = 0x800000

	// Goto speed in degrees/second.
	gotoSpeed    = 0.00417809 * 128
	minGotoSpeed = 0.01
	// Maximum acceleration in degrees/second^2
	maxAccel = 1.0
	// Discrete simulation step size
	stepSize = 25 * time.Millisecond
)

// Controller error codes.
const (
	errUnknownCommand = 0
	errLength         = 1
	errNotStopped     = 2
	errInvalid        = 3
	errNotInitialized = 4
)

type Config struct {
	CPR       uint32
	TimerFreq uint32
	// Speedup multiplies simulated time; 1 is real time.
	Speedup float64
	Logger  logging.Logger
}

// State is a snapshot of the simulated axis.
type State struct {
	// Position in counts relative to home.
	Position    float64
	Running     bool
	Goto        bool
	CCW         bool
	Period      uint32
	Target      int64
	Autoguide   int
	Initialized bool
	// Speed is the current speed in degrees/second; it lags the commanded
	// speed while accelerating.
	Speed float64
}

type Simulator struct {
	conn io.ReadWriteCloser
	cfg  Config
	log  logging.Logger

	mu       sync.Mutex
	state    State
	stopping bool
	drop     int
}

// New returns a simulator and the connection a client should use to talk
// to it.
func New(cfg Config) (*Simulator, net.Conn) {
	if cfg.CPR == 0 {
		cfg.CPR = DefaultCPR
	}
	if cfg.TimerFreq == 0 {
		cfg.TimerFreq = DefaultTimerFreq
	}
	if cfg.Speedup <= 0 {
		cfg.Speedup = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop()
	}
	a, b := net.Pipe()
	return &Simulator{conn: a, cfg: cfg, log: cfg.Logger}, b
}

// DropReplies discards the replies to the next n commands. The commands
// themselves still take effect.
func (s *Simulator) DropReplies(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop = n
}

func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetPosition moves the axis to deg degrees from home.
func (s *Simulator) SetPosition(deg float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Position = deg * float64(s.cfg.CPR) / 360
}

func (s *Simulator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return s.conn.Close()
	})
	g.Go(func() error {
		t := time.NewTicker(stepSize)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			s.step()
		}
	})
	g.Go(s.reader)
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Simulator) reader() error {
	r := bufio.NewReader(s.conn)
	for {
		frame, err := r.ReadString('\r')
		if err != nil {
			// io.EOF stops the simulator when the client hangs up.
			return fmt.Errorf("reading port: %w", err)
		}
		frame = strings.TrimSuffix(frame, "\r")
		s.mu.Lock()
		reply := s.handle(frame)
		drop := s.drop > 0
		if drop {
			s.drop--
		}
		s.mu.Unlock()
		s.log.Debug(context.Background(), "simulator command",
			logging.String("frame", frame),
			logging.String("reply", reply),
			logging.Bool("dropped", drop))
		if drop {
			continue
		}
		if _, err := io.WriteString(s.conn, reply+"\r"); err != nil {
			return fmt.Errorf("writing reply: %w", err)
		}
	}
}

func encode24(v uint32) string {
	return fmt.Sprintf("%02X%02X%02X", v&0xFF, (v>>8)&0xFF, (v>>16)&0xFF)
}

func decode24(s string) (uint32, bool) {
	if len(s) != 6 {
		return 0, false
	}
	var v uint32
	for i := 0; i < 3; i++ {
		b, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
		if err != nil {
			return 0, false
		}
		v |= uint32(b) << (8 * i)
	}
	return v, true
}

func fail(code int) string {
	return fmt.Sprintf("!%X", code)
}

// handle executes one command frame and returns the reply. mu must be held.
func (s *Simulator) handle(frame string) string {
	if len(frame) < 3 || frame[0] != ':' {
		return fail(errLength)
	}
	cmd, axis, data := frame[1], frame[2], frame[3:]
	if axis != '1' {
		return fail(errInvalid)
	}
	st := &s.state
	switch cmd {
	case 'a':
		return "=" + encode24(s.cfg.CPR)
	case 'b':
		return "=" + encode24(s.cfg.TimerFreq)
	case 'F':
		st.Initialized = true
		return "="
	}
	if !st.Initialized {
		return fail(errNotInitialized)
	}
	switch cmd {
	case 'G':
		if len(data) != 2 {
			return fail(errLength)
		}
		if st.Running {
			return fail(errNotStopped)
		}
		switch data[0] {
		case '0':
			st.Goto = true
		case '1':
			st.Goto = false
		default:
			return fail(errInvalid)
		}
		st.CCW = data[1] == '1'
	case 'I':
		v, ok := decode24(data)
		if !ok || v == 0 {
			return fail(errInvalid)
		}
		st.Period = v
	case 'S':
		v, ok := decode24(data)
		if !ok {
			return fail(errInvalid)
		}
		st.Target = int64(v) - positionOffset
	case 'J':
		if st.Goto || st.Period != 0 {
			st.Running = true
			s.stopping = false
		}
	case 'K':
		if st.Running {
			s.stopping = true
		}
	case 'P':
		n, err := strconv.Atoi(data)
		if err != nil || n < 0 || n > 4 {
			return fail(errInvalid)
		}
		st.Autoguide = n
	case 'f':
		a := 0
		if !st.Goto {
			a |= 1
		}
		if st.CCW {
			a |= 2
		}
		b := 0
		if st.Running {
			b = 1
		}
		c := 0
		if st.Initialized {
			c = 1
		}
		return fmt.Sprintf("=%X%X%X", a, b, c)
	case 'i':
		return "=" + encode24(st.Period)
	case 'j':
		return "=" + encode24(uint32(int64(math.Round(st.Position))+positionOffset))
	default:
		return fail(errUnknownCommand)
	}
	return "="
}

func (s *Simulator) countsPerDegree() float64 {
	return float64(s.cfg.CPR) / 360
}

// commandedSpeed is the speed the axis is driving towards in degrees/second.
func (s *Simulator) commandedSpeed() float64 {
	st := &s.state
	if !st.Running || s.stopping {
		return 0
	}
	if st.Goto {
		remaining := math.Abs(float64(st.Target)-st.Position) / s.countsPerDegree()
		// Slow down in time to stop on the target.
		return math.Min(gotoSpeed, math.Max(minGotoSpeed, math.Sqrt(2*maxAccel*remaining)))
	}
	return float64(s.cfg.TimerFreq) / float64(st.Period) / s.countsPerDegree()
}

func (s *Simulator) step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &s.state
	if !st.Running {
		st.Speed = 0
		return
	}
	dt := stepSize.Seconds() * s.cfg.Speedup
	want := s.commandedSpeed()
	if delta := want - st.Speed; math.Abs(delta) > maxAccel*dt {
		st.Speed += math.Copysign(maxAccel*dt, delta)
	} else {
		st.Speed = want
	}
	sign := 1.0
	if st.CCW {
		sign = -1
	}
	if st.Goto {
		if float64(st.Target) < st.Position {
			sign = -1
		} else {
			sign = 1
		}
	}
	move := st.Speed * dt * s.countsPerDegree()
	if st.Goto && move >= math.Abs(float64(st.Target)-st.Position) {
		st.Position = float64(st.Target)
		st.Running, st.Speed = false, 0
		s.stopping = false
		return
	}
	st.Position += sign * move
	if s.stopping && st.Speed == 0 {
		st.Running = false
		s.stopping = false
	}
}
