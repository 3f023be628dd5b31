package skywatcher

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/staradventurer/motor"
	"github.com/w1xm/staradventurer/skywatcher/simulator"
)

func TestEncode24(t *testing.T) {
	for _, test := range []struct {
		value uint32
		want  string
	}{
		{0, "000000"},
		{0x123456, "563412"},
		{positionOffset, "000080"},
		{simulator.DefaultCPR, "00302A"},
		{maxValue, "FFFFFF"},
	} {
		got := encode24(test.value)
		if got != test.want {
			t.Errorf("encode24(%#x) = %q, want %q", test.value, got, test.want)
		}
		back, err := decode24(got)
		if err != nil {
			t.Errorf("decode24(%q): %v", got, err)
		}
		if back != test.value {
			t.Errorf("decode24(%q) = %#x, want %#x", got, back, test.value)
		}
	}
}

func TestDecode24Malformed(t *testing.T) {
	for _, input := range []string{"", "12345", "1234567", "12345G"} {
		if _, err := decode24(input); err == nil {
			t.Errorf("decode24(%q) succeeded", input)
		}
	}
}

func TestParseReply(t *testing.T) {
	for _, test := range []struct {
		reply    string
		want     string
		wantCode int
		wantComm bool
	}{
		{reply: "=", want: ""},
		{reply: "=563412", want: "563412"},
		{reply: "!2", wantCode: 2},
		{reply: "!", wantComm: true},
		{reply: "", wantComm: true},
		{reply: "563412", wantComm: true},
	} {
		t.Run(test.reply, func(t *testing.T) {
			got, err := parseReply("j", test.reply)
			var perr *motor.ProtocolError
			switch {
			case test.wantComm:
				if !errors.Is(err, motor.ErrCommunication) {
					t.Errorf("parseReply(%q) = %v, want communication error", test.reply, err)
				}
			case test.wantCode != 0:
				if !errors.As(err, &perr) || perr.Code != test.wantCode {
					t.Errorf("parseReply(%q) = %v, want protocol error %d", test.reply, err, test.wantCode)
				}
			default:
				if err != nil || got != test.want {
					t.Errorf("parseReply(%q) = %q, %v, want %q", test.reply, got, err, test.want)
				}
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	for _, test := range []struct {
		reply string
		want  motor.Status
	}{
		{"101", motor.Status{Mode: motor.ModeTracking, Direction: motor.Clockwise}},
		{"111", motor.Status{Mode: motor.ModeTracking, Running: true, Direction: motor.Clockwise}},
		{"311", motor.Status{Mode: motor.ModeTracking, Running: true, Direction: motor.CounterClockwise}},
		{"011", motor.Status{Mode: motor.ModeGoto, Running: true, Direction: motor.Clockwise}},
		{"201", motor.Status{Mode: motor.ModeGoto, Direction: motor.CounterClockwise}},
	} {
		t.Run(test.reply, func(t *testing.T) {
			got, err := parseStatus(test.reply)
			if err != nil {
				t.Fatalf("parseStatus: %v", err)
			}
			if diff := cmp.Diff(got, test.want); diff != "" {
				t.Errorf("unexpected status: got(-)/want(+):\n%s", diff)
			}
		})
	}
	if _, err := parseStatus("1"); !errors.Is(err, motor.ErrCommunication) {
		t.Errorf("parseStatus(short) = %v, want communication error", err)
	}
}

func startSimulator(t *testing.T, timeout time.Duration) (*Controller, *simulator.Simulator) {
	t.Helper()
	sim, conn := simulator.New(simulator.Config{Speedup: 50})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("simulator: %v", err)
		}
	})
	c, err := New(conn, timeout, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, sim
}

func waitStopped(t *testing.T, c *Controller) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		status, err := c.QueryStatus()
		if err != nil {
			t.Fatalf("QueryStatus: %v", err)
		}
		if !status.Running {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("axis did not stop")
}

func TestHandshake(t *testing.T) {
	c, sim := startSimulator(t, time.Second)
	if got := c.CountsPerRevolution(); got != simulator.DefaultCPR {
		t.Errorf("CountsPerRevolution() = %d, want %d", got, simulator.DefaultCPR)
	}
	if got := c.TimerFrequency(); got != simulator.DefaultTimerFreq {
		t.Errorf("TimerFrequency() = %d, want %d", got, simulator.DefaultTimerFreq)
	}
	if !sim.State().Initialized {
		t.Error("simulator not initialized after handshake")
	}
}

func TestTracking(t *testing.T) {
	c, _ := startSimulator(t, time.Second)
	if err := c.SetRate(motor.CounterClockwise, motor.SiderealRate); err != nil {
		t.Fatalf("SetRate: %v", err)
	}
	if err := c.StartMotion(); err != nil {
		t.Fatalf("StartMotion: %v", err)
	}
	status, err := c.QueryStatus()
	if err != nil {
		t.Fatalf("QueryStatus: %v", err)
	}
	want := motor.Status{Mode: motor.ModeTracking, Running: true, Direction: motor.CounterClockwise}
	if diff := cmp.Diff(status, want); diff != "" {
		t.Errorf("unexpected status: got(-)/want(+):\n%s", diff)
	}
	rate, err := c.QueryRate()
	if err != nil {
		t.Fatalf("QueryRate: %v", err)
	}
	if !motor.Sidereal.MotionRate().Near(rate, motor.TrackingDirection) {
		t.Errorf("QueryRate() = %v, want about %v", rate, motor.SiderealRate)
	}

	// The mode cannot change while running.
	var perr *motor.ProtocolError
	if err := c.EnterGotoMode(motor.Clockwise); !errors.As(err, &perr) || perr.Code != 2 {
		t.Errorf("EnterGotoMode while running = %v, want protocol error 2", err)
	}

	if err := c.StopMotion(); err != nil {
		t.Fatalf("StopMotion: %v", err)
	}
	waitStopped(t, c)
}

func TestGoto(t *testing.T) {
	c, sim := startSimulator(t, time.Second)
	sim.SetPosition(-5)
	if err := c.EnterGotoMode(motor.Clockwise); err != nil {
		t.Fatalf("EnterGotoMode: %v", err)
	}
	if err := c.SetGotoTarget(10); err != nil {
		t.Fatalf("SetGotoTarget: %v", err)
	}
	if err := c.StartMotion(); err != nil {
		t.Fatalf("StartMotion: %v", err)
	}
	waitStopped(t, c)
	pos, err := c.QueryPosition()
	if err != nil {
		t.Fatalf("QueryPosition: %v", err)
	}
	if tol := 360.0 / simulator.DefaultCPR; math.Abs(pos-10) > tol {
		t.Errorf("QueryPosition() = %v, want 10", pos)
	}
}

func TestDroppedReply(t *testing.T) {
	c, sim := startSimulator(t, 50*time.Millisecond)
	sim.SetPosition(20)
	sim.DropReplies(1)
	if _, err := c.QueryPosition(); !errors.Is(err, motor.ErrCommunication) {
		t.Fatalf("QueryPosition with dropped reply = %v, want communication error", err)
	}
	pos, err := c.QueryPosition()
	if err != nil {
		t.Fatalf("QueryPosition after dropped reply: %v", err)
	}
	if tol := 360.0 / simulator.DefaultCPR; math.Abs(pos-20) > tol {
		t.Errorf("QueryPosition() = %v, want 20", pos)
	}
}

func TestMotorRetriesDroppedReplies(t *testing.T) {
	c, sim := startSimulator(t, 50*time.Millisecond)
	m := motor.New(c, motor.Config{
		RatePoll: 10 * time.Millisecond,
		StopPoll: 10 * time.Millisecond,
		GotoPoll: 10 * time.Millisecond,
		Retry:    motor.RetryPolicy{MaxRetries: 4, InitialInterval: time.Millisecond},
	})
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	sim.DropReplies(2)
	h, err := m.ChangeRate(motor.Stationary, motor.Sidereal.MotionRate())
	if err != nil {
		t.Fatalf("ChangeRate: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Wait(ctx); err != nil {
		t.Fatalf("ChangeRate wait: %v", err)
	}
	if st := sim.State(); !st.Running || st.Goto {
		t.Errorf("simulator state %+v, want tracking", st)
	}
}

func TestAutoguideSpeed(t *testing.T) {
	c, sim := startSimulator(t, time.Second)
	if err := c.SetAutoguideSpeed(motor.AutoguideQuarter); err != nil {
		t.Fatalf("SetAutoguideSpeed: %v", err)
	}
	if got := sim.State().Autoguide; got != int(motor.AutoguideQuarter) {
		t.Errorf("simulator autoguide = %d, want %d", got, motor.AutoguideQuarter)
	}
}
