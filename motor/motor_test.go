package motor_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/w1xm/staradventurer/internal/metrics"
	"github.com/w1xm/staradventurer/motor"
	"github.com/w1xm/staradventurer/motor/motortest"
)

func testConfig() motor.Config {
	return motor.Config{
		RatePoll:      time.Millisecond,
		StopPoll:      time.Millisecond,
		GotoPoll:      time.Millisecond,
		SettleTimeout: time.Second,
		Retry: motor.RetryPolicy{
			MaxRetries:      4,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
	}
}

func newMotor(t *testing.T) (*motor.Motor, *motortest.Controller) {
	t.Helper()
	ctrl := motortest.New()
	m := motor.New(ctrl, testConfig())
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctrl.ResetCalls()
	return m, ctrl
}

func changeRate(t *testing.T, m *motor.Motor, from, to motor.MotionRate) {
	t.Helper()
	h, err := m.ChangeRate(from, to)
	if err != nil {
		t.Fatalf("ChangeRate(%v, %v): %v", from, to, err)
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("ChangeRate(%v, %v) wait: %v", from, to, err)
	}
}

func TestInitStopsRunningAxis(t *testing.T) {
	ctrl := motortest.New()
	ctrl.SetRunning(true)
	m := motor.New(ctrl, testConfig())
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if diff := cmp.Diff(ctrl.Commands(), []string{"StopMotion"}); diff != "" {
		t.Errorf("commands mismatch got(-)/want(+):\n%s", diff)
	}
	if got := m.Phase(); got != motor.PhaseStationary {
		t.Errorf("Phase() = %v, want Stationary", got)
	}
}

func TestChangeRateSameRate(t *testing.T) {
	m, ctrl := newMotor(t)
	r := motor.Sidereal.MotionRate()
	h, err := m.ChangeRate(r, r)
	if err != nil {
		t.Fatalf("ChangeRate: %v", err)
	}
	select {
	case <-h.Done():
	default:
		t.Fatal("ChangeRate(r, r) did not resolve immediately")
	}
	if calls := ctrl.Calls(); len(calls) != 0 {
		t.Errorf("ChangeRate(r, r) issued %v", calls)
	}
}

func TestChangeRate(t *testing.T) {
	track := motor.Sidereal.MotionRate()
	fast := motor.NewMotionRate(motor.SiderealRate*2, motor.Clockwise)
	back := motor.NewMotionRate(motor.MinSlewSpeed, motor.CounterClockwise)
	for _, test := range []struct {
		name      string
		from, to  motor.MotionRate
		want      []string
		wantPhase motor.Phase
	}{
		{
			name: "start",
			from: motor.Stationary,
			to:   track,
			want: []string{
				fmt.Sprintf("SetRate(Clockwise, %g)", motor.SiderealRate),
				"StartMotion",
			},
			wantPhase: motor.PhaseMovingAtRate,
		},
		{
			name:      "stop",
			from:      track,
			to:        motor.Stationary,
			want:      []string{"StopMotion"},
			wantPhase: motor.PhaseStationary,
		},
		{
			name:      "same direction",
			from:      track,
			to:        fast,
			want:      []string{fmt.Sprintf("SetRate(Clockwise, %g)", motor.SiderealRate*2)},
			wantPhase: motor.PhaseMovingAtRate,
		},
		{
			name: "reverse",
			from: track,
			to:   back,
			want: []string{
				"StopMotion",
				fmt.Sprintf("SetRate(CounterClockwise, %g)", motor.MinSlewSpeed),
				"StartMotion",
			},
			wantPhase: motor.PhaseMovingAtRate,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			m, ctrl := newMotor(t)
			changeRate(t, m, motor.Stationary, test.from)
			ctrl.ResetCalls()

			changeRate(t, m, test.from, test.to)
			if diff := cmp.Diff(ctrl.Commands(), test.want); diff != "" {
				t.Errorf("commands mismatch got(-)/want(+):\n%s", diff)
			}
			if got := m.Phase(); got != test.wantPhase {
				t.Errorf("Phase() = %v, want %v", got, test.wantPhase)
			}
			if got := m.Rate(); got != test.to {
				t.Errorf("Rate() = %v, want %v", got, test.to)
			}
		})
	}
}

func TestGoto(t *testing.T) {
	for _, test := range []struct {
		name   string
		from   float64
		target float64
		dir    string
	}{
		{"forward", 10, 40, "Clockwise"},
		{"backward", 10, -170, "CounterClockwise"},
	} {
		t.Run(test.name, func(t *testing.T) {
			m, ctrl := newMotor(t)
			ctrl.SetPosition(test.from)
			g, err := m.Goto(test.target)
			if err != nil {
				t.Fatalf("Goto: %v", err)
			}
			if err := g.Wait(context.Background()); err != nil {
				t.Fatalf("Wait: %v", err)
			}
			want := []string{
				fmt.Sprintf("EnterGotoMode(%s)", test.dir),
				fmt.Sprintf("SetGotoTarget(%g)", test.target),
				"StartMotion",
			}
			if diff := cmp.Diff(ctrl.Commands(), want); diff != "" {
				t.Errorf("commands mismatch got(-)/want(+):\n%s", diff)
			}
			pos, err := m.Position()
			if err != nil {
				t.Fatalf("Position: %v", err)
			}
			if pos != test.target {
				t.Errorf("Position() = %v, want %v", pos, test.target)
			}
			if got := m.Phase(); got != motor.PhaseStationary {
				t.Errorf("Phase() = %v, want Stationary", got)
			}
		})
	}
}

func TestGotoAbort(t *testing.T) {
	m, ctrl := newMotor(t)
	ctrl.HoldGotos(true)
	g, err := m.Goto(90)
	if err != nil {
		t.Fatalf("Goto: %v", err)
	}
	if got := m.Phase(); got != motor.PhaseGotoing {
		t.Errorf("Phase() = %v, want Gotoing", got)
	}
	if err := g.Abort(); !errors.Is(err, motor.ErrAborted) {
		t.Errorf("Abort() = %v, want %v", err, motor.ErrAborted)
	}
	if n := ctrl.CallCount("StopMotion"); n != 1 {
		t.Errorf("StopMotion called %d times, want 1", n)
	}
	if got := m.Phase(); got != motor.PhaseStationary {
		t.Errorf("Phase() = %v, want Stationary", got)
	}
	// A second abort is a no-op.
	if err := g.Abort(); !errors.Is(err, motor.ErrAborted) {
		t.Errorf("second Abort() = %v", err)
	}
	if n := ctrl.CallCount("StopMotion"); n != 1 {
		t.Errorf("StopMotion called %d times after second abort, want 1", n)
	}
}

func TestGotoWaitCancelled(t *testing.T) {
	m, ctrl := newMotor(t)
	ctrl.HoldGotos(true)
	g, err := m.Goto(90)
	if err != nil {
		t.Fatalf("Goto: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want %v", err, context.Canceled)
	}
	if n := ctrl.CallCount("StopMotion"); n != 1 {
		t.Errorf("StopMotion called %d times, want 1", n)
	}
}

func TestGotoCompletesWhenHeldGotoFinishes(t *testing.T) {
	m, ctrl := newMotor(t)
	ctrl.HoldGotos(true)
	g, err := m.Goto(30)
	if err != nil {
		t.Fatalf("Goto: %v", err)
	}
	ctrl.FinishGoto()
	if err := g.Wait(context.Background()); err != nil {
		t.Errorf("Wait() = %v", err)
	}
	if err := g.Abort(); err != nil {
		t.Errorf("Abort() after completion = %v, want nil", err)
	}
	if n := ctrl.CallCount("StopMotion"); n != 0 {
		t.Errorf("StopMotion called %d times, want 0", n)
	}
}

func TestGotoWhileMovingPanics(t *testing.T) {
	m, _ := newMotor(t)
	changeRate(t, m, motor.Stationary, motor.Sidereal.MotionRate())
	defer func() {
		if recover() == nil {
			t.Error("Goto while tracking did not panic")
		}
	}()
	m.Goto(10)
}

func TestRetry(t *testing.T) {
	ctrl := motortest.New()
	reg := prometheus.NewRegistry()
	met, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("metrics.New: %v", err)
	}
	cfg := testConfig()
	cfg.Metrics = met
	m := motor.New(ctrl, cfg)

	ctrl.FailNext(2)
	pos, err := m.Position()
	if err != nil {
		t.Fatalf("Position() = %v", err)
	}
	if pos != 0 {
		t.Errorf("Position() = %v, want 0", pos)
	}
	if n := ctrl.CallCount("QueryPosition"); n != 3 {
		t.Errorf("QueryPosition called %d times, want 3", n)
	}
	if got := testutil.ToFloat64(met.Retries); got != 2 {
		t.Errorf("retries = %v, want 2", got)
	}
}

func TestRetryExhausted(t *testing.T) {
	m, ctrl := newMotor(t)
	ctrl.Break()
	_, err := m.ChangeRate(motor.Stationary, motor.Sidereal.MotionRate())
	if !errors.Is(err, motor.ErrDisconnected) {
		t.Fatalf("ChangeRate() = %v, want %v", err, motor.ErrDisconnected)
	}
	// One attempt plus four retries.
	if n := ctrl.CallCount("SetRate"); n != 5 {
		t.Errorf("SetRate called %d times, want 5", n)
	}
}

func TestRejectedCommandPanics(t *testing.T) {
	m, ctrl := newMotor(t)
	ctrl.Reject("StopMotion", 3)
	defer func() {
		if recover() == nil {
			t.Error("rejected command did not panic")
		}
		if n := ctrl.CallCount("StopMotion"); n != 1 {
			t.Errorf("rejected command sent %d times, want 1", n)
		}
	}()
	m.Stop()
}

func TestAutoguideSpeed(t *testing.T) {
	m, ctrl := newMotor(t)
	if err := m.SetAutoguideSpeed(motor.AutoguideHalf); err != nil {
		t.Fatalf("SetAutoguideSpeed: %v", err)
	}
	if got := ctrl.Autoguide(); got != motor.AutoguideHalf {
		t.Errorf("controller autoguide = %v, want %v", got, motor.AutoguideHalf)
	}
}
