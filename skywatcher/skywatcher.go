// Package skywatcher speaks the SkyWatcher motor controller protocol used by
// the Star Adventurer.
//
// Commands are framed as ":<cmd><axis><data>\r" and answered with
// "=<data>\r" or "!<code>\r". Numeric payloads are 24-bit values encoded as
// six hex digits with the least significant byte first.
package skywatcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
	"github.com/w1xm/staradventurer/internal/logging"
	"github.com/w1xm/staradventurer/motor"
)

const (
	// positionOffset is the counter value the controller reports at the
	// home position.
	positionOffset = 0x800000
	maxValue       = 0xFFFFFF

	// Axis is the right ascension axis. It is the only axis the mount has.
	Axis = '1'

	DefaultBaud    = 115200
	DefaultTimeout = 200 * time.Millisecond
)

// Command letters.
const (
	cmdInquireCPR       = 'a'
	cmdInquireTimerFreq = 'b'
	cmdInitDone         = 'F'
	cmdSetMotionMode    = 'G'
	cmdSetStepPeriod    = 'I'
	cmdStartMotion      = 'J'
	cmdStopMotion       = 'K'
	cmdSetGotoTarget    = 'S'
	cmdSetAutoguide     = 'P'
	cmdInquireStatus    = 'f'
	cmdInquirePeriod    = 'i'
	cmdInquirePosition  = 'j'
)

// Motion mode digits for the G command.
const (
	modeGoto     = '0'
	modeTracking = '1'
)

type Config struct {
	Port    string
	Baud    int
	Timeout time.Duration
	Logger  logging.Logger
}

// Controller is a motor.Controller talking to a SkyWatcher controller over
// a serial link. It is safe for concurrent use; commands are serialized.
type Controller struct {
	log     logging.Logger
	timeout time.Duration

	mu   sync.Mutex
	conn io.ReadWriteCloser
	r    *bufio.Reader

	cpr  uint32
	freq uint32
}

var _ motor.Controller = (*Controller)(nil)

// Dial opens the serial port and initializes the controller.
func Dial(cfg Config) (*Controller, error) {
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	s, err := serial.OpenPort(&serial.Config{Name: cfg.Port, Baud: cfg.Baud, ReadTimeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", cfg.Port, err)
	}
	c, err := New(s, cfg.Timeout, cfg.Logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	return c, nil
}

// New initializes a controller reachable over conn. If conn supports read
// deadlines, each reply must arrive within timeout.
func New(conn io.ReadWriteCloser, timeout time.Duration, log logging.Logger) (*Controller, error) {
	if log == nil {
		log = logging.Noop()
	}
	c := &Controller{
		log:     log,
		timeout: timeout,
		conn:    conn,
		r:       bufio.NewReader(conn),
	}
	cpr, err := c.inquire(cmdInquireCPR)
	if err != nil {
		return nil, fmt.Errorf("reading counts per revolution: %w", err)
	}
	freq, err := c.inquire(cmdInquireTimerFreq)
	if err != nil {
		return nil, fmt.Errorf("reading timer frequency: %w", err)
	}
	if cpr == 0 || freq == 0 {
		return nil, fmt.Errorf("%w: controller reported cpr=%d freq=%d", motor.ErrCommunication, cpr, freq)
	}
	c.cpr, c.freq = cpr, freq
	if _, err := c.command(cmdInitDone, ""); err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}
	c.log.Info(context.Background(), "controller initialized",
		logging.Int("cpr", int(cpr)),
		logging.Int("timer_freq", int(freq)))
	return c, nil
}

// CountsPerRevolution is the number of position counts in one turn of the
// axis.
func (c *Controller) CountsPerRevolution() uint32 { return c.cpr }

func (c *Controller) TimerFrequency() uint32 { return c.freq }

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// command sends one command and returns the reply payload.
func (c *Controller) command(cmd byte, data string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	frame := fmt.Sprintf(":%c%c%s\r", cmd, Axis, data)
	if _, err := io.WriteString(c.conn, frame); err != nil {
		return "", fmt.Errorf("%w: writing %q: %v", motor.ErrCommunication, frame, err)
	}
	if d, ok := c.conn.(deadliner); ok && c.timeout > 0 {
		d.SetReadDeadline(time.Now().Add(c.timeout))
	}
	reply, err := c.r.ReadString('\r')
	if err != nil {
		// Drop whatever part of the reply was buffered.
		c.r = bufio.NewReader(c.conn)
		return "", fmt.Errorf("%w: reading reply to %q: %v", motor.ErrCommunication, frame, err)
	}
	reply = strings.TrimSuffix(reply, "\r")
	c.log.Debug(context.Background(), "command",
		logging.String("frame", strings.TrimSuffix(frame, "\r")),
		logging.String("reply", reply))
	return parseReply(string(cmd), reply)
}

func parseReply(cmd, reply string) (string, error) {
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply to %s", motor.ErrCommunication, cmd)
	}
	switch reply[0] {
	case '=':
		return reply[1:], nil
	case '!':
		code, err := strconv.ParseInt(reply[1:], 16, 32)
		if err != nil {
			return "", fmt.Errorf("%w: malformed error reply %q to %s", motor.ErrCommunication, reply, cmd)
		}
		return "", &motor.ProtocolError{Command: cmd, Code: int(code)}
	}
	return "", fmt.Errorf("%w: malformed reply %q to %s", motor.ErrCommunication, reply, cmd)
}

func (c *Controller) inquire(cmd byte) (uint32, error) {
	reply, err := c.command(cmd, "")
	if err != nil {
		return 0, err
	}
	v, err := decode24(reply)
	if err != nil {
		return 0, fmt.Errorf("%w: %c: %v", motor.ErrCommunication, cmd, err)
	}
	return v, nil
}

// encode24 encodes v as six hex digits, least significant byte first.
func encode24(v uint32) string {
	return fmt.Sprintf("%02X%02X%02X", v&0xFF, (v>>8)&0xFF, (v>>16)&0xFF)
}

func decode24(s string) (uint32, error) {
	if len(s) != 6 {
		return 0, fmt.Errorf("24-bit value %q has %d digits", s, len(s))
	}
	var v uint32
	for i := 0; i < 3; i++ {
		b, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("24-bit value %q: %w", s, err)
		}
		v |= uint32(b) << (8 * i)
	}
	return v, nil
}

func directionDigit(dir motor.Direction) byte {
	if dir == motor.CounterClockwise {
		return '1'
	}
	return '0'
}

func (c *Controller) degreesToCounts(deg float64) int64 {
	return int64(math.Round(deg * float64(c.cpr) / 360))
}

func (c *Controller) countsToDegrees(counts int64) float64 {
	return float64(counts) * 360 / float64(c.cpr)
}

// stepPeriod converts a speed in degrees/second to the controller's step
// period in timer ticks.
func (c *Controller) stepPeriod(degPerSec float64) uint32 {
	if degPerSec <= 0 {
		return maxValue
	}
	p := math.Round(float64(c.freq) * 360 / (float64(c.cpr) * degPerSec))
	if p < 1 {
		return 1
	}
	if p > maxValue {
		return maxValue
	}
	return uint32(p)
}

func (c *Controller) periodSpeed(period uint32) float64 {
	if period == 0 {
		return 0
	}
	return float64(c.freq) * 360 / (float64(c.cpr) * float64(period))
}

// SetRate selects tracking mode and direction when the axis is stopped and
// sets the step period. While running only the period changes.
func (c *Controller) SetRate(dir motor.Direction, degPerSec float64) error {
	status, err := c.QueryStatus()
	if err != nil {
		return err
	}
	if !status.Running {
		if _, err := c.command(cmdSetMotionMode, string([]byte{modeTracking, directionDigit(dir)})); err != nil {
			return err
		}
	}
	_, err = c.command(cmdSetStepPeriod, encode24(c.stepPeriod(degPerSec)))
	return err
}

func (c *Controller) StartMotion() error {
	_, err := c.command(cmdStartMotion, "")
	return err
}

func (c *Controller) StopMotion() error {
	_, err := c.command(cmdStopMotion, "")
	return err
}

func (c *Controller) EnterGotoMode(dir motor.Direction) error {
	_, err := c.command(cmdSetMotionMode, string([]byte{modeGoto, directionDigit(dir)}))
	return err
}

func (c *Controller) SetGotoTarget(degrees float64) error {
	counts := c.degreesToCounts(degrees) + positionOffset
	if counts < 0 || counts > maxValue {
		return &motor.ProtocolError{Command: string(cmdSetGotoTarget), Code: 3}
	}
	_, err := c.command(cmdSetGotoTarget, encode24(uint32(counts)))
	return err
}

func (c *Controller) QueryPosition() (float64, error) {
	v, err := c.inquire(cmdInquirePosition)
	if err != nil {
		return 0, err
	}
	return c.countsToDegrees(int64(v) - positionOffset), nil
}

// QueryStatus decodes the three status digits: mode and direction, running,
// and initialized.
func (c *Controller) QueryStatus() (motor.Status, error) {
	reply, err := c.command(cmdInquireStatus, "")
	if err != nil {
		return motor.Status{}, err
	}
	return parseStatus(reply)
}

func parseStatus(reply string) (motor.Status, error) {
	if len(reply) != 3 {
		return motor.Status{}, fmt.Errorf("%w: status %q has %d digits", motor.ErrCommunication, reply, len(reply))
	}
	var digits [3]uint64
	for i := range digits {
		d, err := strconv.ParseUint(reply[i:i+1], 16, 8)
		if err != nil {
			return motor.Status{}, fmt.Errorf("%w: status %q: %v", motor.ErrCommunication, reply, err)
		}
		digits[i] = d
	}
	status := motor.Status{
		Mode:      motor.ModeGoto,
		Running:   digits[1]&1 != 0,
		Direction: motor.Clockwise,
	}
	if digits[0]&1 != 0 {
		status.Mode = motor.ModeTracking
	}
	if digits[0]&2 != 0 {
		status.Direction = motor.CounterClockwise
	}
	return status, nil
}

func (c *Controller) QueryRate() (float64, error) {
	period, err := c.inquire(cmdInquirePeriod)
	if err != nil {
		return 0, err
	}
	return c.periodSpeed(period), nil
}

func (c *Controller) SetAutoguideSpeed(speed motor.AutoguideSpeed) error {
	if !speed.Valid() {
		return &motor.ProtocolError{Command: string(cmdSetAutoguide), Code: 3}
	}
	_, err := c.command(cmdSetAutoguide, strconv.Itoa(int(speed)))
	return err
}

func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
