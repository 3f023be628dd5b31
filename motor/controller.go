package motor

import (
	"errors"
	"fmt"
)

// Controller is the command set of the motor controller on the other end of
// the serial link. Every command is idempotent, so callers may resend a
// command whose reply was lost. Implementations report transport failures
// wrapped in ErrCommunication and rejected commands as *ProtocolError.
type Controller interface {
	// SetRate sets direction and speed in degrees/second. The direction is
	// only applied while the motor is stopped.
	SetRate(dir Direction, degPerSec float64) error
	StartMotion() error
	StopMotion() error
	// EnterGotoMode switches the controller to goto mode in direction dir.
	EnterGotoMode(dir Direction) error
	// SetGotoTarget sets the goto destination in degrees.
	SetGotoTarget(degrees float64) error
	// QueryPosition returns the axis position in degrees.
	QueryPosition() (float64, error)
	QueryStatus() (Status, error)
	// QueryRate returns the current unsigned speed in degrees/second.
	QueryRate() (float64, error)
	SetAutoguideSpeed(speed AutoguideSpeed) error
	Close() error
}

type Mode int

const (
	ModeTracking Mode = iota
	ModeGoto
)

func (m Mode) String() string {
	switch m {
	case ModeTracking:
		return "Tracking"
	case ModeGoto:
		return "Goto"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

type Status struct {
	Mode      Mode
	Running   bool
	Direction Direction
}

var (
	// ErrCommunication marks a failure to exchange a command with the
	// controller: I/O errors, timeouts, malformed replies.
	ErrCommunication = errors.New("motor controller communication error")
	// ErrDisconnected is returned once retrying a command has been
	// exhausted. The hardware link should be considered lost.
	ErrDisconnected = errors.New("motor controller disconnected")
)

// ProtocolError is a command the controller understood and refused. The
// driver never sends such a command on purpose, so it indicates a bug or a
// controller whose state has diverged from the driver's.
type ProtocolError struct {
	Command string
	Code    int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("controller rejected %q with error %d", e.Command, e.Code)
}
