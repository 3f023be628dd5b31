package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/w1xm/staradventurer/ascom"
	"github.com/w1xm/staradventurer/internal/logging"
	"github.com/w1xm/staradventurer/motor"
	"github.com/w1xm/staradventurer/mount"
	"github.com/w1xm/staradventurer/staradventurer"
)

type Server struct {
	sa  *staradventurer.StarAdventurer
	log logging.Logger

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     staradventurer.Status
	seq        uint64
}

func NewServer(sa *staradventurer.StarAdventurer, log logging.Logger) *Server {
	s := &Server{sa: sa, log: log}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// PublishStatus refreshes the status every interval until ctx is done.
func (s *Server) PublishStatus(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s.statusMu.Lock()
		s.status = s.sa.Status()
		s.seq++
		s.statusMu.Unlock()
		s.statusCond.Broadcast()
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		s.log.Error(r.Context(), "encoding status", logging.Err(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

type Command struct {
	Command string `json:"command"`
	// ID is echoed in the result.
	ID        int     `json:"id"`
	RA        float64 `json:"ra"`
	Dec       float64 `json:"dec"`
	Alt       float64 `json:"alt"`
	Az        float64 `json:"az"`
	On        bool    `json:"on"`
	Rate      float64 `json:"rate"`
	Direction int     `json:"direction"`
	// DurationMS is the pulse guide duration in milliseconds.
	DurationMS int    `json:"duration_ms"`
	Action     string `json:"action"`
	Parameters string `json:"parameters"`
}

// Result reports the outcome of a Command in the device protocol's terms.
type Result struct {
	ID           int    `json:"id"`
	Command      string `json:"command"`
	Value        string `json:"value,omitempty"`
	ErrorNumber  int    `json:"error_number"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func started(_ *mount.Completion, err error) error { return err }

// Execute runs a command. Slews, parking and pulse guides return as soon as
// they have started.
func (s *Server) Execute(ctx context.Context, msg Command) Result {
	var (
		value string
		err   error
	)
	sa := s.sa
	switch msg.Command {
	case "connect":
		err = sa.SetConnected(ctx, true)
	case "disconnect":
		err = sa.SetConnected(ctx, false)
	case "sync_to_coordinates":
		err = sa.SyncToCoordinates(ctx, msg.RA, msg.Dec)
	case "sync_to_alt_az":
		err = sa.SyncToAltAz(ctx, msg.Alt, msg.Az)
	case "slew_to_coordinates":
		err = started(sa.SlewToCoordinates(msg.RA, msg.Dec))
	case "slew_to_alt_az":
		err = started(sa.SlewToAltAz(msg.Alt, msg.Az))
	case "abort_slew":
		err = sa.AbortSlew(ctx)
	case "set_tracking":
		err = sa.SetTracking(ctx, msg.On)
	case "set_tracking_rate":
		err = sa.SetTrackingRate(ctx, motor.TrackingRate(int(msg.Rate)))
	case "park":
		err = started(sa.Park())
	case "unpark":
		err = sa.Unpark(ctx)
	case "set_park":
		err = sa.SetPark()
	case "pulse_guide":
		d := time.Duration(msg.DurationMS) * time.Millisecond
		err = started(sa.PulseGuide(staradventurer.GuideDirection(msg.Direction), d))
	case "move_axis":
		err = sa.MoveAxis(ctx, staradventurer.AxisPrimary, msg.Rate)
	case "action":
		value, err = sa.Action(msg.Action, msg.Parameters)
	default:
		err = ascom.NotImplementedf("unknown command %q", msg.Command)
	}
	res := Result{ID: msg.ID, Command: msg.Command, Value: value}
	if err != nil {
		s.log.Warn(ctx, "command failed",
			logging.String("command", msg.Command),
			logging.Err(err))
		res.ErrorNumber = int(ascom.CodeOf(err))
		res.ErrorMessage = ascom.Message(err)
	}
	return res
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(ctx, "upgrading websocket", logging.Err(err))
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(v interface{}) bool {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(v); err != nil {
			s.log.Debug(ctx, "writing websocket", logging.Err(err))
			return false
		}
		return true
	}

	// Read and process incoming messages
	go func() {
		defer cancel()
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if !send(s.Execute(ctx, msg)) {
				return
			}
		}
	}()

	var last uint64
	for {
		s.statusMu.RLock()
		for s.seq == last && ctx.Err() == nil {
			s.statusCond.Wait()
		}
		status, seq := s.status, s.seq
		s.statusMu.RUnlock()
		if ctx.Err() != nil {
			return
		}
		last = seq
		if !send(status) {
			return
		}
	}
}
