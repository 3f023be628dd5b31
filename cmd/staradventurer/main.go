// Command staradventurer runs the mount driver and serves its status over
// HTTP and a websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/w1xm/staradventurer/internal/logging"
	"github.com/w1xm/staradventurer/internal/metrics"
	"github.com/w1xm/staradventurer/motor"
	"github.com/w1xm/staradventurer/skywatcher"
	"github.com/w1xm/staradventurer/skywatcher/simulator"
	"github.com/w1xm/staradventurer/slew"
	"github.com/w1xm/staradventurer/staradventurer"
	"golang.org/x/sync/errgroup"
)

var (
	listen         = flag.String("listen", "127.0.0.1:8502", "address to serve HTTP on")
	staticDir      = flag.String("static_dir", "static", "directory containing static files")
	serialPort     = flag.String("serial", staradventurer.DefaultSerial, "serial port name")
	serialBaud     = flag.Int("baud", skywatcher.DefaultBaud, "serial baud rate")
	serialTimeout  = flag.Duration("serial_timeout", skywatcher.DefaultTimeout, "reply timeout for each command")
	latitude       = flag.Float64("latitude", 0, "site latitude in degrees")
	longitude      = flag.Float64("longitude", 0, "site longitude in degrees east")
	elevation      = flag.Float64("elevation", 0, "site elevation in meters")
	settleTime     = flag.Duration("settle_time", 0, "time to wait after a slew")
	instantDec     = flag.Bool("instant_dec_slew", false, "assume declination changes happen instantly")
	limitEast      = flag.Float64("limit_east", 0, "east mechanical hour angle limit in hours")
	limitWest      = flag.Float64("limit_west", 24, "west mechanical hour angle limit in hours")
	parkPosition   = flag.Float64("park", 0, "park position as a mechanical hour angle in hours")
	pierWest       = flag.Bool("pier_west", false, "the telescope starts on the west side of the pier")
	statusInterval = flag.Duration("status_interval", time.Second, "interval between status updates")
	connect        = flag.Bool("connect", false, "connect to the mount at startup")
	simulate       = flag.Bool("simulate", false, "drive a simulated mount instead of the serial port")
	speedup        = flag.Float64("simulate_speedup", 1, "simulated time multiplier")

	apertureDiameter optionalFloat
	apertureArea     optionalFloat
	focalLength      optionalFloat
)

func init() {
	flag.Var(&apertureDiameter, "aperture_diameter", "telescope aperture diameter in meters")
	flag.Var(&apertureArea, "aperture_area", "telescope aperture area in square meters")
	flag.Var(&focalLength, "focal_length", "telescope focal length in meters")
}

// optionalFloat is a float flag that records whether it was given.
type optionalFloat struct {
	v *float64
}

func (o *optionalFloat) String() string {
	if o.v == nil {
		return ""
	}
	return strconv.FormatFloat(*o.v, 'g', -1, 64)
}

func (o *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	o.v = &v
	return nil
}

func config() staradventurer.Config {
	cfg := staradventurer.DefaultConfig()
	cfg.Latitude = *latitude
	cfg.Longitude = *longitude
	cfg.Elevation = *elevation
	cfg.SerialPath = *serialPort
	cfg.SerialBaud = *serialBaud
	cfg.SerialTimeout = *serialTimeout
	cfg.ApertureDiameter = apertureDiameter.v
	cfg.ApertureArea = apertureArea.v
	cfg.FocalLength = focalLength.v
	cfg.SlewSettleTime = *settleTime
	cfg.InstantDecSlew = *instantDec
	cfg.Limits = slew.NewMountLimits(*limitEast, *limitWest)
	cfg.ParkPosition = *parkPosition
	cfg.PierWest = *pierWest
	return cfg
}

// simulatedDial starts a fresh simulator for every connection. The
// simulator stops when the driver closes the link or ctx is done.
func simulatedDial(ctx context.Context, g *errgroup.Group, log logging.Logger) func(context.Context) (motor.Controller, error) {
	return func(context.Context) (motor.Controller, error) {
		sim, conn := simulator.New(simulator.Config{
			Speedup: *speedup,
			Logger:  log.With(logging.String("component", "simulator")),
		})
		g.Go(func() error { return sim.Run(ctx) })
		return skywatcher.New(conn, *serialTimeout, log.With(logging.String("component", "skywatcher")))
	}
}

func run(ctx context.Context, log logging.Logger) error {
	m, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)
	opts := staradventurer.Options{Logger: log, Metrics: m}
	if *simulate {
		opts.Dial = simulatedDial(ctx, g, log)
	}
	sa, err := staradventurer.New(config(), opts)
	if err != nil {
		return err
	}
	if *connect {
		if err := sa.SetConnected(ctx, true); err != nil {
			return err
		}
	}

	s := NewServer(sa, log)
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.StatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.StatusSocketHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(*staticDir)))
	srv := &http.Server{
		Handler:     r,
		Addr:        *listen,
		ReadTimeout: 15 * time.Second,
	}

	g.Go(func() error { return s.PublishStatus(ctx, *statusInterval) })
	g.Go(func() error {
		log.Info(ctx, "serving", logging.String("addr", *listen))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		// Wake websocket handlers blocked on the next status.
		s.statusCond.Broadcast()
		return sa.SetConnected(shutdownCtx, false)
	})
	return g.Wait()
}

func main() {
	flag.Parse()
	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, log); err != nil {
		log.Error(ctx, "exiting", logging.Err(err))
		os.Exit(1)
	}
}
