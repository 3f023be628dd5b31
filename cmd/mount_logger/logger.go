// Command mount_logger records the driver's status stream in InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/influxdata/influxdb-client-go/api/write"
	"github.com/w1xm/staradventurer/internal/logging"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := influxdb2.NewClient(getenv("INFLUX_SERVER", "http://localhost:9999"), os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	// Non-blocking writes; failures arrive on Errors.
	writeApi := client.WriteApi(getenv("INFLUX_ORG", "w1xm"), getenv("INFLUX_BUCKET", "mount.raw"))
	defer writeApi.Close()
	go func() {
		for err := range writeApi.Errors() {
			log.Warn(ctx, "write error", logging.Err(err))
		}
	}()

	url := getenv("MOUNT_ADDRESS", "ws://localhost:8502/api/ws")
	for ctx.Err() == nil {
		if err := logData(ctx, url, writeApi); err != nil {
			log.Warn(ctx, "reading status", logging.String("url", url), logging.Err(err))
		}
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
}

// flattenStatus stores the leaves of a decoded JSON document in fields,
// keyed by their dotted path.
func flattenStatus(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flattenStatus(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flattenStatus(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	case nil:
	default:
		fields[prefix[1:]] = status
	}
}

// point converts a status message to a point. Command results on the same
// socket carry no time and are skipped.
func point(status map[string]interface{}) *write.Point {
	ts, ok := status["time"].(string)
	if !ok {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil
	}
	delete(status, "time")
	tags := map[string]string{}
	for _, k := range []string{"state", "task", "tracking_rate"} {
		if v, ok := status[k].(string); ok {
			tags[k] = v
			delete(status, k)
		}
	}
	fields := make(map[string]interface{})
	flattenStatus(fields, status, "")
	return influxdb2.NewPoint("mount.status", tags, fields, t)
}

func logData(ctx context.Context, url string, writeApi api.WriteApi) error {
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		var status map[string]interface{}
		if err := conn.ReadJSON(&status); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if p := point(status); p != nil {
			writeApi.WritePoint(p)
		}
	}
}
