package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/banshee-data/crosswalk/internal/config"
)

// options are the command-line settings. Defaults come from the
// environment (and .env), flags override them.
type options struct {
	listen     string
	dbFile     string
	tuning     string
	replay     string
	pace       bool
	fps        int
	frames     uint64
	autostart  bool
	grpcListen string

	mqttBroker string
	mqttTopic  string
	mqttUser   string
	mqttPass   string
	deviceID   string

	hapticsPort string
	hapticsBaud int

	logOps, logDiag, logTrace string

	plot        string
	showVersion bool
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func defaultDeviceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "crosswalk"
}

func parseFlags(fs *flag.FlagSet, args []string) (options, error) {
	var o options
	fs.StringVar(&o.listen, "listen", envOr("CROSSWALK_LISTEN", ":8080"), "HTTP listen address")
	fs.StringVar(&o.dbFile, "db", envOr("CROSSWALK_DB", "crosswalk.db"), "Path to the SQLite decision log; empty disables logging")
	fs.StringVar(&o.tuning, "tuning", envOr("CROSSWALK_TUNING", config.DefaultConfigPath), "Path to the tuning JSON file")
	fs.StringVar(&o.replay, "replay", envOr("CROSSWALK_REPLAY", ""), "Replay manifest (JSON lines); empty runs the synthetic scene")
	fs.BoolVar(&o.pace, "pace", envBool("CROSSWALK_PACE", true), "Replay frames at their recorded pace")
	fs.IntVar(&o.fps, "fps", envInt("CROSSWALK_FPS", 10), "Synthetic scene frame rate")
	fs.Uint64Var(&o.frames, "frames", 0, "Stop the synthetic scene after this many frames (0 = forever)")
	fs.BoolVar(&o.autostart, "autostart", envBool("CROSSWALK_AUTOSTART", false), "Start a session at launch")
	fs.StringVar(&o.grpcListen, "grpc-listen", envOr("CROSSWALK_GRPC_LISTEN", ""), "gRPC decision stream address; empty disables it")
	fs.StringVar(&o.mqttBroker, "mqtt-broker", envOr("CROSSWALK_MQTT_BROKER", ""), "MQTT broker URL, e.g. tcp://localhost:1883; empty disables it")
	fs.StringVar(&o.mqttTopic, "mqtt-topic", envOr("CROSSWALK_MQTT_TOPIC", ""), "MQTT topic pattern; {device_id} is substituted")
	fs.StringVar(&o.mqttUser, "mqtt-user", envOr("CROSSWALK_MQTT_USER", ""), "MQTT username")
	fs.StringVar(&o.mqttPass, "mqtt-password", envOr("CROSSWALK_MQTT_PASSWORD", ""), "MQTT password")
	fs.StringVar(&o.deviceID, "device-id", envOr("CROSSWALK_DEVICE_ID", defaultDeviceID()), "Device identifier for published decisions")
	fs.StringVar(&o.hapticsPort, "haptics-port", envOr("CROSSWALK_HAPTICS_PORT", ""), "Serial port of the vibration controller; empty disables it")
	fs.IntVar(&o.hapticsBaud, "haptics-baud", envInt("CROSSWALK_HAPTICS_BAUD", 115200), "Vibration controller baud rate")
	fs.StringVar(&o.logOps, "log-ops", envOr("CROSSWALK_LOG_OPS", "stderr"), "Ops log: stderr, stdout, a file path, or empty to disable")
	fs.StringVar(&o.logDiag, "log-diag", envOr("CROSSWALK_LOG_DIAG", ""), "Diagnostic log destination")
	fs.StringVar(&o.logTrace, "log-trace", envOr("CROSSWALK_LOG_TRACE", ""), "Per-frame trace log destination")
	fs.StringVar(&o.plot, "plot", "", "Write the latest session's timeline PNG to this file and exit")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.fps <= 0 {
		return o, fmt.Errorf("fps must be positive, got %d", o.fps)
	}
	if o.listen == "" && o.plot == "" {
		return o, fmt.Errorf("listen address is required")
	}
	return o, nil
}

// openLogWriter resolves a log destination. The closer is nil for the
// standard streams.
func openLogWriter(dest string) (io.Writer, io.Closer, error) {
	switch dest {
	case "":
		return nil, nil, nil
	case "stderr", "-":
		return os.Stderr, nil, nil
	case "stdout":
		return os.Stdout, nil, nil
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log %s: %w", dest, err)
	}
	return f, f, nil
}

const shutdownTimeout = 5 * time.Second
