// Command crosswalk runs the pedestrian crossing assistant: it analyses a
// frame stream, announces when it is safe to cross, logs every decision and
// serves the control UI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	"github.com/banshee-data/crosswalk/internal/api"
	"github.com/banshee-data/crosswalk/internal/config"
	"github.com/banshee-data/crosswalk/internal/crossing"
	"github.com/banshee-data/crosswalk/internal/db"
	"github.com/banshee-data/crosswalk/internal/guidance"
	"github.com/banshee-data/crosswalk/internal/monitoring"
	"github.com/banshee-data/crosswalk/internal/publish"
	"github.com/banshee-data/crosswalk/internal/report"
	"github.com/banshee-data/crosswalk/internal/security"
	"github.com/banshee-data/crosswalk/internal/source"
	"github.com/banshee-data/crosswalk/internal/stream"
	"github.com/banshee-data/crosswalk/internal/version"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}
	o, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if o.showVersion {
		fmt.Println(version.String())
		return
	}

	closers, err := setupLogging(o)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	if o.plot != "" {
		if err := writePlot(o.dbFile, o.plot, os.Stdout); err != nil {
			log.Fatalf("plot: %v", err)
		}
		return
	}

	if err := run(o); err != nil {
		log.Fatal(err)
	}
}

func setupLogging(o options) ([]io.Closer, error) {
	var (
		writers [3]io.Writer
		closers []io.Closer
	)
	for i, dest := range []string{o.logOps, o.logDiag, o.logTrace} {
		w, c, err := openLogWriter(dest)
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return nil, err
		}
		writers[i] = w
		if c != nil {
			closers = append(closers, c)
		}
	}
	crossing.SetLogWriters(writers[0], writers[1], writers[2])
	stream.SetLogWriters(writers[0], writers[1], writers[2])
	return closers, nil
}

func loadTuning(path string) (*config.TuningConfig, error) {
	cfg, err := config.LoadTuningConfig(path)
	if errors.Is(err, fs.ErrNotExist) && path == config.DefaultConfigPath {
		log.Printf("%s not found, using built-in tuning", path)
		return config.EmptyTuningConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// buildSource returns the frame source, its detector and a display name.
func buildSource(o options) (stream.FrameSource, stream.Detector, string) {
	if o.replay != "" {
		src := source.NewReplaySource(o.replay, o.pace)
		return src, src.Detector(), "replay:" + o.replay
	}
	src := source.NewSyntheticSource(o.fps)
	src.Frames = o.frames
	return src, src, "synthetic"
}

func run(o options) error {
	tuning, err := loadTuning(o.tuning)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	var store *db.DB
	if o.dbFile != "" {
		if store, err = db.NewDB(o.dbFile); err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
	}

	var haptics guidance.Haptics
	if o.hapticsPort != "" {
		sh, err := guidance.OpenSerialHaptics(o.hapticsPort, guidance.PortOptions{BaudRate: o.hapticsBaud})
		if err != nil {
			return fmt.Errorf("failed to open haptics port: %w", err)
		}
		defer sh.Close()
		haptics = sh
	}
	announcer := guidance.NewAnnouncer(guidance.SettingsFromTuning(tuning), guidance.LogSpeaker{}, haptics)
	hub := api.NewHub()
	defer hub.Close()

	listeners := stream.Listeners{announcer, hub}
	if store != nil {
		listeners = append(listeners, db.NewDecisionRecorder(store))
	}

	if o.grpcListen != "" {
		ds := publish.NewDecisionServer(o.deviceID)
		listeners = append(listeners, ds)
		lis, err := net.Listen("tcp", o.grpcListen)
		if err != nil {
			return fmt.Errorf("failed to listen for gRPC: %w", err)
		}
		gs := publish.NewGRPCServer(ds)
		go func() {
			monitoring.Logf("gRPC decision stream on %s", lis.Addr())
			if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				monitoring.Logf("gRPC server error: %v", err)
			}
		}()
		defer func() {
			stopped := make(chan struct{})
			go func() { gs.GracefulStop(); close(stopped) }()
			select {
			case <-stopped:
			case <-time.After(shutdownTimeout):
				gs.Stop()
			}
		}()
	}

	if o.mqttBroker != "" {
		mcfg := publish.MQTTConfig{
			Broker:   o.mqttBroker,
			ClientID: "crosswalk-" + o.deviceID,
			Username: o.mqttUser,
			Password: o.mqttPass,
			DeviceID: o.deviceID,
			Topic:    o.mqttTopic,
		}
		client, err := publish.Connect(mcfg)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		pub := publish.NewMQTTPublisher(client, mcfg)
		listeners = append(listeners, pub)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Run(ctx)
		}()
		monitoring.Logf("publishing decisions to %s on %s", pub.Topic(), o.mqttBroker)
	}

	src, det, name := buildSource(o)
	det = stream.ScoreFilter{
		Detector:   det,
		Threshold:  tuning.GetScoreThreshold(),
		MaxResults: tuning.GetMaxResults(),
	}
	session := stream.NewSession(stream.Config{
		Pipeline:   crossing.ConfigFromTuning(tuning),
		Source:     src,
		SourceName: name,
		Detector:   det,
		Listener:   listeners,
	})
	if o.autostart {
		if err := session.Start(ctx); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	if store != nil {
		if err := store.AttachAdminRoutes(mux); err != nil {
			return err
		}
	}
	var apiStore api.Store
	if store != nil {
		apiStore = store
	}
	apiMux := api.NewServer(ctx, session, announcer, apiStore, hub).ServeMux()
	mux.Handle("/api/", apiMux)
	mux.Handle("/charts/", apiMux)
	mux.Handle("/ws", apiMux)

	server := &http.Server{
		Addr:              o.listen,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		monitoring.Logf("%s listening on %s", version.String(), o.listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		stop()
	}
	log.Println("shutting down...")

	session.Stop()
	if done := session.Done(); done != nil {
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			log.Printf("session worker did not exit within %v", shutdownTimeout)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		log.Printf("HTTP server shutdown error: %v", serr)
	}

	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return err
}

// writePlot renders the newest session's timeline to file and prints its
// summary as JSON.
func writePlot(dbFile, file string, out io.Writer) error {
	if dbFile == "" {
		return errors.New("-plot needs -db")
	}
	if err := security.ValidateExportPath(file); err != nil {
		return err
	}
	store, err := db.OpenDB(dbFile)
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := store.LatestSession()
	if err != nil {
		return err
	}
	records, err := store.ListDecisions(sess.ID, 0)
	if err != nil {
		return err
	}
	if err := report.SaveTimelinePNG(file, "Session "+sess.ID, records); err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report.Summarize(sess.ID, records))
}
