// overlay.studio engine daemon: consumes facial landmark frames from a
// detector feed, maintains tracking state, positions active overlays
// every frame, and serves the UI command surface over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/overlay.studio/internal/api"
	"github.com/banshee-data/overlay.studio/internal/config"
	"github.com/banshee-data/overlay.studio/internal/db"
	"github.com/banshee-data/overlay.studio/internal/engine"
	"github.com/banshee-data/overlay.studio/internal/facelog"
	"github.com/banshee-data/overlay.studio/internal/monitor"
	"github.com/banshee-data/overlay.studio/internal/overlay"
	"github.com/banshee-data/overlay.studio/internal/source"
	"github.com/banshee-data/overlay.studio/internal/tracking"
	"github.com/banshee-data/overlay.studio/internal/version"
)

const dbFileDefault = "overlay_studio.db"

var (
	listen         = flag.String("listen", ":8080", "HTTP listen address for the UI API")
	detectorListen = flag.String("detector-listen", "", "UDP listen address for the detector feed (default from config, :7788)")
	dbFile         = flag.String("db", dbFileDefault, "Path to the sqlite database")
	configPath     = flag.String("config", "", "Path to a tuning config JSON file (optional)")
	recordPath     = flag.String("record", "", "Record the detector feed to this .oslog file")
	replayPath     = flag.String("replay", "", "Replay a .oslog feed file instead of listening on UDP")
	verbose        = flag.Bool("verbose", false, "Enable diagnostic logging")
	trace          = flag.Bool("trace", false, "Enable per-frame trace logging (implies -verbose)")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("overlay.studio: %v", err)
	}
}

func run() error {
	var diagW, traceW io.Writer
	if *verbose || *trace {
		diagW = os.Stderr
	}
	if *trace {
		traceW = os.Stderr
	}
	facelog.SetLogWriters(facelog.LogWriters{Ops: os.Stderr, Diag: diagW, Trace: traceW})
	facelog.Opsf("overlay.studio %s", version.String())

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()
	if err := database.EnsureDefaultCatalog(); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}

	state := tracking.NewState()
	registry := overlay.NewRegistry()
	eng := engine.New(state, registry, database, engine.Config{
		FeedDepth:      tuning.GetFeedDepth(),
		MaxFrameRate:   tuning.GetMaxFrameRate(),
		SampleInterval: tuning.GetSampleInterval(),
		RotationAlpha:  tuning.GetRotationAlpha(),
	})
	eng.SetVideoContext(overlay.VideoContext{
		CanvasWidth:  tuning.GetCanvasWidth(),
		CanvasHeight: tuning.GetCanvasHeight(),
		Mirrored:     tuning.GetMirrored(),
	})

	if err := database.CreateSession(eng.SessionID()); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)

	// Detector feed: live UDP by default, optionally teed to a
	// recorder, or a file replay for offline work.
	var sink source.FrameSink = eng
	if *recordPath != "" {
		rec, err := source.NewRecorder(*recordPath, *detectorListen)
		if err != nil {
			return fmt.Errorf("open recorder: %w", err)
		}
		defer rec.Close()
		sink = source.NewRecordingSink(eng, rec)
		facelog.Opsf("Recording detector feed to %s", *recordPath)
	}

	feedErr := make(chan error, 1)
	if *replayPath != "" {
		go func() {
			n, err := source.NewReplayer(*replayPath).Replay(ctx, sink, true, 1)
			facelog.Opsf("Replay finished: %d messages", n)
			if err != nil && ctx.Err() == nil {
				feedErr <- err
			}
		}()
	} else {
		addr := *detectorListen
		if addr == "" {
			addr = tuning.GetListenAddress()
		}
		listener := source.NewListener(source.ListenerConfig{
			Address: addr,
			RcvBuf:  tuning.GetRcvBuf(),
		}, sink)
		go func() {
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				feedErr <- err
			}
		}()
	}

	mux := http.NewServeMux()
	api.NewServer(eng, database, database).RegisterRoutes(mux)
	monitor.New(eng).RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:              *listen,
		Handler:           api.LogRequest(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		log.Printf("overlay.studio listening on %s", *listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErr <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Printf("received %v, shutting down", s)
	case err := <-feedErr:
		facelog.Opsf("Detector feed failed: %v", err)
	case err := <-httpErr:
		facelog.Opsf("HTTP server failed: %v", err)
	}

	cancel()
	eng.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		facelog.Opsf("HTTP shutdown: %v", err)
	}

	if err := database.EndSession(eng.SessionID(), eng.ProcessedFrames()); err != nil {
		facelog.Opsf("End session: %v", err)
	}
	return nil
}
