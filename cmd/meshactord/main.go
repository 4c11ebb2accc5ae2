// Command meshactord runs the network dispatcher as a standalone daemon:
// an actor system hosting the Dispatcher Core, a TCP network bridge, a
// SQLite deadletter audit log, and a read-only admin WebSocket surface.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btclog/v2"

	"github.com/roasbeef/meshactor/internal/admin"
	"github.com/roasbeef/meshactor/internal/baselib/actor"
	"github.com/roasbeef/meshactor/internal/build"
	"github.com/roasbeef/meshactor/internal/deadletter"
	"github.com/roasbeef/meshactor/internal/dispatch"
	"github.com/roasbeef/meshactor/internal/networkbridge"
)

func main() {
	var (
		bindAddr       = flag.String("bind", "127.0.0.1:8080", "Address the network bridge listens on")
		adminAddr      = flag.String("admin", "127.0.0.1:8090", "Address the admin WebSocket surface listens on (empty to disable)")
		deadletterPath = flag.String("deadletter-db", "~/.meshactor/deadletters.db", "Path to the deadletter audit SQLite database")
		logDir         = flag.String("log-dir", "~/.meshactor/logs", "Directory for log files (empty to disable file logging)")
		maxLogFiles    = flag.Int("max-log-files", build.DefaultMaxLogFiles, "Maximum number of rotated log files to keep")
		maxLogFileSize = flag.Int("max-log-file-size", build.DefaultMaxLogFileSize, "Maximum log file size in MB before rotation")
		stopGrace      = flag.Duration("stop-grace", 5*time.Second, "How long Stop waits for queued frames to drain")
		maxPending     = flag.Int("max-pending-per-peer", 1024, "Per-peer pending-frame cap before oldest frames are deadlettered")
	)
	flag.Parse()

	expandHome := func(path string) string {
		if len(path) > 0 && path[0] == '~' {
			home, err := os.UserHomeDir()
			if err != nil {
				log.Fatalf("Failed to get home directory: %v", err)
			}
			return home + path[1:]
		}
		return path
	}

	deadletterPathExpanded := expandHome(*deadletterPath)
	logDirExpanded := expandHome(*logDir)

	var logRotator *build.RotatingLogWriter
	if logDirExpanded != "" {
		logRotator = build.NewRotatingLogWriter()
		err := logRotator.InitLogRotator(&build.LogRotatorConfig{
			LogDir:         logDirExpanded,
			MaxLogFiles:    *maxLogFiles,
			MaxLogFileSize: *maxLogFileSize,
		})
		if err != nil {
			log.Printf("Failed to init log rotator: %v (continuing without file logging)", err)
			logRotator = nil
		} else {
			defer logRotator.Close()
			log.SetOutput(io.MultiWriter(os.Stderr, logRotator))
			log.SetFlags(log.LstdFlags)
		}
	}

	log.Printf("meshactord version %s commit=%s go=%s",
		build.Version(), commitInfo(), build.GoVersion)

	var handlers []btclog.Handler
	handlers = append(handlers, btclog.NewDefaultHandler(os.Stderr))
	if logRotator != nil {
		handlers = append(handlers, btclog.NewDefaultHandler(logRotator))
	}
	combinedHandler := build.NewHandlerSet(handlers...)

	actorLogger := btclog.NewSLogger(combinedHandler)
	actor.UseLogger(actorLogger)
	dispatch.UseLogger(btclog.NewSLogger(combinedHandler))

	store, err := deadletter.Open(deadletterPathExpanded)
	if err != nil {
		log.Fatalf("Failed to open deadletter store: %v", err)
	}
	defer store.Close()

	cfg := dispatch.DefaultConfig()
	host, port, err := net.SplitHostPort(*bindAddr)
	if err != nil {
		log.Fatalf("Invalid -bind address %q: %v", *bindAddr, err)
	}
	cfg.BindAddr = dispatch.SocketAddr{IP: host, Port: mustParsePort(port)}
	cfg.StopGrace = *stopGrace
	cfg.MaxPendingFramesPerPeer = *maxPending

	bridge := networkbridge.NewTCPBridge()

	actorSystem := actor.NewActorSystem()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := actorSystem.Shutdown(shutdownCtx); err != nil {
			log.Printf("Actor system shutdown incomplete: %v", err)
		}
	}()

	var adminHub *admin.Hub
	obsSink := dispatch.ObservabilitySink(store)
	if *adminAddr != "" {
		adminHub = admin.NewHub(nil)
		obsSink = dispatch.NewMultiSink(store, adminHub)
	}

	core := dispatch.NewCore(cfg, bridge, obsSink)

	if adminHub != nil {
		adminHub.SetCore(core)
	}

	coreRef := actor.RegisterWithSystem(
		actorSystem, "dispatcher-core",
		actor.NewServiceKey[dispatch.DispatchEnvelope, dispatch.DispatchResult]("dispatcher-core"),
		core,
	)
	core.BindSelf(coreRef)

	if err := core.Activate(context.Background()); err != nil {
		log.Fatalf("Failed to activate dispatcher core: %v", err)
	}
	log.Printf("Dispatcher core activated on %s", cfg.BindAddr.String())

	if adminHub != nil {
		go adminHub.Run()
		mux := http.NewServeMux()
		mux.Handle("/admin", adminHub)
		go func() {
			log.Printf("Starting admin surface on %s", *adminAddr)
			if err := http.ListenAndServe(*adminAddr, mux); err != nil {
				log.Printf("Admin surface error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("Received %s, stopping gracefully (grace=%s)", sig, cfg.StopGrace)

	stopped := make(chan struct{})
	go func() {
		if err := core.Quiesce(context.Background()); err != nil {
			log.Printf("Quiesce error: %v", err)
		}
		close(stopped)
	}()

	select {
	case <-stopped:
	case sig = <-sigCh:
		log.Printf("Received second %s, killing immediately", sig)
		if err := core.Terminate(); err != nil {
			log.Printf("Terminate error: %v", err)
		}
	}

	if adminHub != nil {
		adminHub.Stop()
	}
}

func mustParsePort(s string) uint16 {
	var port uint16
	for _, c := range s {
		if c < '0' || c > '9' {
			log.Fatalf("invalid port %q", s)
		}
		port = port*10 + uint16(c-'0')
	}
	return port
}

func commitInfo() string {
	if build.Commit != "" {
		return build.Commit
	}
	if build.CommitHash != "" {
		return build.CommitHash
	}
	return "dev"
}
