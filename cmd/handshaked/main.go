// Command handshaked runs the governed execution core: the Flight Recorder,
// job store, diagnostics store, capability registry, gate pipeline, engine
// runtime, and the Janitor's background retention loop, behind a small HTTP
// surface. It does not construct the MCP tool gate or the micro-task
// executor.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/nuntissura/handshake/pkg/cancel"
	"github.com/nuntissura/handshake/pkg/capabilities"
	"github.com/nuntissura/handshake/pkg/config"
	"github.com/nuntissura/handshake/pkg/diagnostics"
	"github.com/nuntissura/handshake/pkg/gates"
	"github.com/nuntissura/handshake/pkg/janitor"
	"github.com/nuntissura/handshake/pkg/metering"
	"github.com/nuntissura/handshake/pkg/mex"
	"github.com/nuntissura/handshake/pkg/mexruntime"
	"github.com/nuntissura/handshake/pkg/observability"
	"github.com/nuntissura/handshake/pkg/store"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing, mirroring cmd/helm's Run(args, stdout,
// stderr) shape.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		serve()
		return 0
	}

	switch args[1] {
	case "serve", "server":
		serve()
		return 0
	case "version":
		fmt.Fprintln(stdout, "handshaked v0.1.0")
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "handshaked — governed execution core")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "usage: handshaked <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  serve    run the core (default)")
	fmt.Fprintln(w, "  version  print the version")
	fmt.Fprintln(w, "  help     show this help")
}

// Core bundles every long-lived component a running process needs, built
// once at startup and handed to whichever surface (HTTP, MCP, CLI) drives
// it.
type Core struct {
	Config         *config.Config
	Logger         *slog.Logger
	FlightRecorder *store.FlightRecorder
	Jobs           *store.JobStore
	Diagnostics    *diagnostics.Store
	Capabilities   *capabilities.CapabilityRegistry
	Gates          *gates.Pipeline
	MexRegistry    *mex.MexRegistry
	Runtime        *mexruntime.Runtime
	Cancel         *cancel.Registry
	Janitor        *janitor.Janitor
	Observability  *observability.Provider
	MeterDB        *sql.DB
}

// NewCore wires the shared components listed in Core from a loaded Config;
// the MCP tool gate, micro-task executor and cloud-escalation guard are not
// among them. Capability
// axes/ids and engine registrations are left to the caller (via
// RegisterEngine / the capability registry's own setup) since they're
// deployment-specific; this only constructs the shared plumbing.
func NewCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) *Core {
	fr := store.NewFlightRecorder(30) // 30-day event retention; job retention comes from the Janitor's RetentionPolicy.WindowDays
	jobs := store.NewJobStore()
	diag := diagnostics.NewStore()
	capRegistry := capabilities.NewCapabilityRegistry(nil, nil)
	pipeline := gates.NewPipeline(capRegistry)
	mexRegistry := mex.NewMexRegistry()
	cancelRegistry := cancel.NewRegistry()

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = "0.1.0"
	obsCfg.Enabled = cfg.OTLPEndpoint != ""
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		logger.Warn("observability disabled: provider init failed", "error", err)
		obs, _ = observability.New(ctx, &observability.Config{Enabled: false})
	}

	// sql.Open only validates the DSN and doesn't dial; the connection is
	// established lazily on first query, so a missing/unreachable database
	// at startup never blocks the process — metering just errors per-record
	// and recordMeterEvent swallows that.
	meterDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Warn("metering disabled: invalid database url", "error", err)
	}
	var meter metering.Meter
	if meterDB != nil {
		meter = metering.NewPostgresMeter(meterDB)
	}

	runtime := mexruntime.New(mexRegistry, fr, diag, pipeline).
		WithObservability(obs).
		WithMeter(meter)

	j := janitor.New(jobs, fr, janitor.DefaultConfig(), uuid.New())

	return &Core{
		Config:         cfg,
		Logger:         logger,
		FlightRecorder: fr,
		Jobs:           jobs,
		Diagnostics:    diag,
		Capabilities:   capRegistry,
		Gates:          pipeline,
		MexRegistry:    mexRegistry,
		Runtime:        runtime,
		Cancel:         cancelRegistry,
		Janitor:        j,
		Observability:  obs,
		MeterDB:        meterDB,
	}
}

func serve() {
	logger := slog.Default()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core := NewCore(ctx, cfg, logger)
	defer func() {
		if err := core.Observability.Shutdown(context.Background()); err != nil {
			logger.Warn("observability shutdown failed", "error", err)
		}
		if core.MeterDB != nil {
			_ = core.MeterDB.Close()
		}
	}()

	core.Janitor.SpawnBackground(ctx, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/v1/flight-recorder/events", func(w http.ResponseWriter, r *http.Request) {
		handleListEvents(w, r, core.FlightRecorder)
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	go func() {
		logger.Info("handshaked listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("handshaked shutting down")
	_ = srv.Shutdown(context.Background())
}
