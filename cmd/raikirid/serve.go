package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/oriys/raikiri/internal/artifactstore"
	"github.com/oriys/raikiri/internal/bridge"
	"github.com/oriys/raikiri/internal/compiler"
	"github.com/oriys/raikiri/internal/config"
	"github.com/oriys/raikiri/internal/dbbroker"
	"github.com/oriys/raikiri/internal/gateway"
	"github.com/oriys/raikiri/internal/invoker"
	"github.com/oriys/raikiri/internal/logging"
	"github.com/oriys/raikiri/internal/logsink"
	"github.com/oriys/raikiri/internal/metrics"
	"github.com/oriys/raikiri/internal/observability"
	"github.com/oriys/raikiri/internal/registry"
	"github.com/oriys/raikiri/internal/sandbox"
	"github.com/oriys/raikiri/internal/secrets"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		httpAddr     string
		storageRoot  string
		tenant       string
		logLevel     string
		logFormat    string
		tracingAddr  string
		enableTracer bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the raikiri daemon (Gateway + invocation pipeline)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("http") {
				cfg.Server.Addr = httpAddr
			}
			if cmd.Flags().Changed("storage-root") {
				cfg.Storage.Root = storageRoot
			}
			if cmd.Flags().Changed("tenant") {
				cfg.Server.Tenant = tenant
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Observability.Logging.Level = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Observability.Logging.Format = logFormat
			}
			if cmd.Flags().Changed("tracing") {
				cfg.Observability.Tracing.Enabled = enableTracer
			}
			if cmd.Flags().Changed("tracing-endpoint") {
				cfg.Observability.Tracing.Endpoint = tracingAddr
			}

			return runDaemon(cfg)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "Gateway HTTP listen address (default :8080)")
	cmd.Flags().StringVar(&storageRoot, "storage-root", "", "ArtifactStore root directory (default $HOME/.raikiri)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant this daemon serves Put-Component/Update-Component-Secrets for")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "text|json")
	cmd.Flags().BoolVar(&enableTracer, "tracing", false, "enable OpenTelemetry tracing")
	cmd.Flags().StringVar(&tracingAddr, "tracing-endpoint", "", "OTLP HTTP collector endpoint")

	return cmd
}

func runDaemon(cfg *config.Config) error {
	logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Observability.Tracing.Enabled,
		Exporter:    cfg.Observability.Tracing.Exporter,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		ServiceName: cfg.Observability.Tracing.ServiceName,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
	}); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.Shutdown(context.Background())

	if cfg.Observability.Metrics.Enabled {
		metrics.InitPrometheus(cfg.Observability.Metrics.Namespace, cfg.Observability.Metrics.HistogramBuckets)
	}

	store := artifactstore.New(cfg.Storage.Root)
	if err := store.Init(); err != nil {
		return fmt.Errorf("init artifact store: %w", err)
	}

	outputDir := filepath.Join(cfg.Storage.Root, "output")
	if err := logging.InitOutputStore(outputDir, 64*1024, 3600); err != nil {
		return fmt.Errorf("init output store: %w", err)
	}

	compilerSvc := compiler.Logging{Inner: compiler.Noop{}}
	reg := registry.New(store, compilerSvc)
	vault := secrets.New(store)
	broker := dbbroker.New(dbbroker.DefaultDialers())
	engine := sandbox.NewLocal()

	sink := logsink.NewChannel(logsink.NewStdoutSink())
	defer sink.Close()

	inv := invoker.New(reg, vault, engine, nil, sink, cfg.Invoker.DefaultTimeout, cfg.Invoker.MaxCallDepth)
	inv.SetOutputRecorder(logging.GetOutputStore())

	// The CapabilityBridge re-enters the Invoker for nested component
	// calls (§4.6, §9 "reentrant host dispatch"); wiring it back onto inv
	// after construction breaks what would otherwise be an import cycle
	// between the invoker and bridge packages.
	capBridge := bridge.New(inv, vault, broker, nil)
	inv.SetBridge(capBridge)

	gw := gateway.New(reg, vault, cfg.Server.Tenant, inv.Invoke)

	mux := http.NewServeMux()
	mux.Handle("/", observability.HTTPMiddleware(gw))
	mux.Handle("/metrics", metrics.PrometheusHandler())
	mux.Handle("/debug/metrics", metrics.Global().JSONHandler())
	mux.HandleFunc("/debug/output", func(w http.ResponseWriter, r *http.Request) {
		requestID := r.URL.Query().Get("request_id")
		if requestID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		entry, ok := logging.GetOutputStore().Get(requestID)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entry)
	})
	mux.HandleFunc("/debug/output/by-function", func(w http.ResponseWriter, r *http.Request) {
		functionID := r.URL.Query().Get("function_id")
		if functionID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		entries := logging.GetOutputStore().GetByFunction(functionID, limit)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Op().Info("raikirid listening", "addr", cfg.Server.Addr, "tenant", cfg.Server.Tenant, "storage_root", cfg.Storage.Root)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logging.Op().Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
