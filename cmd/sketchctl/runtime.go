package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/sketchduel/internal/config"
	"github.com/rickgao/sketchduel/internal/database"
	"github.com/rickgao/sketchduel/internal/metrics"
	"github.com/rickgao/sketchduel/internal/recovery"
	"github.com/rickgao/sketchduel/internal/session"
	"github.com/rickgao/sketchduel/internal/storage"
	"github.com/rickgao/sketchduel/internal/transport"
)

// runtime owns everything a command needs to talk to the server.
type runtime struct {
	cfg     *config.ClientConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	session *session.Session

	server  *http.Server
	closers []func()
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// newRuntime opens the snapshot store, starts the metrics server and
// creates the session. Close releases all of it.
func newRuntime(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.metrics = metrics.New(reg)

	store, err := rt.openStore(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}

	sess, err := session.New(session.Config{
		Connection:        cfg.Connection(),
		Recovery:          cfg.RecoveryConfig(),
		ThrottleThreshold: cfg.Errors.ThrottleThreshold,
		ThrottleWindow:    cfg.Errors.ThrottleWindow,
	}, transport.NewWebSocketDialer(cfg.Transport(), logger), store, rt.metrics, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("create session: %w", err)
	}
	rt.session = sess

	if cfg.Metrics.Enabled {
		rt.startMetricsServer(reg)
	}
	return rt, nil
}

func (rt *runtime) openStore(ctx context.Context) (recovery.SnapshotStore, error) {
	switch rt.cfg.Storage.Backend {
	case config.BackendBadger:
		bc := storage.DefaultConfig(rt.cfg.Storage.Badger.Path)
		bc.SyncWrites = rt.cfg.Storage.Badger.SyncWrites
		if rt.cfg.Storage.Badger.TTL > 0 {
			bc.TTL = rt.cfg.Storage.Badger.TTL
		}
		if rt.cfg.Storage.Badger.GCInterval > 0 {
			bc.GCInterval = rt.cfg.Storage.Badger.GCInterval
		}
		st, err := storage.Open(bc, rt.logger)
		if err != nil {
			return nil, fmt.Errorf("open snapshot store: %w", err)
		}
		rt.closers = append(rt.closers, func() {
			if err := st.Close(); err != nil {
				rt.logger.Warn("failed to close snapshot store", "error", err)
			}
		})
		return st, nil

	case config.BackendPostgres:
		pg := rt.cfg.Storage.Postgres
		rt.logger.Info("connecting to database", "host", pg.Host, "port", pg.Port, "database", pg.Name)
		pool, err := database.Connect(ctx, pg)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		st := database.NewStore(pool, rt.logger)
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return st, nil

	default:
		return recovery.NewMemoryStore(), nil
	}
}

func (rt *runtime) startMetricsServer(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle(rt.cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", rt.handleHealth)

	rt.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", rt.cfg.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		rt.logger.Info("starting metrics server", "port", rt.cfg.Metrics.Port, "path", rt.cfg.Metrics.Path)
		if err := rt.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics server error", "error", err)
		}
	}()
}

// handleHealth reports the session's connection status. Reconnecting and
// fallback sessions are degraded rather than unhealthy.
func (rt *runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "healthy"
	code := http.StatusOK
	st := rt.session.Stats()
	switch {
	case st.Connection.Connected && !st.Fallback:
	case st.Connection.Connected, st.Recovering:
		status = "degraded"
	default:
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	fmt.Fprintln(w, status)
}

// Close destroys the session, stops the metrics server and closes storage.
func (rt *runtime) Close() {
	if rt.session != nil {
		rt.session.Destroy()
	}
	if rt.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.server.Shutdown(ctx); err != nil {
			rt.logger.Warn("metrics server shutdown", "error", err)
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
