// Package gateway provides the HTTP admin surface of chanreset: health,
// Prometheus metrics, task listing, task removal and manual sweeps.
// It binds to loopback by default.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/chanreset/internal/reset"
	"github.com/flemzord/chanreset/internal/taskstore"
)

// Tasks is the read side of the task store.
type Tasks interface {
	Snapshot() []taskstore.Task
	Get(groupID, resourceID string) (taskstore.Task, bool)
}

// Unregisterer drops a task and its timer.
type Unregisterer interface {
	Unregister(ctx context.Context, groupID, resourceID string) error
}

// SweepFunc runs a sweep now and reports its outcome.
type SweepFunc func(ctx context.Context) (reset.SweepResult, error)

// Deps are the components the gateway exposes. Nil fields disable the
// corresponding endpoints.
type Deps struct {
	Tasks     Tasks
	Scheduler Unregisterer
	Sweep     SweepFunc
	LastSweep func() reset.SweepResult

	// Gatherer serves /metrics. Registerer receives the gateway's own
	// request counters.
	Gatherer   prometheus.Gatherer
	Registerer prometheus.Registerer

	// Checks are consulted by /health; any error reports degraded.
	Checks map[string]func() error

	Now func() time.Time
}

// Gateway is the HTTP admin server.
type Gateway struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	metrics   *requestMetrics
	server    *http.Server
	startedAt time.Time
}

// New creates a Gateway.
func New(config Config, deps Deps, logger *slog.Logger) *Gateway {
	config.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Gateway{
		config:  config,
		deps:    deps,
		logger:  logger,
		metrics: newRequestMetrics(deps.Registerer),
	}
}

// Handler returns the routed handler without starting a listener.
func (g *Gateway) Handler() http.Handler {
	if g.startedAt.IsZero() {
		g.startedAt = g.deps.Now()
	}
	return g.buildRouter()
}

// Start implements core.Starter. It binds the listener synchronously so an
// address conflict fails startup.
func (g *Gateway) Start() error {
	g.startedAt = g.deps.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	if g.config.BearerToken == "" {
		g.logger.Warn("gateway: admin endpoints are not authenticated", "addr", ln.Addr().String())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
