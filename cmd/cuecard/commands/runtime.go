package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/cuecard/internal/config"
	"github.com/MrWong99/cuecard/internal/health"
	"github.com/MrWong99/cuecard/internal/observe"
	"github.com/MrWong99/cuecard/internal/session"
	"github.com/MrWong99/cuecard/internal/store"
	"go.opentelemetry.io/otel"
)

// version is reported in telemetry. Overridden at build time with
// -ldflags "-X github.com/MrWong99/cuecard/cmd/cuecard/commands.version=…".
var version = "dev"

const shutdownTimeout = 5 * time.Second

// runtime holds the process-wide services a session command needs.
type runtime struct {
	cfg     *config.Config
	metrics *observe.Metrics

	// history is the queryable backend, nil when storage is disabled.
	history store.Store

	// results is where sessions save; it adds the sidecar writer when
	// enabled.
	results session.ResultStore

	server        *health.Server
	shutdownOTel  func(context.Context) error
	closeHandlers []func(context.Context) error
}

// newRuntime initialises telemetry and opens the result store.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "cuecard",
		ServiceVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	rt.shutdownOTel = shutdown

	rt.metrics, err = observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		rt.close(ctx)
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	if err := rt.openStore(ctx); err != nil {
		rt.close(ctx)
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) openStore(ctx context.Context) error {
	sc := rt.cfg.Storage
	st, err := store.Open(ctx, sc.Driver, sc.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if st != nil {
		rt.history = st
		rt.results = st
		rt.closeHandlers = append(rt.closeHandlers, func(context.Context) error { return st.Close() })
		slog.Info("store opened", "driver", sc.Driver)
	}
	if sc.SidecarEnabled() {
		rt.results = store.WithSidecar(rt.results)
	}
	return nil
}

// sessionOptions returns the options every session of this process uses.
func (rt *runtime) sessionOptions() []session.Option {
	opts := []session.Option{session.WithMetrics(rt.metrics)}
	if rt.results != nil {
		opts = append(opts, session.WithStore(rt.results))
	}
	return opts
}

// serve starts the health and metrics endpoint when one is configured.
// status backs /statusz.
func (rt *runtime) serve(status health.StatusFunc, extra ...health.Checker) error {
	addr := rt.cfg.Server.ListenAddr
	if addr == "" {
		return nil
	}
	checkers := extra
	if rt.history != nil {
		checkers = append(checkers, health.Checker{Name: "store", Check: rt.history.Ping})
	}
	srv, err := health.Listen(addr, health.New(checkers...).WithStatus(status), rt.metrics)
	if err != nil {
		return err
	}
	rt.server = srv
	return nil
}

// close releases everything newRuntime and serve acquired, in reverse
// order. Errors are logged.
func (rt *runtime) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	if rt.server != nil {
		errs = append(errs, rt.server.Shutdown(ctx))
	}
	for i := len(rt.closeHandlers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closeHandlers[i](ctx))
	}
	if rt.shutdownOTel != nil {
		errs = append(errs, rt.shutdownOTel(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("shutdown", "err", err)
	}
}
