package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/gamestate"
	"github.com/aretw0/gamestate/internal/config"
	httpadapter "github.com/aretw0/gamestate/pkg/adapters/http"
	"github.com/aretw0/gamestate/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ShutdownTimeout bounds the HTTP server's graceful shutdown.
const ShutdownTimeout = 5 * time.Second

// Run serves the demo machine until ctx is done or the machine fails.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	backend, err := OpenStore(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	bridge := httpadapter.NewBridge(
		httpadapter.WithLogger(logger),
		httpadapter.WithHistory(backend.Store),
		httpadapter.WithMetrics(reg),
	)

	opts := []gamestate.Option{
		gamestate.WithLogger(logger),
		gamestate.WithPresentation(bridge),
		gamestate.WithMachineName(cfg.Machine),
		gamestate.WithInitialState(cfg.InitialState),
		gamestate.WithMetrics(reg),
		gamestate.WithLifecycleHooks(observability.LogHooks(logger)),
	}
	if cfg.Recovery {
		opts = append(opts, gamestate.WithPowerHitRecovery(StateReplay))
	}
	if backend.Locker != nil {
		opts = append(opts, gamestate.WithLocker(backend.Locker), gamestate.WithLockTTL(cfg.Store.LockTTL))
	}

	m, err := gamestate.New(backend.Store, opts...)
	if err != nil {
		return err
	}
	if err := RegisterDemo(m); err != nil {
		return fmt.Errorf("failed to register demo states: %w", err)
	}

	var srv *http.Server
	serverErrors := make(chan error, 1)
	if cfg.HTTP.Addr != "" {
		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           bridge.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("presentation bridge listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrors <- err
				m.Stop()
			}
		}()
	}

	logger.Info("machine starting",
		"machine", cfg.Machine,
		"store", backend.Kind,
		"recovery", cfg.Recovery,
	)
	runErr := m.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "timeout", ShutdownTimeout, "err", err)
			srv.Close()
		}
	}

	select {
	case err := <-serverErrors:
		return errors.Join(runErr, fmt.Errorf("server error: %w", err))
	default:
	}
	return runErr
}
