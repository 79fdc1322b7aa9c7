package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ahmedelshiha/NextAccounting229/internal/config"
	"github.com/ahmedelshiha/NextAccounting229/internal/events"
	"github.com/ahmedelshiha/NextAccounting229/internal/health"
	"github.com/ahmedelshiha/NextAccounting229/internal/httpserver"
	"github.com/ahmedelshiha/NextAccounting229/internal/logging"
	"github.com/ahmedelshiha/NextAccounting229/internal/plugins"
	"github.com/ahmedelshiha/NextAccounting229/internal/reloader"
	"github.com/ahmedelshiha/NextAccounting229/pkg/sdk"
)

func newServeCmd() *cobra.Command {
	cfgPath := os.Getenv("REALTIME_CONFIG")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the realtime HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfgPath)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", cfgPath, "path to the YAML config file")
	return cmd
}

func serve(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.Cfg{
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.JSON,
	})
	defer logger.Sync()
	logger.Info("starting realtime gateway",
		zap.String("version", version),
		zap.String("config", cfgPath),
		zap.String("database", cfg.Database.Driver))

	store, err := health.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if store == nil {
		logger.Warn("no database configured, health history serves fallback data")
	}

	bus := events.NewBus(logger)
	srv, err := httpserver.New(cfg, logger, bus, store)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	pluginMgr := plugins.NewManager(logger, srv.Publisher())
	if err := pluginMgr.LoadManifest(cfg.Plugins.Manifest); err != nil {
		logger.Warn("plugin manifest", zap.Error(err))
	}
	defer pluginMgr.Shutdown()

	reloader.OnSIGHUP(ctx, func() {
		newCfg, err := config.Load(cfgPath)
		if err != nil {
			logger.Warn("config reload failed", zap.Error(err))
			return
		}
		if err := srv.Reload(newCfg); err != nil {
			logger.Warn("config reload rejected", zap.Error(err))
			return
		}
		pluginMgr.Reload(newCfg.Plugins.Manifest)
		logger.Info("reloaded config and plugins")
	})

	// streams outlive ctx long enough to receive the shutdown alert
	streamCtx, stopStreams := context.WithCancel(context.Background())
	defer stopStreams()

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Bind, cfg.HTTP.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return streamCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", addr), zap.Bool("tls", cfg.HTTP.TLS.Enabled))
		if cfg.HTTP.TLS.Enabled {
			errCh <- httpSrv.ListenAndServeTLS(cfg.HTTP.TLS.Cert, cfg.HTTP.TLS.Key)
		} else {
			errCh <- httpSrv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	srv.Publisher().SystemAlert(sdk.AlertWarn, "realtime gateway shutting down", "shutdown")
	stopStreams()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	srv.Wait()
	logger.Info("bye")
	return nil
}
