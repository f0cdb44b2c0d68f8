package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"vcengine/internal/config"
	"vcengine/internal/license"
	"vcengine/internal/security"
	transporthttp "vcengine/internal/transport/http"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Application owns the engine's wired components and the HTTP server.
type Application struct {
	Config  *config.Config
	Logger  *slog.Logger
	Manager *license.Manager
	Server  *http.Server
}

// NewApplication loads configuration and wires the engine.
func NewApplication() (*Application, error) {
	// A .env next to the binary is optional; the environment wins.
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	codec, err := license.NewCodec([]byte(cfg.License.Secret), cfg.License.ProductCode)
	if err != nil {
		return nil, fmt.Errorf("initialize key codec: %w", err)
	}

	hw := security.NewGenerator()
	store := license.NewStore(cfg.License.File, hw, logger)
	client := license.NewClient(cfg.Server.BaseURL, logger,
		license.WithTimeouts(cfg.Server.ConnectTimeout, cfg.Server.RequestTimeout))

	policy := license.Policy{
		Mode:                  license.BindingMode(cfg.License.Mode),
		GracePeriodDays:       cfg.License.GracePeriodDays,
		OfflineToleranceHours: cfg.License.OfflineToleranceHours,
		ClockTamperTolerance:  cfg.License.ClockTamperTolerance,
	}

	opts := []license.ManagerOption{}
	if cfg.License.DeviceName != "" {
		opts = append(opts, license.WithDeviceName(cfg.License.DeviceName))
	}
	if metrics, err := license.NewMetrics(); err == nil {
		opts = append(opts, license.WithMetrics(metrics))
	} else {
		logger.Warn("metrics disabled", slog.String("error", err.Error()))
	}

	manager := license.NewManager(codec, store, client, hw, policy, logger, opts...)

	router := transporthttp.NewRouter(manager, Version, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		Config:  cfg,
		Logger:  logger,
		Manager: manager,
		Server:  server,
	}, nil
}

// Run starts the HTTP server and blocks until SIGINT, SIGTERM or a
// server failure, then shuts down gracefully.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if interval := a.Config.License.RevalidateInterval; interval > 0 {
		a.Manager.StartRevalidation(ctx, interval)
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening",
			slog.String("addr", a.Server.Addr),
			slog.String("version", Version),
		)
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		a.Logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		a.Config.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	a.Logger.Info("shutdown complete")
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler).With(slog.String("service", "vcengine"))
}
