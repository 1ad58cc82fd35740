package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"contractforge/internal/app"
	"contractforge/internal/config"
	"contractforge/internal/crypto"
	"contractforge/internal/orchestrator"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "contractforge:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sealer, err := crypto.NewSealer(cfg.Secret)
	if err != nil {
		return err
	}
	settings, err := openSettings(cfg.Server.DataDir, cfg, sealer, logger.Named("settings"))
	if err != nil {
		return err
	}

	lib, err := app.OpenLibrary(cfg, logger)
	if err != nil {
		return err
	}
	defer lib.Close()

	srv := newServer(ctx, serverDeps{
		Library:  lib.Store,
		Settings: settings,
		Build: func(ctx context.Context, s Settings) (*orchestrator.Orchestrator, error) {
			return app.NewOrchestrator(ctx, cfg, app.Backend{Name: s.Backend, APIKey: s.APIKey()}, logger)
		},
		Logger:    logger.Named("server"),
		MaxUpload: cfg.Server.MaxUploadMB << 20,
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("contractforge server starting", zap.String("addr", "http://localhost:"+cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		// Import jobs run under ctx and stop once it is cancelled.
		srv.jobs.Wait()
		return err
	})
	return g.Wait()
}
