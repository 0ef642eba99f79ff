package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/devsrv"
	"github.com/loykin/devsrv/internal/logger"
)

// shutdownTimeout bounds stopping every server when the daemon exits.
const shutdownTimeout = 30 * time.Second

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config]",
		Short: "Start the devsrv daemon",
		Long: `Start the daemon that owns the servers and serves the HTTP API.
Without a config file the defaults are used: registry servers.json,
listen 127.0.0.1:8080, base path /api.

Examples:
  devsrv serve
  devsrv serve devsrv.toml
  devsrv serve --daemonize --pidfile devsrv.pid --logfile devsrv.out`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := globalFlags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			return runServe(cmd.Context(), path, f)
		},
	}
	cmd.Flags().BoolVar(&f.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&f.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&f.LogFile, "logfile", "", "redirect daemon stdout/stderr to file when daemonized")
	return cmd
}

func runServe(ctx context.Context, configPath string, f *ServeFlags) error {
	cfg, err := devsrv.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if f.Daemonize {
		return daemonize(f.PidFile, f.LogFile)
	}

	log, closeLog, err := logger.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog.Close() }()

	if cfg.Metrics.Enabled {
		if err := devsrv.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := devsrv.ServeMetrics(cfg.Metrics.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server error", "error", err)
				}
			}()
		}
	}

	sup, err := devsrv.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open supervisor: %w", err)
	}
	server, err := devsrv.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, sup, cfg.Metrics.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
			serveErr <- err
			stop()
		}
	}()
	log.Info("devsrv listening", "addr", cfg.Server.Listen, "base_path", cfg.Server.BasePath, "registry", cfg.Registry.DSN)
	<-sigCtx.Done()

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = server.Shutdown(sctx)
	err = sup.Shutdown(sctx)
	if f.PidFile != "" {
		_ = removePidFile(f.PidFile)
	}
	select {
	case lerr := <-serveErr:
		return errors.Join(lerr, err)
	default:
		return err
	}
}
