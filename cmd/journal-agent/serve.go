package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	loggerv2 "journalagent/logger/v2"
	"journalagent/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := observability.Init(ctx, observability.Config{
			Provider:     cfg.Telemetry.Provider,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Version:      version,
			SampleRatio:  cfg.Telemetry.SampleRatio,
		}, logger)
		if err != nil {
			return err
		}

		a, err := build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           a.server.Handler(),
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("journal agent listening",
				loggerv2.String("addr", cfg.Server.Addr),
				loggerv2.String("model", cfg.LLM.Model),
				loggerv2.Bool("llm_configured", a.agents.Configured()),
				loggerv2.Bool("gateway", cfg.Gateway.URL != ""))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				logger.Error("server error", err)
				return err
			}
		case <-ctx.Done():
			logger.Info("shutdown signal received")
		}

		// graceful shutdown with timeout; detached runs get the same window
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("shutdown error", err)
		}
		if err := a.server.Drain(sctx); err != nil {
			logger.Warn("runs still in flight at shutdown", loggerv2.Error(err))
		}
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("flush traces", loggerv2.Error(err))
		}
		logger.Info("server stopped gracefully")
		return nil
	},
}
