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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"baulot/internal/app"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "listen address (overrides config)")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("BAULOT_JWT_SECRET is required for bearer auth")
	}
	logger := app.NewLogger(os.Stdout, cfg.Log.Level)
	slog.SetDefault(logger)
	slog.Info("configuration loaded", "version", Version, "log_level", cfg.Log.Level)

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	handler, err := a.Handler()
	if err != nil {
		a.Close()
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}
	go func() {
		slog.Info("server starting", "address", cfg.Server.Addr, "base_path", cfg.Server.BasePath)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := a.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}
	slog.Info("shutdown complete")
	return nil
}
