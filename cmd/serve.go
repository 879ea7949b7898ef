package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lockwhz/ai-scan-service/internal/api"
	"github.com/lockwhz/ai-scan-service/internal/logger"
)

var allowOrigin string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&allowOrigin, "allow-origin", "*", "value of Access-Control-Allow-Origin")
}

func runServe(cmd *cobra.Command, args []string) error {
	start := time.Now()
	defer logger.Trace("serve", start)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{withAuth: true, withLimiter: true})
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer a.Close()

	var checker api.UsageChecker
	if a.usage != nil {
		checker = a.usage
	}
	handler := api.NewRouter(api.NewHandler(a.orchestrator, a.verifier, checker), api.RouterOptions{AllowOrigin: allowOrigin})

	// sem WriteTimeout: um scan completo pode levar minutos
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		ErrorLog:          zap.NewStdLog(logger.GetLogger()),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Infof("API ouvindo em %s (auth %s)", cfg.HTTPAddr, cfg.AuthMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Log.Info("Encerrando API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
