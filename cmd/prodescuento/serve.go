package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/herrera199898/Pro-descuento/scraper"
	"github.com/herrera199898/Pro-descuento/server"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scraper over an HTTP JSON API",
		Long: `Starts an HTTP server exposing result counts (with a short-lived cache),
spreadsheet-shaped previews, xlsx export and Prometheus metrics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			metrics := scraper.NewMetrics()
			api := server.New(metrics)

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           api.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				slog.Info("api server listening", slog.String("addr", addr))
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				slog.Info("shutdown signal received")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8000", "Listen address")
	return cmd
}
