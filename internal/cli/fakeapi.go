package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/wp-stream/stream-api-client/internal/fakeapi"
)

const shutdownTimeout = 5 * time.Second

func (c *CLI) fakeAPICommand() *cobra.Command {
	var (
		addr   string
		apiKey string
	)
	cmd := &cobra.Command{
		Use:   "fake-api",
		Short: "Serve an in-memory Stream API for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				apiKey = c.cfg.Credentials.APIKey
			}
			return c.serveFakeAPI(cmd.Context(), addr, fakeapi.New(apiKey))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "accepted API key (default: the configured key, empty accepts any)")
	return cmd
}

func (c *CLI) serveFakeAPI(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	c.log.Infof("Serving fake Stream API on http://%s", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("fake api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down fake api server: %w", err)
	}
	return nil
}
