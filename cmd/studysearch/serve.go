package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/studysearch/internal/mcp"
)

const metricsShutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Serve exposes search_content, ingest_lecture, get_status and
rate_limit_status to an MCP client over stdin and stdout.

When metrics.addr is configured, Prometheus metrics are served on that
address at /metrics for as long as the MCP session lasts.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("Error during shutdown")
		}
	}()

	srv, err := mcp.NewServer(mcp.Deps{
		Storage:    a.store,
		Indexer:    a.indexer,
		Searcher:   a.searcher,
		Embeddings: a.embeddings,
	}, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The client closing stdin ends the session and everything with it.
		defer stop()
		return srv.Listen(gctx, cmd.InOrStdin(), cmd.OutOrStdout())
	})
	if cfg.Metrics.Addr != "" {
		serveMetrics(gctx, g, cfg.Metrics.Addr, a.metrics.Handler())
	}

	err = g.Wait()
	logger.Info().Msg("Server stopped")
	return err
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
}
