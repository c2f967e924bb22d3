package commands

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/54b3r/docrag/internal/logging"
	"github.com/54b3r/docrag/internal/server"
)

// newServeCmd constructs the `docrag serve` command, which exposes the
// retriever over HTTP.
func newServeCmd(a *app) *cobra.Command {
	var host string
	var port int
	var rateLimit float64
	var rateBurst int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docrag HTTP search API",
		Long: `Start the HTTP server on localhost.

Routes:
  POST /api/search       {"query": "...", "n_results": 3}
  GET  /api/runs/latest  most recent ingestion run
  GET  /api/health       liveness
  GET  /api/ready        embedder and store reachability
  GET  /metrics          Prometheus metrics

Set DOCRAG_API_KEY to require "Authorization: Bearer <key>" on /api/search
and /api/runs/latest.

Examples:
  docrag serve
  docrag serve --port 9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := logging.WithLogger(cmd.Context(), a.log)

			c, err := a.open()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer c.Close()

			c.registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			ret, err := c.retriever()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(ret, &server.Config{
				Host:            host,
				Port:            port,
				Logger:          a.log,
				Pingers:         c.pingers(),
				Runs:            c.runStore(),
				RateLimit:       rateLimit,
				RateBurst:       rateBurst,
				APIKey:          a.settings.APIKey,
				MetricsRegistry: c.registry,
				MetricsGatherer: c.registry,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			a.log.Info("serve starting",
				slog.String("collection", ret.Collection()),
				slog.String("store", c.describeStore()),
				slog.String("embedding_provider", a.settings.Embedding.Provider),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 10, "Sustained /api/search requests per second per client IP")
	cmd.Flags().IntVar(&rateBurst, "rate-burst", 20, "Per-IP request burst")

	return cmd
}
