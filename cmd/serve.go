// File: cmd/serve.go
package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/promptprobe/internal/config"
	"github.com/xkilldash9x/promptprobe/internal/observability"
	"github.com/xkilldash9x/promptprobe/internal/probe"
	"github.com/xkilldash9x/promptprobe/internal/server"
)

// newPipelineRunner is swapped in tests so commands run without a browser.
var newPipelineRunner = func(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) server.PipelineRunner {
	return probe.NewRunnerFromConfig(cfg, logger, metrics)
}

func newServeCmd(state *cliState) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP front door",
		Long: `Start an HTTP server that runs the pipeline once per request.

Routes:
  GET /, GET /run    run the pipeline (optional ?message=...)
  GET /health        JSON liveness payload
  GET /healthz       plain-text liveness probe
  GET /metrics       Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.cfg
			logger := observability.GetLogger()

			metrics := observability.DefaultMetrics()
			runner := newPipelineRunner(cfg, logger, metrics)
			srv := server.New(cfg.Server, runner, prometheus.DefaultGatherer, logger)

			logger.Info("Starting promptprobe server.",
				zap.String("version", Version),
				zap.String("addr", cfg.Server.ListenAddr),
				zap.String("target", cfg.Target.URL),
				zap.Int("max_concurrent_runs", cfg.Server.MaxConcurrentRuns),
			)
			return srv.ListenAndServe(cmd.Context())
		},
	}

	serveCmd.Flags().String("listen", "", "address to listen on (overrides server.listen_addr)")
	serveCmd.Flags().Int("max-concurrent-runs", 0, "maximum browsers running at once (overrides server.max_concurrent_runs)")
	_ = state.v.BindPFlag("server.listen_addr", serveCmd.Flags().Lookup("listen"))
	_ = state.v.BindPFlag("server.max_concurrent_runs", serveCmd.Flags().Lookup("max-concurrent-runs"))
	return serveCmd
}
