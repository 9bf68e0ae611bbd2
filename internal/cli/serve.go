package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/scitrue/internal/server"
)

var requestTimeout time.Duration

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve claim verification over HTTP",
	Long: `Serve exposes the pipeline as a JSON API:
  POST /v1/verify    {"claim": "...", "articles": 5}
  POST /v1/prompt    report prompt preview, no generation
  GET  /v1/history   ?email=...
  GET  /v1/estimate  ?articles=5
  GET  /healthz
  GET  /metrics      Prometheus metrics

Example:
  scitrue serve --addr :8088`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default: server.addr)")
	serveCmd.Flags().DurationVar(&requestTimeout, "request-timeout", 5*time.Minute, "per-request verification timeout")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := buildApp(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv := server.New(a.pipeline, server.Options{
		Logger:   logger,
		Gatherer: reg,
		User:     cfg.User,
		Timeout:  requestTimeout,
	})

	fmt.Fprintf(os.Stderr, "SciTrue API listening on %s (%s/%s)\n", cfg.Server.Addr, cfg.LLM.Provider, cfg.LLM.Model)
	return srv.Run(ctx, cfg.Server.Addr)
}
