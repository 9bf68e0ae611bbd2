package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ppiankov/scitrue/internal/activity"
	"github.com/ppiankov/scitrue/internal/enrich"
	"github.com/ppiankov/scitrue/internal/journal"
	"github.com/ppiankov/scitrue/internal/llm"
	"github.com/ppiankov/scitrue/internal/model"
	"github.com/ppiankov/scitrue/internal/pipeline"
	"github.com/ppiankov/scitrue/internal/refine"
	"github.com/ppiankov/scitrue/internal/retrieve"
	"github.com/ppiankov/scitrue/internal/util"
	"github.com/ppiankov/scitrue/internal/worker"
)

// app is the fully wired pipeline plus what must be closed afterwards
type app struct {
	cfg      *model.Config
	pipeline *pipeline.Pipeline
	log      activity.Log
}

func (a *app) Close() error {
	return a.log.Close()
}

// buildApp wires every collaborator from cfg. reg may be nil.
func buildApp(ctx context.Context, cfg *model.Config, logger *zap.Logger, reg prometheus.Registerer) (*app, error) {
	proxy := util.NewProxyFunc(cfg.LLM.HTTPProxy, cfg.LLM.HTTPSProxy, cfg.LLM.NoProxy)

	generator, err := llm.NewGenerator(llm.ConfigFromModel(cfg.LLM, logger))
	if err != nil {
		return nil, fmt.Errorf("init generator: %w", err)
	}
	logger.Debug("generator ready", zap.String("provider", generator.ProviderName()), zap.String("model", cfg.LLM.Model))

	refiner, err := refine.New(cfg.LLM.Refiner, generator, logger)
	if err != nil {
		return nil, err
	}

	retriever, err := newRetriever(cfg, proxy)
	if err != nil {
		return nil, err
	}

	lookup, err := journal.New(cfg.Journal, journal.Options{
		Limiter: worker.NewLimiter(1, 1), // one metrics request per second per host
		Robots:  util.NewRobotsChecker(cfg.Journal.UserAgent, cfg.Journal.Timeout, proxy),
	})
	if err != nil {
		return nil, fmt.Errorf("init journal lookup: %w", err)
	}

	log, err := activity.Open(ctx, cfg.Activity, logger)
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}

	p, err := pipeline.New(pipeline.Deps{
		Refiner:   refiner,
		Retriever: retriever,
		Generator: generator,
		Enricher:  enrich.NewEnricher(lookup, logger),
		Log:       activity.NewSynchronized(log),
		Logger:    logger,
		Metrics:   pipeline.NewMetrics(reg),
	}, cfg.Limits)
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	return &app{cfg: cfg, pipeline: p, log: log}, nil
}

func newRetriever(cfg *model.Config, proxy func(*http.Request) (*url.URL, error)) (retrieve.Retriever, error) {
	switch strings.ToLower(cfg.Retriever.Kind) {
	case "file":
		if cfg.Retriever.File == "" {
			return nil, fmt.Errorf("retriever.file is required for the file retriever")
		}
		return retrieve.NewFileRetriever(cfg.Retriever.File), nil
	case "http", "":
		limiter := worker.NewLimiter(cfg.Retriever.RequestsPerSecond, cfg.Retriever.BurstSize)
		return retrieve.NewHTTPRetriever(cfg.Retriever, cfg.Journal.UserAgent, limiter, proxy), nil
	default:
		return nil, fmt.Errorf("unknown retriever kind: %s (supported: http, file)", cfg.Retriever.Kind)
	}
}
