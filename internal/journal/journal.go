// Package journal resolves journal or venue names to impact metrics.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/scitrue/internal/model"
)

// ErrNotFound is returned when no journal matches the name
var ErrNotFound = errors.New("journal not found")

// Lookup resolves a journal name to its metrics
type Lookup interface {
	Lookup(ctx context.Context, name string) (*model.MetricsBlock, error)
}

// Record is one row of journal metrics
type Record struct {
	Title   string `json:"Title"`
	SJR     string `json:"SJR"`
	Country string `json:"Country"`
	HIndex  string `json:"H index"`
}

// Block converts the record to the metrics block attached to subclaims
func (r Record) Block() *model.MetricsBlock {
	return &model.MetricsBlock{
		RankScore:   r.SJR,
		Country:     r.Country,
		HIndex:      r.HIndex,
		Definitions: model.MetricsDefinitionsURL,
	}
}

// NormalizeName folds case, "&" and whitespace so that "Nature Reviews  Drug
// Discovery" and "nature reviews drug discovery" match
func NormalizeName(name string) string {
	name = strings.ReplaceAll(name, "&", "and")
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Disabled never finds anything
type Disabled struct{}

func (Disabled) Lookup(context.Context, string) (*model.MetricsBlock, error) {
	return nil, ErrNotFound
}

// Limiter blocks until a request to rawURL may proceed, then for delay more
type Limiter interface {
	WaitWithDelay(ctx context.Context, rawURL string, delay time.Duration) error
}

// RobotsPolicy reports whether rawURL may be fetched and the crawl delay its
// host asks for
type RobotsPolicy interface {
	Check(ctx context.Context, rawURL string) (bool, time.Duration, error)
}

// Options carries the collaborators New needs beyond the config section
type Options struct {
	Limiter Limiter
	Robots  RobotsPolicy
}

// New builds the lookup selected by cfg.Kind, wrapped in a cache when enabled
func New(cfg model.JournalConfig, opts Options) (Lookup, error) {
	var (
		base Lookup
		err  error
	)

	switch strings.ToLower(cfg.Kind) {
	case "csv":
		base, err = NewCSVLookup(cfg.CSVPath)
		if err != nil {
			return nil, err
		}
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("journal.base_url is required for the http lookup")
		}
		base = NewHTTPLookup(cfg, opts.Limiter, opts.Robots)
	case "", "none":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown journal lookup: %s (supported: csv, http, none)", cfg.Kind)
	}

	if !cfg.CacheEnabled {
		return base, nil
	}
	return NewCachedLookup(base, cfg.MemoryTTL, cfg.CacheDir, cfg.DiskTTL), nil
}
