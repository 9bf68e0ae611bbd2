package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/scitrue/internal/model"
)

// HTTPLookup queries a metrics service: GET {base}/journals?name=...
// 404 means not found; the body is a Record.
type HTTPLookup struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    Limiter
	robots     RobotsPolicy
}

// NewHTTPLookup creates a lookup against cfg.BaseURL. limiter and robots may be nil.
func NewHTTPLookup(cfg model.JournalConfig, limiter Limiter, robots RobotsPolicy) *HTTPLookup {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	l := &HTTPLookup{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
	if cfg.RespectRobots {
		l.robots = robots
	}
	return l
}

func (l *HTTPLookup) Lookup(ctx context.Context, name string) (*model.MetricsBlock, error) {
	endpoint := l.baseURL + "/journals?" + url.Values{"name": {name}}.Encode()

	var crawlDelay time.Duration
	if l.robots != nil {
		allowed, delay, err := l.robots.Check(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("robots check: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("journal lookup disallowed by robots.txt: %s", l.baseURL)
		}
		crawlDelay = delay
	}
	if l.limiter != nil {
		if err := l.limiter.WaitWithDelay(ctx, endpoint, crawlDelay); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("journal lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("journal lookup: unexpected status %d", resp.StatusCode)
	}

	var rec Record
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode journal record: %w", err)
	}
	if rec.SJR == "" && rec.Country == "" && rec.HIndex == "" {
		return nil, ErrNotFound
	}
	return rec.Block(), nil
}
