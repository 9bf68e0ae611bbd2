package retrieve

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/scitrue/internal/model"
	"github.com/ppiankov/scitrue/internal/util"
)

const maxResponseBytes = 16 << 20

// RateLimiter blocks until a request to rawURL may proceed
type RateLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// HTTPRetriever calls the evidence service: GET {base}/evidence?query=...&k=...
type HTTPRetriever struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	limiter    RateLimiter
}

// NewHTTPRetriever creates a retriever for the configured service. limiter may be nil.
func NewHTTPRetriever(cfg model.RetrieverConfig, userAgent string, limiter RateLimiter, proxy func(*http.Request) (*url.URL, error)) *HTTPRetriever {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	if proxy == nil {
		proxy = util.NewProxyFunc("", "", "")
	}

	return &HTTPRetriever{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: proxy},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		limiter: limiter,
	}
}

// Retrieve fetches up to k ranked items. A single attempt is made.
func (r *HTTPRetriever) Retrieve(ctx context.Context, query string, k int) ([]model.EvidenceItem, error) {
	endpoint := r.baseURL + "/evidence?" + url.Values{
		"query": {query},
		"k":     {strconv.Itoa(k)},
	}.Encode()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, endpoint); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieve evidence: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, strings.TrimSpace(snippet(body, 200)))
	}

	return decodeEvidence(body)
}

// snippet returns at most n bytes of b, cut on a rune boundary
func snippet(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return string(b[:n]) + "..."
}
