package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"growthsheet/internal/growth/domain"
	"growthsheet/internal/growth/providers"
)

// DefaultBaseURL is the public RCPCH growth API.
const DefaultBaseURL = "https://api.rcpch.ac.uk/growth/v1"

// SubscriptionKeyHeader carries the caller's API key.
const SubscriptionKeyHeader = "Subscription-Key"

// HTTPAdapter posts calculation requests to the growth API over HTTP.
type HTTPAdapter struct {
	id      string
	baseURL string
	client  HTTPDoer
	logger  *slog.Logger
}

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPAdapterConfig configures an HTTP adapter
type HTTPAdapterConfig struct {
	ID      string
	BaseURL string
	// Timeout bounds the whole exchange on the default client. Zero means no timeout.
	Timeout    time.Duration
	HTTPClient HTTPDoer
	Logger     *slog.Logger
}

// New creates a new HTTP protocol adapter
func New(cfg HTTPAdapterConfig) *HTTPAdapter {
	if cfg.ID == "" {
		cfg.ID = "rcpch-growth"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return &HTTPAdapter{
		id:      cfg.ID,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  selectHTTPClient(cfg),
		logger:  cfg.Logger,
	}
}

func selectHTTPClient(cfg HTTPAdapterConfig) HTTPDoer {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}

	return &http.Client{
		Timeout: cfg.Timeout,
	}
}

// ID returns the provider identifier
func (a *HTTPAdapter) ID() string {
	return a.id
}

// Endpoint returns the calculation URL of a reference family.
func (a *HTTPAdapter) Endpoint(reference domain.Reference) string {
	return a.baseURL + reference.Path()
}

// Check reports whether the configured base URL can address the API. It does
// not contact the API, since every calculation needs a caller's key.
func (a *HTTPAdapter) Check(_ context.Context) error {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base url %q is not an absolute http(s) url", a.baseURL)
	}
	return nil
}

// Calculate sends one POST and returns the response body whatever the status code.
func (a *HTTPAdapter) Calculate(ctx context.Context, reference domain.Reference, body []byte, apiKey string) ([]byte, error) {
	url := a.Endpoint(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(
			providers.ErrorInternal,
			a.id,
			"failed to create request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(SubscriptionKeyHeader, apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, providers.NewProviderError(
				providers.ErrorTimeout,
				a.id,
				"request timeout",
				err,
			)
		}
		return nil, providers.NewProviderError(
			providers.ErrorTransport,
			a.id,
			"failed to execute request",
			err,
		)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.NewProviderError(
			providers.ErrorTransport,
			a.id,
			"failed to read response",
			err,
		)
	}

	a.logger.DebugContext(ctx, "growth api response",
		"provider", a.id,
		"url", url,
		"status", resp.StatusCode,
		"body", string(respBody),
	)

	return respBody, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ providers.Calculator = (*HTTPAdapter)(nil)
