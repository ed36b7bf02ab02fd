package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/nurse-directory/internal/circuitbreaker"
	"github.com/kjstillabower/nurse-directory/internal/models"
	"github.com/kjstillabower/nurse-directory/internal/observability"
)

// CityClient fetches city metadata from the city API.
type CityClient interface {
	GetCityInfo(ctx context.Context, name string) (models.CityInfo, error)
}

var (
	ErrInvalidConfig     = errors.New("invalid city api config")
	ErrCityNotFound      = errors.New("city not found")
	ErrUnauthorized      = errors.New("city api rejected credentials")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedResponse = errors.New("malformed response")
)

// maxBodyBytes caps how much of a city API response is read.
const maxBodyBytes = 1 << 20

// HTTPCityClient calls GET {baseURL}/{name}. It never retries; callers fail
// open on error.
type HTTPCityClient struct {
	baseURL *url.URL
	apiKey  string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewHTTPCityClient validates baseURL and returns a client whose calls are
// bounded by timeout. apiKey is optional and sent as X-API-Key.
func NewHTTPCityClient(baseURL, apiKey string, timeout time.Duration) (*HTTPCityClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: base URL %q is not absolute", ErrInvalidConfig, baseURL)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return &HTTPCityClient{
		baseURL: u,
		apiKey:  apiKey,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// SetCircuitBreaker routes calls through cb. City-not-found responses do not
// count as breaker failures.
func (c *HTTPCityClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// Breaker returns the configured circuit breaker, or nil.
func (c *HTTPCityClient) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

type cityResponse struct {
	Name       string `json:"name"`
	Population int64  `json:"population"`
	Region     string `json:"region"`
	Country    string `json:"country"`
}

// GetCityInfo fetches metadata for name.
func (c *HTTPCityClient) GetCityInfo(ctx context.Context, name string) (models.CityInfo, error) {
	info, err := c.fetch(ctx, name)
	if err != nil {
		observability.CityAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		return models.CityInfo{}, err
	}
	return info, nil
}

func (c *HTTPCityClient) fetch(ctx context.Context, name string) (models.CityInfo, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, name)
	}
	var (
		info    models.CityInfo
		callErr error
	)
	err := c.breaker.Call(ctx, func() error {
		info, callErr = c.callAPI(ctx, name)
		if errors.Is(callErr, ErrCityNotFound) {
			return nil
		}
		return callErr
	})
	if err != nil {
		return models.CityInfo{}, err
	}
	return info, callErr
}

func (c *HTTPCityClient) callAPI(ctx context.Context, name string) (models.CityInfo, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, name)
	if err != nil {
		observability.CityAPICallsTotal.WithLabelValues("error").Inc()
		return models.CityInfo{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.CityAPICallsTotal.WithLabelValues("error").Inc()
		observability.CityAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
			(errors.As(err, &netErr) && netErr.Timeout()) {
			return models.CityInfo{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.CityInfo{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.CityAPICallsTotal.WithLabelValues(status).Inc()
	observability.CityAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return models.CityInfo{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.CityInfo{}, fmt.Errorf("read response body: %w", err)
	}

	var apiResp cityResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.CityInfo{}, fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
	}
	return mapResponse(apiResp, name), nil
}

func (c *HTTPCityClient) buildRequest(ctx context.Context, name string) (*http.Request, error) {
	u := *c.baseURL
	escapedBase := strings.TrimRight(u.EscapedPath(), "/")
	u.Path = strings.TrimRight(u.Path, "/") + "/" + name
	u.RawPath = escapedBase + "/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrCityNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func mapResponse(apiResp cityResponse, requested string) models.CityInfo {
	name := apiResp.Name
	if name == "" {
		name = requested
	}
	return models.CityInfo{
		Name:       name,
		Population: apiResp.Population,
		Region:     apiResp.Region,
		Country:    apiResp.Country,
	}
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
