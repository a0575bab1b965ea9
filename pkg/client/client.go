// Package client provides the OpenAlex HTTP client with rate limiting,
// retries and error classification.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/openalex-client/pkg/ratelimit"
	"github.com/go-playground/validator/v10"
	qs "github.com/google/go-querystring/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Version is reported in the default User-Agent.
const Version = "0.1.0"

// Service endpoints.
const (
	DefaultBaseURL    = "https://api.openalex.org"
	DefaultContentURL = "https://content.openalex.org"
)

// Prometheus metrics for OpenAlex client operations.
var (
	openalexRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openalex_requests_total",
		Help: "Total OpenAlex requests by endpoint and status",
	}, []string{"endpoint", "status"})

	openalexRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "openalex_request_duration_seconds",
		Help:    "OpenAlex request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	openalexErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openalex_errors_total",
		Help: "Total OpenAlex errors by class",
	}, []string{"class"})

	openalexRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openalex_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	openalexRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "openalex_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	openalexRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openalex_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})

	openalexCircuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "openalex_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	})
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 404 and 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassNotFound represents 404 responses.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

var validate = validator.New()

// Config holds the client configuration.
type Config struct {
	// BaseURL of the REST API.
	BaseURL string `validate:"required,url"`

	// ContentURL serves full-text downloads.
	ContentURL string `validate:"omitempty,url"`

	// Email is sent as mailto for the polite pool.
	Email string `validate:"omitempty,email"`

	// APIKey is sent as api_key when set.
	APIKey string

	// User-Agent header
	UserAgent string `validate:"required"`

	// Redis client for shared rate limit state (optional)
	Redis *redis.Client `validate:"-"`

	// RequestsPerSecond is the client-side ceiling; 0 disables it.
	RequestsPerSecond float64 `validate:"gte=0"`

	// Retry
	MaxRetries     int           `validate:"gte=0,lte=10"`
	InitialBackoff time.Duration `validate:"gte=0"`
	RetryHTTPCodes []int         `validate:"dive,gte=400,lte=599"`

	// Timeout per HTTP request
	Timeout time.Duration `validate:"gte=0"`
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(email string) Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		ContentURL:        DefaultContentURL,
		Email:             email,
		UserAgent:         "openalex-client/" + Version,
		RequestsPerSecond: 10,
		MaxRetries:        3,
		RetryHTTPCodes:    []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable},
		Timeout:           30 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}
	return nil
}

// credentials are appended to every request.
type credentials struct {
	Mailto string `url:"mailto,omitempty"`
	APIKey string `url:"api_key,omitempty"`
}

// Client is the OpenAlex client. It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// New creates a new OpenAlex client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ContentURL == "" {
		cfg.ContentURL = DefaultContentURL
	}
	cfg.ContentURL = strings.TrimRight(cfg.ContentURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "openalex-client").Logger()

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openalex",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// only an unhealthy service trips the breaker
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.ErrorClass != ErrorClassServer && apiErr.ErrorClass != ErrorClassNetwork
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			openalexCircuitState.Set(float64(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:     rate.NewLimiter(limit, burst),
		breaker:     breaker,
		rateLimiter: ratelimit.NewTracker(cfg.Redis, logger),
		config:      cfg,
		logger:      logger,
	}, nil
}

// Do performs a GET request with rate limiting, retries and error handling.
// Credentials are added to the query string. A non-2xx response is returned
// as an *APIError; on success the caller must close the response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		openalexRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Check the shared request budget
	allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Rate limit check failed")
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Msg("Request blocked by rate limiter")
		openalexRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		return nil, ErrRateLimited
	}

	if err := c.addCredentials(req.URL); err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("query", redactedQuery(req.URL)).
		Msg("Executing OpenAlex request")

	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.retryConfig, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return &APIError{ErrorClass: ErrorClassNetwork, Message: "rate limiter wait", Err: err}
		}

		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.roundTrip(ctx, req, endpoint)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			openalexRequestsTotal.WithLabelValues(endpoint, "circuit_open").Inc()
			return &APIError{ErrorClass: ErrorClassNetwork, Message: "circuit breaker open", Err: err}
		}
		if err != nil {
			return err
		}
		resp = out.(*http.Response)
		return nil
	}, c.classify)

	if retryErr != nil {
		return nil, retryErr
	}
	return resp, nil
}

// roundTrip executes one attempt and converts error statuses into *APIError.
func (c *Client) roundTrip(ctx context.Context, req *http.Request, endpoint string) (*http.Response, error) {
	resp, err := c.httpClient.Do(req.Clone(ctx))
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		openalexErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		openalexRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &APIError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err, retryable: true}
	}

	if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	openalexRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode < 400 {
		return resp, nil
	}
	defer resp.Body.Close()

	errClass := c.classifyError(resp, nil)
	openalexErrorsTotal.WithLabelValues(string(errClass)).Inc()

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: errClass,
		Message:    errorMessage(resp),
		retryable:  c.retryableStatus(resp.StatusCode),
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		apiErr.Err = ErrNotFound
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden:
		apiErr.Err = ErrQuery
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.RetryAfter, err = c.rateLimiter.RecordRetryAfter(ctx, resp.Header)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record Retry-After")
		}
	}

	c.logger.Warn().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Str("error_class", string(errClass)).
		Msg("OpenAlex request error")

	return nil, apiErr
}

func (c *Client) retryableStatus(status int) bool {
	for _, code := range c.config.RetryHTTPCodes {
		if code == status {
			return true
		}
	}
	return false
}

func (c *Client) retryConfig(class ErrorClass) RetryConfig {
	config := RetryConfigForErrorClass(class)
	config.MaxAttempts = c.config.MaxRetries + 1
	if c.config.InitialBackoff > 0 {
		config.InitialBackoff = c.config.InitialBackoff
	}
	return config
}

func (c *Client) classify(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ErrorClassNetwork
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		c.logger.Debug().Str("class", string(ErrorClassNetwork)).Msg("Error classified")
		return ErrorClassNetwork
	}

	var class ErrorClass
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		class = ErrorClassRateLimit
	case resp.StatusCode == http.StatusNotFound:
		class = ErrorClassNotFound
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		class = ErrorClassClient
	case resp.StatusCode >= 500:
		class = ErrorClassServer
	default:
		return ""
	}
	c.logger.Debug().Str("class", string(class)).Msg("Error classified")
	return class
}

func (c *Client) addCredentials(u *url.URL) error {
	creds, err := qs.Values(credentials{Mailto: c.config.Email, APIKey: c.config.APIKey})
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if len(creds) == 0 {
		return nil
	}
	q := u.Query()
	for k, v := range creds {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return nil
}

// getJSON requests path with params and decodes the JSON body into v.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, v any) error {
	resp, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", endpointLabel(path), err)
	}
	return nil
}

// Get performs a GET request to an OpenAlex path such as "/works".
// The caller closes the response body.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient replaces the underlying HTTP client, e.g. to route requests
// through a proxy or a custom transport.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// RateLimiter returns the request budget tracker.
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}

// endpointLabel keeps metric cardinality low: "/works/W123" becomes "/works".
func endpointLabel(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.Index(trimmed, "/"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return "/" + trimmed
}

// redactedQuery hides the api key in logs.
func redactedQuery(u *url.URL) string {
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
	}
	s, err := url.QueryUnescape(q.Encode())
	if err != nil {
		return q.Encode()
	}
	return s
}

// errorMessage extracts the service's explanation from an error body.
func errorMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(body) == 0 {
		return resp.Status
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return resp.Status
	}
	switch {
	case payload.Error != "" && payload.Message != "":
		return payload.Error + " " + payload.Message
	case payload.Message != "":
		return payload.Message
	case payload.Error != "":
		return payload.Error
	default:
		return resp.Status
	}
}
