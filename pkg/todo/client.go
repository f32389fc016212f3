// Package todo proxies single todo items from a JSONPlaceholder-style API.
package todo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/wilhg/vault/pkg/errmodel"
	"github.com/wilhg/vault/pkg/metrics"
)

const (
	// DefaultBaseURL is the public JSONPlaceholder API.
	DefaultBaseURL = "https://jsonplaceholder.typicode.com"
	defaultTimeout = 10 * time.Second
	maxBody        = 1 << 20
)

// ErrUpstreamStatus is returned when the upstream answers with a 5xx status.
// Other statuses pass through as long as the body is JSON.
var ErrUpstreamStatus = errors.New("todo: unexpected upstream status")

// BreakerConfig tunes the circuit breaker around upstream calls.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig trips after 5 requests with at least 80% failures and
// probes again after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Client fetches todos.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *metrics.Collector
}

type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	breaker    BreakerConfig
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// WithHTTPClient replaces the default client (10s timeout, traced transport).
func WithHTTPClient(c *http.Client) Option { return func(o *clientOptions) { o.httpClient = c } }

func WithBreaker(cfg BreakerConfig) Option { return func(o *clientOptions) { o.breaker = cfg } }

func WithLogger(l *zap.Logger) Option { return func(o *clientOptions) { o.logger = l } }

func WithMetrics(c *metrics.Collector) Option { return func(o *clientOptions) { o.metrics = c } }

// New creates a Client against baseURL; empty means DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	o := clientOptions{breaker: DefaultBreakerConfig(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    o.httpClient,
		logger:  o.logger,
		metrics: o.metrics,
	}
	cfg := o.breaker
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "todo-api",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

// Get returns the upstream JSON for todo id unchanged. Upstream 5xx answers,
// transport errors and non-JSON bodies are failures.
func (c *Client) Get(ctx context.Context, id string) (body json.RawMessage, err error) {
	defer func() {
		if c.metrics != nil {
			c.metrics.UpstreamRequests.WithLabelValues(metrics.Outcome(err)).Inc()
		}
	}()
	endpoint := c.baseURL + "/todos/" + url.PathEscape(id)
	res, err := c.breaker.Execute(func() (any, error) {
		return c.fetch(ctx, endpoint)
	})
	if err != nil {
		return nil, errmodel.Network(errmodel.CodeUpstreamFailed, "fetch todo", map[string]any{"id": id}, err)
	}
	return res.(json.RawMessage), nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if res.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: %d", ErrUpstreamStatus, res.StatusCode)
	}
	if !json.Valid(b) {
		return nil, errors.New("todo: upstream body is not JSON")
	}
	return json.RawMessage(b), nil
}
