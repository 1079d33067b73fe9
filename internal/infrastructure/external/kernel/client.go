package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codearena/arena-server/internal/domain/adaptive"
	"github.com/codearena/arena-server/pkg/circuitbreaker"
	"github.com/codearena/arena-server/pkg/logger"
	"github.com/codearena/arena-server/pkg/metrics"
	"github.com/codearena/arena-server/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// HTTPConfig configures the warm-service client.
type HTTPConfig struct {
	// BaseURL of the warm kernel service.
	BaseURL string

	// Timeout is the per-call deadline covering all retries.
	Timeout time.Duration

	// MaxRetries after the first attempt. Retry n waits n*RetryBaseDelay.
	MaxRetries int

	// RetryBaseDelay is the linear backoff unit.
	RetryBaseDelay time.Duration

	// CircuitThreshold opens the breaker after this many consecutive failures.
	CircuitThreshold int

	// CircuitReset is how long the breaker stays open.
	CircuitReset time.Duration
}

// DefaultHTTPConfig returns the production defaults.
func DefaultHTTPConfig(baseURL string) HTTPConfig {
	return HTTPConfig{
		BaseURL:          baseURL,
		Timeout:          2500 * time.Millisecond,
		MaxRetries:       2,
		RetryBaseDelay:   150 * time.Millisecond,
		CircuitThreshold: 3,
		CircuitReset:     30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WARM SERVICE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// HTTPClient calls the warm kernel service. Calls are bounded by the config
// timeout, retried with linear backoff, and guarded by a circuit breaker.
// 4xx responses are permanent; retrying them would only repeat the rejection.
type HTTPClient struct {
	config  HTTPConfig
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
	log     *logger.Logger
	metrics *metrics.Metrics
}

var _ adaptive.Kernel = (*HTTPClient)(nil)

// NewHTTPClient creates the warm-service client.
func NewHTTPClient(cfg HTTPConfig, log *logger.Logger, m *metrics.Metrics) *HTTPClient {
	c := &HTTPClient{
		config:  cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log.With(logger.Component("kernel_http")),
		metrics: m,
	}

	c.breaker = circuitbreaker.New(
		"adaptive-kernel",
		circuitbreaker.WithFailureThreshold(cfg.CircuitThreshold),
		circuitbreaker.WithTimeout(cfg.CircuitReset),
		circuitbreaker.WithSuccessThreshold(2),
		circuitbreaker.WithOnStateChange(c.onBreakerChange),
	)

	c.retrier = retry.New(
		retry.WithMaxAttempts(cfg.MaxRetries+1),
		retry.WithInitialDelay(cfg.RetryBaseDelay),
		retry.WithLinearBackoff(),
		retry.WithJitter(0),
	)

	return c
}

// Evaluate runs one IRT/DDA evaluation on the warm service.
func (c *HTTPClient) Evaluate(ctx context.Context, req adaptive.EvaluateRequest) (*adaptive.EvaluateResult, error) {
	start := time.Now()
	var dto evaluateResponseDTO
	err := c.call(ctx, "/evaluate", toEvaluateDTO(req), &dto)
	if c.metrics != nil {
		c.metrics.ObserveKernelCall(adaptive.SourceWarmService, err, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return fromEvaluateDTO(dto, adaptive.SourceWarmService), nil
}

// ClusterPlayers runs the skill-based matcher on the warm service.
func (c *HTTPClient) ClusterPlayers(ctx context.Context, req adaptive.ClusterRequest) (*adaptive.ClusterResult, error) {
	start := time.Now()
	var dto clusterResponseDTO
	err := c.call(ctx, "/cluster", toClusterDTO(req), &dto)
	if c.metrics != nil {
		c.metrics.ObserveKernelCall(adaptive.SourceWarmService, err, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return fromClusterDTO(dto, adaptive.SourceWarmService), nil
}

// call POSTs a JSON body through the breaker and retrier.
func (c *HTTPClient) call(ctx context.Context, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal kernel request: %w", err)
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.post(ctx, path, body, out)
		})
	})
}

func (c *HTTPClient) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("kernel call: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return retry.Retryable(fmt.Errorf("read kernel response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.Unmarshal(respBody, out); err != nil {
			return retry.Permanent(fmt.Errorf("parse kernel response: %w", err))
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.Permanent(fmt.Errorf("kernel rejected request: status %d: %s", resp.StatusCode, respBody))
	default:
		return retry.Retryable(fmt.Errorf("kernel error: status %d", resp.StatusCode))
	}
}

// BreakerOpen reports whether the circuit is currently open.
func (c *HTTPClient) BreakerOpen() bool {
	return c.breaker.IsOpen()
}

func (c *HTTPClient) onBreakerChange(name string, from, to circuitbreaker.State) {
	c.log.Warn("kernel circuit state changed",
		logger.String("breaker", name),
		logger.String("from", from.String()),
		logger.String("to", to.String()),
	)
	if c.metrics != nil {
		if to == circuitbreaker.StateOpen {
			c.metrics.KernelCircuit.Set(1)
		} else {
			c.metrics.KernelCircuit.Set(0)
		}
	}
}
