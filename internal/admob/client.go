// Package admob issues ad and analytics requests to the AdMob endpoint on
// behalf of an inbound request.
package admob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/admob-go/internal/config"
	"github.com/patrickwarner/admob-go/internal/identity"
	"github.com/patrickwarner/admob-go/internal/middleware"
	"github.com/patrickwarner/admob-go/internal/observability"
	"github.com/patrickwarner/admob-go/internal/payload"
	"github.com/patrickwarner/admob-go/internal/visit"
)

// maxErrorBody caps how much of a failed reply is kept in the error.
const maxErrorBody = 512

// Client performs AdMob calls. It holds only immutable state and is safe
// for concurrent use by many requests.
type Client struct {
	cfg        config.Config
	builder    *payload.Builder
	generator  identity.Generator
	httpClient *http.Client
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
	tracer     trace.Tracer
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the outbound HTTP client. Its Timeout should be
// zero; each call is bounded by its own deadline.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithGenerator replaces the visitor identifier generator.
func WithGenerator(g identity.Generator) Option {
	return func(c *Client) { c.generator = g }
}

// WithClock makes payload timestamps and new identifiers read from now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.builder = c.builder.WithClock(now)
		c.generator.Now = now
	}
}

// NewClient creates a Client for cfg.
func NewClient(cfg config.Config, logger *zap.Logger, metrics observability.MetricsRegistry, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	c := &Client{
		cfg:     cfg,
		builder: payload.NewBuilder(cfg),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:  logger,
		metrics: metrics,
		tracer:  observability.Tracer("admob"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the configuration the client was built with.
func (c *Client) Config() config.Config {
	return c.cfg
}

// Fetch makes one AdMob call for r and returns the response body.
//
// The visitor identifier comes from the visit installed on ctx by the
// cookie middleware, so every call within one request shares it. Without
// one, a throwaway visit is used and no cookie will be propagated.
//
// Configuration errors are always returned. Transport failures, timeouts
// and non-2xx replies are returned as *NetworkFailure unless failSilently
// is set, in which case Fetch returns "" and a nil error.
func (c *Client) Fetch(ctx context.Context, r *http.Request, params payload.Params, failSilently bool) (string, error) {
	mode := params.Mode()
	logger := middleware.LoggerFromContext(ctx, c.logger).With(zap.String("mode", mode.String()))

	v, ok := visit.FromContext(ctx)
	if !ok {
		v = visit.New(r, c.cfg)
		logger.Debug("no visit in context, identifier will not be shared")
	}

	ctx, span := c.tracer.Start(ctx, "admob.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("admob.mode", mode.String())))
	defer span.End()

	id, resolved := v.Identify(c.generator)
	if resolved && id.Generated() {
		c.metrics.IncrementIdentifiersGenerated()
	}
	v.MarkPending()

	body, err := c.builder.Build(mode, params, v.Info(), id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "configuration")
		c.metrics.IncrementFetches(mode.String(), "config_error")
		logger.Error("admob request not sent", zap.Error(err))
		return "", err
	}
	if _, test := body.Get("m"); test {
		logger.Debug("admob test request", zap.Any("payload", map[string]string(body)))
	}

	timeout := c.timeout(params)
	start := time.Now()
	content, err := c.post(ctx, body, timeout)
	latency := time.Since(start)
	c.metrics.RecordFetchLatency(mode.String(), latency)

	if err != nil {
		failure := &NetworkFailure{Mode: mode, Cause: err}
		span.RecordError(failure)
		span.SetStatus(codes.Error, "network")
		c.metrics.IncrementFetches(mode.String(), "failure")
		if !failSilently {
			logger.Error("admob request failed",
				zap.Error(err),
				zap.Bool("timeout", failure.Timeout()),
				zap.Duration("latency", latency))
			return "", failure
		}
		logger.Warn("admob request failed, returning empty result",
			zap.Error(err),
			zap.Bool("timeout", failure.Timeout()),
			zap.Duration("latency", latency))
		content = ""
	} else {
		c.metrics.IncrementFetches(mode.String(), "success")
		span.SetAttributes(attribute.Int("admob.response_bytes", len(content)))
	}

	if c.cfg.PixelEnabled && mode != payload.ModeNone && v.ClaimPixel() {
		content += Pixel(c.cfg.PixelURL, body, latency, timeout)
	}
	return content, nil
}

// Ad requests an ad only.
func (c *Client) Ad(ctx context.Context, r *http.Request, params payload.Params, failSilently bool) (string, error) {
	params.AdRequest = true
	params.AnalyticsRequest = false
	return c.Fetch(ctx, r, params, failSilently)
}

// Analytics reports an analytics hit only. The body is normally empty.
func (c *Client) Analytics(ctx context.Context, r *http.Request, params payload.Params, failSilently bool) (string, error) {
	params.AdRequest = false
	params.AnalyticsRequest = true
	return c.Fetch(ctx, r, params, failSilently)
}

// AnalyticsMaybeAd requests an ad when showAd is set and otherwise only
// reports analytics.
func (c *Client) AnalyticsMaybeAd(ctx context.Context, r *http.Request, showAd bool, params payload.Params, failSilently bool) (string, error) {
	if showAd {
		return c.Ad(ctx, r, params, failSilently)
	}
	return c.Analytics(ctx, r, params, failSilently)
}

// Preview returns the payload Fetch would send for r without sending it or
// touching any visit.
func (c *Client) Preview(r *http.Request, params payload.Params) (payload.Payload, error) {
	v := visit.New(r, c.cfg)
	id, _ := v.Identify(c.generator)
	return c.builder.Build(params.Mode(), params, v.Info(), id)
}

func (c *Client) timeout(params payload.Params) time.Duration {
	if params.Timeout > 0 {
		return params.Timeout
	}
	if c.cfg.Timeout > 0 {
		return c.cfg.Timeout
	}
	return config.DefaultTimeout
}

// post sends the form under its own deadline; nothing outside this call
// observes the timeout.
func (c *Client) post(ctx context.Context, body payload.Payload, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(body.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(content), nil
}
