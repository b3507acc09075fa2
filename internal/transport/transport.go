// Package transport performs the outbound HTTP requests of the provider
// adapters: one GET per call with an optional custom header, returning the
// status code and raw body.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/http/httpguts"
	"golang.org/x/time/rate"

	"github.com/genericweather/gateway/internal/provider/resilience"
)

// DefaultMaxBodyBytes caps how much of a provider response is read.
const DefaultMaxBodyBytes = 4 << 20

// ErrRateLimited is returned when waiting for the rate limiter was aborted.
var ErrRateLimited = errors.New("rate limit wait canceled")

// Request describes one outbound call.
type Request struct {
	URL    string
	Method string

	// HeaderName and HeaderValue set one optional custom header. Both must be
	// non-empty; an invalid header is skipped without failing the request.
	HeaderName  string
	HeaderValue string
}

// Response is the status code and body of a completed call.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the provider answered 200.
func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Transport executes outbound requests. A non-nil error means no response
// was received at all.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to the Transport interface.
type Func func(ctx context.Context, req Request) (*Response, error)

// Do calls f.
func (f Func) Do(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Config holds configuration for an HTTP transport.
type Config struct {
	// Name identifies the upstream in logs and metrics.
	Name string

	// Client is the resilient client to use (optional).
	// If nil, a client with resilience.DefaultClientConfig(Name) is created.
	Client *resilience.Client

	// RequestsPerSecond limits outbound calls when greater than zero.
	RequestsPerSecond float64

	// MaxBodyBytes defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// Metrics is optional.
	Metrics *Metrics

	// Logger for transport operations.
	Logger zerolog.Logger
}

// HTTPTransport is a Transport backed by a resilience.Client.
type HTTPTransport struct {
	name         string
	client       *resilience.Client
	limiter      *rate.Limiter
	maxBodyBytes int64
	metrics      *Metrics
	logger       zerolog.Logger
}

// New creates a new HTTP transport.
func New(cfg Config) *HTTPTransport {
	client := cfg.Client
	if client == nil {
		client = resilience.NewClient(resilience.DefaultClientConfig(cfg.Name))
	}

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &HTTPTransport{
		name:         cfg.Name,
		client:       client,
		limiter:      limiter,
		maxBodyBytes: maxBodyBytes,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With().Str("upstream", cfg.Name).Logger(),
	}
}

// Do executes req and reads the whole body. Non-200 statuses are returned as
// a Response, not as an error.
func (t *HTTPTransport) Do(ctx context.Context, r Request) (*Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	t.setHeader(req, r.HeaderName, r.HeaderValue)

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		t.record(start, 0, err)
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodyBytes))
	t.record(start, resp.StatusCode, err)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	t.logger.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("upstream responded")

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// setHeader applies the optional custom header. Failures are swallowed.
func (t *HTTPTransport) setHeader(req *http.Request, name, value string) {
	if name == "" || value == "" {
		return
	}
	if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
		t.logger.Debug().Str("header", name).Msg("skipping invalid request header")
		return
	}
	req.Header.Set(name, value)
}

func (t *HTTPTransport) record(start time.Time, status int, err error) {
	if t.metrics == nil {
		return
	}
	t.metrics.RecordRequest(t.name, status, time.Since(start), err)
}

// Redact masks secret inside s for logging.
func Redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "****")
}
