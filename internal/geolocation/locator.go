// Package geolocation resolves the device location for requests that carry
// no explicit coordinates.
package geolocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/genericweather/gateway/internal/transport"
	"github.com/genericweather/gateway/internal/weather"
)

const (
	// ProviderName identifies the IP geolocation upstream.
	ProviderName = "ip-api"

	// DefaultBaseURL is the ip-api.com JSON endpoint.
	DefaultBaseURL = "http://ip-api.com/json"
)

// ErrNoFix is returned when the upstream could not place the address.
var ErrNoFix = errors.New("no location fix")

type clientIPKey struct{}

// WithClientIP returns a context carrying the address of the device that
// issued the request.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the device address stored by WithClientIP, or "".
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// Config holds configuration for the IP locator.
type Config struct {
	// BaseURL is the lookup endpoint (optional).
	BaseURL string

	// Transport performs the lookup (optional).
	Transport transport.Transport

	// Metrics records fix cache hits and misses (optional).
	Metrics *transport.Metrics

	// Now returns the current time (optional).
	Now func() time.Time

	// Logger for locator operations.
	Logger zerolog.Logger
}

type fix struct {
	coords weather.Coordinates
	at     time.Time
}

// IPLocator approximates the device location from its IP address. Fixes are
// cached per address and reused while younger than LocateOptions.MaximumAge.
type IPLocator struct {
	baseURL   string
	transport transport.Transport
	metrics   *transport.Metrics
	now       func() time.Time
	logger    zerolog.Logger

	mu    sync.Mutex
	fixes map[string]fix
}

// NewIPLocator creates a new IP based locator.
func NewIPLocator(cfg Config) *IPLocator {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	tr := cfg.Transport
	if tr == nil {
		tr = transport.New(transport.Config{Name: ProviderName, Logger: cfg.Logger})
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &IPLocator{
		baseURL:   baseURL,
		transport: tr,
		metrics:   cfg.Metrics,
		now:       now,
		logger:    cfg.Logger,
		fixes:     make(map[string]fix),
	}
}

// Locate returns the location of the address in ctx, or of the gateway's own
// address when ctx carries none.
func (l *IPLocator) Locate(ctx context.Context, opts weather.LocateOptions) (weather.Coordinates, error) {
	ip := ClientIP(ctx)

	if coords, ok := l.cached(ip, opts.MaximumAge); ok {
		l.recordCache(true)
		return coords, nil
	}
	l.recordCache(false)

	endpoint := l.baseURL
	if ip != "" {
		endpoint += "/" + url.PathEscape(ip)
	}

	resp, err := l.transport.Do(ctx, transport.Request{URL: endpoint})
	if err != nil {
		return weather.Coordinates{}, fmt.Errorf("executing request: %w", err)
	}
	if !resp.OK() {
		return weather.Coordinates{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return weather.Coordinates{}, fmt.Errorf("decoding response: %w", err)
	}
	if body.Status != "success" {
		return weather.Coordinates{}, fmt.Errorf("%w: %s", ErrNoFix, body.Message)
	}

	coords := weather.Coordinates{Latitude: body.Lat, Longitude: body.Lon}

	cached := l.store(ip, coords, opts.MaximumAge)

	l.logger.Debug().
		Str("ip", body.Query).
		Str("city", body.City).
		Int("cached_fixes", cached).
		Msg("device location resolved")

	return coords, nil
}

func (l *IPLocator) cached(ip string, maxAge time.Duration) (weather.Coordinates, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.fixes[ip]
	if !ok || l.now().Sub(f.at) > maxAge {
		return weather.Coordinates{}, false
	}
	return f.coords, true
}

// store caches a fix and evicts every fix older than maxAge. It returns the
// number of fixes left in the cache.
func (l *IPLocator) store(ip string, coords weather.Coordinates, maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, f := range l.fixes {
		if now.Sub(f.at) > maxAge {
			delete(l.fixes, key)
		}
	}
	l.fixes[ip] = fix{coords: coords, at: now}
	return len(l.fixes)
}

// CachedFixes returns the number of fixes currently held.
func (l *IPLocator) CachedFixes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fixes)
}

func (l *IPLocator) recordCache(hit bool) {
	if l.metrics == nil {
		return
	}
	l.metrics.RecordCacheLookup(ProviderName, hit)
}

type lookupResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
	Query   string  `json:"query"`
}
