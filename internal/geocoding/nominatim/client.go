// Package nominatim resolves place names from coordinates with the
// OpenStreetMap Nominatim reverse geocoder.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/genericweather/gateway/internal/transport"
	"github.com/genericweather/gateway/internal/weather"
)

const (
	// ProviderName identifies this geocoder.
	ProviderName = "nominatim"

	// DefaultBaseURL is the public Nominatim endpoint.
	DefaultBaseURL = "http://nominatim.openstreetmap.org"

	// DefaultUserAgent identifies the gateway, as the Nominatim usage policy requires.
	DefaultUserAgent = "Generic Weather Gateway"

	// DefaultRequestsPerSecond is the public instance's rate limit.
	DefaultRequestsPerSecond = 1.0
)

// ErrLookupFailed is returned for non-200 responses and transport failures.
var ErrLookupFailed = errors.New("reverse geocoding failed")

// ClientConfig holds configuration for the Nominatim client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional).
	BaseURL string

	// UserAgent is sent with every request (optional).
	UserAgent string

	// Transport performs the request (optional).
	// If nil, uses a transport limited to DefaultRequestsPerSecond.
	Transport transport.Transport

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Nominatim reverse geocoding client.
type Client struct {
	baseURL   string
	userAgent string
	transport transport.Transport
	logger    zerolog.Logger
}

// NewClient creates a new Nominatim client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	tr := cfg.Transport
	if tr == nil {
		tr = transport.New(transport.Config{
			Name:              ProviderName,
			RequestsPerSecond: DefaultRequestsPerSecond,
			Logger:            cfg.Logger,
		})
	}

	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		transport: tr,
		logger:    cfg.Logger,
	}
}

// Reverse returns the most specific settlement name at coords: village, then
// town, city and county. It returns "" when the address has none of them.
func (c *Client) Reverse(ctx context.Context, coords weather.Coordinates) (string, error) {
	query := url.Values{}
	query.Set("format", "json")
	query.Set("lat", weather.FormatDegrees(coords.Latitude))
	query.Set("lon", weather.FormatDegrees(coords.Longitude))
	endpoint := c.baseURL + "/reverse?" + query.Encode()

	resp, err := c.transport.Do(ctx, transport.Request{
		URL:         endpoint,
		HeaderName:  "User-Agent",
		HeaderValue: c.userAgent,
	})
	if err != nil {
		return "", fmt.Errorf("%w: executing request: %w", ErrLookupFailed, err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("%w: unexpected status code: %d", ErrLookupFailed, resp.StatusCode)
	}

	var rev reverseResponse
	if err := json.Unmarshal(resp.Body, &rev); err != nil {
		return "", fmt.Errorf("%w: decoding response: %w", ErrLookupFailed, err)
	}

	return rev.Address.placeName(), nil
}

type reverseResponse struct {
	Address address `json:"address"`
}

type address struct {
	Village string `json:"village"`
	Town    string `json:"town"`
	City    string `json:"city"`
	County  string `json:"county"`
}

func (a address) placeName() string {
	for _, name := range []string{a.Village, a.Town, a.City, a.County} {
		if name != "" {
			return name
		}
	}
	return ""
}
