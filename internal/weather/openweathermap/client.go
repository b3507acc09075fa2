// Package openweathermap adapts the OpenWeatherMap current weather API.
package openweathermap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/genericweather/gateway/internal/transport"
	"github.com/genericweather/gateway/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openweathermap"

	// DefaultBaseURL is the OpenWeatherMap API base URL.
	DefaultBaseURL = "http://api.openweathermap.org/data/2.5"
)

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to OpenWeatherMap API).
	BaseURL string

	// Transport performs the request (optional).
	// If nil, uses an HTTP transport with resilient defaults.
	Transport transport.Transport

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenWeatherMap API client.
type Client struct {
	baseURL   string
	transport transport.Transport
	logger    zerolog.Logger
}

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	tr := cfg.Transport
	if tr == nil {
		tr = transport.New(transport.Config{Name: ProviderName, Logger: cfg.Logger})
	}

	return &Client{
		baseURL:   baseURL,
		transport: tr,
		logger:    cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Fetch retrieves current weather for coords. OpenWeatherMap has no hourly
// variant here, so cfg.Forecast is ignored.
func (c *Client) Fetch(ctx context.Context, cfg weather.RequestConfig, coords weather.Coordinates) (*weather.Result, error) {
	query := url.Values{}
	query.Set("appid", cfg.APIKey)
	query.Set("lat", weather.FormatDegrees(coords.Latitude))
	query.Set("lon", weather.FormatDegrees(coords.Longitude))
	query.Set("units", "metric")
	endpoint := c.baseURL + "/weather?" + query.Encode()

	c.logger.Debug().Str("url", transport.Redact(endpoint, cfg.APIKey)).Msg("contacting OpenWeatherMap")

	resp, err := c.transport.Do(ctx, transport.Request{URL: endpoint})
	if err != nil {
		return nil, fmt.Errorf("%w: executing request: %w", weather.ErrFetchFailed, err)
	}
	if !resp.OK() {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("error fetching weather")
		return nil, fmt.Errorf("%w: unexpected status code: %d", weather.ErrFetchFailed, resp.StatusCode)
	}

	var owmResp currentWeatherResponse
	if err := json.Unmarshal(resp.Body, &owmResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", weather.ErrFetchFailed, err)
	}

	return toResult(&owmResp, cfg, coords), nil
}

func toResult(resp *currentWeatherResponse, cfg weather.RequestConfig, coords weather.Coordinates) *weather.Result {
	temp := resp.Main.Temp
	if cfg.FeelsLike {
		temp = resp.Main.FeelsLike
	}

	name := resp.Name
	result := &weather.Result{
		TempK:     weather.ToKelvin(temp.Float()),
		Name:      &name,
		Day:       resp.Dt > resp.Sys.Sunrise && resp.Dt < resp.Sys.Sunset,
		Condition: weather.ConditionUnknown,
		Sunrise:   resp.Sys.Sunrise,
		Sunset:    resp.Sys.Sunset,
	}
	result.Latitude, result.Longitude = coords.Scaled()

	if len(resp.Weather) > 0 {
		result.Condition = weather.ClassifyOpenWeatherMap(resp.Weather[0].Icon)
		result.Description = resp.Weather[0].Description
	}

	return result
}

// OpenWeatherMap API response structures.

type currentWeatherResponse struct {
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp      weather.FlexFloat `json:"temp"`
		FeelsLike weather.FlexFloat `json:"feels_like"`
	} `json:"main"`
	Sys struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
	Dt   int64  `json:"dt"`
	Name string `json:"name"`
}
