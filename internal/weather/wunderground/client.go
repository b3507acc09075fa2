// Package wunderground adapts the Weather Underground conditions API.
package wunderground

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/genericweather/gateway/internal/transport"
	"github.com/genericweather/gateway/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "wunderground"

	// DefaultBaseURL is the Weather Underground API base URL.
	DefaultBaseURL = "http://api.wunderground.com/api"
)

// ClientConfig holds configuration for the Weather Underground client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional).
	BaseURL string

	// Transport performs the request (optional).
	Transport transport.Transport

	// Now returns the current time, used for sunrise and sunset (optional).
	Now func() time.Time

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Weather Underground API client.
type Client struct {
	baseURL   string
	transport transport.Transport
	now       func() time.Time
	logger    zerolog.Logger
}

// NewClient creates a new Weather Underground client.
func NewClient(cfg ClientConfig) *Client {
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

	return &Client{
		baseURL:   baseURL,
		transport: tr,
		now:       now,
		logger:    cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Fetch retrieves current conditions, plus the hourly forecast when
// cfg.Forecast is set. The payload carries no sunrise or sunset, so both are
// computed from coords for the current date.
func (c *Client) Fetch(ctx context.Context, cfg weather.RequestConfig, coords weather.Coordinates) (*weather.Result, error) {
	endpoint := c.endpoint(cfg, coords)

	c.logger.Debug().Str("url", transport.Redact(endpoint, cfg.APIKey)).Msg("contacting Weather Underground")

	resp, err := c.transport.Do(ctx, transport.Request{URL: endpoint})
	if err != nil {
		return nil, fmt.Errorf("%w: executing request: %w", weather.ErrFetchFailed, err)
	}
	if !resp.OK() {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("error fetching weather")
		return nil, fmt.Errorf("%w: unexpected status code: %d", weather.ErrFetchFailed, resp.StatusCode)
	}

	var wuResp conditionsResponse
	if err := json.Unmarshal(resp.Body, &wuResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", weather.ErrFetchFailed, err)
	}

	return c.toResult(&wuResp, cfg, coords), nil
}

func (c *Client) endpoint(cfg weather.RequestConfig, coords weather.Coordinates) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("/")
	b.WriteString(url.PathEscape(cfg.APIKey))
	b.WriteString("/conditions")
	if cfg.Forecast {
		b.WriteString("/hourly")
	}
	b.WriteString("/q/")
	b.WriteString(weather.FormatDegrees(coords.Latitude))
	b.WriteString(",")
	b.WriteString(weather.FormatDegrees(coords.Longitude))
	b.WriteString(".json")
	return b.String()
}

func (c *Client) toResult(resp *conditionsResponse, cfg weather.RequestConfig, coords weather.Coordinates) *weather.Result {
	obs := resp.CurrentObservation

	temp := obs.TempC
	if cfg.FeelsLike {
		temp = obs.FeelsLikeC
	}

	sunriseAt, sunsetAt := weather.SolarTimes(coords, c.now())
	city := obs.DisplayLocation.City

	result := &weather.Result{
		TempK:       weather.ToKelvin(temp.Float()),
		Name:        &city,
		Description: obs.Weather,
		Day:         !strings.Contains(obs.IconURL, "nt_"),
		Condition:   weather.ClassifyWunderground(obs.Icon),
		Sunrise:     weather.Epoch(sunriseAt),
		Sunset:      weather.Epoch(sunsetAt),
	}
	result.Latitude, result.Longitude = coords.Scaled()

	if cfg.Forecast && len(resp.HourlyForecast) > 0 {
		result.Forecast = weather.Downsample(resp.HourlyForecast, func(h hourlyForecast) weather.ForecastSlot {
			t := h.Temp.Metric
			if cfg.FeelsLike {
				t = h.FeelsLike.Metric
			}
			// Hourly values are whole degrees; fractions are dropped.
			return weather.ForecastSlot{
				TempK:     weather.ToKelvin(math.Trunc(t.Float())),
				Time:      int64(h.FCTTime.Epoch.Float()),
				Condition: weather.ClassifyWunderground(h.Icon),
			}
		})
	}

	return result
}

// Weather Underground API response structures. Most numbers arrive as strings.

type conditionsResponse struct {
	CurrentObservation struct {
		DisplayLocation struct {
			City string `json:"city"`
		} `json:"display_location"`
		Weather    string            `json:"weather"`
		TempC      weather.FlexFloat `json:"temp_c"`
		FeelsLikeC weather.FlexFloat `json:"feelslike_c"`
		Icon       string            `json:"icon"`
		IconURL    string            `json:"icon_url"`
	} `json:"current_observation"`
	HourlyForecast []hourlyForecast `json:"hourly_forecast"`
}

type hourlyForecast struct {
	FCTTime struct {
		Epoch weather.FlexFloat `json:"epoch"`
	} `json:"FCTTIME"`
	Temp struct {
		Metric weather.FlexFloat `json:"metric"`
	} `json:"temp"`
	FeelsLike struct {
		Metric weather.FlexFloat `json:"metric"`
	} `json:"feelslike"`
	Icon string `json:"icon"`
}
