// Package forecastio adapts the Forecast.io (Dark Sky) forecast API.
package forecastio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/genericweather/gateway/internal/transport"
	"github.com/genericweather/gateway/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "forecastio"

	// DefaultBaseURL is the Forecast.io API base URL.
	DefaultBaseURL = "https://api.forecast.io/forecast"
)

// Geocoder resolves a place name for coordinates.
type Geocoder interface {
	Reverse(ctx context.Context, coords weather.Coordinates) (string, error)
}

// ClientConfig holds configuration for the Forecast.io client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional).
	BaseURL string

	// Transport performs the forecast request (optional).
	Transport transport.Transport

	// Geocoder names the location, since the forecast payload has no place
	// name. If nil, results carry no name.
	Geocoder Geocoder

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Forecast.io API client.
type Client struct {
	baseURL   string
	transport transport.Transport
	geocoder  Geocoder
	logger    zerolog.Logger
}

// NewClient creates a new Forecast.io client.
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
		geocoder:  cfg.Geocoder,
		logger:    cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Fetch retrieves current conditions and, once they succeeded, looks up the
// place name. A failed name lookup leaves the name unset and does not fail
// the fetch.
func (c *Client) Fetch(ctx context.Context, cfg weather.RequestConfig, coords weather.Coordinates) (*weather.Result, error) {
	endpoint := c.endpoint(cfg, coords)

	c.logger.Debug().Str("url", transport.Redact(endpoint, cfg.APIKey)).Msg("contacting forecast.io")

	resp, err := c.transport.Do(ctx, transport.Request{URL: endpoint})
	if err != nil {
		return nil, fmt.Errorf("%w: executing request: %w", weather.ErrFetchFailed, err)
	}
	if !resp.OK() {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("error fetching weather")
		return nil, fmt.Errorf("%w: unexpected status code: %d", weather.ErrFetchFailed, resp.StatusCode)
	}

	var fResp forecastResponse
	if err := json.Unmarshal(resp.Body, &fResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", weather.ErrFetchFailed, err)
	}

	result := toResult(&fResp, cfg, coords)

	if c.geocoder != nil {
		name, err := c.geocoder.Reverse(ctx, coords)
		if err != nil {
			c.logger.Debug().Err(err).Msg("place name lookup failed")
		} else {
			result.Name = &name
		}
	}

	return result, nil
}

func (c *Client) endpoint(cfg weather.RequestConfig, coords weather.Coordinates) string {
	exclude := "minutely,hourly,alerts,flags"
	if cfg.Forecast {
		exclude = "minutely,alerts,flags"
	}

	query := url.Values{}
	query.Set("exclude", exclude)
	query.Set("units", "si")

	return c.baseURL + "/" + url.PathEscape(cfg.APIKey) + "/" +
		weather.FormatDegrees(coords.Latitude) + "," + weather.FormatDegrees(coords.Longitude) +
		"?" + query.Encode()
}

func toResult(resp *forecastResponse, cfg weather.RequestConfig, coords weather.Coordinates) *weather.Result {
	current := resp.Currently

	temp := current.Temperature
	if cfg.FeelsLike {
		temp = current.ApparentTemperature
	}

	var sunrise, sunset int64
	if len(resp.Daily.Data) > 0 {
		sunrise, sunset = resp.Daily.Data[0].SunriseTime, resp.Daily.Data[0].SunsetTime
	} else {
		sunriseAt, sunsetAt := weather.SolarTimes(coords, time.Unix(current.Time, 0))
		sunrise, sunset = weather.Epoch(sunriseAt), weather.Epoch(sunsetAt)
	}

	result := &weather.Result{
		TempK:       weather.ToKelvin(temp),
		Description: current.Summary,
		Day:         current.Time > sunrise && current.Time < sunset,
		Condition:   weather.ClassifyForecastIO(current.Icon),
		Sunrise:     sunrise,
		Sunset:      sunset,
	}
	result.Latitude, result.Longitude = coords.Scaled()

	if cfg.Forecast && len(resp.Hourly.Data) > 0 {
		result.Forecast = weather.Downsample(resp.Hourly.Data, func(p dataPoint) weather.ForecastSlot {
			t := p.Temperature
			if cfg.FeelsLike {
				t = p.ApparentTemperature
			}
			return weather.ForecastSlot{
				TempK:     weather.ToKelvin(t),
				Time:      p.Time,
				Condition: weather.ClassifyForecastIO(p.Icon),
			}
		})
	}

	return result
}

// Forecast.io API response structures.

type forecastResponse struct {
	Currently dataPoint `json:"currently"`
	Hourly    struct {
		Data []dataPoint `json:"data"`
	} `json:"hourly"`
	Daily struct {
		Data []struct {
			SunriseTime int64 `json:"sunriseTime"`
			SunsetTime  int64 `json:"sunsetTime"`
		} `json:"data"`
	} `json:"daily"`
}

type dataPoint struct {
	Time                int64   `json:"time"`
	Summary             string  `json:"summary"`
	Icon                string  `json:"icon"`
	Temperature         float64 `json:"temperature"`
	ApparentTemperature float64 `json:"apparentTemperature"`
}
