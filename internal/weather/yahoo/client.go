// Package yahoo adapts the Yahoo Weather YQL endpoint.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/genericweather/gateway/internal/transport"
	"github.com/genericweather/gateway/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "yahoo"

	// DefaultBaseURL is the YQL public endpoint.
	DefaultBaseURL = "https://query.yahooapis.com/v1/public/yql"
)

var errNoResults = errors.New("query returned no results")

// ClientConfig holds configuration for the Yahoo client.
type ClientConfig struct {
	// BaseURL is the YQL endpoint (optional).
	BaseURL string

	// Transport performs the request (optional).
	Transport transport.Transport

	// Now returns the current time (optional). Sunrise and sunset arrive as
	// local clock times and are placed on the current date.
	Now func() time.Time

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Yahoo Weather client. The endpoint needs no API key.
type Client struct {
	baseURL   string
	transport transport.Transport
	now       func() time.Time
	logger    zerolog.Logger
}

// NewClient creates a new Yahoo client.
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

// Query builds the YQL statement for coords, in Celsius.
func Query(coords weather.Coordinates) string {
	return "select astronomy, location.city, item.condition from weather.forecast where woeid in " +
		"(select woeid from geo.places(1) where text='(" +
		weather.FormatDegrees(coords.Latitude) + "," + weather.FormatDegrees(coords.Longitude) +
		")') and u='c'"
}

// Fetch retrieves current conditions. There is no hourly variant and
// cfg.FeelsLike has no counterpart in the payload.
func (c *Client) Fetch(ctx context.Context, cfg weather.RequestConfig, coords weather.Coordinates) (*weather.Result, error) {
	query := url.Values{}
	query.Set("q", Query(coords))
	query.Set("format", "json")
	endpoint := c.baseURL + "?" + query.Encode()

	c.logger.Debug().Str("url", endpoint).Msg("contacting Yahoo! Weather")

	resp, err := c.transport.Do(ctx, transport.Request{URL: endpoint})
	if err != nil {
		return nil, fmt.Errorf("%w: executing request: %w", weather.ErrFetchFailed, err)
	}
	if !resp.OK() {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("error fetching weather")
		return nil, fmt.Errorf("%w: unexpected status code: %d", weather.ErrFetchFailed, resp.StatusCode)
	}

	var yResp yqlResponse
	if err := json.Unmarshal(resp.Body, &yResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", weather.ErrFetchFailed, err)
	}
	if yResp.Query.Results == nil {
		return nil, fmt.Errorf("%w: %w", weather.ErrFetchFailed, errNoResults)
	}

	return c.toResult(&yResp.Query.Results.Channel, coords), nil
}

func (c *Client) toResult(ch *channel, coords weather.Coordinates) *weather.Result {
	now := c.now()
	sunriseAt := weather.ParseTimeOfDayAt(ch.Astronomy.Sunrise, now)
	sunsetAt := weather.ParseTimeOfDayAt(ch.Astronomy.Sunset, now)

	// Codes and temperatures are integers sent as strings.
	code := int(math.Trunc(ch.Item.Condition.Code.Float()))
	temp := math.Trunc(ch.Item.Condition.Temp.Float())

	city := ch.Location.City
	result := &weather.Result{
		TempK:       weather.ToKelvin(temp),
		Name:        &city,
		Description: ch.Item.Condition.Text,
		Day:         now.After(sunriseAt) && now.Before(sunsetAt),
		Condition:   weather.ClassifyYahoo(code),
		Sunrise:     weather.Epoch(sunriseAt),
		Sunset:      weather.Epoch(sunsetAt),
	}
	result.Latitude, result.Longitude = coords.Scaled()

	return result
}

// YQL response structures.

type yqlResponse struct {
	Query struct {
		Results *struct {
			Channel channel `json:"channel"`
		} `json:"results"`
	} `json:"query"`
}

type channel struct {
	Astronomy struct {
		Sunrise string `json:"sunrise"`
		Sunset  string `json:"sunset"`
	} `json:"astronomy"`
	Location struct {
		City string `json:"city"`
	} `json:"location"`
	Item struct {
		Condition struct {
			Code weather.FlexFloat `json:"code"`
			Temp weather.FlexFloat `json:"temp"`
			Text string            `json:"text"`
		} `json:"condition"`
	} `json:"item"`
}
