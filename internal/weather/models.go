package weather

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Weather errors.
var (
	// ErrFetchFailed covers non-200 provider responses and transport failures.
	ErrFetchFailed = errors.New("weather fetch failed")

	// ErrLocationUnavailable is returned by a Locator that could not obtain a fix.
	ErrLocationUnavailable = errors.New("location unavailable")

	// ErrUnknownProvider is returned by the dispatch table for unregistered providers.
	ErrUnknownProvider = errors.New("unknown weather provider")
)

// coordinateScale converts between degrees and the scaled integers used on the wire.
const coordinateScale = 100000

// MaxForecastSlots is the number of forecast slots a reply can carry.
const MaxForecastSlots = 24

// Coordinates is a latitude/longitude pair in degrees.
// Ranges are not validated; out of range values are passed through.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// CoordinatesFromScaled builds coordinates from wire integers (degrees x 100000).
func CoordinatesFromScaled(lat, lon int64) Coordinates {
	return Coordinates{
		Latitude:  float64(lat) / coordinateScale,
		Longitude: float64(lon) / coordinateScale,
	}
}

// Scaled returns the coordinates as wire integers (degrees x 100000).
func (c Coordinates) Scaled() (lat, lon int64) {
	return Scale(c.Latitude), Scale(c.Longitude)
}

// Scale converts degrees to the wire representation.
func Scale(deg float64) int64 {
	return int64(round(deg * coordinateScale))
}

// FormatDegrees renders a coordinate the way provider URLs expect it:
// shortest decimal form, no exponent.
func FormatDegrees(deg float64) string {
	return strconv.FormatFloat(deg, 'f', -1, 64)
}

// ProviderID identifies a weather provider on the wire (GW_PROVIDER).
type ProviderID int

const (
	ProviderOpenWeatherMap     ProviderID = 0
	ProviderWeatherUnderground ProviderID = 1
	ProviderForecastIO         ProviderID = 2
	ProviderYahoo              ProviderID = 3

	// ProviderUnrecognized is never registered; requests naming it are dropped.
	ProviderUnrecognized ProviderID = -1
)

func (p ProviderID) String() string {
	switch p {
	case ProviderOpenWeatherMap:
		return "openweathermap"
	case ProviderWeatherUnderground:
		return "wunderground"
	case ProviderForecastIO:
		return "forecastio"
	case ProviderYahoo:
		return "yahoo"
	default:
		return "provider(" + strconv.Itoa(int(p)) + ")"
	}
}

// RequestConfig is the resolved configuration for a single fetch.
// It is built fresh for every inbound request.
type RequestConfig struct {
	APIKey    string
	Provider  ProviderID
	Forecast  bool
	FeelsLike bool

	// Location is nil when the device location should be used.
	Location *Coordinates
}

// Overrides is one optional configuration layer. Nil fields are unset.
type Overrides struct {
	APIKey    *string
	Provider  *ProviderID
	Forecast  *bool
	FeelsLike *bool
	Location  *Coordinates
}

// Resolve merges the layers field by field; the receiver wins whenever both
// layers set a field. Unset fields fall back to an empty key, OpenWeatherMap,
// no forecast, actual temperature and device location.
func (o Overrides) Resolve(payload Overrides) RequestConfig {
	cfg := RequestConfig{Provider: ProviderOpenWeatherMap}

	if v := firstSet(o.APIKey, payload.APIKey); v != nil {
		cfg.APIKey = *v
	}
	if v := firstSet(o.Provider, payload.Provider); v != nil {
		cfg.Provider = *v
	}
	if v := firstSet(o.Forecast, payload.Forecast); v != nil {
		cfg.Forecast = *v
	}
	if v := firstSet(o.FeelsLike, payload.FeelsLike); v != nil {
		cfg.FeelsLike = *v
	}
	if v := firstSet(o.Location, payload.Location); v != nil {
		loc := *v
		cfg.Location = &loc
	}

	return cfg
}

func firstSet[T any](values ...*T) *T {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// Result is the canonical success envelope produced by a provider adapter.
type Result struct {
	TempK       int
	Description string
	Day         bool
	Condition   Condition
	Sunrise     int64
	Sunset      int64

	// Latitude and Longitude are the scaled request coordinates, not the
	// ones echoed back by the provider.
	Latitude  int64
	Longitude int64

	// Name is nil when the place name could not be resolved.
	Name *string

	Forecast []ForecastSlot
}

// ForecastSlot is one down-sampled future time point.
type ForecastSlot struct {
	TempK     int
	Time      int64
	Condition Condition
}

// Failure is a terminal error reported to the host channel.
type Failure int

const (
	FailureBadKey Failure = iota + 1
	FailureLocationUnavailable
)

func (f Failure) String() string {
	switch f {
	case FailureBadKey:
		return "bad_key"
	case FailureLocationUnavailable:
		return "location_unavailable"
	default:
		return "unknown"
	}
}

// OutcomeKind classifies how a request terminated.
type OutcomeKind string

const (
	OutcomeOK                  OutcomeKind = "ok"
	OutcomeBadKey              OutcomeKind = "bad_key"
	OutcomeLocationUnavailable OutcomeKind = "location_unavailable"
)

// Outcome records one terminal message sent to the host channel.
type Outcome struct {
	ID        string
	Provider  ProviderID
	Kind      OutcomeKind
	Latitude  int64
	Longitude int64
	Duration  time.Duration
	CreatedAt time.Time
}

// FlexFloat decodes JSON numbers as well as numbers wrapped in strings,
// which several providers use interchangeably.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parsing numeric string %q: %w", s, err)
		}
		*f = FlexFloat(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// Float returns the value as float64.
func (f FlexFloat) Float() float64 {
	return float64(f)
}
