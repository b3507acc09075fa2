package weather

import (
	"encoding/json"
	"math"
	"strconv"
)

// Message keys shared with the display client.
const (
	KeyRequest   = "GW_REQUEST"
	KeyAPIKey    = "GW_APIKEY"
	KeyProvider  = "GW_PROVIDER"
	KeyForecast  = "GW_FORECAST"
	KeyFeelsLike = "GW_FEELS_LIKE"
	KeyLatitude  = "GW_LATITUDE"
	KeyLongitude = "GW_LONGITUDE"

	KeyReply         = "GW_REPLY"
	KeyTempK         = "GW_TEMPK"
	KeyName          = "GW_NAME"
	KeyDescription   = "GW_DESCRIPTION"
	KeyDay           = "GW_DAY"
	KeyConditionCode = "GW_CONDITIONCODE"
	KeySunrise       = "GW_SUNRISE"
	KeySunset        = "GW_SUNSET"
	KeyResultLat     = "GW_RESULT_LAT"
	KeyResultLong    = "GW_RESULT_LONG"

	KeyForecastTempK         = "GW_FORECAST_TEMPK"
	KeyForecastTime          = "GW_FORECAST_TIME"
	KeyForecastConditionCode = "GW_FORECAST_CONDITIONCODE"

	KeyBadKey              = "GW_BADKEY"
	KeyLocationUnavailable = "GW_LOCATIONUNAVAILABLE"
)

// Message is a flat keyed dictionary exchanged over the host channel.
type Message map[string]any

// ForecastKey returns the indexed key for forecast slot i, e.g. GW_FORECAST_TEMPK3.
func ForecastKey(base string, i int) string {
	return base + strconv.Itoa(i)
}

// Message encodes the result as an outbound success message.
func (r *Result) Message() Message {
	msg := Message{
		KeyReply:         1,
		KeyTempK:         r.TempK,
		KeyDescription:   r.Description,
		KeyDay:           r.Day,
		KeyConditionCode: int(r.Condition),
		KeySunrise:       r.Sunrise,
		KeySunset:        r.Sunset,
		KeyResultLat:     r.Latitude,
		KeyResultLong:    r.Longitude,
	}
	if r.Name != nil {
		msg[KeyName] = *r.Name
	}

	for i, slot := range r.Forecast {
		if i >= MaxForecastSlots {
			break
		}
		msg[ForecastKey(KeyForecastTempK, i)] = slot.TempK
		msg[ForecastKey(KeyForecastTime, i)] = slot.Time
		msg[ForecastKey(KeyForecastConditionCode, i)] = int(slot.Condition)
	}

	return msg
}

// Message encodes the failure as a single-flag outbound message.
func (f Failure) Message() Message {
	switch f {
	case FailureLocationUnavailable:
		return Message{KeyLocationUnavailable: 1}
	default:
		return Message{KeyBadKey: 1}
	}
}

// IsRequest reports whether the message carries a truthy GW_REQUEST.
func (m Message) IsRequest() bool {
	v, ok := m[KeyRequest]
	return ok && truthy(v)
}

// Overrides extracts the payload configuration layer. Location is only set
// when both GW_LATITUDE and GW_LONGITUDE are present.
func (m Message) Overrides() Overrides {
	var o Overrides

	if v, ok := m[KeyAPIKey]; ok {
		key := stringValue(v)
		o.APIKey = &key
	}
	if v, ok := m[KeyProvider]; ok {
		p := providerValue(v)
		o.Provider = &p
	}
	if v, ok := m[KeyForecast]; ok {
		b := truthy(v)
		o.Forecast = &b
	}
	if v, ok := m[KeyFeelsLike]; ok {
		n, _ := numberValue(v)
		b := n > 0
		o.FeelsLike = &b
	}

	lat, latOK := m[KeyLatitude]
	lon, lonOK := m[KeyLongitude]
	if latOK && lonOK {
		latN, ok1 := numberValue(lat)
		lonN, ok2 := numberValue(lon)
		if ok1 && ok2 {
			o.Location = &Coordinates{
				Latitude:  latN / coordinateScale,
				Longitude: lonN / coordinateScale,
			}
		}
	}

	return o
}

// Int returns the integer value stored at key.
func (m Message) Int(key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	n, ok := numberValue(v)
	if !ok {
		return 0, false
	}
	return int64(n), true
}

// Text returns the string value stored at key.
func (m Message) Text(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool returns the truthiness of the value stored at key.
func (m Message) Bool(key string) bool {
	v, ok := m[key]
	return ok && truthy(v)
}

// numberValue coerces the value types produced by JSON decoding and by
// in-process callers to float64. Booleans count as 0/1.
func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// providerValue reads GW_PROVIDER. Only integral numbers select a provider;
// strings, booleans, null and fractions map to ProviderUnrecognized.
func providerValue(v any) ProviderID {
	switch v.(type) {
	case nil, bool, string:
		return ProviderUnrecognized
	}
	n, ok := numberValue(v)
	if !ok || n != math.Trunc(n) || math.IsInf(n, 0) {
		return ProviderUnrecognized
	}
	return ProviderID(int64(n))
}

func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	}
	n, ok := numberValue(v)
	return ok && n != 0 && !math.IsNaN(n)
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case json.Number:
		return s.String()
	}
	if n, ok := numberValue(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}
