package weather_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genericweather/gateway/internal/weather"
)

func TestDecodeReply(t *testing.T) {
	result := &weather.Result{
		TempK:       293,
		Name:        ptr("Amsterdam"),
		Description: "clear sky",
		Day:         true,
		Condition:   weather.ConditionClearSky,
		Sunrise:     1718940000,
		Sunset:      1719000000,
		Latitude:    5237000,
		Longitude:   489500,
		Forecast: []weather.ForecastSlot{
			{TempK: 290, Time: 1718950000, Condition: weather.ConditionRain},
			{TempK: 268, Time: 1718957200, Condition: weather.ConditionSnow},
		},
	}

	// Round trip through JSON the way replies travel to clients.
	data, err := json.Marshal(result.Message())
	require.NoError(t, err)
	var msg weather.Message
	require.NoError(t, json.Unmarshal(data, &msg))

	reply, status := weather.DecodeReply(msg)
	require.Equal(t, weather.StatusAvailable, status)

	assert.Equal(t, "Amsterdam", reply.Name)
	assert.Equal(t, "clear sky", reply.Description)
	assert.Equal(t, 293, reply.TempK)
	assert.Equal(t, 20, reply.TempC)
	assert.Equal(t, 68, reply.TempF)
	assert.True(t, reply.Day)
	assert.Equal(t, weather.ConditionClearSky, reply.Condition)
	assert.Equal(t, int64(1718940000), reply.Sunrise)
	assert.Equal(t, int64(1719000000), reply.Sunset)
	assert.Equal(t, int64(5237000), reply.Latitude)
	assert.Equal(t, int64(489500), reply.Longitude)

	require.Len(t, reply.Forecast, 2)
	assert.Equal(t, weather.ReplyForecast{Time: 1718950000, TempK: 290, TempC: 17, TempF: 62, Condition: weather.ConditionRain}, reply.Forecast[0])
	assert.Equal(t, weather.ReplyForecast{Time: 1718957200, TempK: 268, TempC: -5, TempF: 23, Condition: weather.ConditionSnow}, reply.Forecast[1])
}

func TestDecodeReply_StopsAtFirstGap(t *testing.T) {
	msg := weather.Message{
		"GW_REPLY":                   1,
		"GW_FORECAST_CONDITIONCODE0": 1,
		"GW_FORECAST_CONDITIONCODE2": 2,
	}

	reply, status := weather.DecodeReply(msg)
	assert.Equal(t, weather.StatusAvailable, status)
	assert.Len(t, reply.Forecast, 1)
	assert.Empty(t, reply.Name)
}

func TestDecodeReply_Failures(t *testing.T) {
	_, status := weather.DecodeReply(weather.FailureBadKey.Message())
	assert.Equal(t, weather.StatusBadKey, status)

	_, status = weather.DecodeReply(weather.FailureLocationUnavailable.Message())
	assert.Equal(t, weather.StatusLocationUnavailable, status)

	_, status = weather.DecodeReply(weather.Message{})
	assert.Equal(t, weather.StatusNotYetFetched, status)
	assert.Equal(t, "not_yet_fetched", status.String())
}
