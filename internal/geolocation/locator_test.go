package geolocation_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genericweather/gateway/internal/geolocation"
	"github.com/genericweather/gateway/internal/transport"
	"github.com/genericweather/gateway/internal/weather"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func TestIPLocator_Locate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/203.0.113.7", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"success","lat":40.7128,"lon":-74.006,"city":"New York","query":"203.0.113.7"}`))
	}))
	defer server.Close()

	locator := geolocation.NewIPLocator(geolocation.Config{BaseURL: server.URL + "/json", Logger: zerolog.Nop()})

	ctx := geolocation.WithClientIP(context.Background(), "203.0.113.7")
	coords, err := locator.Locate(ctx, weather.DefaultLocateOptions())
	require.NoError(t, err)

	assert.Equal(t, weather.Coordinates{Latitude: 40.7128, Longitude: -74.006}, coords)
}

func TestIPLocator_OwnAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"success","lat":52.37,"lon":4.895}`))
	}))
	defer server.Close()

	locator := geolocation.NewIPLocator(geolocation.Config{BaseURL: server.URL + "/json", Logger: zerolog.Nop()})

	coords, err := locator.Locate(context.Background(), weather.DefaultLocateOptions())
	require.NoError(t, err)
	assert.InDelta(t, 52.37, coords.Latitude, 1e-9)
}

func TestIPLocator_CachesFix(t *testing.T) {
	var lookups atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		lookups.Add(1)
		_, _ = w.Write([]byte(`{"status":"success","lat":1.5,"lon":2.5}`))
	}))
	defer server.Close()

	metrics, err := transport.NewMetrics()
	require.NoError(t, err)

	c := &clock{now: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
	locator := geolocation.NewIPLocator(geolocation.Config{
		BaseURL: server.URL,
		Metrics: metrics,
		Now:     c.Now,
		Logger:  zerolog.Nop(),
	})
	opts := weather.LocateOptions{Timeout: time.Second, MaximumAge: time.Minute}

	_, err = locator.Locate(context.Background(), opts)
	require.NoError(t, err)

	c.now = c.now.Add(59 * time.Second)
	_, err = locator.Locate(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int32(1), lookups.Load(), "fix younger than maximum age is reused")

	c.now = c.now.Add(2 * time.Second)
	_, err = locator.Locate(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), lookups.Load(), "stale fix is refreshed")

	_, err = locator.Locate(geolocation.WithClientIP(context.Background(), "198.51.100.1"), opts)
	require.NoError(t, err)
	assert.Equal(t, int32(3), lookups.Load(), "fixes are cached per address")
}

func TestIPLocator_EvictsExpiredFixes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","lat":1.5,"lon":2.5}`))
	}))
	defer server.Close()

	c := &clock{now: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
	locator := geolocation.NewIPLocator(geolocation.Config{
		BaseURL: server.URL,
		Now:     c.Now,
		Logger:  zerolog.Nop(),
	})
	opts := weather.LocateOptions{Timeout: time.Second, MaximumAge: time.Minute}

	for i := 0; i < 100; i++ {
		ip := fmt.Sprintf("198.51.100.%d", i+1)
		_, err := locator.Locate(geolocation.WithClientIP(context.Background(), ip), opts)
		require.NoError(t, err)
		c.now = c.now.Add(time.Hour)
	}
	assert.Equal(t, 1, locator.CachedFixes(), "only the newest fix is still fresh")

	// Fresh fixes survive eviction.
	c.now = c.now.Add(-time.Hour + 10*time.Second)
	_, err := locator.Locate(geolocation.WithClientIP(context.Background(), "203.0.113.7"), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, locator.CachedFixes())
}

func TestIPLocator_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "fail status", status: http.StatusOK, body: `{"status":"fail","message":"private range"}`},
		{name: "http error", status: http.StatusServiceUnavailable, body: ``},
		{name: "invalid json", status: http.StatusOK, body: `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			locator := geolocation.NewIPLocator(geolocation.Config{BaseURL: server.URL, Logger: zerolog.Nop()})

			_, err := locator.Locate(context.Background(), weather.DefaultLocateOptions())
			assert.Error(t, err)
		})
	}
}

func TestClientIP(t *testing.T) {
	assert.Empty(t, geolocation.ClientIP(context.Background()))
	assert.Equal(t, "192.0.2.1", geolocation.ClientIP(geolocation.WithClientIP(context.Background(), "192.0.2.1")))
}
