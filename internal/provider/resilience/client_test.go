package resilience_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genericweather/gateway/internal/provider/resilience"
)

// upstream is a provider stand-in answering every call with status.
func upstream(t *testing.T, status *atomic.Int32, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	t.Cleanup(server.Close)
	return server
}

func get(ctx context.Context, t *testing.T, client *resilience.Client, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	if resp != nil {
		t.Cleanup(func() { resp.Body.Close() })
	}
	return resp, err
}

func fastRetryConfig(name string, retries uint64) resilience.ClientConfig {
	cb := resilience.DefaultCircuitBreakerConfig(name)
	cb.ReadyToTrip = func(gobreaker.Counts) bool { return false }
	return resilience.ClientConfig{
		Name:            name,
		Timeout:         time.Second,
		MaxRetries:      retries,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		CircuitBreaker:  &cb,
	}
}

func TestClient_StatusPassthrough(t *testing.T) {
	tests := []struct {
		name   string
		status int32
	}{
		{"ok", http.StatusOK},
		{"bad api key", http.StatusUnauthorized},
		{"not found", http.StatusNotFound},
		{"upstream down", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var status, calls atomic.Int32
			status.Store(tt.status)
			server := upstream(t, &status, &calls)

			client := resilience.NewClient(resilience.DefaultClientConfig("openweathermap"))
			resp, err := get(context.Background(), t, client, server.URL)

			require.NoError(t, err)
			assert.Equal(t, int(tt.status), resp.StatusCode)
			assert.Equal(t, int32(1), calls.Load(), "provider fetches are not retried")
		})
	}
}

func TestClient_RetryOn5xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(fastRetryConfig("nominatim", 5))
	resp, err := get(context.Background(), t, client, server.URL)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_4xxNotRetried(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusUnauthorized)
	server := upstream(t, &status, &calls)

	client := resilience.NewClient(fastRetryConfig("wunderground", 3))
	resp, err := get(context.Background(), t, client, server.URL)

	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_BadKeysDoNotTripCircuit(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusUnauthorized)
	server := upstream(t, &status, &calls)

	client := resilience.NewClient(resilience.DefaultClientConfig("forecastio"))
	for i := 0; i < 10; i++ {
		_, err := get(context.Background(), t, client, server.URL)
		require.NoError(t, err)
	}

	assert.Equal(t, gobreaker.StateClosed, client.CircuitBreakerState())
	assert.Equal(t, int32(10), calls.Load())
}

func TestClient_CircuitOpensOnConsecutive5xx(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusInternalServerError)
	server := upstream(t, &status, &calls)

	client := resilience.NewClient(resilience.DefaultClientConfig("yahoo"))
	for i := 0; i < resilience.DefaultConsecutiveFailures; i++ {
		resp, err := get(context.Background(), t, client, server.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	}
	assert.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())

	resp, err := get(context.Background(), t, client, server.URL)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(resilience.DefaultConsecutiveFailures), calls.Load(), "open circuit must not reach the upstream")
}

func TestClient_CircuitHalfOpenRecovers(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusBadGateway)
	server := upstream(t, &status, &calls)

	cb := resilience.DefaultCircuitBreakerConfig("openweathermap")
	cb.Timeout = 50 * time.Millisecond
	cfg := resilience.DefaultClientConfig("openweathermap")
	cfg.CircuitBreaker = &cb
	client := resilience.NewClient(cfg)

	for i := 0; i < resilience.DefaultConsecutiveFailures; i++ {
		_, _ = get(context.Background(), t, client, server.URL)
	}
	require.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())

	status.Store(http.StatusOK)
	time.Sleep(80 * time.Millisecond)

	resp, err := get(context.Background(), t, client, server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, client.CircuitBreakerState())
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := resilience.DefaultClientConfig("wunderground")
	cfg.Timeout = 50 * time.Millisecond
	client := resilience.NewClient(cfg)

	resp, err := get(context.Background(), t, client, server.URL)
	assert.Nil(t, resp)
	assert.Error(t, err)
	assert.Equal(t, uint32(1), client.CircuitBreakerCounts().TotalFailures)
}

func TestClient_CancellationDoesNotCountAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.DefaultClientConfig("forecastio"))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	resp, err := get(ctx, t, client, server.URL)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint32(0), client.CircuitBreakerCounts().TotalFailures)
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := resilience.DefaultCircuitBreakerConfig("openweathermap")

	assert.Equal(t, "openweathermap", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, resilience.DefaultOpenTimeout, cfg.Timeout)
	assert.Equal(t, resilience.DefaultCountInterval, cfg.Interval)
	assert.NotNil(t, cfg.ReadyToTrip)
}

func TestDefaultReadyToTrip(t *testing.T) {
	tests := []struct {
		name     string
		counts   gobreaker.Counts
		expected bool
	}{
		{
			name:     "two failures in a row",
			counts:   gobreaker.Counts{Requests: 2, TotalFailures: 2, ConsecutiveFailures: 2},
			expected: false,
		},
		{
			name:     "three failures in a row",
			counts:   gobreaker.Counts{Requests: 3, TotalFailures: 3, ConsecutiveFailures: 3},
			expected: true,
		},
		{
			name:     "low failure rate",
			counts:   gobreaker.Counts{Requests: 10, TotalFailures: 4, ConsecutiveFailures: 1},
			expected: false,
		},
		{
			name:     "half of the requests failing",
			counts:   gobreaker.Counts{Requests: 10, TotalFailures: 5, ConsecutiveFailures: 1},
			expected: true,
		},
		{
			name:     "alternating failures below the volume threshold",
			counts:   gobreaker.Counts{Requests: 4, TotalFailures: 2, ConsecutiveFailures: 1},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resilience.DefaultReadyToTrip(tt.counts))
		})
	}
}

func TestNewCircuitBreaker_StateChangeCallback(t *testing.T) {
	var transitions []gobreaker.State
	cb := resilience.NewCircuitBreaker[int](resilience.CircuitBreakerConfig{
		Name:        "yahoo",
		MaxRequests: 1,
		Timeout:     time.Minute,
		OnStateChange: func(_ string, _, to gobreaker.State) {
			transitions = append(transitions, to)
		},
	})

	for i := 0; i < resilience.DefaultConsecutiveFailures; i++ {
		_, _ = cb.Execute(func() (int, error) { return 0, assert.AnError })
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)
}

func TestNewCircuitBreaker_CancellationIsNotAFailure(t *testing.T) {
	cb := resilience.NewCircuitBreaker[int](resilience.DefaultCircuitBreakerConfig("forecastio"))

	for i := 0; i < 10; i++ {
		_, _ = cb.Execute(func() (int, error) { return 0, context.Canceled })
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, uint32(0), cb.Counts().TotalFailures)
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := resilience.DefaultClientConfig("yahoo")

	assert.Equal(t, "yahoo", cfg.Name)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, uint64(0), cfg.MaxRetries, "provider fetches are never retried")
	assert.Equal(t, 100*time.Millisecond, cfg.InitialInterval)
	assert.Equal(t, 5*time.Second, cfg.MaxInterval)
	assert.NotNil(t, cfg.CircuitBreaker)
}

func TestServerError(t *testing.T) {
	err := &resilience.ServerError{StatusCode: http.StatusInternalServerError}
	assert.Contains(t, err.Error(), "Internal Server Error")
}
