package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/genericweather/gateway/internal/api/middleware"
	"github.com/genericweather/gateway/internal/api/response"
	"github.com/genericweather/gateway/internal/geolocation"
	"github.com/genericweather/gateway/internal/weather"
)

// maxRequestBytes bounds the inbound request payload.
const maxRequestBytes = 64 << 10

// DefaultReplyTimeout is how long a request waits for its terminal message.
const DefaultReplyTimeout = 30 * time.Second

// WeatherService is the orchestrator surface the handler needs.
type WeatherService interface {
	Handle(ctx context.Context, payload weather.Message, reply weather.Channel) <-chan struct{}
}

// WeatherHandler exposes the orchestrator as an HTTP host channel: the
// request body is the inbound payload and the response body is the terminal
// message.
type WeatherHandler struct {
	service      WeatherService
	replyTimeout time.Duration
	logger       zerolog.Logger
}

// NewWeatherHandler creates a new WeatherHandler.
func NewWeatherHandler(service WeatherService, replyTimeout time.Duration, logger zerolog.Logger) *WeatherHandler {
	if replyTimeout <= 0 {
		replyTimeout = DefaultReplyTimeout
	}
	return &WeatherHandler{
		service:      service,
		replyTimeout: replyTimeout,
		logger:       logger,
	}
}

// RequestWeather handles POST /v1/weather.
//
// Responses:
//   - 200 with the outbound message for both success and failure messages
//   - 204 when the payload is not a request or the provider is unknown
//   - 400 for a malformed body
//   - 504 when no terminal message arrived within the reply timeout
func (h *WeatherHandler) RequestWeather(w http.ResponseWriter, r *http.Request) {
	var payload weather.Message

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.BadRequest(w, r, "request body too large", nil)
			return
		}
		response.BadRequest(w, r, "request body must be a JSON object", nil)
		return
	}

	replies := make(chan weather.Message, 1)
	sink := weather.ChannelFunc(func(_ context.Context, msg weather.Message) error {
		select {
		case replies <- msg:
		default:
		}
		return nil
	})

	ctx := geolocation.WithClientIP(r.Context(), clientIP(r))
	done := h.service.Handle(ctx, payload, sink)
	if done == nil {
		response.NoContent(w, r)
		return
	}

	timer := time.NewTimer(h.replyTimeout)
	defer timer.Stop()

	select {
	case msg := <-replies:
		response.JSON(w, r, http.StatusOK, msg)
	case <-done:
		// The sink runs before done is closed, so a reply is already buffered if there is one.
		select {
		case msg := <-replies:
			response.JSON(w, r, http.StatusOK, msg)
		default:
			response.NoContent(w, r)
		}
	case <-timer.C:
		h.logger.Warn().
			Str("request_id", middleware.GetRequestID(r.Context())).
			Dur("timeout", h.replyTimeout).
			Msg("no reply before timeout")
		response.GatewayTimeout(w, r, "no reply from weather provider in time")
	case <-r.Context().Done():
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil && !ip.IsLoopback() && !ip.IsPrivate() {
		return ip.String()
	}
	return ""
}
