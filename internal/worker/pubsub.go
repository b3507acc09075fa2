package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/genericweather/gateway/internal/weather"
)

// Message attributes.
const (
	AttrCorrelationID = "correlation_id"
	AttrReplyTo       = "reply_to"
)

// Disposition is what to do with an inbound message once processed.
type Disposition int

const (
	Ack Disposition = iota
	Nack
)

func (d Disposition) String() string {
	if d == Nack {
		return "nack"
	}
	return "ack"
}

// InboundMessage is a transport-neutral view of a request message.
type InboundMessage struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Publisher sends a reply to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) error
}

// RequestService is the orchestrator surface the processor needs.
type RequestService interface {
	Handle(ctx context.Context, payload weather.Message, reply weather.Channel) <-chan struct{}
}

// RequestProcessor turns request messages into orchestrator calls and
// publishes the terminal message of each as a reply.
type RequestProcessor struct {
	service    RequestService
	publisher  Publisher
	replyTopic string
	logger     zerolog.Logger
}

// NewRequestProcessor creates a new RequestProcessor. Replies go to
// replyTopic unless a message names another topic in its reply_to attribute.
func NewRequestProcessor(service RequestService, publisher Publisher, replyTopic string, logger zerolog.Logger) *RequestProcessor {
	return &RequestProcessor{
		service:    service,
		publisher:  publisher,
		replyTopic: replyTopic,
		logger:     logger,
	}
}

// Process handles one inbound message and blocks until its request reached a
// terminal state. Undecodable and non-request messages are acked and
// dropped. A reply that could not be published is logged and the message is
// still acked; redelivery would repeat the provider fetch.
func (p *RequestProcessor) Process(ctx context.Context, in InboundMessage) Disposition {
	logger := p.logger.With().Str("message_id", in.ID).Logger()

	var payload weather.Message
	dec := json.NewDecoder(bytes.NewReader(in.Data))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		// Redelivery cannot fix a malformed payload.
		logger.Error().Err(err).Msg("failed to parse request message")
		return Ack
	}

	topic := p.replyTopic
	if v := in.Attributes[AttrReplyTo]; v != "" {
		topic = v
	}

	var sendErr error
	sink := weather.ChannelFunc(func(ctx context.Context, msg weather.Message) error {
		data, err := json.Marshal(msg)
		if err != nil {
			sendErr = fmt.Errorf("encoding reply: %w", err)
			return sendErr
		}
		sendErr = p.publisher.Publish(ctx, topic, data, map[string]string{AttrCorrelationID: in.ID})
		return sendErr
	})

	done := p.service.Handle(ctx, payload, sink)
	if done == nil {
		logger.Debug().Msg("message is not a request, dropped")
		return Ack
	}

	select {
	case <-done:
	case <-ctx.Done():
		// Shutting down; the request keeps running but its message is redelivered.
		return Nack
	}

	if sendErr != nil {
		logger.Error().Err(sendErr).Str("topic", topic).Msg("failed to publish reply, dropped")
	}
	return Ack
}

// PubSubHandler connects a RequestProcessor to Google Cloud Pub/Sub.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	processor        *RequestProcessor
	logger           zerolog.Logger

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	ReplyTopic       string
	Service          RequestService
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Each request waits for its provider round trip, so keep a modest
	// number in flight and extend leases long enough for slow upstreams.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 2 * time.Minute

	h := &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		logger:           cfg.Logger,
		publishers:       make(map[string]*pubsub.Publisher),
	}
	h.processor = NewRequestProcessor(cfg.Service, h, cfg.ReplyTopic, cfg.Logger)

	return h, nil
}

// Start receives request messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		start := time.Now()

		disposition := h.processor.Process(ctx, InboundMessage{
			ID:         msg.ID,
			Data:       msg.Data,
			Attributes: msg.Attributes,
		})
		if disposition == Nack {
			msg.Nack()
		} else {
			msg.Ack()
		}

		h.logger.Debug().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Stringer("disposition", disposition).
			Dur("duration", time.Since(start)).
			Msg("request message processed")
	})
}

// Publish implements Publisher.
func (h *PubSubHandler) Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) error {
	res := h.publisher(topic).Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

func (h *PubSubHandler) publisher(topic string) *pubsub.Publisher {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.publishers[topic]
	if !ok {
		p = h.client.Publisher(topic)
		h.publishers[topic] = p
	}
	return p
}

// Close flushes pending replies and closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	h.mu.Lock()
	for _, p := range h.publishers {
		p.Stop()
	}
	h.mu.Unlock()

	return h.client.Close()
}
