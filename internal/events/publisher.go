// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"call-transcription-bot/internal/observability/metrics"
)

// TranscriptUpdated is emitted once per transcript fold that appended
// text.
type TranscriptUpdated struct {
	SessionID     string `json:"sessionId"`
	CallID        string `json:"callId"`
	Appended      string `json:"appended"`
	TranscriptLen int    `json:"transcriptLen"`
	Backend       string `json:"backend"`
	Timestamp     int64  `json:"timestamp"`
}

// SessionLifecycle is emitted on session start, finish and failure.
type SessionLifecycle struct {
	SessionID    string   `json:"sessionId"`
	CallID       string   `json:"callId"`
	State        string   `json:"state"`
	Participants []string `json:"participants,omitempty"`
	Timestamp    int64    `json:"timestamp"`
}

// Publisher publishes session events to separate Kafka topics.
type Publisher struct {
	writerUpdates   *kafka.Writer
	writerLifecycle *kafka.Writer
	principal       string
	topicUpdates    string
	topicLifecycle  string
	enabled         bool
	metrics         *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers        []string
	TopicUpdates   string
	TopicLifecycle string
	Principal      string
	Enabled        bool
}

// New creates a Kafka event publisher with separate topics for
// transcript updates and session lifecycle transitions. With Kafka
// disabled or no brokers configured it runs in log-only mode.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:      cfg.Principal,
			topicUpdates:   cfg.TopicUpdates,
			topicLifecycle: cfg.TopicLifecycle,
			enabled:        false,
			metrics:        m,
		}
	}

	// Longer dial timeouts for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writerUpdates := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicUpdates,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	writerLifecycle := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicLifecycle,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicUpdates", cfg.TopicUpdates).
		Str("topicLifecycle", cfg.TopicLifecycle).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerUpdates:   writerUpdates,
		writerLifecycle: writerLifecycle,
		principal:       cfg.Principal,
		topicUpdates:    cfg.TopicUpdates,
		topicLifecycle:  cfg.TopicLifecycle,
		enabled:         true,
		metrics:         m,
	}
}

// PublishUpdate publishes a transcript update keyed by session id.
func (p *Publisher) PublishUpdate(ctx context.Context, event TranscriptUpdated) error {
	return p.publish(ctx, p.writerUpdates, p.topicUpdates, event.SessionID, event)
}

// PublishLifecycle publishes a session lifecycle transition keyed by
// session id.
func (p *Publisher) PublishLifecycle(ctx context.Context, event SessionLifecycle) error {
	return p.publish(ctx, p.writerLifecycle, p.topicLifecycle, event.SessionID, event)
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(topic)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerUpdates != nil {
		if e := p.writerUpdates.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing updates writer")
			err = e
		}
	}
	if p.writerLifecycle != nil {
		if e := p.writerLifecycle.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing lifecycle writer")
			err = e
		}
	}
	return err
}
