package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"smong-quiz-service/internal/domain"
)

// DefaultTopic receives quiz analytics events.
const DefaultTopic = "quiz.analytics"

// AnalyticsPublisher publishes analytics events as watermill messages.
type AnalyticsPublisher struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger
}

// Config holds the Kafka connection settings.
type Config struct {
	Brokers []string
	Topic   string
	Logger  *slog.Logger
}

// NewKafkaPublisher connects a watermill Kafka publisher.
func NewKafkaPublisher(cfg Config) (*AnalyticsPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.Brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	return NewAnalyticsPublisher(pub, cfg.Topic, logger), nil
}

// NewAnalyticsPublisher wraps any watermill publisher.
func NewAnalyticsPublisher(pub message.Publisher, topic string, logger *slog.Logger) *AnalyticsPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyticsPublisher{publisher: pub, topic: topic, logger: logger}
}

func (p *AnalyticsPublisher) Track(ctx context.Context, event domain.AnalyticsEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal analytics event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", event.EventType)
	msg.Metadata.Set("user_id", event.UserID)
	msg.Metadata.Set("timestamp", event.CreatedAt.Format(time.RFC3339))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish analytics event: %w", err)
	}
	p.logger.DebugContext(ctx, "published analytics event", "event_id", event.ID, "event_type", event.EventType, "topic", p.topic)
	return nil
}

func (p *AnalyticsPublisher) Close() error {
	return p.publisher.Close()
}
