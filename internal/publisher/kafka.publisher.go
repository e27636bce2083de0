package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/domain"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var kafkaPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "biometrics_kafka_publish_errors_total",
	Help: "Recognition events that failed to publish.",
})

// RecognitionMessage is the wire form of a recognition event on the bus.
// Token material never leaves the service.
type RecognitionMessage struct {
	RequestID string    `json:"request_id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Result    string    `json:"result"`
	Reason    string    `json:"reason,omitempty"`
	Score     *float64  `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewRecognitionMessage(e *domain.RecognitionEvent) RecognitionMessage {
	return RecognitionMessage{
		RequestID: uuid.NewString(),
		EventID:   e.ID,
		UserID:    e.UserID,
		Type:      string(e.Type),
		Result:    string(e.Result),
		Reason:    e.Reason,
		Score:     e.Score,
		CreatedAt: e.CreatedAt,
	}
}

type Publisher interface {
	PublishRecognition(ctx context.Context, e *domain.RecognitionEvent) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafkaWriter builds the writer used by KafkaPublisher.
func NewKafkaWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // keep one user's events ordered on one partition
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchSize:    50,
		BatchTimeout: 10 * time.Millisecond,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}
}

func NewKafkaPublisher(w messageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) PublishRecognition(ctx context.Context, e *domain.RecognitionEvent) error {
	data, err := json.Marshal(NewRecognitionMessage(e))
	if err != nil {
		kafkaPublishErrors.Inc()
		return fmt.Errorf("marshal recognition message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.UserID),
		Value: data,
		Time:  e.CreatedAt,
	}); err != nil {
		kafkaPublishErrors.Inc()
		return fmt.Errorf("publish recognition event: %w", err)
	}
	return nil
}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishRecognition(context.Context, *domain.RecognitionEvent) error { return nil }
