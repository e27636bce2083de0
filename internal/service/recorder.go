package service

import (
	"context"
	"fmt"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/domain"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/publisher"
	"github.com/OneStaffOS/OnestaffOS-sub007/internal/repository"
	"github.com/OneStaffOS/OnestaffOS-sub007/pkg/id"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "biometrics_attempts_total",
	Help: "Recorded enroll and verify attempts by type and result.",
}, []string{"type", "result"})

// EventRecorder appends recognition events and announces them on the bus.
// The database row is the record of truth; publish failures are only logged.
type EventRecorder struct {
	events    repository.EventRepository
	publisher publisher.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewEventRecorder(events repository.EventRepository, pub publisher.Publisher, logger *zap.Logger) *EventRecorder {
	if pub == nil {
		pub = publisher.NoopPublisher{}
	}
	return &EventRecorder{events: events, publisher: pub, logger: logger, now: time.Now}
}

func (r *EventRecorder) WithClock(now func() time.Time) *EventRecorder {
	r.now = now
	return r
}

func (r *EventRecorder) Record(ctx context.Context, e *domain.RecognitionEvent) (*domain.RecognitionEvent, error) {
	if e.ID == "" {
		e.ID = id.GenerateEventID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}

	if err := r.events.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("record recognition event: %w", err)
	}
	attemptsTotal.WithLabelValues(string(e.Type), string(e.Result)).Inc()

	fields := []zap.Field{
		zap.String("event_id", e.ID),
		zap.String("user_id", e.UserID),
		zap.String("type", string(e.Type)),
		zap.String("result", string(e.Result)),
	}
	if e.Score != nil {
		fields = append(fields, zap.Float64("score", *e.Score))
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}
	r.logger.Info("recognition event recorded", fields...)

	if err := r.publisher.PublishRecognition(ctx, e); err != nil {
		r.logger.Warn("failed to publish recognition event", zap.String("event_id", e.ID), zap.Error(err))
	}
	return e, nil
}

func (r *EventRecorder) Recent(ctx context.Context, userID string, limit int) ([]*domain.RecognitionEvent, error) {
	return r.events.ListByUser(ctx, userID, limit)
}
