package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/OneStaffOS/OnestaffOS-sub007/internal/domain"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return c.err
}

func TestKafkaPublisher_PublishRecognition(t *testing.T) {
	w := &captureWriter{}
	p := NewKafkaPublisher(w, zap.NewNop())

	score := 0.91
	hash := "secret-digest"
	e := &domain.RecognitionEvent{
		ID: "evt-1", UserID: "u1", Type: domain.ActionVerify, Result: domain.ResultSuccess,
		Score: &score, VerificationTokenHash: &hash, CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, p.PublishRecognition(context.Background(), e))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "u1", string(msg.Key))
	assert.NotContains(t, string(msg.Value), hash)

	var got RecognitionMessage
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "evt-1", got.EventID)
	assert.Equal(t, "VERIFY", got.Type)
	assert.Equal(t, "SUCCESS", got.Result)
	assert.NotEmpty(t, got.RequestID)
	require.NotNil(t, got.Score)
	assert.InDelta(t, 0.91, *got.Score, 1e-9)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := NewKafkaPublisher(&captureWriter{err: errors.New("broker down")}, zap.NewNop())
	err := p.PublishRecognition(context.Background(), &domain.RecognitionEvent{ID: "e", UserID: "u"})
	assert.ErrorContains(t, err, "broker down")
}

func TestNoopPublisher(t *testing.T) {
	assert.NoError(t, NoopPublisher{}.PublishRecognition(context.Background(), &domain.RecognitionEvent{}))
}
