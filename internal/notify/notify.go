// Package notify publishes session outcome events.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/model"
)

// Event reports the end of an import session.
type Event struct {
	Type      string              `json:"type"`
	SessionID string              `json:"session_id"`
	FeedURL   string              `json:"feed_url"`
	Status    model.SessionStatus `json:"status"`
	Result    *model.ImportResult `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// EventSessionFinished is the Type of events sent when a session reaches a
// terminal status.
const EventSessionFinished = "import.session.finished"

// SessionEvent builds the event for a finished session.
func SessionEvent(s *model.Session) Event {
	return Event{
		Type:      EventSessionFinished,
		SessionID: s.ID,
		FeedURL:   s.FeedURL,
		Status:    s.Status,
		Result:    s.Result,
		Error:     s.Error,
		Timestamp: time.Now().UTC(),
	}
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
	Close() error
}

// LogNotifier writes events to the global logger.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("session_id", e.SessionID),
		zap.String("status", string(e.Status)),
	}
	if e.Result != nil {
		fields = append(fields,
			zap.Int("created", e.Result.Created),
			zap.Int("updated", e.Result.Updated),
			zap.Int("failed", e.Result.Failed),
			zap.Int("skipped", e.Result.Skipped),
		)
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", e.Error))
	}
	zap.L().Info("import session finished", fields...)
	return nil
}

func (LogNotifier) Close() error { return nil }

// MessageWriter is the subset of *kafka.Writer used by KafkaNotifier.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes events as JSON messages keyed by session id.
type KafkaNotifier struct {
	w MessageWriter
}

// NewKafkaNotifier creates a notifier writing to topic on brokers.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return NewKafkaNotifierWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	})
}

// NewKafkaNotifierWithWriter wraps an existing writer.
func NewKafkaNotifierWithWriter(w MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{w: w}
}

func (k *KafkaNotifier) Notify(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "notify: marshal event")
	}
	err = k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.SessionID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
	return eris.Wrap(err, "notify: write kafka message")
}

func (k *KafkaNotifier) Close() error {
	return k.w.Close()
}

// New returns a Kafka notifier when brokers are configured, else a log notifier.
func New(brokers []string, topic string) Notifier {
	if len(brokers) == 0 || topic == "" {
		return LogNotifier{}
	}
	return NewKafkaNotifier(brokers, topic)
}
