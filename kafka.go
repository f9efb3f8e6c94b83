package admission

import (
	"context"
	"encoding/json"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

const (
	OutcomeAllowed  = "ALLOWED"
	OutcomeRejected = "REJECTED"
)

type AdmissionEvent struct {
	Identity   string `json:"identity"`
	Action     Action `json:"action"`
	Outcome    string `json:"outcome"`
	RetryAfter int    `json:"retryAfter,omitempty"`
	Path       string `json:"path"`
	UserAgent  string `json:"userAgent,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

type EventPublisher interface {
	Publish(event AdmissionEvent)
}

// KafkaPublisher produces admission events as JSON records. Produce is
// asynchronous; delivery failures are only logged.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *zap.Logger
}

func NewKafkaPublisher(client *kgo.Client, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		client: client,
		topic:  topic,
		logger: logger,
	}
}

func (k *KafkaPublisher) Publish(event AdmissionEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		k.logger.Error("failed to encode admission event", zap.Error(err))
		return
	}

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(event.Identity),
		Value: value,
	}
	k.client.Produce(context.Background(), record, func(r *kgo.Record, err error) {
		if err != nil {
			k.logger.Warn("admission event not delivered",
				zap.String("topic", r.Topic),
				zap.String("identity", event.Identity),
				zap.Error(err))
		}
	})
}
