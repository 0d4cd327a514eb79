package dlr

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// StatusTopic is the Kafka topic DLR status changes are published to.
const StatusTopic = "dlr.status-changed"

// StatusChangeEvent is the payload published whenever a DLR record's
// status is updated, letting external consumers (billing refund,
// analytics) react without polling the store.
type StatusChangeEvent struct {
	SMSC        string `json:"smsc"`
	Timestamp   string `json:"ts"`
	Destination string `json:"destination,omitempty"`
	Status      int    `json:"status"`
	At          int64  `json:"at"`
}

// EventPublisher wraps a kafka.Writer and publishes DLR status-change
// events best-effort: publish failures are logged and swallowed, never
// propagated to the store caller, matching the store's own back-end
// error policy.
type EventPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewEventPublisher returns a publisher writing to brokers with the
// least-bytes balancer, the same configuration the retrieval pack's
// outbox consumer uses for its dead-letter writer.
func NewEventPublisher(brokers []string, log *zap.Logger) *EventPublisher {
	return &EventPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    StatusTopic,
			Balancer: &kafka.LeastBytes{},
		},
		log: log,
	}
}

// PublishStatusChange best-effort publishes ev. Errors are logged, not
// returned: the DLR store's success does not depend on this side
// channel's availability.
func (p *EventPublisher) PublishStatusChange(ctx context.Context, smsc, ts, dst string, status int) {
	ev := StatusChangeEvent{SMSC: smsc, Timestamp: ts, Destination: dst, Status: status, At: time.Now().Unix()}
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("dlr: failed to encode status-change event", zap.Error(err))
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(smsc + ":" + ts), Value: body}); err != nil {
		p.log.Warn("dlr: failed to publish status-change event", zap.Error(err))
	}
}

// Close releases the underlying Kafka writer's resources.
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}
