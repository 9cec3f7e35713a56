package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/quantumpay/gateway/internal/domain/model"
)

// TransactionCompleted is emitted once per successful pipeline run, after
// fee allocation.
type TransactionCompleted struct {
	EventID       string          `json:"event_id"`
	TransactionID string          `json:"transaction_id"`
	OrderID       string          `json:"order_id"`
	Rail          model.Rail      `json:"rail"`
	ExternalRef   string          `json:"external_ref"`
	FeeAmount     decimal.Decimal `json:"fee_amount"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	CompletedAt   time.Time       `json:"completed_at"`
}

// Publisher delivers completion events to downstream consumers (dashboard,
// reconciliation). Delivery is best-effort: a publish failure never fails
// the payment.
type Publisher interface {
	Publish(ctx context.Context, event TransactionCompleted) error
}

// KafkaPublisher writes events to a Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: logger.With("component", "events"),
	}
}

var _ Publisher = (*KafkaPublisher)(nil)

func (p *KafkaPublisher) Publish(ctx context.Context, event TransactionCompleted) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	p.logger.Debug("published transaction completed", "order_id", event.OrderID)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// MemoryPublisher collects events in memory for tests and brokerless runs.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []TransactionCompleted
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

var _ Publisher = (*MemoryPublisher)(nil)

func (p *MemoryPublisher) Publish(_ context.Context, event TransactionCompleted) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a snapshot of everything published so far.
func (p *MemoryPublisher) Events() []TransactionCompleted {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TransactionCompleted, len(p.events))
	copy(out, p.events)
	return out
}
