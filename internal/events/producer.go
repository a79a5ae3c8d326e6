// Package events publishes analytics lifecycle events to Kafka. Publishing
// is optional and best effort: consumers downstream react to refreshed
// summaries and critical customers, but no request ever depends on a
// broker round trip succeeding.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/prompt-general/pulsecheck/internal/config"
	"github.com/prompt-general/pulsecheck/pkg/models"
)

// Event types carried on the shared topic.
const (
	TypeSummaryRefreshed = "summary.refreshed"
	TypeHealthAlert      = "health.alert"
)

// Event is the wire envelope. Key'd by customer id so one customer's events
// stay ordered within a partition.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	CustomerID int64           `json:"customer_id"`
	Severity   models.Severity `json:"severity,omitempty"`
	Detail     string          `json:"detail,omitempty"`
}

// Producer writes events to the configured topic.
type Producer struct {
	writer  *kafka.Writer
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewProducer creates a Kafka producer from the events configuration.
func NewProducer(cfg config.EventsConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrInvalidBrokers
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Compression:  kafka.Gzip,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{writer: writer, timeout: cfg.Timeout}, nil
}

// SummaryRefreshed announces that a customer's summary was regenerated.
func (p *Producer) SummaryRefreshed(ctx context.Context, customer models.Customer, severity models.Severity) error {
	return p.publish(ctx, Event{
		Type:       TypeSummaryRefreshed,
		CustomerID: customer.ID,
		Severity:   severity,
	})
}

// CriticalStatus announces that a customer was classified critical.
func (p *Producer) CriticalStatus(ctx context.Context, customer models.Customer, detail string) error {
	return p.publish(ctx, Event{
		Type:       TypeHealthAlert,
		CustomerID: customer.ID,
		Severity:   models.SeverityCritical,
		Detail:     detail,
	})
}

func (p *Producer) publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProducerClosed
	}
	p.mu.Unlock()

	event.ID = uuid.NewString()
	event.OccurredAt = time.Now().UTC()

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", event.CustomerID)),
		Value: value,
	})
}

// Close flushes and closes the underlying writer. Safe to call twice.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}
