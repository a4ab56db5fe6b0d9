// Package notify publishes an event for every exported declaration so
// downstream systems (broker portals, accounting) can pick the artifacts up.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/asycuda-export/internal/config"
)

// DeclarationExported is the event body.
type DeclarationExported struct {
	RunID        string          `json:"run_id"`
	Registration string          `json:"registration_number"`
	MappingCode  string          `json:"mapping_code,omitempty"`
	SourceFile   string          `json:"source_file,omitempty"`
	Items        int             `json:"items"`
	Packages     int             `json:"packages"`
	TotalValue   decimal.Decimal `json:"total_value"`
	Currency     string          `json:"currency"`
	Artifacts    []string        `json:"artifacts"`
	Valid        bool            `json:"valid"`
	ExportedAt   time.Time       `json:"exported_at"`
}

// Notifier publishes export events.
type Notifier interface {
	Publish(ctx context.Context, ev DeclarationExported) error
	Close() error
}

// New returns a Kafka notifier, or a no-op one when no brokers are configured.
func New(cfg config.NotifyConfig) Notifier {
	if len(cfg.Brokers) == 0 {
		return Nop{}
	}
	slog.Info("initializing kafka notifier", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return NewKafka(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	})
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, DeclarationExported) error { return nil }
func (Nop) Close() error                                       { return nil }

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events keyed by registration number, so every event of
// one declaration lands on the same partition.
type Kafka struct {
	w messageWriter
}

// NewKafka wraps w.
func NewKafka(w messageWriter) *Kafka {
	return &Kafka{w: w}
}

func (k *Kafka) Publish(ctx context.Context, ev DeclarationExported) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.Registration),
		Value: data,
		Time:  ev.ExportedAt,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte("declaration.exported")},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Registration, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.w.Close()
}
