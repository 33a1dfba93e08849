package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"perp-autotrader/internal/domain"
)

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic" default:"autotrader.events"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

// messageWriter is the part of *kafka.Writer the sender needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes every notification as a JSON event keyed by kind.
type KafkaSender struct {
	writer messageWriter
	topic  string
	source string
	now    func() time.Time
}

func NewKafkaSender(cfg KafkaConfig, source string) (*KafkaSender, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("brokers and topic are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaSender{writer: writer, topic: cfg.Topic, source: source, now: time.Now}, nil
}

func (k *KafkaSender) Name() string { return "kafka" }

// event is the wire shape consumers read.
type event struct {
	Source string            `json:"source"`
	Kind   string            `json:"kind"`
	Title  string            `json:"title,omitempty"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
	At     time.Time         `json:"at"`
}

func (k *KafkaSender) Send(ctx context.Context, n domain.Notification) error {
	at := k.now().UTC()
	value, err := json.Marshal(event{
		Source: k.source,
		Kind:   n.Kind,
		Title:  n.Title,
		Body:   n.Body,
		Data:   n.Data,
		At:     at,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := n.Kind
	if symbol := n.Data["symbol"]; symbol != "" {
		key = symbol
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  at,
	})
}

func (k *KafkaSender) Close() error {
	return k.writer.Close()
}

var _ domain.Sender = (*KafkaSender)(nil)
