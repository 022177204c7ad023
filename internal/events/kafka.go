package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher emits mutation notifications to a Kafka topic, keyed by
// evidence identifier so per-item ordering is preserved.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher connects to the brokers and makes sure the topic exists.
func NewKafkaPublisher(ctx context.Context, brokers []string, topic string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, envelope Envelope) error {
	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(strconv.FormatInt(envelope.EvidenceID, 10)),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event: %w", err)
	}
	return nil
}

// Close flushes and releases the producer.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// KafkaConsumer feeds mutation notifications into a Syncer, keeping the index
// and access cache converging with ledger state.
type KafkaConsumer struct {
	client *kgo.Client
	syncer *Syncer
	logger *slog.Logger
}

// NewKafkaConsumer joins the gateway consumer group on the events topic.
func NewKafkaConsumer(brokers []string, topic string, syncer *Syncer, logger *slog.Logger) (*KafkaConsumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumerGroup("custodia-index-sync"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka consumer: %w", err)
	}
	return &KafkaConsumer{client: client, syncer: syncer, logger: logger}, nil
}

// Run polls until the context is cancelled. Malformed or unapplicable events
// are logged and skipped; the stream is best-effort by design.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("kafka fetch error", "topic", topic, "partition", partition, "error", err)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			var envelope Envelope
			if err := json.Unmarshal(record.Value, &envelope); err != nil {
				c.logger.Warn("skipping malformed event", "error", err)
				return
			}
			if err := c.syncer.Apply(ctx, envelope); err != nil {
				c.logger.Error("failed to apply ledger event",
					"kind", envelope.Kind,
					"evidence_id", envelope.EvidenceID,
					"error", err,
				)
			}
		})
	}
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	_, err := adm.CreateTopic(ctx, 1, 1, nil, topic)
	if err != nil && !strings.Contains(err.Error(), "TOPIC_ALREADY_EXISTS") {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}
