package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// KafkaSink appends every event to a durable topic named prefix+event type.
type KafkaSink struct {
	producer    sarama.AsyncProducer
	topicPrefix string
	logger      *zap.Logger
	done        chan struct{}
}

// NewKafkaSink initializes an async producer against brokers
func NewKafkaSink(brokers []string, topicPrefix string, logger *zap.Logger) (*KafkaSink, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logger.Info("Kafka producer initialized",
		zap.Strings("brokers", brokers),
		zap.String("topic_prefix", topicPrefix),
	)
	return newKafkaSink(producer, topicPrefix, logger), nil
}

func newKafkaSink(producer sarama.AsyncProducer, topicPrefix string, logger *zap.Logger) *KafkaSink {
	k := &KafkaSink{
		producer:    producer,
		topicPrefix: topicPrefix,
		logger:      logger.Named("kafka"),
		done:        make(chan struct{}),
	}
	go k.handleErrors()
	return k
}

func (k *KafkaSink) Name() string { return "kafka" }

// Topic returns the topic an event type is written to
func (k *KafkaSink) Topic(eventType string) string {
	return k.topicPrefix + eventType
}

// Deliver hands the message to the producer. Broker failures surface later on
// the producer's error channel and are logged there.
func (k *KafkaSink) Deliver(ctx context.Context, msg Message) error {
	message := &sarama.ProducerMessage{
		Topic:     k.Topic(msg.Event.Type),
		Key:       sarama.StringEncoder(msg.Event.EventID.String()),
		Value:     sarama.ByteEncoder(msg.Data),
		Timestamp: msg.Event.Timestamp,
	}

	select {
	case k.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *KafkaSink) handleErrors() {
	for {
		select {
		case err, ok := <-k.producer.Errors():
			if !ok {
				return
			}
			if err != nil {
				k.logger.Error("Kafka producer error",
					zap.Error(err.Err),
					zap.String("topic", err.Msg.Topic),
				)
			}
		case <-k.done:
			return
		}
	}
}

// Close flushes pending messages and shuts the producer down
func (k *KafkaSink) Close() error {
	close(k.done)
	if err := k.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
