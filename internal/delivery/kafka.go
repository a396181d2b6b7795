package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"clicksim/internal/event"
)

// KafkaConfig configures the sarama producer used by KafkaSender.
type KafkaConfig struct {
	Brokers         []string
	Topic           string
	Retries         int
	Timeout         time.Duration
	RequiredAcks    int
	Compression     string
	MaxMessageBytes int
}

// NewKafkaProducer builds a synchronous sarama producer that partitions by
// message key.
func NewKafkaProducer(cfg KafkaConfig, logger *zap.Logger) (sarama.SyncProducer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	logger.Info("Kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.String("compression", cfg.Compression),
	)
	return producer, nil
}

func saramaConfig(cfg KafkaConfig) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = "clicksim"
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Retry.Max = cfg.Retries
	if cfg.Timeout > 0 {
		config.Producer.Timeout = cfg.Timeout
	}
	config.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)

	switch cfg.Compression {
	case "snappy":
		config.Producer.Compression = sarama.CompressionSnappy
	case "zstd":
		config.Producer.Compression = sarama.CompressionZSTD
	case "lz4":
		config.Producer.Compression = sarama.CompressionLZ4
	case "gzip":
		config.Producer.Compression = sarama.CompressionGZIP
	default:
		config.Producer.Compression = sarama.CompressionNone
	}

	if cfg.MaxMessageBytes > 0 {
		config.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	}
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V3_3_0_0
	return config
}

// KafkaSender writes one message per event, keyed by user ID so a user's
// events land on one partition. Only messages listed in sarama.ProducerErrors
// are returned for retry.
type KafkaSender struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewKafkaSender(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSender{producer: producer, topic: topic, logger: logger}
}

func (s *KafkaSender) Name() string { return "kafka" }

func (s *KafkaSender) Send(ctx context.Context, batch []event.Event) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Failed: batch}, err
	}

	now := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	msgs := make([]*sarama.ProducerMessage, 0, len(batch))
	var res Result
	for i, ev := range batch {
		value, err := json.Marshal(ev)
		if err != nil {
			return Result{Failed: batch}, fmt.Errorf("failed to marshal event %s: %w", ev.ID, err)
		}
		res.BytesSent += int64(len(value))
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic:    s.topic,
			Key:      sarama.StringEncoder(ev.UserID),
			Value:    sarama.ByteEncoder(value),
			Headers:  []sarama.RecordHeader{{Key: []byte("timestamp"), Value: now}},
			Metadata: i,
		})
	}

	err := s.producer.SendMessages(msgs)
	if err == nil {
		s.logger.Debug("Messages sent to Kafka",
			zap.String("topic", s.topic),
			zap.Int("count", len(msgs)),
		)
		return res, nil
	}

	var perrs sarama.ProducerErrors
	if !errors.As(err, &perrs) {
		res.Failed = batch
		return res, fmt.Errorf("failed to send messages: %w", err)
	}

	for _, pe := range perrs {
		idx, ok := pe.Msg.Metadata.(int)
		if !ok || idx < 0 || idx >= len(batch) {
			res.Failed = batch
			return res, fmt.Errorf("failed to send messages: %w", err)
		}
		res.Failed = append(res.Failed, batch[idx])
	}
	return res, fmt.Errorf("failed to send %d of %d messages: %w", len(res.Failed), len(batch), perrs[0].Err)
}

func (s *KafkaSender) Close() error {
	if err := s.producer.Close(); err != nil {
		s.logger.Error("Failed to close Kafka producer", zap.Error(err))
		return fmt.Errorf("failed to close producer: %w", err)
	}
	s.logger.Info("Kafka producer closed")
	return nil
}
