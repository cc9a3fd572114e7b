// Package eventbus publishes realtime candle-close events to Kafka as
// an external fan-out side-channel alongside the Realtime Merger's
// in-process client hub (SPEC_FULL.md DOMAIN STACK), grounded on
// services/api-gateway (old)/internal/kafka/producer.go's
// per-topic-writer Producer.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tradingplatform/candlearchiver/internal/model"
)

// KafkaPublisher implements realtime.Publisher.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic, clientID string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			Transport:    &kafka.Transport{ClientID: clientID},
		},
		topic:  topic,
		logger: logger,
	}
}

// Publish sends a CandleUpdate to the candle.closed topic. It never
// blocks the in-process fan-out (the Realtime Merger calls it from a
// separate goroutine) and its failures are logged, never surfaced as
// a series error.
func (p *KafkaPublisher) Publish(ctx context.Context, update model.CandleUpdate) error {
	value, err := json.Marshal(update)
	if err != nil {
		p.logger.Error("failed to marshal candle update", zap.Error(err))
		return err
	}

	msg := kafka.Message{
		Key:   []byte(update.Symbol + ":" + update.Timeframe),
		Value: value,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish candle update",
			zap.String("topic", p.topic),
			zap.String("symbol", update.Symbol),
			zap.Error(err))
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
