package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	zapLogger "github.com/nastyazhadan/paper-exchange/shared/logger/zap"
)

const traceHeader = "x-request-id"

type fillEvent struct {
	OrderID    string `json:"order_id"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	Notional   string `json:"notional"`
	ExecutedAt int64  `json:"executed_at_ms"`
}

// FillPublisher emits every executed fill to a topic keyed by symbol,
// so fills of one market keep their order within a partition.
type FillPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewFillPublisher(producer sarama.SyncProducer, topic string) *FillPublisher {
	return &FillPublisher{
		producer: producer,
		topic:    topic,
	}
}

// NewSyncProducer builds a producer that waits for all in-sync replicas.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "paper-exchange"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Timeout = 5 * time.Second
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("sarama.NewSyncProducer: %w", err)
	}

	return producer, nil
}

func (p *FillPublisher) RecordFill(ctx context.Context, fill models.Fill) error {
	const op = "FillPublisher.RecordFill"

	payload, err := json.Marshal(fillEvent{
		OrderID:    fill.OrderID,
		Symbol:     fill.Symbol,
		Side:       fill.Side.String(),
		Price:      fill.Price.String(),
		Quantity:   fill.Quantity.String(),
		Notional:   fill.Notional.String(),
		ExecutedAt: fill.ExecutedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(fill.Symbol),
		Value: sarama.ByteEncoder(payload),
	}
	if traceID := zapLogger.TraceIDFromContext(ctx); traceID != "" {
		message.Headers = []sarama.RecordHeader{{Key: []byte(traceHeader), Value: []byte(traceID)}}
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("%s: send: %w", op, err)
	}

	zapLogger.Debug(ctx, "fill published",
		zap.String("order_id", fill.OrderID),
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return nil
}

func (p *FillPublisher) Close() error {
	return p.producer.Close()
}
