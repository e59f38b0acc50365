package queue

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
)

// Queue types.
const (
	TypeLocal = "local"
	TypeKafka = "kafka"
)

func kafkaConfig(cfg config.QueueConfig) KafkaConfig {
	return KafkaConfig{Brokers: cfg.Brokers, Topic: cfg.Topic, GroupID: cfg.GroupID, ClientID: "kotae"}
}

// NewPublisher returns the publisher for cfg.Type. For the local queue the returned
// value also implements Consumer and must be run in the same process.
func NewPublisher(cfg config.QueueConfig, logger *zap.Logger) (Publisher, error) {
	switch cfg.Type {
	case "", TypeLocal:
		return NewLocalQueue(cfg.Workers, cfg.Buffer, WithLogger(logger)), nil
	case TypeKafka:
		p, err := NewKafkaPublisher(kafkaConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown queue type %q", cfg.Type)
	}
}

// NewConsumer returns a standalone consumer for cfg.Type. A local queue only has
// in-process consumers, so it is rejected here.
func NewConsumer(cfg config.QueueConfig, logger *zap.Logger) (Consumer, error) {
	switch cfg.Type {
	case TypeKafka:
		c, err := NewKafkaConsumer(kafkaConfig(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		return c, nil
	case "", TypeLocal:
		return nil, fmt.Errorf("local queue has no standalone consumer; run the server instead")
	default:
		return nil, fmt.Errorf("unknown queue type %q", cfg.Type)
	}
}
