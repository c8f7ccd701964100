package repository

import (
	"context"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/internal/domain/repository"
	pkgkafka "OptionsFlow/pkg/kafka"
)

// KafkaAlertPublisher publishes alerts keyed by underlying so one
// underlying's alerts stay ordered within a partition.
type KafkaAlertPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaAlertPublisher(producer *pkgkafka.Producer, topic string) *KafkaAlertPublisher {
	return &KafkaAlertPublisher{producer: producer, topic: topic}
}

var _ repository.AlertPublisher = (*KafkaAlertPublisher)(nil)

func (p *KafkaAlertPublisher) PublishAlert(ctx context.Context, a *models.Alert) error {
	return p.producer.Publish(ctx, p.topic, []byte(a.Underlying), a)
}

func (p *KafkaAlertPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
