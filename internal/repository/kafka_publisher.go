package repository

import (
	"context"

	"ProbDesk/internal/domain/models"
	domrepo "ProbDesk/internal/domain/repository"
	pkgkafka "ProbDesk/pkg/kafka"
)

// KafkaPublisher publishes snapshots and alerts keyed by market id,
// so a hash balancer keeps per-market ordering.
type KafkaPublisher struct {
	producer       *pkgkafka.Producer
	snapshotsTopic string
	alertsTopic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, snapshotsTopic, alertsTopic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, snapshotsTopic: snapshotsTopic, alertsTopic: alertsTopic}
}

var (
	_ domrepo.SnapshotSink   = (*KafkaPublisher)(nil)
	_ domrepo.AlertPublisher = (*KafkaPublisher)(nil)
)

func (p *KafkaPublisher) StoreBatch(ctx context.Context, snapshots []models.ProbabilitySnapshot) error {
	if len(snapshots) == 0 || p.snapshotsTopic == "" {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(snapshots))
	for _, s := range snapshots {
		msgs = append(msgs, pkgkafka.Message{Key: []byte(s.MarketID), Value: s})
	}
	return p.producer.PublishBatch(ctx, p.snapshotsTopic, msgs)
}

func (p *KafkaPublisher) PublishAlerts(ctx context.Context, alerts []models.DivergenceAlert) error {
	if len(alerts) == 0 || p.alertsTopic == "" {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(alerts))
	for _, a := range alerts {
		msgs = append(msgs, pkgkafka.Message{Key: []byte(a.MarketID), Value: a})
	}
	return p.producer.PublishBatch(ctx, p.alertsTopic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
