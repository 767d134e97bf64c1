package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"MarketFlow/internal/domain/models"
	pkgkafka "MarketFlow/pkg/kafka"
)

// KafkaReportPublisher writes cycle reports to a topic keyed by pair, so all
// reports for one pair land on one partition in order.
type KafkaReportPublisher struct {
	producer *pkgkafka.Producer
	topic    string
	pair     string
}

func NewKafkaReportPublisher(p *pkgkafka.Producer, topic, pair string) *KafkaReportPublisher {
	return &KafkaReportPublisher{producer: p, topic: topic, pair: pair}
}

func (p *KafkaReportPublisher) Publish(ctx context.Context, report *models.CycleReport) error {
	msg := pkgkafka.Message{
		Key:     []byte(p.pair),
		Value:   report,
		Headers: map[string]string{pkgkafka.HeaderTraceID: report.ID},
	}
	if err := p.producer.Publish(ctx, p.topic, msg); err != nil {
		return fmt.Errorf("publish report %s: %w", report.ID, err)
	}
	return nil
}

func (p *KafkaReportPublisher) Close() error {
	return p.producer.Close()
}

// ReportHandler consumes an encoded report.
type ReportHandler interface {
	Handle(ctx context.Context, payload []byte) error
}

// LocalPublisher hands reports straight to the delivery handler when Kafka is disabled.
type LocalPublisher struct {
	handler ReportHandler
}

func NewLocalPublisher(h ReportHandler) *LocalPublisher {
	return &LocalPublisher{handler: h}
}

func (p *LocalPublisher) Publish(ctx context.Context, report *models.CycleReport) error {
	b, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return p.handler.Handle(ctx, b)
}

func (p *LocalPublisher) Close() error { return nil }
