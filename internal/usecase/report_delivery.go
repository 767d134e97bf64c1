package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"MarketFlow/internal/domain/models"
	drepo "MarketFlow/internal/domain/repository"
	domsvc "MarketFlow/internal/domain/service"
	"MarketFlow/internal/service/cache"
	pkgkafka "MarketFlow/pkg/kafka"
	"MarketFlow/pkg/logger"
)

// ReportDeliveryHandler consumes cycle reports and fans them out to notifiers.
// Hold reports are rate limited by the cooldown; transitions always go out.
// A report ID already delivered is not sent twice.
type ReportDeliveryHandler struct {
	topic     string
	notifiers []domsvc.Notifier
	cooldown  time.Duration
	metrics   drepo.Metrics
	log       *logger.Logger
	seen      *cache.TTLMap
}

func NewReportDeliveryHandler(topic string, notifiers []domsvc.Notifier, cooldown time.Duration, metrics drepo.Metrics, log *logger.Logger) *ReportDeliveryHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ReportDeliveryHandler{
		topic:     topic,
		notifiers: notifiers,
		cooldown:  cooldown,
		metrics:   metrics,
		log:       log,
		seen:      cache.NewTTLMap(),
	}
}

func (h *ReportDeliveryHandler) Topic() string { return h.topic }

func (h *ReportDeliveryHandler) Handle(ctx context.Context, b []byte) error {
	var r models.CycleReport
	if err := json.Unmarshal(b, &r); err != nil {
		h.metrics.RecordError("report_unmarshal")
		return fmt.Errorf("decode report: %w", err)
	}
	if len(h.notifiers) == 0 {
		return nil
	}
	if _, dup := h.seen.Get("id:" + r.ID); dup {
		return nil
	}
	if r.Transition == nil {
		if _, cooling := h.seen.Get("cooldown"); cooling {
			h.metrics.RecordNotification("all", "suppressed")
			return nil
		}
	}

	title, body := FormatReport(&r)
	var (
		sent int
		errs []error
	)
	for _, n := range h.notifiers {
		start := time.Now()
		err := n.Send(ctx, title, body)
		h.metrics.RecordLatency("notify_"+n.Name(), time.Since(start).Seconds())
		if err != nil {
			h.metrics.RecordNotification(n.Name(), "failed")
			h.log.Error("notification failed",
				logger.String("channel", n.Name()),
				logger.String("report_id", r.ID),
				logger.String("trace_id", pkgkafka.TraceID(ctx)),
				logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		h.metrics.RecordNotification(n.Name(), "sent")
		sent++
	}
	if sent == 0 {
		return errors.Join(errs...)
	}

	h.seen.Set("id:"+r.ID, struct{}{}, 24*time.Hour)
	if r.Transition == nil && h.cooldown > 0 {
		h.seen.Set("cooldown", struct{}{}, h.cooldown)
	}
	h.log.Info("report delivered",
		logger.String("report_id", r.ID),
		logger.Int("channels", sent),
		logger.Bool("transition", r.Transition != nil))
	return nil
}

var _ pkgkafka.MessageHandler = (*ReportDeliveryHandler)(nil)
