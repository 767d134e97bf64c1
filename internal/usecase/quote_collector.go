package usecase

import (
	"context"
	"errors"

	"MarketFlow/internal/domain/models"
	drepo "MarketFlow/internal/domain/repository"
	mid "MarketFlow/internal/middleware"
	"MarketFlow/pkg/logger"
)

// QuoteCollector feeds live trades from the stream through the quote pipeline.
type QuoteCollector struct {
	stream  drepo.MarketStream
	pipe    *mid.QuotePipeline
	metrics drepo.Metrics
	log     *logger.Logger
	done    chan struct{}
	started bool
}

func NewQuoteCollector(stream drepo.MarketStream, pipe *mid.QuotePipeline, metrics drepo.Metrics, log *logger.Logger) *QuoteCollector {
	if log == nil {
		log = logger.Nop()
	}
	return &QuoteCollector{stream: stream, pipe: pipe, metrics: metrics, log: log, done: make(chan struct{})}
}

// IsConnected returns true if the market stream is connected.
func (c *QuoteCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *QuoteCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	qCh, errCh := c.stream.Read(ctx)
	c.started = true
	go c.consume(ctx, qCh, errCh)
	return nil
}

func (c *QuoteCollector) consume(ctx context.Context, qCh <-chan *models.Quote, errCh <-chan error) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			if err == nil {
				continue
			}
			c.metrics.RecordError("stream")
			c.log.Warn("quote stream error, reconnecting", logger.Error(err))
			if !c.reconnect(ctx) {
				return
			}
			qCh, errCh = c.stream.Read(ctx)
		case q, ok := <-qCh:
			if !ok {
				qCh = nil
				continue
			}
			if q == nil {
				continue
			}
			if err := c.pipe.Process(q); err != nil && !errors.Is(err, mid.ErrThrottled) {
				c.log.Debug("quote rejected", logger.String("symbol", q.Symbol), logger.Error(err))
			}
		}
	}
}

// reconnect retries until the stream is back or ctx ends.
func (c *QuoteCollector) reconnect(ctx context.Context) bool {
	for ctx.Err() == nil {
		err := c.stream.Reconnect(ctx)
		if err == nil {
			c.log.Info("quote stream reconnected")
			return true
		}
		c.metrics.RecordError("stream_reconnect")
		c.log.Error("quote stream reconnect failed", logger.Error(err))
	}
	return false
}

// Shutdown closes the stream and waits for the consumer loop when it was started.
func (c *QuoteCollector) Shutdown(ctx context.Context) error {
	err := c.stream.Close()
	if !c.started {
		return err
	}
	select {
	case <-c.done:
	case <-ctx.Done():
	}
	return err
}
