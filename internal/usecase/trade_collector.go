package usecase

import (
	"context"

	"OptionsFlow/internal/domain/models"
	drepo "OptionsFlow/internal/domain/repository"
	"OptionsFlow/pkg/logger"
)

// TradeSubmitter accepts trades for asynchronous processing.
type TradeSubmitter interface {
	Submit(ctx context.Context, t *models.OptionsTrade) error
}

// TradeCollector moves trades from a live stream into the pipeline.
type TradeCollector struct {
	stream  drepo.TradeStream
	pipe    TradeSubmitter
	metrics drepo.Metrics
	log     *logger.Logger
}

// NewTradeCollector creates a new TradeCollector instance.
func NewTradeCollector(stream drepo.TradeStream, pipe TradeSubmitter, metrics drepo.Metrics, log *logger.Logger) *TradeCollector {
	return &TradeCollector{stream: stream, pipe: pipe, metrics: metrics, log: log.Component("collector")}
}

// IsConnected returns true if the stream is connected.
func (c *TradeCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TradeCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	go c.run(ctx)
	return nil
}

// run reads until ctx is done, reconnecting whenever the stream fails.
func (c *TradeCollector) run(ctx context.Context) {
	for ctx.Err() == nil {
		trCh, errCh := c.stream.Read(ctx)
		err := c.consume(ctx, trCh, errCh)
		if err == nil {
			return
		}
		c.metrics.RecordError("stream")
		c.log.Warn("stream failed, reconnecting", logger.Error(err))
		for ctx.Err() == nil {
			rerr := c.stream.Reconnect(ctx)
			if rerr == nil {
				break
			}
			c.metrics.RecordError("stream_reconnect")
			c.log.Error("reconnect failed", logger.Error(rerr))
		}
	}
}

// consume returns nil on shutdown and the stream error otherwise.
func (c *TradeCollector) consume(ctx context.Context, trCh <-chan *models.OptionsTrade, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return err
			}
		case t, ok := <-trCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				trCh = nil
				continue
			}
			if t == nil {
				continue
			}
			if err := c.pipe.Submit(ctx, t); err != nil {
				c.log.Warn("trade not queued", logger.String("trade_id", t.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown closes the stream.
func (c *TradeCollector) Shutdown(ctx context.Context) error {
	return c.stream.Close()
}
