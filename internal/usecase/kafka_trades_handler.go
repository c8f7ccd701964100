package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"OptionsFlow/internal/domain/models"
	domrepo "OptionsFlow/internal/domain/repository"
	"OptionsFlow/internal/middleware"
	pkgkafka "OptionsFlow/pkg/kafka"
)

// KafkaTradesHandler decodes options trades from Kafka and queues them on
// the pipeline. Undecodable or invalid payloads go straight to the DLQ; a
// full pipeline is retried.
type KafkaTradesHandler struct {
	topic   string
	pipe    TradeSubmitter
	metrics domrepo.Metrics
}

func NewKafkaTradesHandler(topic string, pipe TradeSubmitter, metrics domrepo.Metrics) *KafkaTradesHandler {
	return &KafkaTradesHandler{topic: topic, pipe: pipe, metrics: metrics}
}

func (h *KafkaTradesHandler) Topic() string { return h.topic }

func (h *KafkaTradesHandler) Handle(ctx context.Context, b []byte) error {
	var t models.OptionsTrade
	if err := json.Unmarshal(b, &t); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode trade: %w", err))
	}
	if err := ValidateTrade(&t); err != nil {
		h.metrics.RecordError("consumer_validate")
		return pkgkafka.Permanent(err)
	}
	if !t.Timestamp.IsZero() {
		h.metrics.RecordLatency("ingest_e2e", time.Since(t.Timestamp).Seconds())
	}

	if err := h.pipe.Submit(ctx, &t); err != nil {
		if errors.Is(err, middleware.ErrQueueFull) {
			h.metrics.RecordError("consumer_backpressure")
		}
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTradesHandler)(nil)
