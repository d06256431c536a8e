package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	domrepo "ProbDesk/internal/domain/repository"
	pkgkafka "ProbDesk/pkg/kafka"
	applogger "ProbDesk/pkg/logger"
)

// KafkaSamplesHandler consumes raw samples from Kafka and feeds the monitor.
// Payload is either one sample object or an array of samples.
type KafkaSamplesHandler struct {
	topic   string
	monitor *Monitor
	metrics domrepo.Metrics
	logger  *applogger.Logger
}

func NewKafkaSamplesHandler(topic string, monitor *Monitor, metrics domrepo.Metrics, l *applogger.Logger) *KafkaSamplesHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaSamplesHandler{topic: topic, monitor: monitor, metrics: metrics, logger: l}
}

func (h *KafkaSamplesHandler) Topic() string { return h.topic }

// Handle fails only when the payload is not JSON at all, so the consumer
// retries and dead-letters it. Samples that fail to decode or validate are
// logged and skipped without affecting the rest of the message.
func (h *KafkaSamplesHandler) Handle(ctx context.Context, b []byte) error {
	items, err := splitSamples(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	res := h.monitor.IngestEncoded(ctx, "kafka", items)
	if len(res.Rejected) > 0 {
		h.logger.Warn("kafka batch had rejected samples",
			applogger.String("batch_id", res.BatchID),
			applogger.Int("accepted", res.Accepted),
			applogger.Int("rejected", len(res.Rejected)))
	}
	return nil
}

// splitSamples cuts the payload into encoded samples without decoding them.
func splitSamples(b []byte) ([]json.RawMessage, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("decode samples: empty payload")
	}
	if b[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return nil, fmt.Errorf("decode samples: %w", err)
		}
		return items, nil
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("decode sample: invalid json")
	}
	return []json.RawMessage{b}, nil
}

var _ pkgkafka.MessageHandler = (*KafkaSamplesHandler)(nil)
