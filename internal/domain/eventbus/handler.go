package eventbus

import (
	"context"

	"product-catalog-server-go/internal/platform/logging"
	"product-catalog-server-go/internal/platform/observability"
)

// MetricsHandler 将提取生命周期事件转换为观测指标
type MetricsHandler struct {
	logger *logging.Logger
}

// NewMetricsHandler 创建指标事件处理器
func NewMetricsHandler(logger *logging.Logger) *MetricsHandler {
	return &MetricsHandler{logger: logger}
}

func (h *MetricsHandler) handleCompleted(data ExtractionEventData) {
	ctx := context.Background()
	labels := map[string]string{"preset": data.Preset}
	observability.RecordMetric(ctx, "catalog.extractions", 1, withStatus(labels, "ok"))
	observability.RecordMetric(ctx, "catalog.images.total", float64(data.TotalImages), labels)
	observability.RecordMetric(ctx, "catalog.images.analyzed", float64(data.AIImages), labels)
	observability.RecordDuration(ctx, "catalog.extract.duration_ms", data.Duration, labels)

	h.logger.InfoTag("事件", "extraction completed: request_id=%s images=%d analyzed=%d skipped=%d duration=%s",
		data.RequestID, data.TotalImages, data.AIImages, data.SkippedCount, data.Duration)
}

func (h *MetricsHandler) handleFailed(data ExtractionEventData) {
	labels := map[string]string{"preset": data.Preset, "kind": data.Kind}
	observability.RecordMetric(context.Background(), "catalog.extractions", 1, withStatus(labels, "error"))

	h.logger.WarnTag("事件", "extraction failed: request_id=%s kind=%s err=%s", data.RequestID, data.Kind, data.Error)
}

func (h *MetricsHandler) handleImageFallback(data ImageEventData) {
	observability.RecordMetric(context.Background(), "catalog.images.skipped", 1, map[string]string{"stage": data.Stage})

	h.logger.WarnTag("事件", "image skipped: request_id=%s file=%s stage=%s err=%s",
		data.RequestID, data.Filename, data.Stage, data.Error)
}

func (h *MetricsHandler) handleSchemaWarning(data SchemaWarningEventData) {
	observability.RecordMetric(context.Background(), "catalog.schema.violations", float64(len(data.Violations)), nil)

	h.logger.WarnTag("事件", "result schema violations: request_id=%s count=%d",
		data.RequestID, len(data.Violations))
}

func withStatus(labels map[string]string, status string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out["status"] = status
	return out
}

// SetupEventHandlers 设置事件处理器
func SetupEventHandlers(bus *Bus, logger *logging.Logger) error {
	handler := NewMetricsHandler(logger)

	subscriptions := map[string]interface{}{
		EventExtractionCompleted: handler.handleCompleted,
		EventExtractionFailed:    handler.handleFailed,
		EventImageFallback:       handler.handleImageFallback,
		EventSchemaWarning:       handler.handleSchemaWarning,
	}
	for topic, fn := range subscriptions {
		if err := bus.Subscribe(topic, fn); err != nil {
			return err
		}
	}
	return nil
}
