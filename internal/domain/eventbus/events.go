package eventbus

import "time"

// 事件类型定义
const (
	// 提取相关事件
	EventExtractionCompleted = "extraction:completed"
	EventExtractionFailed    = "extraction:failed"
	EventSchemaWarning       = "extraction:schema_warning"

	// 图片相关事件
	EventImageFallback = "image:fallback"
)

// 事件数据结构
type ExtractionEventData struct {
	RequestID    string        `json:"request_id"`
	Preset       string        `json:"preset"`
	TotalImages  int           `json:"total_images"`
	AIImages     int           `json:"ai_images"`
	SkippedCount int           `json:"skipped_count,omitempty"`
	Duration     time.Duration `json:"duration"`
	Kind         string        `json:"kind,omitempty"`
	Error        string        `json:"error,omitempty"`
}

type ImageEventData struct {
	RequestID string `json:"request_id"`
	Filename  string `json:"filename"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

type SchemaWarningEventData struct {
	RequestID  string   `json:"request_id"`
	Violations []string `json:"violations"`
}
