package extract

import (
	"context"

	"product-catalog-server-go/internal/domain/catalog"
)

// Extractor 提取服务接口
type Extractor interface {
	Extract(ctx context.Context, parts []catalog.FilePart) (catalog.Result, error)
	PresetName() string
}

// ExtractionResponse 成功响应示例，实际字段由模型决定
type ExtractionResponse struct {
	ItemName             string                  `json:"itemName" example:"Ahşap Sandalye"`
	Category             string                  `json:"category" example:"Mobilya"`
	Size                 string                  `json:"size" example:"45x50x90 cm"`
	TotalImageCount      int                     `json:"totalImageCount" example:"5"`
	AIAnalysisImageCount int                     `json:"aiAnalysisImageCount" example:"3"`
	ImageFilenames       []string                `json:"imageFilenames"`
	Images               []catalog.StorageRecord `json:"images"`
}
