package config

import "time"

const (
	PresetStandard = "standard"
	PresetCompact  = "compact"
	PresetDetailed = "detailed"

	PolicyBestEffort = "best_effort"
	PolicyReject     = "reject"
)

// DefaultSystemInstruction 默认系统提示
const DefaultSystemInstruction = "Bir ürün tanımlama asistanısın."

// DefaultInstruction 默认的商品识别提示词
const DefaultInstruction = `Bu görsellerdeki ürünle ilgili aşağıdaki bilgileri çıkar ve JSON formatında döndür.
Tüm görseller aynı ürüne aittir; bilgileri görselleri birlikte değerlendirerek ver.
- itemName: Ürün Adı
- category: Kategori (yalnızca şu seçeneklerden biri olmalı: Kitap, Obje, Efemera, Plak, Tablo, Mobilya)
- size: Ölçü veya boyut (mutlaka santimetre cinsinden belirt)
- condition: Ürünün durumu (ör. Çok iyi, İyi, Yıpranmış)
- description: Kısa açıklama

Sadece Türkçe JSON döndür, başka metin ekleme. Örnek:
{
  "itemName": "Ahşap Sandalye",
  "category": "Mobilya",
  "size": "45x50x90 cm",
  "condition": "İyi",
  "description": "Oymalı sırtlı ceviz sandalye"
}`

// DefaultResultSchema loosely types the catalog fields the default instruction asks for.
const DefaultResultSchema = `{
  "type": "object",
  "properties": {
    "itemName": {"type": "string"},
    "category": {"type": "string"},
    "size": {"type": ["string", "number"]},
    "condition": {"type": "string"},
    "description": {"type": "string"}
  },
  "required": ["itemName"]
}`

// DefaultQualityLadder JPEG quality steps tried when a byte budget is exceeded.
var DefaultQualityLadder = []int{75, 60, 50, 40}

// BuiltinPresets 内置的处理预设
func BuiltinPresets() map[string]PresetConfig {
	return map[string]PresetConfig{
		PresetStandard: {
			MaxImages:     3,
			MaxDimension:  1024,
			Quality:       85,
			QualityLadder: append([]int(nil), DefaultQualityLadder...),
		},
		PresetCompact: {
			MaxImages:     3,
			MaxDimension:  768,
			Quality:       75,
			QualityLadder: append([]int(nil), DefaultQualityLadder...),
			ByteBudget:    400 * 1024,
		},
		PresetDetailed: {
			MaxImages:     3,
			MaxDimension:  2048,
			Quality:       90,
			QualityLadder: append([]int(nil), DefaultQualityLadder...),
			ByteBudget:    4 * 1024 * 1024,
		},
	}
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:             "0.0.0.0",
			Port:           5001,
			MaxUploadBytes: 32 * 1024 * 1024,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   120 * time.Second,
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled:   true,
			StaticDir: "./web",
			Docs:      true,
		},
		Extraction: ExtractionConfig{
			Preset:                  PresetStandard,
			Presets:                 BuiltinPresets(),
			Instruction:             DefaultInstruction,
			SystemInstruction:       DefaultSystemInstruction,
			MaxOutputTokens:         500,
			Temperature:             0.2,
			ModelTimeout:            60 * time.Second,
			EncodeWorkers:           3,
			ResultSchema:            DefaultResultSchema,
			UnsupportedFormatPolicy: PolicyBestEffort,
		},
		Security: SecurityConfig{
			MaxFileSize:    20 * 1024 * 1024,
			MaxPixels:      64 * 1024 * 1024,
			MaxWidth:       12000,
			MaxHeight:      12000,
			AllowedFormats: []string{"jpeg", "jpg", "png", "webp", "gif", "bmp"},
			EnableDeepScan: true,
		},
		Selected: SelectedConfig{
			VLLLM: "OpenAIVLLM",
		},
		VLLLM: map[string]VLLLMConfig{
			"ChatGLMVLLM": {
				Type:      "openai",
				ModelName: "glm-4v-flash",
				BaseURL:   "https://open.bigmodel.cn/api/paas/v4/",
				MaxTokens: 500,
				TopP:      1,
			},
			"OpenAIVLLM": {
				Type:      "openai",
				ModelName: "gpt-4o",
				BaseURL:   "https://api.openai.com/v1",
				MaxTokens: 500,
				TopP:      1,
			},
			"OllamaVLLM": {
				Type:      "ollama",
				ModelName: "llava",
				BaseURL:   "http://localhost:11434",
				MaxTokens: 500,
				TopP:      1,
			},
		},
	}
}
