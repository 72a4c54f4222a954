package config

import (
	"time"
)

type Config struct {
	Server     ServerConfig           `yaml:"server" mapstructure:"server"`
	Log        LogConfig              `yaml:"log" mapstructure:"log"`
	Web        WebConfig              `yaml:"web" mapstructure:"web"`
	Extraction ExtractionConfig       `yaml:"extraction" mapstructure:"extraction"`
	Security   SecurityConfig         `yaml:"security" mapstructure:"security"`
	Selected   SelectedConfig         `yaml:"selected_module" mapstructure:"selected_module"`
	VLLLM      map[string]VLLLMConfig `yaml:"VLLLM" mapstructure:"VLLLM"`
}

type ServerConfig struct {
	IP             string        `yaml:"ip" mapstructure:"ip"`
	Port           int           `yaml:"port" mapstructure:"port"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"log_level" mapstructure:"log_level"`
	Dir    string `yaml:"log_dir" mapstructure:"log_dir"`
	File   string `yaml:"log_file" mapstructure:"log_file"`
	Format string `yaml:"log_format" mapstructure:"log_format"`
}

type WebConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	StaticDir string `yaml:"static_dir" mapstructure:"static_dir"`
	Docs      bool   `yaml:"docs" mapstructure:"docs"`
}

// ExtractionConfig 图片提取流程配置
type ExtractionConfig struct {
	Preset            string                  `yaml:"preset" mapstructure:"preset"`
	Presets           map[string]PresetConfig `yaml:"presets" mapstructure:"presets"`
	Instruction       string                  `yaml:"instruction" mapstructure:"instruction"`
	SystemInstruction string                  `yaml:"system_instruction" mapstructure:"system_instruction"`
	MaxOutputTokens   int                     `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	Temperature       float64                 `yaml:"temperature" mapstructure:"temperature"`
	ModelTimeout      time.Duration           `yaml:"model_timeout" mapstructure:"model_timeout"`
	EncodeWorkers     int                     `yaml:"encode_workers" mapstructure:"encode_workers"`
	ResultSchema      string                  `yaml:"result_schema" mapstructure:"result_schema"`
	// UnsupportedFormatPolicy is "best_effort" or "reject".
	UnsupportedFormatPolicy string `yaml:"unsupported_format_policy" mapstructure:"unsupported_format_policy"`
}

// PresetConfig names one selection/normalization profile. Zero fields inherit from the built-in preset
// of the same name.
type PresetConfig struct {
	MaxImages     int   `yaml:"max_images" mapstructure:"max_images"`
	MaxDimension  int   `yaml:"max_dimension" mapstructure:"max_dimension"`
	Quality       int   `yaml:"quality" mapstructure:"quality"`
	QualityLadder []int `yaml:"quality_ladder" mapstructure:"quality_ladder"`
	ByteBudget    int64 `yaml:"byte_budget" mapstructure:"byte_budget"`
}

type VLLLMConfig struct {
	Type        string                 `yaml:"type" mapstructure:"type"`
	ModelName   string                 `yaml:"model_name" mapstructure:"model_name"`
	BaseURL     string                 `yaml:"url" mapstructure:"url"`
	APIKey      string                 `yaml:"api_key" mapstructure:"api_key"`
	Temperature float64                `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int                    `yaml:"max_tokens" mapstructure:"max_tokens"`
	TopP        float64                `yaml:"top_p" mapstructure:"top_p"`
	Extra       map[string]interface{} `yaml:",inline" mapstructure:",remain"`
}

type SecurityConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size" mapstructure:"max_file_size"`
	MaxPixels      int64    `yaml:"max_pixels" mapstructure:"max_pixels"`
	MaxWidth       int      `yaml:"max_width" mapstructure:"max_width"`
	MaxHeight      int      `yaml:"max_height" mapstructure:"max_height"`
	AllowedFormats []string `yaml:"allowed_formats" mapstructure:"allowed_formats"`
	EnableDeepScan bool     `yaml:"enable_deep_scan" mapstructure:"enable_deep_scan"`
}

type SelectedConfig struct {
	VLLLM string `yaml:"VLLLM" mapstructure:"VLLLM"`
}

// SelectedVLLLM returns the provider config picked by selected_module.
func (c *Config) SelectedVLLLM() (string, VLLLMConfig, bool) {
	name := c.Selected.VLLLM
	if name == "" {
		return "", VLLLMConfig{}, false
	}
	provider, ok := c.VLLLM[name]
	return name, provider, ok
}
