package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath = "CATALOG_CONFIG"
	EnvPort       = "CATALOG_PORT"
	EnvLogLevel   = "CATALOG_LOG_LEVEL"
	EnvOpenAIKey  = "OPENAI_API_KEY"
)

var defaultConfigFiles = []string{".config.yaml", "config.yaml"}

// Loader reads the yaml configuration on top of DefaultConfig and applies env overrides.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader that searches the working directory for a config file.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the configuration file (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load resolves the config file, decodes it over the defaults and validates the result.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("未找到 .env 文件，使用系统环境变量")
		}
	}

	cfg := DefaultConfig()
	path := l.resolvePath()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	} else {
		path = "defaults"
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &Result{
		Config: cfg,
		Path:   path,
	}, nil
}

func (l *Loader) resolvePath() string {
	if l.path != "" {
		return l.path
	}
	if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
		return env
	}
	for _, candidate := range defaultConfigFiles {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func applyEnvOverrides(cfg *Config) error {
	if raw := strings.TrimSpace(os.Getenv(EnvPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", EnvPort, err)
		}
		cfg.Server.Port = port
	}
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		cfg.Log.Level = level
	}
	if key := strings.TrimSpace(os.Getenv(EnvOpenAIKey)); key != "" {
		if name, provider, ok := cfg.SelectedVLLLM(); ok && provider.APIKey == "" {
			provider.APIKey = key
			cfg.VLLLM[name] = provider
		}
	}
	return nil
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server max_upload_bytes must not be negative")
	}

	preset, err := cfg.Extraction.ResolvePreset()
	if err != nil {
		return err
	}
	if err := preset.Validate(); err != nil {
		return fmt.Errorf("preset %s: %w", cfg.Extraction.Preset, err)
	}

	switch cfg.Extraction.UnsupportedFormatPolicy {
	case "", PolicyBestEffort, PolicyReject:
	default:
		return fmt.Errorf("unknown unsupported_format_policy %q", cfg.Extraction.UnsupportedFormatPolicy)
	}

	if cfg.Selected.VLLLM != "" {
		if _, _, ok := cfg.SelectedVLLLM(); !ok {
			return fmt.Errorf("selected VLLLM provider %q not configured", cfg.Selected.VLLLM)
		}
	}
	return nil
}
