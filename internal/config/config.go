package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LLM    LLMConfig    `yaml:"llm"`
	Retry  RetryConfig  `yaml:"retry"`
	Import ImportConfig `yaml:"import"`
	Server ServerConfig `yaml:"server"`

	LogLevel string `yaml:"log_level"`
	// Secret seeds the key used to seal credentials in settings.json.
	Secret string `yaml:"secret"`
}

type LLMConfig struct {
	Backend        string `yaml:"backend"` // "gemini" or "openai"
	GeminiAPIKey   string `yaml:"gemini_api_key"`
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	ModelReasoning string `yaml:"model_reasoning"`
	ModelDocument  string `yaml:"model_document"`
	ModelVision    string `yaml:"model_vision"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxJitter   time.Duration `yaml:"max_jitter"`
}

type ImportConfig struct {
	// TextThreshold is the average characters per page a PDF must exceed
	// to be treated as text-bearing.
	TextThreshold float64       `yaml:"text_threshold"`
	PageInterval  time.Duration `yaml:"page_interval"`
	RenderScale   float64       `yaml:"render_scale"`
}

type ServerConfig struct {
	Port        string `yaml:"port"`
	DataDir     string `yaml:"data_dir"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		LLM: LLMConfig{
			Backend:        "gemini",
			ModelReasoning: "gemini-3-flash-preview",
			ModelDocument:  "gemini-3-flash-preview",
			ModelVision:    "gemini-2.5-flash-image",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxJitter:   time.Second,
		},
		Import: ImportConfig{
			TextThreshold: 50,
			PageInterval:  1500 * time.Millisecond,
			RenderScale:   2.5,
		},
		Server: ServerConfig{
			Port:        "8080",
			DataDir:     "data",
			MaxUploadMB: 50,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in increasing precedence. A .env file in the working
// directory is loaded first when present. An empty path falls back to
// CONTRACTFORGE_CONFIG, then contractforge.yaml.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	if path == "" {
		path = os.Getenv("CONTRACTFORGE_CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = "contractforge.yaml"
	}
	if err := loadYAML(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.LLM.Backend = strings.ToLower(getEnv("LLM_BACKEND", cfg.LLM.Backend))
	cfg.LLM.GeminiAPIKey = getEnv("GEMINI_API_KEY", getEnv("API_KEY", cfg.LLM.GeminiAPIKey))
	cfg.LLM.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.LLM.OpenAIAPIKey)
	cfg.LLM.ModelReasoning = getEnv("MODEL_REASONING", cfg.LLM.ModelReasoning)
	cfg.LLM.ModelDocument = getEnv("MODEL_DOCUMENT", cfg.LLM.ModelDocument)
	cfg.LLM.ModelVision = getEnv("MODEL_VISION", cfg.LLM.ModelVision)

	cfg.Retry.MaxAttempts = getEnvAsInt("RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.Retry.BaseDelay = getEnvAsDuration("RETRY_BASE_DELAY", cfg.Retry.BaseDelay)
	cfg.Retry.MaxJitter = getEnvAsDuration("RETRY_MAX_JITTER", cfg.Retry.MaxJitter)

	cfg.Import.TextThreshold = getEnvAsFloat("TEXT_PDF_THRESHOLD", cfg.Import.TextThreshold)
	cfg.Import.PageInterval = getEnvAsDuration("VISION_PAGE_INTERVAL", cfg.Import.PageInterval)
	cfg.Import.RenderScale = getEnvAsFloat("RENDER_SCALE", cfg.Import.RenderScale)

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.DataDir = getEnv("DATA_DIR", cfg.Server.DataDir)
	cfg.Server.MaxUploadMB = int64(getEnvAsInt("MAX_UPLOAD_MB", int(cfg.Server.MaxUploadMB)))

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.Secret = getEnv("CONTRACTFORGE_SECRET", cfg.Secret)
}

// Validate rejects values that would make the pipeline misbehave.
func (c *Config) Validate() error {
	switch c.LLM.Backend {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown LLM backend %q (want gemini or openai)", c.LLM.Backend)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxJitter < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.Import.TextThreshold < 0 {
		return fmt.Errorf("text_threshold must not be negative")
	}
	if c.Import.PageInterval < 0 {
		return fmt.Errorf("page_interval must not be negative")
	}
	if c.Import.RenderScale <= 0 {
		return fmt.Errorf("render_scale must be positive, got %v", c.Import.RenderScale)
	}
	return nil
}

// APIKey returns the credential for the selected backend.
func (c *Config) APIKey() string {
	if c.LLM.Backend == "openai" {
		return c.LLM.OpenAIAPIKey
	}
	return c.LLM.GeminiAPIKey
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("1.5s") or plain
// milliseconds ("1500").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
