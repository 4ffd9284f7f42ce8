package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config вся конфигурация процесса. Значения задаются снаружи и не вычисляются на ходу.
type Config struct {
	TelegramToken string      `yaml:"telegram_token"`
	LLM           LLMConfig   `yaml:"llm"`
	Retry         RetryConfig `yaml:"retry"`
	Bot           BotConfig   `yaml:"bot"`
}

// LLMConfig внешняя модель и параметры выборки.
type LLMConfig struct {
	Provider        string  `yaml:"provider"` // gemini, openai
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	BaseURL         string  `yaml:"base_url"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

// RetryConfig политика повторов. Multiplier 1 означает фиксированную паузу.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	Delay             time.Duration `yaml:"delay"`
	AttemptTimeout    time.Duration `yaml:"attempt_timeout"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	MaxDelay          time.Duration `yaml:"max_delay"`
}

// BotConfig настройки Telegram-фронтенда.
type BotConfig struct {
	MaxConcurrent int   `yaml:"max_concurrent"`
	MaxScanBytes  int64 `yaml:"max_scan_bytes"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:        ProviderGemini,
			Model:           "gemini-2.5-flash",
			Temperature:     0.2,
			MaxOutputTokens: 8192,
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			Delay:             2 * time.Second,
			AttemptTimeout:    90 * time.Second,
			BackoffMultiplier: 1,
			MaxDelay:          30 * time.Second,
		},
		Bot: BotConfig{
			MaxConcurrent: 4,
			MaxScanBytes:  256 << 10,
		},
	}
}

// Load собирает конфигурацию: значения по умолчанию, затем YAML-файл (если задан),
// затем переменные окружения. .env подхватывается, если он есть.
func Load(path string) (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("OBD_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	setString("TELEGRAM_TOKEN", &c.TelegramToken)

	setString("OBD_PROVIDER", &c.LLM.Provider)
	setString("OBD_MODEL", &c.LLM.Model)
	setString("OBD_BASE_URL", &c.LLM.BaseURL)
	setFloat("OBD_TEMPERATURE", &c.LLM.Temperature)
	setInt("OBD_MAX_OUTPUT_TOKENS", &c.LLM.MaxOutputTokens)
	setString("OBD_API_KEY", &c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case ProviderGemini:
			setString("GEMINI_API_KEY", &c.LLM.APIKey)
		case ProviderOpenAI:
			setString("OPENAI_API_KEY", &c.LLM.APIKey)
		}
	}

	setInt("OBD_MAX_ATTEMPTS", &c.Retry.MaxAttempts)
	setDuration("OBD_RETRY_DELAY", &c.Retry.Delay)
	setDuration("OBD_ATTEMPT_TIMEOUT", &c.Retry.AttemptTimeout)
	setFloat("OBD_BACKOFF_MULTIPLIER", &c.Retry.BackoffMultiplier)
	setDuration("OBD_MAX_RETRY_DELAY", &c.Retry.MaxDelay)

	setInt("OBD_MAX_CONCURRENT", &c.Bot.MaxConcurrent)

	return errors.Join(errs...)
}

// Validate проверяет, что значения попадают в допустимые диапазоны.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %v must be within [0, 2]", c.LLM.Temperature))
	}
	if c.LLM.MaxOutputTokens <= 0 {
		errs = append(errs, errors.New("llm.max_output_tokens must be positive"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, errors.New("retry.delay must not be negative"))
	}
	if c.Retry.AttemptTimeout <= 0 {
		errs = append(errs, errors.New("retry.attempt_timeout must be positive"))
	}
	if c.Retry.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("retry.backoff_multiplier must be at least 1"))
	}
	if c.Retry.MaxDelay < c.Retry.Delay {
		errs = append(errs, errors.New("retry.max_delay must not be less than retry.delay"))
	}

	if c.Bot.MaxConcurrent < 1 {
		errs = append(errs, errors.New("bot.max_concurrent must be at least 1"))
	}
	if c.Bot.MaxScanBytes <= 0 {
		errs = append(errs, errors.New("bot.max_scan_bytes must be positive"))
	}

	return errors.Join(errs...)
}
