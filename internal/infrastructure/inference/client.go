// Package inference содержит клиентов внешних моделей.
// Каждый клиент делает ровно одну попытку, повторы делает вызывающий.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"obd-analyzer/config"
	"obd-analyzer/internal/domain/fault"
	"obd-analyzer/internal/domain/port"
)

// Sampling параметры генерации.
type Sampling struct {
	Temperature     float64
	MaxOutputTokens int
}

// Options всё, что нужно клиенту любой модели.
type Options struct {
	APIKey   string
	BaseURL  string
	Model    string
	Sampling Sampling
	Schema   map[string]any // JSON Schema ответа, только для чтения
	Logger   *zap.Logger
}

// New создаёт клиента для провайдера из конфигурации.
func New(ctx context.Context, cfg config.LLMConfig, schema map[string]any, logger *zap.Logger) (port.InferenceClient, error) {
	opts := Options{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Sampling: Sampling{
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
		},
		Schema: schema,
		Logger: logger,
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, opts)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderOpenAI:
		client, err := NewOpenAIClient(opts)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("inference: unknown provider %q", cfg.Provider)
	}
}

// extractJSON проверяет, что модель вернула JSON, и снимает markdown-обёртку, если она есть.
func extractJSON(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fault.Newf(fault.KindEmptyResponse, "model returned no content")
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```JSON")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == "" {
			return nil, fault.Newf(fault.KindEmptyResponse, "model returned an empty code block")
		}
	}

	if !json.Valid([]byte(trimmed)) {
		return nil, fault.Newf(fault.KindMalformedJSON, "model returned invalid JSON: %s", preview(trimmed))
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(trimmed)); err != nil {
		return nil, fault.New(fault.KindMalformedJSON, err)
	}
	return buf.Bytes(), nil
}

func preview(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
