package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"obd-analyzer/internal/domain/fault"
	"obd-analyzer/internal/domain/port"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	maxResponseBytes     = 4 << 20
	schemaName           = "vehicle_analysis"
)

// OpenAIClient клиент для OpenAI-совместимого /chat/completions со strict json_schema.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	sampling   Sampling
	format     *responseFormat
	httpClient *http.Client
	logger     *zap.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient создаёт клиента. Таймаут задаётся контекстом попытки, а не http.Client.
func NewOpenAIClient(opts Options) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	return &OpenAIClient{
		apiKey:   opts.APIKey,
		baseURL:  baseURL,
		model:    opts.Model,
		sampling: opts.Sampling,
		format: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   schemaName,
				Strict: true,
				Schema: opts.Schema,
			},
		},
		httpClient: &http.Client{},
		logger:     loggerOrNop(opts.Logger).Named("openai"),
	}, nil
}

// Invoke отправляет промпт и возвращает JSON из первого варианта ответа.
func (c *OpenAIClient) Invoke(ctx context.Context, prompt string) (port.RawResult, error) {
	started := time.Now()

	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:      c.sampling.MaxOutputTokens,
		Temperature:    c.sampling.Temperature,
		ResponseFormat: c.format,
	})
	if err != nil {
		return port.RawResult{}, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return port.RawResult{}, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return port.RawResult{}, fault.New(fault.KindTransport, fmt.Errorf("openai: request failed: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return port.RawResult{}, fault.New(fault.KindTransport, fmt.Errorf("openai: read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return port.RawResult{}, fault.Newf(fault.KindTransport, "openai: status %d: %s", resp.StatusCode, preview(string(data)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return port.RawResult{}, fault.New(fault.KindTransport, fmt.Errorf("openai: decode envelope: %w", err))
	}
	if parsed.Error != nil {
		return port.RawResult{}, fault.Newf(fault.KindTransport, "openai: api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return port.RawResult{}, fault.Newf(fault.KindEmptyResponse, "openai: no choices returned")
	}

	choice := parsed.Choices[0]
	if choice.Message.Content == "" && choice.Message.Refusal != "" {
		return port.RawResult{}, fault.Newf(fault.KindEmptyResponse, "openai: model refused: %s", choice.Message.Refusal)
	}

	c.logger.Debug("chat completion finished",
		zap.String("model", parsed.Model),
		zap.String("finish_reason", choice.FinishReason),
		zap.Duration("elapsed", time.Since(started)),
	)

	content, err := extractJSON(choice.Message.Content)
	if err != nil {
		return port.RawResult{}, err
	}

	model := parsed.Model
	if model == "" {
		model = c.model
	}
	return port.RawResult{Content: content, Model: model}, nil
}

var _ port.InferenceClient = (*OpenAIClient)(nil)
