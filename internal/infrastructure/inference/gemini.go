package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"obd-analyzer/internal/domain/fault"
	"obd-analyzer/internal/domain/port"
)

// contentGenerator часть *genai.Models, которой пользуется клиент.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient делает один запрос к Gemini со схемой ответа.
type GeminiClient struct {
	models   contentGenerator
	model    string
	sampling Sampling
	schema   map[string]any
	logger   *zap.Logger
}

// NewGeminiClient создаёт клиента Gemini API.
func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return newGeminiClient(client.Models, opts), nil
}

func newGeminiClient(models contentGenerator, opts Options) *GeminiClient {
	return &GeminiClient{
		models:   models,
		model:    opts.Model,
		sampling: opts.Sampling,
		schema:   opts.Schema,
		logger:   loggerOrNop(opts.Logger).Named("gemini"),
	}
}

// Invoke отправляет промпт и возвращает JSON, который вернула модель.
func (c *GeminiClient) Invoke(ctx context.Context, prompt string) (port.RawResult, error) {
	started := time.Now()

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), c.generateConfig())
	if err != nil {
		return port.RawResult{}, classifyGeminiError(ctx, err)
	}

	text := resp.Text()
	if resp.UsageMetadata != nil {
		c.logger.Debug("generate content finished",
			zap.String("model", c.model),
			zap.Duration("elapsed", time.Since(started)),
			zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int32("output_tokens", resp.UsageMetadata.CandidatesTokenCount),
		)
	}

	content, err := extractJSON(text)
	if err != nil {
		return port.RawResult{}, err
	}

	model := c.model
	if resp.ModelVersion != "" {
		model = resp.ModelVersion
	}
	return port.RawResult{Content: content, Model: model}, nil
}

func (c *GeminiClient) generateConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:        genai.Ptr(float32(c.sampling.Temperature)),
		MaxOutputTokens:    int32(c.sampling.MaxOutputTokens),
		CandidateCount:     1,
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: c.schema,
	}
}

// classifyGeminiError превращает ошибку SDK в ошибку конвейера.
// Все сбои вызова, включая 4xx и истёкший дедлайн попытки, считаются транспортными.
func classifyGeminiError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fault.New(fault.KindTransport, fmt.Errorf("gemini: %w", ctx.Err()))
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fault.Newf(fault.KindTransport, "gemini: status %d %s: %s",
			apiErr.Code, http.StatusText(apiErr.Code), apiErr.Message)
	}
	return fault.New(fault.KindTransport, fmt.Errorf("gemini: %w", err))
}

var _ port.InferenceClient = (*GeminiClient)(nil)
