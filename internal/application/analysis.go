package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"obd-analyzer/internal/domain/entity"
	"obd-analyzer/internal/domain/fault"
	"obd-analyzer/internal/domain/port"
)

// RunState состояние одного запуска анализа.
type RunState string

const (
	RunIdle       RunState = "idle"
	RunAttempting RunState = "attempting"
	RunSucceeded  RunState = "succeeded"
	RunExhausted  RunState = "exhausted"
	RunCancelled  RunState = "cancelled"
)

type requestIDKey struct{}

// WithRequestID привязывает к контексту ID запуска, который Analyze использует вместо нового.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// AnalysisOutcome проверенный результат и то, как он был получен.
type AnalysisOutcome struct {
	RequestID string
	Analysis  *entity.AnalysisOutput
	Attempts  int
	Model     string
	Elapsed   time.Duration
}

// AnalysisService прогоняет скан через модель с повторами и проверкой ответа.
// Не хранит изменяемого состояния между вызовами, Analyze можно звать параллельно.
type AnalysisService struct {
	prompts   port.PromptBuilder
	client    port.InferenceClient
	validator port.ResultValidator
	policy    RetryPolicy
	logger    *zap.Logger
}

// NewAnalysisService создаёт сервис анализа.
func NewAnalysisService(prompts port.PromptBuilder, client port.InferenceClient, validator port.ResultValidator, policy RetryPolicy, logger *zap.Logger) *AnalysisService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisService{
		prompts:   prompts,
		client:    client,
		validator: validator,
		policy:    policy.normalized(),
		logger:    logger.Named("analysis"),
	}
}

// Analyze возвращает либо полностью проверенный анализ, либо одну итоговую ошибку
// fault.KindExhausted (или fault.KindCancelled, если вызывающий ушёл).
// Ошибки отдельных попыток только логируются.
func (s *AnalysisService) Analyze(ctx context.Context, scan *entity.ScanInput) (*AnalysisOutcome, error) {
	requestID := requestIDFrom(ctx)
	log := s.logger.With(zap.String("request_id", requestID), zap.String("vin", scan.VIN))
	started := time.Now()

	prompt := s.prompts.Build(scan)

	state := RunIdle
	attempts := 0
	var lastErr error

	for {
		state = RunAttempting
		if err := ctx.Err(); err != nil {
			return nil, s.cancelled(log, attempts, lastErr, err)
		}

		attempts++
		analysis, raw, err := s.attempt(ctx, prompt)
		if err == nil {
			state = RunSucceeded
			log.Info("analysis succeeded",
				zap.String("state", string(state)),
				zap.Int("attempts", attempts),
				zap.String("model", raw.Model),
				zap.Int("codes", len(analysis.Codes)),
				zap.Duration("elapsed", time.Since(started)),
			)
			return &AnalysisOutcome{
				RequestID: requestID,
				Analysis:  analysis,
				Attempts:  attempts,
				Model:     raw.Model,
				Elapsed:   time.Since(started),
			}, nil
		}

		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, s.cancelled(log, attempts, lastErr, ctxErr)
		}

		log.Warn("analysis attempt failed",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", s.policy.MaxAttempts),
			zap.String("kind", string(fault.KindOf(err))),
			zap.Error(err),
		)

		if attempts >= s.policy.MaxAttempts {
			break
		}

		if err := sleep(ctx, s.policy.DelayAfter(attempts)); err != nil {
			return nil, s.cancelled(log, attempts, lastErr, err)
		}
	}

	state = RunExhausted
	log.Error("analysis exhausted",
		zap.String("state", string(state)),
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", time.Since(started)),
		zap.Error(lastErr),
	)
	return nil, &fault.Error{Kind: fault.KindExhausted, Attempts: attempts, Err: lastErr}
}

// attempt делает одну попытку: вызов модели под собственным дедлайном и проверка ответа.
func (s *AnalysisService) attempt(ctx context.Context, prompt string) (*entity.AnalysisOutput, port.RawResult, error) {
	if s.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.policy.AttemptTimeout)
		defer cancel()
	}

	raw, err := s.client.Invoke(ctx, prompt)
	if err != nil {
		if fault.KindOf(err) == "" {
			err = fault.New(fault.KindTransport, err)
		}
		return nil, raw, err
	}

	analysis, err := s.validator.Validate(raw)
	if err != nil {
		if !errors.Is(err, fault.ErrSchemaViolation) {
			err = fault.New(fault.KindSchemaViolation, err)
		}
		return nil, raw, err
	}
	return analysis, raw, nil
}

func (s *AnalysisService) cancelled(log *zap.Logger, attempts int, lastErr, ctxErr error) error {
	log.Info("analysis cancelled",
		zap.String("state", string(RunCancelled)),
		zap.Int("attempts", attempts),
		zap.NamedError("last_error", lastErr),
	)
	return &fault.Error{Kind: fault.KindCancelled, Attempts: attempts, Err: ctxErr}
}
