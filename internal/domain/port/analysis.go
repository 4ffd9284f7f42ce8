package port

import "obd-analyzer/internal/domain/entity"

// PromptBuilder интерфейс построителя промпта
type PromptBuilder interface {
	// Build детерминированно превращает скан в текст инструкции
	Build(scan *entity.ScanInput) string
}

// ResultValidator интерфейс проверки ответа модели
type ResultValidator interface {
	// Validate проверяет ответ по контракту и возвращает типизированный результат
	Validate(raw RawResult) (*entity.AnalysisOutput, error)
}
