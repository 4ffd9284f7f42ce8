package port

import (
	"context"
	"encoding/json"
)

// RawResult необработанный ответ модели: синтаксически корректный JSON,
// который ещё не прошёл контракт.
type RawResult struct {
	Content json.RawMessage // JSON-текст ответа
	Model   string          // модель, которая ответила
}

// InferenceClient интерфейс внешней модели
type InferenceClient interface {
	// Invoke делает ровно одну попытку и не повторяет запрос сам
	Invoke(ctx context.Context, prompt string) (RawResult, error)
}
