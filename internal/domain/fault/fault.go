// Package fault описывает ошибки конвейера анализа.
package fault

import (
	"errors"
	"fmt"
)

// Kind класс ошибки.
type Kind string

const (
	KindEmptyResponse   Kind = "empty_response"   // модель ничего не вернула
	KindTransport       Kind = "transport"        // сеть, 5xx, таймаут попытки
	KindMalformedJSON   Kind = "malformed_json"   // ответ есть, но это не JSON
	KindSchemaViolation Kind = "schema_violation" // JSON не прошёл контракт
	KindExhausted       Kind = "exhausted"        // попытки кончились
	KindCancelled       Kind = "cancelled"        // вызывающий отменил запрос
)

// Эталоны для errors.Is: сравнение идёт только по Kind.
var (
	ErrEmptyResponse   = &Error{Kind: KindEmptyResponse}
	ErrTransport       = &Error{Kind: KindTransport}
	ErrMalformedJSON   = &Error{Kind: KindMalformedJSON}
	ErrSchemaViolation = &Error{Kind: KindSchemaViolation}
	ErrExhausted       = &Error{Kind: KindExhausted}
	ErrCancelled       = &Error{Kind: KindCancelled}
)

// Error ошибка с классом и, для итоговых ошибок, числом попыток.
type Error struct {
	Kind     Kind
	Attempts int
	Err      error
}

// New создаёт ошибку заданного класса.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf создаёт ошибку заданного класса с форматированным текстом.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindExhausted:
		return fmt.Sprintf("analysis failed after %d attempts: %s", e.Attempts, causeMessage(e.Err))
	case KindCancelled:
		return fmt.Sprintf("analysis cancelled after %d attempts: %s", e.Attempts, causeMessage(e.Err))
	}
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сопоставляет ошибки по Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf возвращает класс ошибки или пустую строку, если это не *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retriable сообщает, стоит ли повторять попытку после такой ошибки.
func Retriable(err error) bool {
	switch KindOf(err) {
	case KindEmptyResponse, KindTransport, KindMalformedJSON, KindSchemaViolation:
		return true
	}
	return false
}

func causeMessage(err error) string {
	if err == nil {
		return "no error recorded"
	}
	return err.Error()
}
