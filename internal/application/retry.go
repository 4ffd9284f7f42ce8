package app

import (
	"context"
	"math"
	"time"
)

// RetryPolicy сколько раз и с какой паузой повторять анализ.
// Multiplier 1 даёт фиксированную паузу Delay между попытками.
type RetryPolicy struct {
	MaxAttempts    int
	Delay          time.Duration
	Multiplier     float64
	MaxDelay       time.Duration
	AttemptTimeout time.Duration // 0 отключает дедлайн попытки
}

// DefaultRetryPolicy три попытки с фиксированной паузой в две секунды.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		Delay:          2 * time.Second,
		Multiplier:     1,
		MaxDelay:       30 * time.Second,
		AttemptTimeout: 90 * time.Second,
	}
}

// normalized подставляет безопасные значения вместо нулевых.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// DelayAfter возвращает паузу после неудачной попытки с номером attempt (с единицы).
func (p RetryPolicy) DelayAfter(attempt int) time.Duration {
	p = p.normalized()
	if p.Delay == 0 || attempt < 1 {
		return 0
	}

	d := float64(p.Delay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// sleep ждёт d или отмены контекста.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
