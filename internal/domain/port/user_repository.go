package port

import (
	"context"

	"obd-analyzer/internal/domain/entity"
)

// UserRepository интерфейс хранилища диалогов с пользователями бота
type UserRepository interface {
	// Get возвращает пользователя по ID, создаёт нового если не найден
	Get(ctx context.Context, userID, chatID int64) (*entity.User, error)

	// Save сохраняет копию пользователя
	Save(ctx context.Context, user *entity.User) error

	// BeginProcessing атомарно переводит пользователя в StateProcessing.
	// Возвращает false, если анализ для него уже идёт.
	BeginProcessing(ctx context.Context, userID, chatID int64, requestID string) (*entity.User, bool, error)

	// FinishProcessing возвращает пользователя в главное меню
	FinishProcessing(ctx context.Context, userID int64) error
}
