package storage

import (
	"context"
	"sync"

	"obd-analyzer/internal/domain/entity"
	"obd-analyzer/internal/domain/port"
)

// MemoryUserRepository in-memory хранилище диалогов.
// Наружу отдаются только копии, чтобы обработчики разных апдейтов не делили один *User.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[int64]entity.User
}

// NewMemoryUserRepository создаёт новое in-memory хранилище
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[int64]entity.User),
	}
}

// Get возвращает пользователя по ID, создаёт нового если не найден
func (r *MemoryUserRepository) Get(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.loadLocked(userID, chatID)
	return &user, nil
}

// Save сохраняет состояние пользователя
func (r *MemoryUserRepository) Save(ctx context.Context, user *entity.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.users[user.ID] = *user
	r.mu.Unlock()

	return nil
}

// BeginProcessing переводит пользователя в обработку, если он ещё не занят
func (r *MemoryUserRepository) BeginProcessing(ctx context.Context, userID, chatID int64, requestID string) (*entity.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.loadLocked(userID, chatID)
	if user.Busy() {
		return &user, false, nil
	}

	user.SetState(entity.StateProcessing)
	user.LastRequestID = requestID
	r.users[userID] = user

	return &user, true, nil
}

// FinishProcessing возвращает пользователя в главное меню
func (r *MemoryUserRepository) FinishProcessing(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user, exists := r.users[userID]; exists {
		user.SetState(entity.StateMainMenu)
		r.users[userID] = user
	}

	return nil
}

func (r *MemoryUserRepository) loadLocked(userID, chatID int64) entity.User {
	if user, exists := r.users[userID]; exists {
		return user
	}

	user := *entity.NewUser(userID, chatID)
	r.users[userID] = user
	return user
}

// Проверка реализации интерфейса
var _ port.UserRepository = (*MemoryUserRepository)(nil)
