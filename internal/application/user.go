package app

import (
	"context"

	"github.com/google/uuid"

	"obd-analyzer/internal/domain/entity"
	"obd-analyzer/internal/domain/port"
)

type UserService struct {
	repo port.UserRepository
}

func NewUserService(repo port.UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) Get(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.repo.Get(ctx, userID, chatID)
}

func (s *UserService) SetState(ctx context.Context, userID, chatID int64, state entity.UserState) (*entity.User, error) {
	user, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	user.SetState(state)
	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// BeginScan ждёт от пользователя скан. Идущий анализ не прерывает.
func (s *UserService) BeginScan(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	user, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if user.Busy() {
		return user, nil
	}
	return s.SetState(ctx, userID, chatID, entity.StateAwaitingScan)
}

// Cancel возвращает в главное меню. Идущий анализ останавливает вызывающий,
// состояние после него сбросит Finish.
func (s *UserService) Cancel(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	user, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if user.Busy() {
		return user, nil
	}
	return s.SetState(ctx, userID, chatID, entity.StateMainMenu)
}

// StartAnalysis занимает пользователя под новый запуск и возвращает его ID.
// ok == false, если анализ для пользователя уже идёт.
func (s *UserService) StartAnalysis(ctx context.Context, userID, chatID int64) (requestID string, ok bool, err error) {
	requestID = uuid.NewString()
	_, ok, err = s.repo.BeginProcessing(ctx, userID, chatID, requestID)
	if err != nil || !ok {
		return "", ok, err
	}
	return requestID, true, nil
}

func (s *UserService) Finish(ctx context.Context, userID int64) error {
	return s.repo.FinishProcessing(ctx, userID)
}
