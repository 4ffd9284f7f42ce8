package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"obd-analyzer/internal/domain/entity"
	"obd-analyzer/internal/infrastructure/storage"
)

func TestUserService_BeginScanAndCancel(t *testing.T) {
	repo := storage.NewMemoryUserRepository()
	svc := NewUserService(repo)
	ctx := context.Background()

	user, err := svc.BeginScan(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, entity.StateAwaitingScan, user.State)

	user, err = svc.Cancel(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, entity.StateMainMenu, user.State)
}

func TestUserService_SetState(t *testing.T) {
	repo := storage.NewMemoryUserRepository()
	svc := NewUserService(repo)
	ctx := context.Background()

	user, err := svc.SetState(ctx, 2, 20, entity.StateAwaitingScan)
	require.NoError(t, err)
	require.Equal(t, entity.StateAwaitingScan, user.State)
}

func TestUserService_StartAnalysisIsExclusive(t *testing.T) {
	repo := storage.NewMemoryUserRepository()
	svc := NewUserService(repo)
	ctx := context.Background()

	id, ok, err := svc.StartAnalysis(ctx, 3, 30)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, id)

	user, err := svc.Get(ctx, 3, 30)
	require.NoError(t, err)
	require.True(t, user.Busy())
	require.Equal(t, id, user.LastRequestID)

	_, ok, err = svc.StartAnalysis(ctx, 3, 30)
	require.NoError(t, err)
	require.False(t, ok)

	user, err = svc.BeginScan(ctx, 3, 30)
	require.NoError(t, err)
	require.Equal(t, entity.StateProcessing, user.State)

	user, err = svc.Cancel(ctx, 3, 30)
	require.NoError(t, err)
	require.True(t, user.Busy())

	require.NoError(t, svc.Finish(ctx, 3))
	user, err = svc.Get(ctx, 3, 30)
	require.NoError(t, err)
	require.Equal(t, entity.StateMainMenu, user.State)

	_, ok, err = svc.StartAnalysis(ctx, 3, 30)
	require.NoError(t, err)
	require.True(t, ok)
}
