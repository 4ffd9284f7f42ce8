package container

import (
	"go.uber.org/zap"

	app "obd-analyzer/internal/application"
	"obd-analyzer/internal/domain/port"
)

type Container struct {
	UserService     *app.UserService
	AnalysisService *app.AnalysisService
}

// Deps внешние зависимости, которые собирает cmd.
type Deps struct {
	Users     port.UserRepository
	Prompts   port.PromptBuilder
	Client    port.InferenceClient
	Validator port.ResultValidator
	Policy    app.RetryPolicy
	Logger    *zap.Logger
}

func New(deps Deps) *Container {
	userService := app.NewUserService(deps.Users)
	analysisService := app.NewAnalysisService(deps.Prompts, deps.Client, deps.Validator, deps.Policy, deps.Logger)

	return &Container{
		UserService:     userService,
		AnalysisService: analysisService,
	}
}
