package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"obd-analyzer/config"
	app "obd-analyzer/internal/application"
	"obd-analyzer/internal/container"
	"obd-analyzer/internal/contract"
	"obd-analyzer/internal/infrastructure/inference"
	"obd-analyzer/internal/infrastructure/storage"
	"obd-analyzer/internal/prompt"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "obd-analyzer",
	Short: "Разбор OBD-сканов с помощью внешней языковой модели",
	Long: `obd-analyzer строит промпт по OBD-скану, отправляет его модели со схемой ответа,
проверяет ответ по той же схеме и повторяет попытку, если ответ не подошёл.

Скан читается из файла или stdin, результат пишется в stdout в JSON.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "путь к YAML-конфигурации (по умолчанию $OBD_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "подробные логи")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(promptCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(botCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// buildContainer собирает сервисы приложения по конфигурации.
func buildContainer(ctx context.Context, cfg *config.Config) (*container.Container, error) {
	analysisContract := contract.NewAnalysisContract()

	client, err := inference.New(ctx, cfg.LLM, analysisContract.RequestSchema(), logger)
	if err != nil {
		return nil, fmt.Errorf("create inference client: %w", err)
	}

	return container.New(container.Deps{
		Users:     storage.NewMemoryUserRepository(),
		Prompts:   prompt.NewBuilder(),
		Client:    client,
		Validator: analysisContract,
		Policy:    retryPolicy(cfg.Retry),
		Logger:    logger,
	}), nil
}

func retryPolicy(cfg config.RetryConfig) app.RetryPolicy {
	return app.RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		Delay:          cfg.Delay,
		Multiplier:     cfg.BackoffMultiplier,
		MaxDelay:       cfg.MaxDelay,
		AttemptTimeout: cfg.AttemptTimeout,
	}
}
