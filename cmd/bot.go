package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"obd-analyzer/config"
	telegram "obd-analyzer/internal/api"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Запустить Telegram-бота",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.TelegramToken == "" {
			return errors.New("TELEGRAM_TOKEN is required")
		}

		c, err := buildContainer(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		bot, err := telegram.NewBot(cfg.TelegramToken, c, cfg.Bot, logger)
		if err != nil {
			return fmt.Errorf("create bot: %w", err)
		}

		return bot.Run(cmd.Context())
	},
}
