package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"obd-analyzer/config"
	"obd-analyzer/internal/contract"
	"obd-analyzer/internal/domain/entity"
	"obd-analyzer/internal/prompt"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <scan.json|->",
	Short: "Проанализировать скан и вывести результат в JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scan, err := readScan(cmd, args[0])
		if err != nil {
			return err
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		c, err := buildContainer(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		outcome, err := c.AnalysisService.Analyze(cmd.Context(), scan)
		if err != nil {
			return err
		}

		logger.Debug("analysis written",
			zap.String("request_id", outcome.RequestID),
			zap.Int("attempts", outcome.Attempts),
		)
		return writeJSON(cmd.OutOrStdout(), outcome.Analysis)
	},
}

var promptCmd = &cobra.Command{
	Use:   "prompt <scan.json|->",
	Short: "Показать промпт для скана без обращения к модели",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scan, err := readScan(cmd, args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), prompt.NewBuilder().Build(scan))
		return err
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Показать JSON Schema, которую получает модель",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeJSON(cmd.OutOrStdout(), contract.NewAnalysisContract().RequestSchema())
	},
}

// readScan читает скан из файла или из stdin, если путь "-".
func readScan(cmd *cobra.Command, path string) (*entity.ScanInput, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read scan: %w", err)
	}

	return entity.ParseScanInput(data)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
