package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/arcana/internal/assets"
	"github.com/user/arcana/internal/deck"
	"github.com/user/arcana/internal/housekeeping"
	"github.com/user/arcana/internal/interpret"
	"github.com/user/arcana/internal/reading"
	"github.com/user/arcana/internal/store"
	"github.com/user/arcana/internal/telegram"
	"github.com/user/arcana/internal/types"
	"github.com/user/arcana/pkg/llm"
	"github.com/user/arcana/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the arcana daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "arcana.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("no telegram token configured; run `arcana setup` or set TELEGRAM_BOT_TOKEN")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Write PID file
	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// State store
	st, err := store.Open(filepath.Join(cfg.DataDir, "arcana.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// Interpreter, when an API key is configured. Without one the bot still
	// runs; sessions fall back to the meditation notice.
	var interpreter *interpret.Interpreter
	if cfg.LLM.APIKey != "" {
		provider := openai.New(&llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})
		interpreter, err = interpret.New(provider, cfg.LLM.Model, cfg.LLM.MaxQuestionTokens)
		if err != nil {
			return fmt.Errorf("create interpreter: %w", err)
		}
	} else {
		slog.Warn("interpretation disabled (no LLM api key)")
	}

	// Telegram adapter doubles as the orchestrator's transport.
	adapter, err := telegram.New(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("create telegram adapter: %w", err)
	}

	orch := reading.New(st, deck.Default(), adapter, interpreterOrNil(interpreter), assets.New(cfg.CardsDir), reading.Options{
		Pace:          time.Duration(cfg.PaceSeconds) * time.Second,
		MaxConcurrent: int64(cfg.MaxConcurrent),
		Admins:        cfg.AdminIDs,
	})
	adapter.SetOrchestrator(orch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch.Start(ctx)
	defer orch.Stop()

	go adapter.Start(ctx)

	// Housekeeping
	sweeper := housekeeping.New(st, cfg.Housekeeping.Schedule, time.Duration(cfg.Housekeeping.RetentionDays)*24*time.Hour)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start housekeeping: %w", err)
	}
	defer sweeper.Stop()

	slog.Info("arcana started",
		"data_dir", cfg.DataDir,
		"cards_dir", cfg.CardsDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"pace_seconds", cfg.PaceSeconds,
		"admins", len(cfg.AdminIDs),
		"llm_model", cfg.LLM.Model,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				// Re-write PID file since we failed to re-exec
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}

// interpreterOrNil keeps a typed-nil *interpret.Interpreter from leaking into
// the orchestrator's interface field.
func interpreterOrNil(i *interpret.Interpreter) types.Interpreter {
	if i == nil {
		return nil
	}
	return i
}
