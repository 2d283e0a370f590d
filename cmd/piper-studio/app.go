package main

import (
	"fmt"
	"os"

	"github.com/book-expert/logger"
	"github.com/book-expert/piper-studio/internal/config"
	"github.com/book-expert/piper-studio/internal/output"
	"github.com/book-expert/piper-studio/internal/pipeline"
	"github.com/book-expert/piper-studio/internal/tts"
	"github.com/book-expert/piper-studio/internal/tts/audio"
	"github.com/book-expert/piper-studio/internal/tts/text"
	"github.com/book-expert/piper-studio/internal/voices"
)

const (
	bootstrapLogFile = "piper-studio-bootstrap.log"
	finalLogFile     = "piper-studio.log"
)

// app is the wired pipeline shared by every subcommand.
type app struct {
	cfg          *config.Config
	log          *logger.Logger
	orchestrator *pipeline.Orchestrator
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

func loadConfig(configPath string, log *logger.Logger) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}

	return config.Load(log)
}

// newApp loads configuration with a bootstrap logger, then switches to the
// configured log directory and wires the pipeline.
func newApp(configPath string) (*app, error) {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, err
	}

	defer func() {
		closeErr := bootstrapLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing bootstrap logger: %v\n", closeErr)
		}
	}()

	cfg, err := loadConfig(configPath, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	err = cfg.EnsureDirectories()
	if err != nil {
		bootstrapLog.Error("Failed to prepare directories: %v", err)

		return nil, fmt.Errorf("failed to prepare directories: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, finalLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, err
	}

	encoder, err := audio.NewFFmpegEncoder(cfg.Output.FFmpegExecutable, cfg.Output.MP3Bitrate, finalLog)
	if err != nil {
		_ = finalLog.Close()

		return nil, fmt.Errorf("invalid output configuration: %w", err)
	}

	invoker := tts.New(cfg.Piper.Executable, cfg.Timeout(), finalLog)

	orchestrator := pipeline.New(
		voices.NewRegistry(cfg.Paths.VoicesDir, finalLog),
		invoker,
		output.NewNamer(cfg.Paths.OutputDir),
		output.NewFinalizer(encoder, cfg.Output.VerifyMP3, finalLog),
		finalLog,
	)

	if cfg.Piper.NormalizeText {
		orchestrator.WithTextFilter(text.NewNormalizer().Normalize)
	}

	finalLog.System("piper-studio %s initialized: piper=%s voices=%s output=%s",
		version, invoker.Executable(), cfg.Paths.VoicesDir, cfg.Paths.OutputDir)

	return &app{cfg: cfg, log: finalLog, orchestrator: orchestrator}, nil
}

func (a *app) close() {
	closeErr := a.log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
	}
}
