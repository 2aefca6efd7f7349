package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vbonduro/lensfriend/internal/capture"
	"github.com/vbonduro/lensfriend/internal/capture/command"
	"github.com/vbonduro/lensfriend/internal/capture/spool"
	"github.com/vbonduro/lensfriend/internal/config"
	"github.com/vbonduro/lensfriend/internal/domain"
	"github.com/vbonduro/lensfriend/internal/imaging"
	"github.com/vbonduro/lensfriend/internal/metrics"
	"github.com/vbonduro/lensfriend/internal/responder"
	"github.com/vbonduro/lensfriend/internal/responder/claude"
	"github.com/vbonduro/lensfriend/internal/responder/gemini"
	"github.com/vbonduro/lensfriend/internal/responder/ollama"
	"github.com/vbonduro/lensfriend/internal/service"
	"github.com/vbonduro/lensfriend/internal/session"
	"github.com/vbonduro/lensfriend/internal/speech"
	"github.com/vbonduro/lensfriend/internal/speech/whisper"
)

func newResponder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (responder.Responder, error) {
	switch strings.ToLower(cfg.ResponderBackend) {
	case "claude":
		logger.Info("using Claude responder", "model", cfg.ClaudeModel)
		return claude.NewClaudeResponder(cfg.ClaudeAPIKey, cfg.ClaudeModel, cfg.MaxOutputTokens), nil
	case "ollama":
		logger.Info("using Ollama responder", "host", cfg.OllamaHost, "model", cfg.OllamaModel)
		return ollama.NewOllamaResponder(cfg.OllamaHost, cfg.OllamaModel, cfg.MaxOutputTokens), nil
	case "gemini":
		logger.Info("using Gemini responder", "model", cfg.GeminiModel)
		return gemini.NewGeminiResponder(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, cfg.MaxOutputTokens, logger)
	default:
		return nil, fmt.Errorf("unknown responder backend %q", cfg.ResponderBackend)
	}
}

func newCapturer(cfg *config.Config, logger *slog.Logger) (capture.Capturer, error) {
	switch strings.ToLower(cfg.CaptureBackend) {
	case "spool":
		logger.Info("using spool camera", "dir", cfg.CaptureSpoolDir)
		return spool.NewSpoolCapturer(cfg.CaptureSpoolDir, cfg.CaptureRotation, logger)
	case "exec":
		logger.Info("using command camera", "command", cfg.CaptureCommand)
		return command.NewCommandCapturer(cfg.CaptureCommand, cfg.CaptureRotation, logger)
	case "none":
		return capture.NoCamera{}, nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.CaptureBackend)
	}
}

func newTranscriber(cfg *config.Config, logger *slog.Logger) (speech.Transcriber, error) {
	switch strings.ToLower(cfg.SpeechBackend) {
	case "openai":
		var opts []whisper.Option
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, whisper.WithBaseURL(cfg.OpenAIBaseURL))
		}
		logger.Info("using OpenAI transcription", "model", cfg.SpeechModel)
		return whisper.NewWhisperTranscriber(cfg.OpenAIAPIKey, cfg.SpeechModel, cfg.SpeechLanguage, logger, opts...)
	case "none":
		return speech.Unavailable{}, nil
	default:
		return nil, fmt.Errorf("unknown speech backend %q", cfg.SpeechBackend)
	}
}

// app holds everything both commands share.
type app struct {
	manager   *session.Manager
	assistant *service.Assistant
	metrics   *metrics.Metrics
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	resp, err := newResponder(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize responder: %w", err)
	}
	capturer, err := newCapturer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize camera: %w", err)
	}
	transcriber, err := newTranscriber(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize speech: %w", err)
	}
	facing, err := domain.ParseFacing(cfg.CaptureFacing, domain.FacingBack)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	manager := session.NewManager(resp, cfg.MaxSessions, cfg.SessionIdleTimeout, m.SessionHooks(), logger)
	assistant := service.NewAssistant(manager, capturer, transcriber, m, service.Options{
		Imaging: imaging.Options{
			MaxDimension: cfg.ImageMaxDimension,
			Quality:      cfg.ImageJPEGQuality,
			MaxPixels:    cfg.ImageMaxPixels,
		},
		CaptureTimeout: cfg.CaptureTimeout,
		DefaultFacing:  facing,
	}, logger)

	return &app{manager: manager, assistant: assistant, metrics: m}, nil
}
