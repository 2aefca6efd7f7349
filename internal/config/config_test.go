package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.NotNil(t, cfg)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "gemini", cfg.ResponderBackend)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.Equal(t, 1024, cfg.MaxOutputTokens)
	assert.Equal(t, "none", cfg.SpeechBackend)
	assert.Equal(t, "none", cfg.CaptureBackend)
	assert.Equal(t, 50, cfg.ImageJPEGQuality)
	assert.Equal(t, 50_000_000, cfg.ImageMaxPixels)
	assert.Equal(t, 64, cfg.MaxSessions)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadCustomValues(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("RESPONDER_BACKEND", "claude")
	t.Setenv("CLAUDE_API_KEY", "sk-test123")
	t.Setenv("CAPTURE_BACKEND", "spool")
	t.Setenv("CAPTURE_SPOOL_DIR", "/tmp/frames")
	t.Setenv("CAPTURE_ROTATION", "270")
	t.Setenv("SESSION_IDLE_TIMEOUT", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "claude", cfg.ResponderBackend)
	assert.Equal(t, "sk-test123", cfg.ClaudeAPIKey)
	assert.Equal(t, "spool", cfg.CaptureBackend)
	assert.Equal(t, "/tmp/frames", cfg.CaptureSpoolDir)
	assert.Equal(t, 270, cfg.CaptureRotation)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdleTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("MAX_SESSIONS", "many")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "gemini without key",
			env:     map[string]string{},
			wantErr: "GEMINI_API_KEY",
		},
		{
			name:    "claude without key",
			env:     map[string]string{"RESPONDER_BACKEND": "claude"},
			wantErr: "CLAUDE_API_KEY",
		},
		{
			name:    "unknown responder",
			env:     map[string]string{"RESPONDER_BACKEND": "magic"},
			wantErr: "unknown RESPONDER_BACKEND",
		},
		{
			name:    "openai speech without key",
			env:     map[string]string{"GEMINI_API_KEY": "k", "SPEECH_BACKEND": "openai"},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "exec capture without placeholder",
			env:     map[string]string{"GEMINI_API_KEY": "k", "CAPTURE_BACKEND": "exec", "CAPTURE_COMMAND": "snap out.jpg"},
			wantErr: "{output}",
		},
		{
			name:    "odd rotation",
			env:     map[string]string{"GEMINI_API_KEY": "k", "CAPTURE_ROTATION": "45"},
			wantErr: "CAPTURE_ROTATION",
		},
		{
			name:    "bad quality",
			env:     map[string]string{"GEMINI_API_KEY": "k", "IMAGE_JPEG_QUALITY": "0"},
			wantErr: "IMAGE_JPEG_QUALITY",
		},
		{
			name:    "no pixel budget",
			env:     map[string]string{"GEMINI_API_KEY": "k", "IMAGE_MAX_PIXELS": "0"},
			wantErr: "IMAGE_MAX_PIXELS",
		},
		{
			name: "ollama needs no key",
			env:  map[string]string{"RESPONDER_BACKEND": "ollama"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"GEMINI_API_KEY", "CLAUDE_API_KEY", "OPENAI_API_KEY"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			require.NoError(t, err)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
