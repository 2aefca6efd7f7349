package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`

	ResponderBackend string `envconfig:"RESPONDER_BACKEND" default:"gemini"`
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	GeminiModel      string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	GeminiBaseURL    string `envconfig:"GEMINI_BASE_URL"`
	ClaudeAPIKey     string `envconfig:"CLAUDE_API_KEY"`
	ClaudeModel      string `envconfig:"CLAUDE_MODEL" default:"claude-sonnet-4-5"`
	OllamaHost       string `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`
	OllamaModel      string `envconfig:"OLLAMA_MODEL" default:"llava"`
	MaxOutputTokens  int    `envconfig:"MAX_OUTPUT_TOKENS" default:"1024"`

	SpeechBackend  string `envconfig:"SPEECH_BACKEND" default:"none"`
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string `envconfig:"OPENAI_BASE_URL"`
	SpeechModel    string `envconfig:"SPEECH_MODEL" default:"whisper-1"`
	SpeechLanguage string `envconfig:"SPEECH_LANGUAGE"`

	CaptureBackend  string        `envconfig:"CAPTURE_BACKEND" default:"none"`
	CaptureSpoolDir string        `envconfig:"CAPTURE_SPOOL_DIR" default:"/var/spool/lensfriend"`
	CaptureCommand  string        `envconfig:"CAPTURE_COMMAND" default:"libcamera-still -n -t 1 -o {output}"`
	CaptureRotation int           `envconfig:"CAPTURE_ROTATION" default:"0"`
	CaptureFacing   string        `envconfig:"CAPTURE_FACING" default:"back"`
	CaptureTimeout  time.Duration `envconfig:"CAPTURE_TIMEOUT" default:"10s"`

	ImageMaxDimension int `envconfig:"IMAGE_MAX_DIMENSION" default:"1024"`
	ImageJPEGQuality  int `envconfig:"IMAGE_JPEG_QUALITY" default:"50"`
	ImageMaxPixels    int `envconfig:"IMAGE_MAX_PIXELS" default:"50000000"`

	MaxSessions        int           `envconfig:"MAX_SESSIONS" default:"64"`
	SessionIdleTimeout time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile   string `envconfig:"LOG_FILE"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the selected backends are known and have the
// credentials they need.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.ResponderBackend) {
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when RESPONDER_BACKEND=gemini"))
		}
	case "claude":
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required when RESPONDER_BACKEND=claude"))
		}
	case "ollama":
		if c.OllamaHost == "" {
			errs = append(errs, errors.New("OLLAMA_HOST is required when RESPONDER_BACKEND=ollama"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RESPONDER_BACKEND %q", c.ResponderBackend))
	}

	switch strings.ToLower(c.SpeechBackend) {
	case "none":
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when SPEECH_BACKEND=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SPEECH_BACKEND %q", c.SpeechBackend))
	}

	switch strings.ToLower(c.CaptureBackend) {
	case "none":
	case "spool":
		if c.CaptureSpoolDir == "" {
			errs = append(errs, errors.New("CAPTURE_SPOOL_DIR is required when CAPTURE_BACKEND=spool"))
		}
	case "exec":
		if !strings.Contains(c.CaptureCommand, "{output}") {
			errs = append(errs, errors.New("CAPTURE_COMMAND must contain {output} when CAPTURE_BACKEND=exec"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CAPTURE_BACKEND %q", c.CaptureBackend))
	}

	if c.CaptureRotation%90 != 0 {
		errs = append(errs, fmt.Errorf("CAPTURE_ROTATION must be a multiple of 90, got %d", c.CaptureRotation))
	}
	if c.ImageMaxPixels < 1 {
		errs = append(errs, fmt.Errorf("IMAGE_MAX_PIXELS must be positive, got %d", c.ImageMaxPixels))
	}
	if c.ImageJPEGQuality < 1 || c.ImageJPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("IMAGE_JPEG_QUALITY must be between 1 and 100, got %d", c.ImageJPEGQuality))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}

	return errors.Join(errs...)
}
