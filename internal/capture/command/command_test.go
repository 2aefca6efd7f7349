package command

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/lensfriend/internal/domain"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestCommandCaptureReadsOutput(t *testing.T) {
	src := filepath.Join(t.TempDir(), "still.png")
	require.NoError(t, os.WriteFile(src, pngHeader, 0644))

	c, err := NewCommandCapturer("cp "+src+" {output}", 270, slog.Default())
	require.NoError(t, err)

	frame, err := c.Capture(context.Background(), domain.FacingBack)
	require.NoError(t, err)

	assert.Equal(t, pngHeader, frame.Data)
	assert.Equal(t, "image/png", frame.MimeType)
	assert.Equal(t, 270, frame.RotationDegrees)
	assert.Equal(t, domain.FacingBack, frame.Facing)
}

func TestCommandCaptureFailureIncludesStderr(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.jpg")
	c, err := NewCommandCapturer("cp "+missing+" {output}", 0, slog.Default())
	require.NoError(t, err)

	frame, err := c.Capture(context.Background(), domain.FacingBack)
	require.Error(t, err)
	assert.Nil(t, frame)
	assert.Contains(t, err.Error(), "capture command failed")
	assert.Contains(t, err.Error(), "missing.jpg")
}

func TestCommandCaptureBinaryNotFound(t *testing.T) {
	c, err := NewCommandCapturer("lensfriend-no-such-camera-tool {output}", 0, slog.Default())
	require.NoError(t, err)

	_, err = c.Capture(context.Background(), domain.FacingBack)
	assert.ErrorIs(t, err, ErrCommandNotFound)
}

func TestCommandCaptureEmptyOutput(t *testing.T) {
	c, err := NewCommandCapturer("true {output}", 0, slog.Default())
	require.NoError(t, err)

	_, err = c.Capture(context.Background(), domain.FacingBack)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty frame")
}

func TestNewCommandCapturerValidates(t *testing.T) {
	_, err := NewCommandCapturer("", 0, slog.Default())
	assert.Error(t, err)

	_, err = NewCommandCapturer("libcamera-still -n -o out.jpg", 0, slog.Default())
	assert.Error(t, err)
}
