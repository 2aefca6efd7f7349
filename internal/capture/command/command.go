package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/vbonduro/lensfriend/internal/domain"
)

// OutputPlaceholder is replaced by the path the command must write its still to.
const OutputPlaceholder = "{output}"

var ErrCommandNotFound = errors.New("capture command not found")

// CommandCapturer shells out to a still-capture tool such as
// "libcamera-still -n -o {output}".
type CommandCapturer struct {
	args     []string
	rotation int
	logger   *slog.Logger
}

func NewCommandCapturer(command string, rotation int, logger *slog.Logger) (*CommandCapturer, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil, errors.New("capture command is empty")
	}
	if !strings.Contains(command, OutputPlaceholder) {
		return nil, fmt.Errorf("capture command must contain %s", OutputPlaceholder)
	}
	return &CommandCapturer{args: args, rotation: rotation, logger: logger}, nil
}

func (c *CommandCapturer) Capture(ctx context.Context, facing domain.Facing) (*domain.Frame, error) {
	f, err := os.CreateTemp("", "lensfriend-capture-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	output := f.Name()
	if err := f.Close(); err != nil {
		c.logger.Error("failed to close capture file", "error", err)
	}
	defer func() {
		if rerr := os.Remove(output); rerr != nil && !os.IsNotExist(rerr) {
			c.logger.Error("failed to remove capture file", "error", rerr)
		}
	}()

	args := make([]string, len(c.args))
	for i, arg := range c.args {
		args[i] = strings.ReplaceAll(arg, OutputPlaceholder, output)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.logger.Debug("running capture command", "args", args)
	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, args[0])
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("capture command interrupted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("capture command failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("failed to read captured frame: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("capture command produced an empty frame")
	}

	return &domain.Frame{
		Data:            data,
		MimeType:        http.DetectContentType(data),
		RotationDegrees: c.rotation,
		Facing:          facing,
	}, nil
}
