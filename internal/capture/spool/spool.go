package spool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vbonduro/lensfriend/internal/domain"
)

// SpoolCapturer consumes frames that a camera daemon drops into a directory.
// Writers must move finished files into place atomically; anything hidden or
// ending in .tmp or .part is treated as in flight and left alone.
type SpoolCapturer struct {
	dir      string
	rotation int
	logger   *slog.Logger

	// serialises consumers so a frame is handed out once
	mu sync.Mutex
}

func NewSpoolCapturer(dir string, rotation int, logger *slog.Logger) (*SpoolCapturer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &SpoolCapturer{dir: dir, rotation: rotation, logger: logger}, nil
}

// Capture returns the oldest pending frame, waiting for one to arrive until
// ctx is done. The file is deleted once read.
func (c *SpoolCapturer) Capture(ctx context.Context, facing domain.Facing) (*domain.Frame, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create spool watcher: %w", err)
	}
	defer func() {
		if cerr := watcher.Close(); cerr != nil {
			c.logger.Error("failed to close spool watcher", "error", cerr)
		}
	}()

	// Watch before scanning so a frame landing in between is not missed.
	if err := watcher.Add(c.dir); err != nil {
		return nil, fmt.Errorf("failed to watch spool directory: %w", err)
	}

	for {
		frame, err := c.takeOldest()
		if err != nil {
			return nil, err
		}
		if frame != nil {
			frame.Facing = facing
			frame.RotationDegrees = c.rotation
			return frame, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no frame arrived: %w", ctx.Err())
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil, errors.New("spool watcher closed")
			}
			c.logger.Debug("spool event", "op", ev.Op.String(), "name", ev.Name)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil, errors.New("spool watcher closed")
			}
			return nil, fmt.Errorf("spool watcher failed: %w", werr)
		}
	}
}

// takeOldest reads and removes the oldest ready frame. It returns nil when
// the spool is empty.
func (c *SpoolCapturer) takeOldest() (*domain.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list spool directory: %w", err)
	}

	var oldest string
	var oldestMod time.Time
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !isReady(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		mod := info.ModTime()
		if oldest == "" || mod.Before(oldestMod) || (mod.Equal(oldestMod) && entry.Name() < oldest) {
			oldest, oldestMod = entry.Name(), mod
		}
	}
	if oldest == "" {
		return nil, nil
	}

	path, err := c.safeJoin(oldest)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to delete frame: %w", err)
	}

	c.logger.Debug("frame taken from spool", "file", oldest, "bytes", len(data))
	return &domain.Frame{Data: data, MimeType: extToMimeType(oldest)}, nil
}

// safeJoin resolves name relative to the spool directory and rejects directory traversal.
func (c *SpoolCapturer) safeJoin(name string) (string, error) {
	absBase, err := filepath.Abs(c.dir)
	if err != nil {
		return "", fmt.Errorf("invalid spool path: %w", err)
	}

	absPath, err := filepath.Abs(filepath.Join(c.dir, name))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt")
	}
	return absPath, nil
}

func isReady(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	default:
		return false
	}
}

func extToMimeType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
