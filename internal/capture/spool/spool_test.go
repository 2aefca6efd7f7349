package spool

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/lensfriend/internal/domain"
)

func writeFrame(t *testing.T, dir, name, data string, mod time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func timeoutCtx(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func TestSpoolCaptureConsumesPendingFrame(t *testing.T) {
	dir := t.TempDir()
	c, err := NewSpoolCapturer(dir, 90, slog.Default())
	require.NoError(t, err)

	writeFrame(t, dir, "frame.png", "png data", time.Now())

	frame, err := c.Capture(timeoutCtx(t, 5*time.Second), domain.FacingFront)
	require.NoError(t, err)

	assert.Equal(t, []byte("png data"), frame.Data)
	assert.Equal(t, "image/png", frame.MimeType)
	assert.Equal(t, 90, frame.RotationDegrees)
	assert.Equal(t, domain.FacingFront, frame.Facing)

	_, err = os.Stat(filepath.Join(dir, "frame.png"))
	assert.True(t, os.IsNotExist(err), "frame should be deleted after capture")
}

func TestSpoolCaptureTakesOldestFirst(t *testing.T) {
	dir := t.TempDir()
	c, err := NewSpoolCapturer(dir, 0, slog.Default())
	require.NoError(t, err)

	now := time.Now()
	writeFrame(t, dir, "b.jpg", "newer", now)
	writeFrame(t, dir, "a.jpg", "older", now.Add(-time.Minute))

	first, err := c.Capture(timeoutCtx(t, 5*time.Second), domain.FacingBack)
	require.NoError(t, err)
	assert.Equal(t, []byte("older"), first.Data)

	second, err := c.Capture(timeoutCtx(t, 5*time.Second), domain.FacingBack)
	require.NoError(t, err)
	assert.Equal(t, []byte("newer"), second.Data)
}

func TestSpoolCaptureIgnoresPartialFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := NewSpoolCapturer(dir, 0, slog.Default())
	require.NoError(t, err)

	old := time.Now().Add(-time.Hour)
	writeFrame(t, dir, ".hidden.jpg", "hidden", old)
	writeFrame(t, dir, "frame.jpg.tmp", "tmp", old)
	writeFrame(t, dir, "frame.jpg.part", "part", old)
	writeFrame(t, dir, "notes.txt", "text", old)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0755))

	_, err = c.Capture(timeoutCtx(t, 100*time.Millisecond), domain.FacingBack)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	for _, name := range []string{".hidden.jpg", "frame.jpg.tmp", "frame.jpg.part", "notes.txt"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestSpoolCaptureWaitsForNextFrame(t *testing.T) {
	dir := t.TempDir()
	c, err := NewSpoolCapturer(dir, 0, slog.Default())
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		tmp := filepath.Join(dir, "incoming.jpg.part")
		if err := os.WriteFile(tmp, []byte("fresh"), 0644); err != nil {
			return
		}
		_ = os.Rename(tmp, filepath.Join(dir, "incoming.jpg"))
	}()

	frame, err := c.Capture(timeoutCtx(t, 5*time.Second), domain.FacingBack)
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), frame.Data)
	assert.Equal(t, "image/jpeg", frame.MimeType)
}

func TestSpoolCaptureHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	c, err := NewSpoolCapturer(dir, 0, slog.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Capture(ctx, domain.FacingBack)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSafeJoinRejectsTraversal(t *testing.T) {
	c, err := NewSpoolCapturer(t.TempDir(), 0, slog.Default())
	require.NoError(t, err)

	_, err = c.safeJoin("../../etc/passwd")
	assert.Error(t, err)

	path, err := c.safeJoin("frame.jpg")
	require.NoError(t, err)
	assert.Equal(t, "frame.jpg", filepath.Base(path))
}
