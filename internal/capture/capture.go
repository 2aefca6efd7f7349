// Package capture defines the still-capture collaborator and the backends
// that can produce frames on the server side.
package capture

import (
	"context"
	"errors"

	"github.com/vbonduro/lensfriend/internal/domain"
)

var ErrNoCamera = errors.New("no camera available on the server")

// Capturer produces a single frame per call. It either returns a frame or an
// error, never both.
type Capturer interface {
	Capture(ctx context.Context, facing domain.Facing) (*domain.Frame, error)
}

// NoCamera is used when server-side capture is disabled and clients upload
// their own frames.
type NoCamera struct{}

func (NoCamera) Capture(context.Context, domain.Facing) (*domain.Frame, error) {
	return nil, ErrNoCamera
}
