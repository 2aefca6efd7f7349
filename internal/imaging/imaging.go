// Package imaging turns raw camera frames into upright, bounded JPEG images
// suitable for a multimodal model request.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	_ "image/gif" // Register GIF decoder
	_ "image/png" // Register PNG decoder

	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/vbonduro/lensfriend/internal/domain"
)

const (
	DefaultMaxDimension = 1024
	// DefaultQuality is the JPEG quality applied to every stored capture.
	DefaultQuality = 50
	// DefaultMaxPixels caps the decoded size of a frame, about 200 MB as RGBA.
	DefaultMaxPixels = 50_000_000
)

var (
	ErrEmptyImage          = errors.New("empty image data")
	ErrUnsupportedRotation = errors.New("rotation must be a multiple of 90 degrees")
	ErrImageTooLarge       = errors.New("image dimensions too large")
)

// Options configures Normalize.
type Options struct {
	// MaxDimension bounds the longest side in pixels (0 = no limit).
	MaxDimension int
	// Quality is the JPEG quality (1-100).
	Quality int
	// MaxPixels rejects frames whose width*height exceeds it before they are
	// decoded (0 = DefaultMaxPixels).
	MaxPixels int
}

// DefaultOptions returns the defaults used when configuration is absent.
func DefaultOptions() Options {
	return Options{MaxDimension: DefaultMaxDimension, Quality: DefaultQuality, MaxPixels: DefaultMaxPixels}
}

// Normalize decodes a frame, downscales it, corrects its orientation for the
// reported sensor rotation and lens facing, and re-encodes it as JPEG.
func Normalize(frame domain.Frame, opts Options) (domain.Image, error) {
	if len(frame.Data) == 0 {
		return domain.Image{}, ErrEmptyImage
	}
	if frame.RotationDegrees%90 != 0 {
		return domain.Image{}, fmt.Errorf("%w: got %d", ErrUnsupportedRotation, frame.RotationDegrees)
	}

	maxPixels := opts.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(frame.Data))
	if err != nil {
		return domain.Image{}, fmt.Errorf("failed to decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxPixels/cfg.Height {
		return domain.Image{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return domain.Image{}, fmt.Errorf("failed to decode image: %w", err)
	}

	img = downscale(img, opts.MaxDimension)
	img = Orient(img, frame.RotationDegrees, frame.Facing)

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return domain.Image{}, fmt.Errorf("failed to encode image: %w", err)
	}

	b := img.Bounds()
	return domain.Image{
		ID:         uuid.NewString(),
		Data:       buf.Bytes(),
		MimeType:   "image/jpeg",
		Width:      b.Dx(),
		Height:     b.Dy(),
		CapturedAt: time.Now(),
	}, nil
}

// Orient rotates img clockwise by rotationDegrees (normalised to 0, 90, 180
// or 270) and then mirrors it horizontally when the frame came from the front
// lens, so the result matches the mirrored preview shown to the user.
func Orient(img image.Image, rotationDegrees int, facing domain.Facing) image.Image {
	rot := ((rotationDegrees % 360) + 360) % 360
	mirror := facing == domain.FacingFront
	if rot == 0 && !mirror {
		return img
	}

	src := toRGBA(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dw, dh := w, h
	if rot == 90 || rot == 270 {
		dw, dh = h, w
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for dy := 0; dy < dh; dy++ {
		row := dst.Pix[dy*dst.Stride : dy*dst.Stride+dw*4]
		for dx := 0; dx < dw; dx++ {
			x := dx
			if mirror {
				x = dw - 1 - dx
			}
			sx, sy := sourcePoint(rot, x, dy, w, h)
			i := sy*src.Stride + sx*4
			copy(row[dx*4:dx*4+4], src.Pix[i:i+4])
		}
	}
	return dst
}

// toRGBA returns img as an *image.RGBA whose bounds start at the origin.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return rgba
}

// sourcePoint maps a destination pixel of a clockwise rotation back to the
// source pixel. w and h are the source dimensions.
func sourcePoint(rot, dx, dy, w, h int) (int, int) {
	switch rot {
	case 90:
		return dy, h - 1 - dx
	case 180:
		return w - 1 - dx, h - 1 - dy
	case 270:
		return w - 1 - dy, dx
	default:
		return dx, dy
	}
}

func downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	tw, th := maxDim, maxDim
	if w >= h {
		th = max(1, h*maxDim/w)
	} else {
		tw = max(1, w*maxDim/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
