package domain

import (
	"fmt"
	"strings"
	"time"
)

// Image is a captured still owned by a session. Data always holds an encoded
// JPEG produced by the imaging package.
type Image struct {
	ID         string
	Data       []byte
	MimeType   string
	Width      int
	Height     int
	CapturedAt time.Time
}

// Facing identifies which physical camera produced a frame.
type Facing string

const (
	FacingBack  Facing = "back"
	FacingFront Facing = "front"
)

// ParseFacing accepts "back" or "front" (case-insensitive). An empty string
// yields def.
func ParseFacing(s string, def Facing) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case string(FacingBack):
		return FacingBack, nil
	case string(FacingFront):
		return FacingFront, nil
	default:
		return "", fmt.Errorf("unknown lens facing %q", s)
	}
}

// Frame is the raw output of a capture before orientation correction.
// RotationDegrees is the clockwise rotation needed to display the frame upright.
type Frame struct {
	Data            []byte
	MimeType        string
	RotationDegrees int
	Facing          Facing
}
