package responder

import (
	"context"
	"strings"

	"github.com/vbonduro/lensfriend/internal/domain"
)

// DefaultMaxTokens bounds the answer length when configuration leaves it unset.
const DefaultMaxTokens = 1024

// Responder sends an ordered set of images plus a prompt to a multimodal model
// and streams the textual answer back.
type Responder interface {
	// Respond returns a channel of Events. Text events arrive in order; a
	// failure is delivered as a single Err event, after which the channel is
	// closed. The channel is also closed on normal completion or when ctx is
	// cancelled.
	Respond(ctx context.Context, images []domain.Image, prompt string) (<-chan Event, error)
}

// Event is either a streamed text fragment or an error emitted mid-stream.
type Event struct {
	Text string
	Err  error
}

// Collect drains ch and returns the concatenated answer, stopping at the first
// error event.
func Collect(ch <-chan Event) (string, error) {
	var sb strings.Builder
	for ev := range ch {
		if ev.Err != nil {
			return sb.String(), ev.Err
		}
		sb.WriteString(ev.Text)
	}
	return sb.String(), nil
}

// Send delivers ev unless ctx is done first. It reports whether ev was sent.
func Send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
