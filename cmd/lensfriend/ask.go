package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vbonduro/lensfriend/internal/domain"
	"github.com/vbonduro/lensfriend/internal/service"
	"github.com/vbonduro/lensfriend/internal/session"
)

type askFlags struct {
	images   []string
	rotation int
	facing   string
}

func newAskCmd() *cobra.Command {
	var flags askFlags

	cmd := &cobra.Command{
		Use:   "ask [flags] QUESTION...",
		Short: "Ask one question about image files or the configured camera",
		Long: `Ask runs a single turn without the HTTP server. Images given with --image are
added in order; without any, one still is taken with the configured camera.
The answer is streamed to stdout.`,
		Example: `  lensfriend ask --image front.jpg --image back.jpg "which jar is fuller?"
  CAPTURE_BACKEND=exec lensfriend ask "what am I looking at?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return runAsk(ctx, a.assistant, flags, strings.Join(args, " "), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringArrayVarP(&flags.images, "image", "i", nil, "image file to include (repeatable, kept in order)")
	cmd.Flags().IntVar(&flags.rotation, "rotation", 0, "clockwise rotation in degrees applied to every --image")
	cmd.Flags().StringVar(&flags.facing, "facing", "back", "lens that took the images: back or front")
	return cmd
}

func runAsk(ctx context.Context, svc *service.Assistant, flags askFlags, question string, out io.Writer) error {
	facing, err := domain.ParseFacing(flags.facing, domain.FacingBack)
	if err != nil {
		return err
	}

	frames, err := loadFrames(ctx, flags.images, flags.rotation, facing)
	if err != nil {
		return err
	}

	snap, err := svc.CreateSession()
	if err != nil {
		return err
	}
	id := snap.ID
	defer func() { _ = svc.CloseSession(id) }()

	for _, f := range frames {
		if _, err := svc.AddFrame(ctx, id, f); err != nil {
			return err
		}
	}
	if len(frames) == 0 {
		if _, err := svc.Capture(ctx, id, facing); err != nil {
			return err
		}
	}

	updates, cancel, err := svc.Subscribe(id)
	if err != nil {
		return err
	}
	defer cancel()

	if err := svc.SubmitPrompt(ctx, id, question); err != nil {
		return err
	}
	return printAnswer(ctx, updates, out)
}

// loadFrames reads the image files concurrently and returns them in argument
// order.
func loadFrames(ctx context.Context, paths []string, rotation int, facing domain.Facing) ([]domain.Frame, error) {
	frames := make([]domain.Frame, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read image %s: %w", path, err)
			}
			frames[i] = domain.Frame{
				Data:            data,
				MimeType:        http.DetectContentType(data),
				RotationDegrees: rotation,
				Facing:          facing,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

// printAnswer writes the answer as it grows and returns once the turn ends.
// A failed turn prints what arrived and returns the error.
func printAnswer(ctx context.Context, updates <-chan session.Snapshot, out io.Writer) error {
	printed := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				return session.ErrClosed
			}
			if snap.Status == session.StatusIdle {
				continue
			}
			if len(snap.Answer) > printed {
				if _, err := io.WriteString(out, snap.Answer[printed:]); err != nil {
					return err
				}
				printed = len(snap.Answer)
			}
			switch snap.Status {
			case session.StatusAnswered:
				_, err := io.WriteString(out, "\n")
				return err
			case session.StatusErrored:
				if printed > 0 {
					_, _ = io.WriteString(out, "\n")
				}
				return errors.New(snap.Err)
			}
		}
	}
}
