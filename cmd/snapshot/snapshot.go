// Package snapshot implements a one-shot snapshot command.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/reowatch/reowatch/internal/camera"
	"github.com/reowatch/reowatch/internal/conf"
	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/events"
	"github.com/reowatch/reowatch/internal/logger"
	"github.com/reowatch/reowatch/internal/snapshot"
)

const connectTimeout = 15 * time.Second

// Command creates the snapshot command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <camera>",
		Short: "Save one snapshot from a camera",
		Long: "Fetch a JPEG from the camera API, falling back to a single frame from " +
			"the RTSP stream, and save it to the camera's snapshot directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := Take(cmd.Context(), settings, args[0], camera.NewClient)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

// Take connects to the named camera, saves one snapshot and returns its path.
func Take[S camera.Session](ctx context.Context, settings *conf.Settings, name string, newSession func(conf.CameraSettings) S) (string, error) {
	cam, ok := settings.Camera(name)
	if !ok {
		return "", errors.Newf("unknown camera %q", name).
			Component("cmd").
			Category(errors.CategoryNotFound).
			Build()
	}

	session := newSession(cam)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := session.Connect(connectCtx); err != nil {
		return "", err
	}
	defer func() {
		if err := session.Disconnect(context.WithoutCancel(ctx)); err != nil {
			logger.Global().Module("cmd").Debug("logout failed", logger.Error(err))
		}
	}()

	producer := snapshot.New(snapshot.Config{
		Camera:     cam.Name,
		Channel:    cam.Channel,
		Dir:        cam.SnapshotPath(settings.Recording.OutputDir),
		StreamURL:  session.StreamParams().RTSPURL(),
		FfmpegPath: settings.Recording.FfmpegPath,
		Timeout:    settings.Recording.SnapshotTimeout,
	}, session, nil, events.Discard{})

	art, err := producer.Take(ctx)
	if err != nil {
		return "", err
	}
	return art.Path, nil
}
