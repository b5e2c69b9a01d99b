// Package check implements the configuration and camera probe command.
package check

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/reowatch/reowatch/internal/camera"
	"github.com/reowatch/reowatch/internal/conf"
	"github.com/reowatch/reowatch/internal/detection"
	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/privacy"
)

const probeTimeout = 15 * time.Second

// Result is the outcome of probing one camera.
type Result struct {
	Camera   string
	Stream   string
	Person   bool
	Detected bool
	Err      error
}

// Command creates the check command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and probe every enabled camera",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			ffmpeg, err := conf.ValidateToolPath(settings.Recording.FfmpegPath, conf.GetFfmpegBinaryName())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "config ok, ffmpeg at %s\n\n", ffmpeg)

			results := Probe(cmd.Context(), settings.EnabledCameras(), func(c conf.CameraSettings) camera.Session {
				return camera.NewClient(c)
			})
			return Print(out, results)
		},
	}
}

// Probe connects to every camera concurrently and reports whether it
// supports person detection. Results keep the input order.
func Probe(ctx context.Context, cams []conf.CameraSettings, newSession func(conf.CameraSettings) camera.Session) []Result {
	results := make([]Result, len(cams))

	var g errgroup.Group
	for i, cam := range cams {
		g.Go(func() error {
			results[i] = probe(ctx, cam, newSession(cam))
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func probe(ctx context.Context, cam conf.CameraSettings, session camera.Session) Result {
	res := Result{Camera: cam.Name}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := session.Connect(ctx); err != nil {
		res.Err = err
		return res
	}
	defer func() { _ = session.Disconnect(context.WithoutCancel(ctx)) }()

	res.Stream = privacy.SanitizeRTSPUrl(session.StreamParams().RTSPURL())
	res.Person = session.SupportsAI(cam.Channel, detection.PersonKind)
	res.Detected = session.IsDetected(cam.Channel, detection.PersonKind)
	if !res.Person {
		res.Err = errors.Newf("no person detection on channel %d", cam.Channel).
			Component("cmd").
			Category(errors.CategoryCapability).
			Build()
	}
	return res
}

// Print writes results as a table and returns an error if any camera failed.
func Print(w io.Writer, results []Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CAMERA\tSTATUS\tPERSON\tSTREAM")

	failed := 0
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = privacy.ScrubMessage(r.Err.Error())
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Camera, status, personState(r), r.Stream)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return errors.Newf("%d of %d cameras failed the check", failed, len(results)).
			Component("cmd").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

func personState(r Result) string {
	switch {
	case !r.Person:
		return "-"
	case r.Detected:
		return "present"
	default:
		return "clear"
	}
}
