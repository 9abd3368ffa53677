package cli

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"text/tabwriter"

	"aero-vision/internal/app"
	"aero-vision/internal/bootstrap"
	"aero-vision/internal/export"
	"aero-vision/internal/layers"
	"aero-vision/internal/pipeline"

	"github.com/spf13/cobra"
)

func newDetectCmd(root *Root) *cobra.Command {
	var (
		detector  string
		fullScene bool
		render    string
		width     int
		height    int
		exportDir string
		archive   string
		opacity   float64
		outline   bool
	)

	cmd := &cobra.Command{
		Use:   "detect <image>",
		Short: "Run detection over an image",
		Long: `Load an image, run the configured detector over it and print one line
per detection layer. Optionally render the annotated scene to a PNG and export
the layers as zip archives.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *root.cfg
			if detector != "" {
				cfg.Processing.Detector = detector
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			c, err := bootstrap.Build(&cfg, root.log, app.WithDispatcher(app.Inline))
			if err != nil {
				return err
			}
			defer c.Close()

			c.Engine.Resize(width, height)
			if err := c.Session.LoadImage(args[0]); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := runOnce(ctx, c.Session, pipeline.Params{UseFullScene: fullScene}); err != nil {
				return err
			}

			var patch layers.StylePatch
			if cmd.Flags().Changed("opacity") {
				patch = patch.Merge(layers.SetOpacity(opacity))
			}
			if outline {
				patch = patch.Merge(layers.SetFilled(false))
			}
			if !patch.Empty() {
				for _, id := range c.Registry.IDs() {
					c.Registry.UpdateStyle(id, patch)
				}
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCOLOR\tAREA\tLABEL")
			for _, l := range c.Registry.Vectors() {
				label, _ := l.Attributes["label"].(string)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f\t%s\n", l.ID, l.Name, l.Style.Color, l.Geometry.Area(), label)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if render != "" {
				if err := writePNG(render, c.Engine.Render(cfg.Theme())); err != nil {
					return err
				}
				fmt.Fprintf(out, "Rendered %s\n", render)
			}
			if exportDir != "" {
				if err := os.MkdirAll(exportDir, 0o755); err != nil {
					return err
				}
				for _, l := range c.Registry.Vectors() {
					path := filepath.Join(exportDir, export.DefaultFileName(l))
					if err := c.Session.ExportLayer(l.ID, path); err != nil {
						return err
					}
					fmt.Fprintf(out, "Exported %s\n", path)
				}
			}
			if archive != "" {
				if err := c.Session.ExportAll(archive); err != nil {
					return err
				}
				fmt.Fprintf(out, "Exported %s\n", archive)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&detector, "detector", "d", "", "detector kind (simulated|contour|remote), defaults to the config")
	cmd.Flags().BoolVar(&fullScene, "full-scene", false, "detect over the whole image instead of the centre region")
	cmd.Flags().StringVarP(&render, "render", "r", "", "write the annotated view to this PNG")
	cmd.Flags().IntVar(&width, "width", 1280, "render width in pixels")
	cmd.Flags().IntVar(&height, "height", 800, "render height in pixels")
	cmd.Flags().StringVar(&exportDir, "export-dir", "", "export each layer as a zip archive into this directory")
	cmd.Flags().StringVar(&archive, "archive", "", "export every layer into one zip archive")
	cmd.Flags().Float64Var(&opacity, "opacity", layers.DefaultOpacity, "fill opacity of the detection layers (0-1)")
	cmd.Flags().BoolVar(&outline, "outline", false, "draw and export the layers as outlines only")

	return cmd
}

// runOnce starts processing and waits for the terminal event. Failures and
// cancellation are returned as errors.
func runOnce(ctx context.Context, s *app.Session, params pipeline.Params) error {
	var failed error
	cancelled := false
	s.On(app.EventJobFailed, func(data any) {
		if err, ok := data.(error); ok {
			failed = err
		}
	})
	s.On(app.EventJobCancelled, func(any) { cancelled = true })

	stop := context.AfterFunc(ctx, func() { s.Cancel() })
	defer stop()

	if err := s.StartProcessing(ctx, params); err != nil {
		return err
	}
	s.Wait()

	switch {
	case failed != nil:
		return failed
	case cancelled:
		return errors.New("processing cancelled")
	case s.State() != app.StateResults:
		return fmt.Errorf("processing ended in %s state", s.State())
	}
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
