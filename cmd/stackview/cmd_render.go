package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/gogpu/stackview"
)

var renderCmd = &cobra.Command{
	Use:   "render STUDY",
	Short: "Render one image of a study to PNG",
	Long: `Render loads a study manifest, shows the selected image with the requested
view settings and writes the composed frame to a PNG file.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().Int("index", 0, "image index")
	renderCmd.Flags().StringP("output", "o", "frame.png", "output file")
	renderCmd.Flags().String("preset", "", "window preset (lung, bone, soft-tissue, brain)")
	renderCmd.Flags().Float64("zoom", 1, "zoom factor")
	renderCmd.Flags().Int("brightness", 0, "brightness (-100..100)")
	renderCmd.Flags().Int("contrast", 0, "contrast (-100..100)")
	renderCmd.Flags().Float64("pan-x", 0, "horizontal pan in pixels")
	renderCmd.Flags().Float64("pan-y", 0, "vertical pan in pixels")
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()
	index, _ := flags.GetInt("index")
	output, _ := flags.GetString("output")

	v, err := openStudy(ctx, args[0], stackview.WithStartIndex(index))
	if err != nil {
		return err
	}
	defer v.Close()

	if err := v.Wait(ctx); err != nil {
		// The failure overlay is still rendered.
		fmt.Fprintf(cmd.ErrOrStderr(), "image %d: %v\n", index, err)
	}

	if preset, _ := flags.GetString("preset"); preset != "" {
		if _, err := v.ApplyPreset(preset); err != nil {
			return err
		}
	}
	if flags.Changed("brightness") {
		b, _ := flags.GetInt("brightness")
		v.SetBrightness(b)
	}
	if flags.Changed("contrast") {
		c, _ := flags.GetInt("contrast")
		v.SetContrast(c)
	}
	zoom, _ := flags.GetFloat64("zoom")
	v.SetZoom(zoom)
	px, _ := flags.GetFloat64("pan-x")
	py, _ := flags.GetFloat64("pan-y")
	v.Pan(px, py)

	if err := writePNG(output, v.Snapshot()); err != nil {
		return err
	}
	t := v.Transform()
	printer.Fprintf(cmd.OutOrStdout(), "wrote %s (image %d, zoom %.2f, brightness %d, contrast %d)\n",
		output, index, t.Zoom, t.Brightness, t.Contrast)
	return nil
}

// openStudy loads the manifest at path and opens a viewer configured from
// the command configuration.
func openStudy(ctx context.Context, path string, extra ...stackview.Option) (*stackview.Viewer, error) {
	study, err := stackview.LoadStudy(path)
	if err != nil {
		return nil, err
	}
	opts, err := viewerOptions(ctx, config)
	if err != nil {
		return nil, err
	}
	return stackview.Open(ctx, study, append(opts, extra...)...)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}
