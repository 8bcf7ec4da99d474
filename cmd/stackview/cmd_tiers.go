package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/stackview"
	"github.com/gogpu/stackview/loader"
)

var tiersCmd = &cobra.Command{
	Use:   "tiers IMAGE",
	Short: "Derive low and medium quality tiers for an image",
	Long: `Tiers writes downscaled JPEG variants of IMAGE next to it (or into --dir)
and prints the study manifest entry that lists them, so the viewer can show
a fast preview before the full image arrives.`,
	Args: cobra.ExactArgs(1),
	RunE: runTiers,
}

func init() {
	tiersCmd.Flags().String("dir", "", "output directory (default: next to IMAGE)")
	tiersCmd.Flags().Int("quality", 85, "JPEG quality (1-100)")
}

func runTiers(cmd *cobra.Command, args []string) error {
	src := args[0]
	dir, _ := cmd.Flags().GetString("dir")
	quality, _ := cmd.Flags().GetInt("quality")
	if dir == "" {
		dir = filepath.Dir(src)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	img, format, err := loader.Decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	stackview.Logger().Debug("tiers: decoded", "path", src, "format", format, "size", img.Bounds().Size())

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	ref := stackview.ImageRef{URL: src}
	for _, d := range loader.DeriveTiers(img) {
		if d.Tier == loader.TierHigh {
			continue
		}
		out := filepath.Join(dir, fmt.Sprintf("%s-%s.jpg", base, d.Tier))
		size, err := writeJPEG(out, d, quality)
		if err != nil {
			return err
		}
		printer.Fprintf(cmd.ErrOrStderr(), "%-6s %4dx%-4d %8s  %s\n",
			d.Tier, d.Image.Bounds().Dx(), d.Image.Bounds().Dy(), humanize.Bytes(uint64(size)), out)
		ref.Tiers = append(ref.Tiers, loader.Candidate{URL: out, Tier: d.Tier})
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode([]stackview.ImageRef{ref}); err != nil {
		return err
	}
	return enc.Close()
}

func writeJPEG(path string, d loader.Derived, quality int) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	if err := loader.EncodeJPEG(f, d.Image, quality); err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("encoding %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, err
	}
	return info.Size(), f.Close()
}
