package watermark

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/ypk/contentguard/internal/model"
)

// ImageParams carries everything needed to stamp a visible text layer
// onto an image file.
type ImageParams struct {
	InputPath  string
	OutputPath string
	Text       string
	FontPath   string
	Config     model.WatermarkConfig
}

var positionGravity = map[string]string{
	"top-left":     "NorthWest",
	"top-right":    "NorthEast",
	"bottom-left":  "SouthWest",
	"bottom-right": "SouthEast",
	"center":       "Center",
}

// fillColor renders the configured color and opacity as an ImageMagick
// rgba() fill.
func fillColor(colorHex string, opacity float64) string {
	r, g, b := 255, 255, 255
	if len(colorHex) == 7 && colorHex[0] == '#' {
		if v, err := strconv.ParseUint(colorHex[1:], 16, 32); err == nil {
			r = int(v >> 16 & 0xFF)
			g = int(v >> 8 & 0xFF)
			b = int(v & 0xFF)
		}
	}
	return fmt.Sprintf("rgba(%d,%d,%d,%.2f)", r, g, b, opacity)
}

// BuildImageArgs constructs the ImageMagick invocation for a visible
// stamp. Split out from StampImage so tests can verify the mapping from
// policy fields to magick arguments without a subprocess.
func BuildImageArgs(p ImageParams, jpegQuality int) []string {
	gravity, ok := positionGravity[p.Config.Position]
	if !ok {
		gravity = "SouthEast"
	}
	offset := "+20+20"
	if gravity == "Center" {
		offset = "+0+0"
	}
	rotation := int(p.Config.RotationDegrees)

	return []string{
		p.InputPath,
		"-font", p.FontPath,
		"-pointsize", strconv.Itoa(p.Config.FontSizePx),
		"-fill", fillColor(p.Config.ColorHex, p.Config.Opacity),
		"-gravity", gravity,
		"-annotate", fmt.Sprintf("%dx%d%s", rotation, rotation, offset), p.Text,
		"-quality", strconv.Itoa(jpegQuality),
		p.OutputPath,
	}
}

// StampImage composites the visible text layer via ImageMagick.
func StampImage(ctx context.Context, p ImageParams) error {
	cmd := exec.CommandContext(ctx, "magick", BuildImageArgs(p, 92)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("imagemagick stamp: %w\noutput: %s", err, string(output))
	}
	return nil
}
