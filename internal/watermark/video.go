package watermark

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ypk/contentguard/internal/model"
)

type VideoParams struct {
	InputPath  string
	OutputPath string
	Text       string
	FontPath   string
	Config     model.WatermarkConfig
}

var positionExpr = map[string][2]string{
	"top-left":     {"20", "20"},
	"top-right":    {"w-text_w-20", "20"},
	"bottom-left":  {"20", "h-text_h-20"},
	"bottom-right": {"w-text_w-20", "h-text_h-20"},
	"center":       {"(w-text_w)/2", "(h-text_h)/2"},
}

// BuildDrawtextFilter renders the configured overlay as an ffmpeg
// drawtext filter. The marker persists for the whole duration (per-frame
// burn-in); drawtext has no rotation parameter, so rotation applies to
// image stamping only.
func BuildDrawtextFilter(p VideoParams) string {
	pos, ok := positionExpr[p.Config.Position]
	if !ok {
		pos = positionExpr["bottom-right"]
	}
	color := "white"
	if strings.HasPrefix(p.Config.ColorHex, "#") {
		color = "0x" + p.Config.ColorHex[1:]
	}
	size := p.Config.FontSizePx
	if size == 0 {
		size = 24
	}
	return fmt.Sprintf(
		"drawtext=text='%s':fontcolor=%s@%.2f:fontsize=%d:x='%s':y='%s':fontfile='%s'",
		EscapeFFmpegText(p.Text), color, p.Config.Opacity, size, pos[0], pos[1], p.FontPath,
	)
}

// StampVideo burns the overlay into every frame via ffmpeg, re-encoding
// the video stream and copying audio through.
func StampVideo(ctx context.Context, p VideoParams) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", p.InputPath,
		"-vf", BuildDrawtextFilter(p),
		"-c:v", "libx265",
		"-crf", "22",
		"-preset", "medium",
		"-tag:v", "hvc1",
		"-c:a", "copy",
		"-y",
		p.OutputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg stamp: %w\noutput: %s", err, string(output))
	}
	return nil
}
