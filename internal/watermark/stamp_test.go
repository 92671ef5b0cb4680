package watermark_test

import (
	"strings"
	"testing"

	"github.com/ypk/contentguard/internal/model"
	"github.com/ypk/contentguard/internal/watermark"
)

func imageParams(cfg model.WatermarkConfig) watermark.ImageParams {
	return watermark.ImageParams{
		InputPath:  "/in/src.jpg",
		OutputPath: "/out/stamped.jpg",
		Text:       "Licensed to viewer-1",
		FontPath:   "/fonts/sans.ttf",
		Config:     cfg,
	}
}

func argValue(t *testing.T, args []string, flag string) string {
	t.Helper()
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	t.Fatalf("flag %s not found in %v", flag, args)
	return ""
}

func TestBuildImageArgsMapsConfig(t *testing.T) {
	args := watermark.BuildImageArgs(imageParams(model.WatermarkConfig{
		Enabled:      true,
		TextTemplate: "x",
		Position:     "top-left",
		Opacity:      0.5,
		FontSizePx:   32,
		ColorHex:     "#FF0000",
	}), 92)

	if args[0] != "/in/src.jpg" || args[len(args)-1] != "/out/stamped.jpg" {
		t.Errorf("input/output misplaced: %v", args)
	}
	if got := argValue(t, args, "-gravity"); got != "NorthWest" {
		t.Errorf("gravity = %q, want NorthWest", got)
	}
	if got := argValue(t, args, "-pointsize"); got != "32" {
		t.Errorf("pointsize = %q, want 32", got)
	}
	if got := argValue(t, args, "-fill"); got != "rgba(255,0,0,0.50)" {
		t.Errorf("fill = %q, want rgba(255,0,0,0.50)", got)
	}
	if got := argValue(t, args, "-quality"); got != "92" {
		t.Errorf("quality = %q, want 92", got)
	}
}

func TestBuildImageArgsUnknownPositionFallsBack(t *testing.T) {
	args := watermark.BuildImageArgs(imageParams(model.WatermarkConfig{Position: ""}), 92)
	if got := argValue(t, args, "-gravity"); got != "SouthEast" {
		t.Errorf("gravity = %q, want SouthEast fallback", got)
	}
}

func TestBuildImageArgsRotation(t *testing.T) {
	args := watermark.BuildImageArgs(imageParams(model.WatermarkConfig{
		Position:        "center",
		RotationDegrees: -45,
	}), 92)
	if got := argValue(t, args, "-annotate"); !strings.HasPrefix(got, "-45x-45") {
		t.Errorf("annotate = %q, want -45x-45 prefix", got)
	}
}

func TestBuildDrawtextFilterMapsConfig(t *testing.T) {
	filter := watermark.BuildDrawtextFilter(watermark.VideoParams{
		Text:     "viewer-1",
		FontPath: "/fonts/sans.ttf",
		Config: model.WatermarkConfig{
			Position:   "bottom-left",
			Opacity:    0.25,
			FontSizePx: 48,
			ColorHex:   "#00FF00",
		},
	})

	for _, want := range []string{
		"drawtext=text='viewer-1'",
		"fontcolor=0x00FF00@0.25",
		"fontsize=48",
		"x='20'",
		"y='h-text_h-20'",
		"fontfile='/fonts/sans.ttf'",
	} {
		if !strings.Contains(filter, want) {
			t.Errorf("filter missing %q: %s", want, filter)
		}
	}
}

func TestBuildDrawtextFilterEscapesText(t *testing.T) {
	filter := watermark.BuildDrawtextFilter(watermark.VideoParams{
		Text:   "50% off: now",
		Config: model.WatermarkConfig{Position: "center"},
	})
	if !strings.Contains(filter, "50%% off") {
		t.Errorf("text not escaped for drawtext: %s", filter)
	}
}
