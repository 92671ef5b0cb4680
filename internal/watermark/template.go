package watermark

import (
	"strings"
	"time"
)

// RenderText interpolates the watermark text template. Supported
// placeholders: {viewerId}, {assetId}, {token}, {timestamp}.
func RenderText(template, assetID, viewerID, grantID string, now time.Time) string {
	r := strings.NewReplacer(
		"{viewerId}", viewerID,
		"{assetId}", assetID,
		"{token}", grantID,
		"{timestamp}", now.UTC().Format("2006-01-02 15:04 UTC"),
	)
	return r.Replace(template)
}

// Cacheable reports whether a template produces the same text for every
// request by the same viewer, making the stamped output reusable. Any
// time-varying placeholder defeats caching.
func Cacheable(template string) bool {
	return !strings.Contains(template, "{timestamp}") &&
		!strings.Contains(template, "{token}")
}

// EscapeFFmpegText escapes text for use inside an ffmpeg drawtext filter.
func EscapeFFmpegText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `'\\''`,
		`:`, `\:`,
		`[`, `\[`,
		`]`, `\]`,
		`;`, `\;`,
		`%`, `%%`,
	)
	return r.Replace(s)
}
