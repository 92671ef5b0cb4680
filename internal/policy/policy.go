// Package policy validates protection policies and computes their
// security score.
package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ypk/contentguard/internal/model"
)

var ErrExpiryInPast = errors.New("policy expiry must be in the future")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize fills defaults for optional watermark fields so stored
// policies are always fully specified.
func Normalize(p *model.ProtectionPolicy) {
	wm := &p.Watermark
	if wm.Position == "" {
		wm.Position = "bottom-right"
	}
	if wm.FontSizePx == 0 {
		wm.FontSizePx = 24
	}
	if wm.ColorHex == "" {
		wm.ColorHex = "#FFFFFF"
	}
	if wm.Enabled && wm.Opacity == 0 {
		wm.Opacity = 0.3
	}
}

// Validate checks a policy against the field rules and the write-time
// invariant that an expiry, if set, lies strictly in the future.
func Validate(p *model.ProtectionPolicy, now time.Time) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return ErrExpiryInPast
	}
	return nil
}

// Score rates how much protection a policy provides, 0-100. Monotonic:
// enabling any sub-feature never lowers the score.
func Score(p *model.ProtectionPolicy) int {
	if p == nil {
		return 0
	}
	score := 30
	if p.Watermark.Enabled {
		score += 25
	}
	if p.DownloadProtection {
		score += 20
	}
	if p.ViewTracking {
		score += 15
	}
	if p.MaxViews != nil {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}
