package policy_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ypk/contentguard/internal/model"
	"github.com/ypk/contentguard/internal/policy"
)

func basePolicy() *model.ProtectionPolicy {
	return &model.ProtectionPolicy{
		AssetID: "asset-1",
		Watermark: model.WatermarkConfig{
			Enabled:      true,
			TextTemplate: "Licensed to {viewerId}",
		},
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	p := basePolicy()
	policy.Normalize(p)

	if p.Watermark.Position != "bottom-right" {
		t.Errorf("position = %q, want bottom-right", p.Watermark.Position)
	}
	if p.Watermark.FontSizePx != 24 {
		t.Errorf("font size = %d, want 24", p.Watermark.FontSizePx)
	}
	if p.Watermark.ColorHex != "#FFFFFF" {
		t.Errorf("color = %q, want #FFFFFF", p.Watermark.ColorHex)
	}
	if p.Watermark.Opacity != 0.3 {
		t.Errorf("opacity = %v, want 0.3", p.Watermark.Opacity)
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	p := basePolicy()
	p.Watermark.Position = "center"
	p.Watermark.Opacity = 0.8
	policy.Normalize(p)

	if p.Watermark.Position != "center" {
		t.Errorf("position = %q, want center", p.Watermark.Position)
	}
	if p.Watermark.Opacity != 0.8 {
		t.Errorf("opacity = %v, want 0.8", p.Watermark.Opacity)
	}
}

func TestValidateAcceptsNormalizedPolicy(t *testing.T) {
	p := basePolicy()
	policy.Normalize(p)
	if err := policy.Validate(p, time.Now()); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsExpiryInPast(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)

	p := basePolicy()
	policy.Normalize(p)
	p.ExpiresAt = &past

	err := policy.Validate(p, now)
	if !errors.Is(err, policy.ErrExpiryInPast) {
		t.Fatalf("Validate() = %v, want ErrExpiryInPast", err)
	}
}

func TestValidateRejectsExpiryExactlyNow(t *testing.T) {
	now := time.Now()

	p := basePolicy()
	policy.Normalize(p)
	p.ExpiresAt = &now

	if err := policy.Validate(p, now); !errors.Is(err, policy.ErrExpiryInPast) {
		t.Fatalf("Validate() = %v, want ErrExpiryInPast", err)
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.ProtectionPolicy)
	}{
		{"bad position", func(p *model.ProtectionPolicy) { p.Watermark.Position = "upper-middle" }},
		{"opacity above one", func(p *model.ProtectionPolicy) { p.Watermark.Opacity = 1.5 }},
		{"tiny font", func(p *model.ProtectionPolicy) { p.Watermark.FontSizePx = 4 }},
		{"bad color", func(p *model.ProtectionPolicy) { p.Watermark.ColorHex = "white" }},
		{"rotation out of range", func(p *model.ProtectionPolicy) { p.Watermark.RotationDegrees = 270 }},
		{"zero max views", func(p *model.ProtectionPolicy) { z := uint(0); p.MaxViews = &z }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := basePolicy()
			policy.Normalize(p)
			tc.mutate(p)
			if err := policy.Validate(p, time.Now()); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestScoreNilPolicyIsZero(t *testing.T) {
	if got := policy.Score(nil); got != 0 {
		t.Errorf("Score(nil) = %d, want 0", got)
	}
}

func TestScoreFullPolicy(t *testing.T) {
	mv := uint(3)
	p := &model.ProtectionPolicy{
		Watermark:          model.WatermarkConfig{Enabled: true, TextTemplate: "x"},
		DownloadProtection: true,
		ViewTracking:       true,
		MaxViews:           &mv,
	}
	if got := policy.Score(p); got != 100 {
		t.Errorf("Score(full) = %d, want 100", got)
	}
}

func TestScoreMonotonic(t *testing.T) {
	mv := uint(1)
	steps := []func(*model.ProtectionPolicy){
		func(p *model.ProtectionPolicy) { p.Watermark.Enabled = true },
		func(p *model.ProtectionPolicy) { p.DownloadProtection = true },
		func(p *model.ProtectionPolicy) { p.ViewTracking = true },
		func(p *model.ProtectionPolicy) { p.MaxViews = &mv },
	}

	p := &model.ProtectionPolicy{}
	prev := policy.Score(p)
	if prev <= 0 {
		t.Fatalf("bare policy score = %d, want > 0", prev)
	}
	for i, step := range steps {
		step(p)
		got := policy.Score(p)
		if got < prev {
			t.Errorf("step %d lowered score: %d -> %d", i, prev, got)
		}
		prev = got
	}
}
