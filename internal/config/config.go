package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	DataDir     string `env:"DATA_DIR" envDefault:"./data"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AdminAPIKey string `env:"ADMIN_API_KEY,required"`

	// Signing secret for watermark grant tokens.
	TokenSecret  string `env:"TOKEN_SECRET" envDefault:"change-me-in-production-32-bytes!"`
	GrantTTLMins int    `env:"GRANT_TTL_MINS" envDefault:"10"`

	// Compositor worker pool.
	CompositorWorkers    int `env:"COMPOSITOR_WORKERS" envDefault:"2"`
	CompositorQueueDepth int `env:"COMPOSITOR_QUEUE_DEPTH" envDefault:"8"`
	CompositorWaitMS     int `env:"COMPOSITOR_WAIT_MS" envDefault:"2000"`

	// Operator override: serve unwatermarked content when the compositor
	// pool is saturated instead of denying. Off by default (fail closed).
	AllowUnwatermarkedOnOverload bool `env:"ALLOW_UNWATERMARKED_ON_OVERLOAD" envDefault:"false"`

	FontPath string `env:"FONT_PATH" envDefault:"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"`

	// Credential-sharing burst rule: flag a viewer seen from more than
	// BurstContexts distinct client contexts within BurstWindowMins.
	BurstContexts   int `env:"BURST_CONTEXTS" envDefault:"3"`
	BurstWindowMins int `env:"BURST_WINDOW_MINS" envDefault:"60"`

	PolicyCacheSize    int `env:"POLICY_CACHE_SIZE" envDefault:"1024"`
	PolicyCacheTTLSecs int `env:"POLICY_CACHE_TTL_SECS" envDefault:"5"`

	RecentActivitySize  int `env:"RECENT_ACTIVITY_SIZE" envDefault:"100"`
	RetentionDays       int `env:"RETENTION_DAYS" envDefault:"90"`
	CleanupIntervalMins int `env:"CLEANUP_INTERVAL_MINS" envDefault:"60"`

	SMTPHost   string `env:"SMTP_HOST"`
	SMTPPort   int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser   string `env:"SMTP_USER"`
	SMTPPass   string `env:"SMTP_PASS"`
	SMTPFrom   string `env:"SMTP_FROM"`
	AlertEmail string `env:"ALERT_EMAIL"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
