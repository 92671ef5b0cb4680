package model

import "time"

// ContentAsset is a stored file registered by the external upload
// collaborator. Immutable after registration except for deletion.
type ContentAsset struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id,omitempty"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"` // "image", "video" or "document"
	SizeBytes  int64     `json:"size_bytes"`
	StorageRef string    `json:"storage_ref"`
	CreatedAt  time.Time `json:"created_at"`
}

// WatermarkConfig controls the visible overlay stamped onto served content.
type WatermarkConfig struct {
	Enabled         bool    `json:"enabled"`
	TextTemplate    string  `json:"text_template" validate:"max=200,required_if=Enabled true"`
	Position        string  `json:"position" validate:"omitempty,oneof=top-left top-right bottom-left bottom-right center"`
	Opacity         float64 `json:"opacity" validate:"gte=0,lte=1"`
	FontSizePx      int     `json:"font_size_px" validate:"omitempty,gte=8,lte=200"`
	ColorHex        string  `json:"color_hex" validate:"omitempty,hexcolor"`
	RotationDegrees float64 `json:"rotation_degrees" validate:"gte=-180,lte=180"`
}

// ProtectionPolicy is the per-asset protection configuration. Absence of a
// policy means the asset is unprotected: default-allow, no watermark, no
// tracking.
type ProtectionPolicy struct {
	AssetID            string          `json:"asset_id"`
	Watermark          WatermarkConfig `json:"watermark"`
	DownloadProtection bool            `json:"download_protection"`
	ViewTracking       bool            `json:"view_tracking"`
	MaxViews           *uint           `json:"max_views,omitempty" validate:"omitempty,gt=0"`
	ExpiresAt          *time.Time      `json:"expires_at,omitempty"`
	AllowedViewerIDs   []string        `json:"allowed_viewer_ids,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// AllowsViewer reports whether the policy's viewer allowlist admits the
// given viewer. An unset allowlist admits everyone.
func (p *ProtectionPolicy) AllowsViewer(viewerID string) bool {
	if len(p.AllowedViewerIDs) == 0 {
		return true
	}
	for _, id := range p.AllowedViewerIDs {
		if id == viewerID {
			return true
		}
	}
	return false
}

// Action is what the caller wants to do with the asset.
type Action string

const (
	ActionView     Action = "view"
	ActionDownload Action = "download"
)

// EventType classifies a ledger entry.
type EventType string

const (
	EventView            EventType = "view"
	EventDownloadAttempt EventType = "download_attempt"
	EventViolation       EventType = "violation"
)

// ReasonCode is the machine-readable code attached to deny decisions and
// violation events.
type ReasonCode string

const (
	ReasonExpired              ReasonCode = "expired"
	ReasonNotAuthorized        ReasonCode = "not_authorized"
	ReasonDownloadBlocked      ReasonCode = "download_blocked"
	ReasonViewLimitExceeded    ReasonCode = "view_limit_exceeded"
	ReasonCompositorOverloaded ReasonCode = "compositor_overloaded"
	ReasonPolicyUnavailable    ReasonCode = "policy_unavailable"
	ReasonCredentialSharing    ReasonCode = "credential_sharing_suspected"
)

// Retryable reports whether a denied request may be retried unchanged.
func (r ReasonCode) Retryable() bool {
	return r == ReasonCompositorOverloaded || r == ReasonPolicyUnavailable
}

// ViewEvent is one immutable ledger entry. Seq is monotonic per asset and
// assigned at append time; events are never rewritten.
type ViewEvent struct {
	ID            string     `json:"id"`
	Seq           int64      `json:"seq"`
	AssetID       string     `json:"asset_id"`
	ViewerID      string     `json:"viewer_id"`
	Type          EventType  `json:"event_type"`
	Reason        ReasonCode `json:"reason,omitempty"`
	ClientContext string     `json:"client_context,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// AssetReport holds the per-asset counters derived from the ledger.
type AssetReport struct {
	TotalViews         int64      `json:"total_views"`
	UniqueViewers      int64      `json:"unique_viewers"`
	DownloadAttempts   int64      `json:"download_attempts"`
	SecurityViolations int64      `json:"security_violations"`
	LastAccessed       *time.Time `json:"last_accessed,omitempty"`
}

// SecurityReport is the system-wide rollup. Derived state, never the source
// of truth; RecentActivity is a bounded window of the newest events.
type SecurityReport struct {
	TotalAssets     int64       `json:"total_assets"`
	ProtectedAssets int64       `json:"protected_assets"`
	TotalViews      int64       `json:"total_views"`
	TotalViolations int64       `json:"total_violations"`
	HighRiskAssets  int64       `json:"high_risk_assets"`
	RecentActivity  []ViewEvent `json:"recent_activity"`
	GeneratedAt     time.Time   `json:"generated_at"`
}

// AssetListing is one row of the administrative asset list.
type AssetListing struct {
	ContentAsset
	Policy *ProtectionPolicy `json:"policy,omitempty"`
	Score  int               `json:"security_score"`
	Report AssetReport       `json:"analytics"`
}

type Webhook struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Events    string    `json:"events"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

type WebhookDelivery struct {
	ID             string
	WebhookID      string
	EventType      string
	EventID        string
	PayloadJSON    string
	AttemptNumber  int
	ResponseStatus *int
	ErrorMessage   string
	State          string
	NextRetryAt    *time.Time
	DeliveredAt    *time.Time
	CreatedAt      time.Time
}
