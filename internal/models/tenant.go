package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a white-label configuration selected per deployment or customer.
type Tenant struct {
	ID              uuid.UUID         `json:"id"`
	Slug            string            `json:"slug"`
	Name            string            `json:"name"`
	LogoURL         string            `json:"logo_url,omitempty"`
	AIName          string            `json:"ai_name"`
	WelcomeText     string            `json:"welcome_text"`
	Theme           map[string]string `json:"theme,omitempty"`
	EnabledServices []string          `json:"enabled_services"`
	Quotas          Quotas            `json:"quotas"`
	IsActive        bool              `json:"is_active"`
}

// ServiceEnabled reports whether the tenant exposes the given service.
// An empty list enables everything.
func (t *Tenant) ServiceEnabled(service string) bool {
	if len(t.EnabledServices) == 0 {
		return true
	}
	for _, s := range t.EnabledServices {
		if s == service {
			return true
		}
	}
	return false
}

// Quotas are per-user limits for a tenant. Zero means unlimited.
type Quotas struct {
	AIRequests int64 `json:"ai_requests"`
	TryOns     int64 `json:"tryons"`
	ColorTypes int64 `json:"colortypes"`
}

// QuotaKind names a usage counter on a profile.
type QuotaKind string

const (
	QuotaAIRequests QuotaKind = "ai_requests"
	QuotaTryOns     QuotaKind = "tryons"
	QuotaColorTypes QuotaKind = "colortypes"
)

// Limit returns the quota configured for kind.
func (q Quotas) Limit(kind QuotaKind) int64 {
	switch kind {
	case QuotaAIRequests:
		return q.AIRequests
	case QuotaTryOns:
		return q.TryOns
	case QuotaColorTypes:
		return q.ColorTypes
	}
	return 0
}

// Profile carries a user's tenant binding and usage counters.
// Counters only grow; resets happen outside this service.
type Profile struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       *uuid.UUID `json:"tenant_id,omitempty"`
	DisplayName    string     `json:"display_name,omitempty"`
	AIRequestsUsed int64      `json:"ai_requests_used"`
	TryOnsUsed     int64      `json:"tryons_used"`
	ColorTypesUsed int64      `json:"colortypes_used"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Used returns the counter value for kind.
func (p *Profile) Used(kind QuotaKind) int64 {
	switch kind {
	case QuotaAIRequests:
		return p.AIRequestsUsed
	case QuotaTryOns:
		return p.TryOnsUsed
	case QuotaColorTypes:
		return p.ColorTypesUsed
	}
	return 0
}

// AnalyticsEvent is a row in analytics_events.
type AnalyticsEvent struct {
	ID        string         `json:"id"` // ULID
	TenantID  *uuid.UUID     `json:"tenant_id,omitempty"`
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
