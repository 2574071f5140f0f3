package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

// ErrNotFound is returned by mutations that target a missing row.
// Getters return nil, nil instead.
var ErrNotFound = errors.New("not found")

// DataStore defines the interface for persistent storage of topics, messages,
// tenants and usage. Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Topic operations
	CreateTopic(ctx context.Context, topic *models.Topic) error
	GetTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error)
	ListTopics(ctx context.Context, filter models.TopicFilter) ([]models.Topic, error)
	UpdateTopic(ctx context.Context, id uuid.UUID, upd models.TopicUpdate) (*models.Topic, error)
	DeleteTopic(ctx context.Context, id uuid.UUID) error

	// Message operations
	AddTopicMessage(ctx context.Context, msg *models.TopicMessage) error
	ListTopicMessages(ctx context.Context, topicID uuid.UUID, limit int) ([]models.TopicMessage, error)
	CountTopicMessages(ctx context.Context, topicID uuid.UUID) (int64, error)

	// Tenant operations
	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	GetTenantByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	UpsertTenant(ctx context.Context, tenant *models.Tenant) error

	// Profile and role operations
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	IncrementUsage(ctx context.Context, userID uuid.UUID, kind models.QuotaKind) error
	BindProfileTenant(ctx context.Context, userID, tenantID uuid.UUID) error
	HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error)
	GrantRole(ctx context.Context, userID uuid.UUID, role string) error

	// Analytics
	RecordEvent(ctx context.Context, event *models.AnalyticsEvent) error

	// Stats
	CountTopicsByStatus(ctx context.Context) (map[models.TopicStatus]int64, error)
	CountMessages(ctx context.Context) (int64, error)
	CountEventsSince(ctx context.Context, since time.Time) (map[string]int64, error)
	GetMostRecentActivity(ctx context.Context) (*time.Time, error)
}

// usageColumn maps a quota kind to its profiles column.
func usageColumn(kind models.QuotaKind) (string, bool) {
	switch kind {
	case models.QuotaAIRequests:
		return "ai_requests_used", true
	case models.QuotaTryOns:
		return "tryons_used", true
	case models.QuotaColorTypes:
		return "colortypes_used", true
	}
	return "", false
}

// defaultTopicLimit caps listings when the caller passes no limit.
const defaultTopicLimit = 50

func topicLimit(n int) int {
	if n <= 0 || n > 200 {
		return defaultTopicLimit
	}
	return n
}

// prepareMessage assigns a ULID and timestamp to a message that lacks them.
func prepareMessage(msg *models.TopicMessage) {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
}

func prepareEvent(event *models.AnalyticsEvent) {
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
}

func encodeTenantJSON(t *models.Tenant) (theme, services, quotas []byte, err error) {
	if t.Theme == nil {
		theme = []byte("{}")
	} else if theme, err = json.Marshal(t.Theme); err != nil {
		return nil, nil, nil, fmt.Errorf("encode theme: %w", err)
	}
	if t.EnabledServices == nil {
		services = []byte("[]")
	} else if services, err = json.Marshal(t.EnabledServices); err != nil {
		return nil, nil, nil, fmt.Errorf("encode enabled services: %w", err)
	}
	if quotas, err = json.Marshal(t.Quotas); err != nil {
		return nil, nil, nil, fmt.Errorf("encode quotas: %w", err)
	}
	return theme, services, quotas, nil
}

func decodeTenantJSON(t *models.Tenant, theme, services, quotas []byte) error {
	if len(theme) > 0 {
		if err := json.Unmarshal(theme, &t.Theme); err != nil {
			return fmt.Errorf("decode theme for %s: %w", t.Slug, err)
		}
	}
	if len(services) > 0 {
		if err := json.Unmarshal(services, &t.EnabledServices); err != nil {
			return fmt.Errorf("decode enabled services for %s: %w", t.Slug, err)
		}
	}
	if len(quotas) > 0 {
		if err := json.Unmarshal(quotas, &t.Quotas); err != nil {
			return fmt.Errorf("decode quotas for %s: %w", t.Slug, err)
		}
	}
	return nil
}
