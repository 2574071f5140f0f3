// Package tenant resolves and loads white-label tenant configurations.
package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

// CacheTTL is how long a loaded tenant stays cached.
const CacheTTL = 5 * time.Minute

// Lookup reads tenant records.
type Lookup interface {
	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	GetTenantByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// Cache is a JSON cache such as store.RedisStore.
type Cache interface {
	CacheGet(ctx context.Context, key string, dest any) (bool, error)
	CacheSet(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Builtin is the tenant used when no record overrides it.
func Builtin(slug string) models.Tenant {
	return models.Tenant{
		Slug:        slug,
		Name:        "Dobro",
		AIName:      "Lisa",
		WelcomeText: "Hi! I'm Lisa, your personal assistant. Ask me anything or upload a photo for style advice.",
		Theme: map[string]string{
			"primary":    "#7c3aed",
			"background": "#ffffff",
			"foreground": "#111827",
		},
		EnabledServices: []string{"chat", "stylist", "colortype", "tryon"},
		IsActive:        true,
	}
}

// Service loads tenants, overlaying database records onto the built-in default.
type Service struct {
	store       Lookup
	cache       Cache
	defaultSlug string
	logger      zerolog.Logger
}

// NewService creates a tenant service. cache may be nil.
func NewService(store Lookup, cache Cache, defaultSlug string, logger zerolog.Logger) *Service {
	return &Service{store: store, cache: cache, defaultSlug: defaultSlug, logger: logger}
}

func cacheKey(slug string) string {
	return "tenant:" + slug
}

// Load returns the tenant for slug. A missing or inactive record yields the
// default tenant. Unknown slugs resolve through the default slug and are
// never cached under their own key.
func (s *Service) Load(ctx context.Context, slug string) (*models.Tenant, error) {
	if s.cache != nil {
		var cached models.Tenant
		ok, err := s.cache.CacheGet(ctx, cacheKey(slug), &cached)
		if err != nil {
			s.logger.Warn().Err(err).Str("slug", slug).Msg("tenant cache read failed")
		} else if ok {
			return &cached, nil
		}
	}

	rec, err := s.store.GetTenantBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", slug, err)
	}
	active := rec != nil && rec.IsActive
	if !active && slug != s.defaultSlug {
		return s.Load(ctx, s.defaultSlug)
	}

	t := Builtin(s.defaultSlug)
	if active {
		overlay(&t, rec)
	}
	if s.cache != nil {
		if err := s.cache.CacheSet(ctx, cacheKey(slug), t, CacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("slug", slug).Msg("tenant cache write failed")
		}
	}
	return &t, nil
}

// LoadByID returns the tenant a profile is bound to. A dangling or inactive
// binding yields the default tenant.
func (s *Service) LoadByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	rec, err := s.store.GetTenantByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", id, err)
	}
	if rec == nil {
		return s.Load(ctx, s.defaultSlug)
	}
	return s.Load(ctx, rec.Slug)
}

// overlay copies the set fields of rec onto base.
func overlay(base *models.Tenant, rec *models.Tenant) {
	base.ID = rec.ID
	base.Slug = rec.Slug
	base.IsActive = rec.IsActive
	if rec.Name != "" {
		base.Name = rec.Name
	}
	if rec.LogoURL != "" {
		base.LogoURL = rec.LogoURL
	}
	if rec.AIName != "" {
		base.AIName = rec.AIName
	}
	if rec.WelcomeText != "" {
		base.WelcomeText = rec.WelcomeText
	}
	if len(rec.Theme) > 0 {
		merged := make(map[string]string, len(base.Theme)+len(rec.Theme))
		for k, v := range base.Theme {
			merged[k] = v
		}
		for k, v := range rec.Theme {
			merged[k] = v
		}
		base.Theme = merged
	}
	if len(rec.EnabledServices) > 0 {
		base.EnabledServices = rec.EnabledServices
	}
	base.Quotas = rec.Quotas
}
