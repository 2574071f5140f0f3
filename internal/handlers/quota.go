package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ChannovDenis/dobro20-sub000/internal/auth"
	"github.com/ChannovDenis/dobro20-sub000/internal/gateway"
	"github.com/ChannovDenis/dobro20-sub000/internal/metrics"
	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

// relayKind ties an endpoint to its tenant service, quota counter and
// analytics event.
type relayKind struct {
	endpoint string
	service  string
	quota    models.QuotaKind
	event    string
}

var (
	kindChat      = relayKind{"chat", "chat", models.QuotaAIRequests, "chat_request"}
	kindStylist   = relayKind{"lisa-stylist", "stylist", models.QuotaAIRequests, "stylist_request"}
	kindColorType = relayKind{"colortype-analyzer", "colortype", models.QuotaColorTypes, "colortype_analysis"}
	kindTryOn     = relayKind{"virtual-tryon", "tryon", models.QuotaTryOns, "virtual_tryon"}
)

// admit resolves the tenant and enforces service enablement and quotas.
// A signed-in user bound to a tenant is always metered against that tenant,
// whatever the request names. It writes the error response itself and
// returns nil when the call is refused.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, kind relayKind) *models.Tenant {
	t := h.requestTenant(r)

	id := auth.FromContext(r.Context())
	var profile *models.Profile
	if id != nil && id.User != nil {
		var err error
		profile, err = h.db.GetProfile(r.Context(), id.User.ID)
		if err != nil {
			h.logger.Error().Err(err).Str("user_id", id.User.ID.String()).Msg("profile lookup failed")
			h.Error(w, http.StatusInternalServerError, "database error")
			return nil
		}
		if profile != nil && profile.TenantID != nil && h.tenants != nil {
			bound, err := h.tenants.LoadByID(r.Context(), *profile.TenantID)
			if err != nil {
				h.logger.Error().Err(err).Str("user_id", id.User.ID.String()).Msg("bound tenant lookup failed")
				h.Error(w, http.StatusInternalServerError, "database error")
				return nil
			}
			t = bound
		}
	}

	if !t.ServiceEnabled(kind.service) {
		h.Error(w, http.StatusForbidden, "service not enabled for this tenant")
		return nil
	}
	if profile == nil {
		return t
	}
	limit := t.Quotas.Limit(kind.quota)
	if limit > 0 && profile.Used(kind.quota) >= limit {
		metrics.QuotaRejections.WithLabelValues(string(kind.quota)).Inc()
		h.logger.Info().
			Str("user_id", id.User.ID.String()).
			Str("quota", string(kind.quota)).
			Int64("limit", limit).
			Msg("quota exceeded")
		h.Error(w, http.StatusPaymentRequired, "quota exceeded")
		return nil
	}
	return t
}

// recordUsage bumps the caller's counter and writes an analytics event once
// the gateway has accepted a call. The first metered call against a real
// tenant binds the profile to it. Failures are logged only.
func (h *Handler) recordUsage(ctx context.Context, t *models.Tenant, kind relayKind, payload map[string]any) {
	ctx = context.WithoutCancel(ctx)
	id := auth.FromContext(ctx)

	event := &models.AnalyticsEvent{EventType: kind.event, Payload: payload}
	if t.ID != uuid.Nil {
		tid := t.ID
		event.TenantID = &tid
	}
	if id != nil {
		event.SessionID = id.SessionID
		if id.User != nil {
			uid := id.User.ID
			event.UserID = &uid
			if t.ID != uuid.Nil {
				if err := h.db.BindProfileTenant(ctx, uid, t.ID); err != nil {
					metrics.PersistenceFailures.WithLabelValues("bind_profile_tenant").Inc()
					h.logger.Error().Err(err).Str("user_id", uid.String()).Msg("profile tenant binding failed")
				}
			}
			if err := h.db.IncrementUsage(ctx, uid, kind.quota); err != nil {
				metrics.PersistenceFailures.WithLabelValues("increment_usage").Inc()
				h.logger.Error().Err(err).Str("user_id", uid.String()).Msg("usage increment failed")
			}
		}
	}
	if err := h.db.RecordEvent(ctx, event); err != nil {
		metrics.PersistenceFailures.WithLabelValues("record_event").Inc()
		h.logger.Error().Err(err).Str("event", kind.event).Msg("analytics write failed")
	}
}

// writeUpstreamError maps gateway failures to client responses. Upstream
// detail stays in the server log.
func (h *Handler) writeUpstreamError(w http.ResponseWriter, r *http.Request, kind relayKind, err error) {
	var statusErr *gateway.StatusError
	switch {
	case errors.Is(err, gateway.ErrRateLimited):
		h.Error(w, http.StatusTooManyRequests, "AI service is overloaded, please retry later")
	case errors.Is(err, gateway.ErrPaymentRequired):
		h.Error(w, http.StatusPaymentRequired, "payment required")
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		h.logger.Debug().Str("endpoint", kind.endpoint).Msg("client went away before upstream responded")
	case errors.As(err, &statusErr):
		h.logger.Error().
			Str("endpoint", kind.endpoint).
			Int("upstream_status", statusErr.Status).
			Str("upstream_body", statusErr.Body).
			Msg("AI gateway error")
		h.Error(w, http.StatusInternalServerError, "AI service error")
	default:
		h.logger.Error().Err(err).Str("endpoint", kind.endpoint).Msg("AI gateway request failed")
		h.Error(w, http.StatusInternalServerError, "AI service error")
	}
}
