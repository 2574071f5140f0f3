package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ChannovDenis/dobro20-sub000/internal/models"
	"github.com/ChannovDenis/dobro20-sub000/internal/tenant"
)

// TenantResponse is a tenant's public configuration plus rendered theme CSS.
type TenantResponse struct {
	*models.Tenant
	CSS string `json:"css"`
}

// GetTenant resolves the tenant from ?tenant= and the request host.
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, tenantResponse(h.requestTenant(r)))
}

// GetTenantBySlug loads a tenant explicitly, as after a tenant switch.
func (h *Handler) GetTenantBySlug(w http.ResponseWriter, r *http.Request) {
	slug, ok := tenant.NormalizeSlug(chi.URLParam(r, "slug"))
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid tenant slug")
		return
	}

	if h.tenants == nil {
		t := tenant.Builtin(slug)
		h.JSON(w, http.StatusOK, tenantResponse(&t))
		return
	}
	t, err := h.tenants.Load(r.Context(), slug)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant", slug).Msg("tenant lookup failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, tenantResponse(t))
}

func tenantResponse(t *models.Tenant) TenantResponse {
	return TenantResponse{Tenant: t, CSS: tenant.ThemeCSS(t.Theme)}
}
