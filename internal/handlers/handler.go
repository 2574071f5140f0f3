package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ChannovDenis/dobro20-sub000/internal/gateway"
	"github.com/ChannovDenis/dobro20-sub000/internal/models"
	"github.com/ChannovDenis/dobro20-sub000/internal/store"
	"github.com/ChannovDenis/dobro20-sub000/internal/tenant"
	"github.com/ChannovDenis/dobro20-sub000/internal/topics"
)

// Gateway is the subset of gateway.Client the relay endpoints use.
type Gateway interface {
	Stream(ctx context.Context, req gateway.ChatRequest) (io.ReadCloser, error)
	Complete(ctx context.Context, req gateway.ChatRequest) (*gateway.Completion, error)
	ChatModel() string
	ImageModel() string
}

// Deps are the collaborators handed to NewHandler. Redis may be nil.
type Deps struct {
	DB         store.DataStore
	Redis      *store.RedisStore
	Gateway    Gateway
	Topics     *topics.Manager
	Tenants    *tenant.Service
	Resolver   tenant.Resolver
	ImageHosts []string
	Logger     zerolog.Logger
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db         store.DataStore
	redis      *store.RedisStore
	gateway    Gateway
	topics     *topics.Manager
	tenants    *tenant.Service
	resolver   tenant.Resolver
	imageHosts []string
	logger     zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		db:         d.DB,
		redis:      d.Redis,
		gateway:    d.Gateway,
		topics:     d.Topics,
		tenants:    d.Tenants,
		resolver:   d.Resolver,
		imageHosts: d.ImageHosts,
		logger:     d.Logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into dst, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// requestTenant resolves the tenant for a request from ?tenant= and the host.
// Lookup failures fall back to the built-in tenant.
func (h *Handler) requestTenant(r *http.Request) *models.Tenant {
	slug := h.resolver.Resolve(tenant.Source{
		Param: r.URL.Query().Get("tenant"),
		Host:  r.Host,
	})
	if h.tenants == nil {
		t := tenant.Builtin(slug)
		return &t
	}
	t, err := h.tenants.Load(r.Context(), slug)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant", slug).Msg("tenant lookup failed")
		b := tenant.Builtin(h.resolver.Default)
		return &b
	}
	return t
}
