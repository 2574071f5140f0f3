package handlers

import (
	"io"
	"net/http"

	"github.com/ChannovDenis/dobro20-sub000/internal/gateway"
	"github.com/ChannovDenis/dobro20-sub000/internal/metrics"
	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

type chatRequest struct {
	Messages []wireMessage `json:"messages"`
}

type stylistRequest struct {
	Messages    []wireMessage `json:"messages"`
	IsStyleMode bool          `json:"isStyleMode"`
}

// Chat relays a general assistant conversation as an SSE stream.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateMessages(req.Messages); err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	t := h.admit(w, r, kindChat)
	if t == nil {
		return
	}
	h.relayStream(w, r, kindChat, t, chatSystemPrompt(t), req.Messages, nil)
}

// LisaStylist relays a stylist conversation as an SSE stream.
func (h *Handler) LisaStylist(w http.ResponseWriter, r *http.Request) {
	var req stylistRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateMessages(req.Messages); err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	t := h.admit(w, r, kindStylist)
	if t == nil {
		return
	}
	h.relayStream(w, r, kindStylist, t, stylistSystemPrompt(t, req.IsStyleMode), req.Messages,
		map[string]any{"style_mode": req.IsStyleMode})
}

// relayStream opens an upstream stream and copies it to the client as it
// arrives. A client disconnect cancels the upstream request.
func (h *Handler) relayStream(w http.ResponseWriter, r *http.Request, kind relayKind, t *models.Tenant, system string, msgs []wireMessage, payload map[string]any) {
	metrics.AIRequests.WithLabelValues(kind.endpoint).Inc()

	upstream := make([]gateway.Message, 0, len(msgs)+1)
	upstream = append(upstream, gateway.Message{Role: string(models.RoleSystem), Content: system})
	for _, m := range msgs {
		upstream = append(upstream, gateway.Message{Role: m.Role, Content: m.Content})
	}

	body, err := h.gateway.Stream(r.Context(), gateway.ChatRequest{
		Model:    h.gateway.ChatModel(),
		Messages: upstream,
	})
	if err != nil {
		h.writeUpstreamError(w, r, kind, err)
		return
	}
	defer body.Close()

	if payload == nil {
		payload = map[string]any{}
	}
	payload["messages"] = len(msgs)
	h.recordUsage(r.Context(), t, kind, payload)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				h.logger.Debug().Err(err).Str("endpoint", kind.endpoint).Msg("client write failed")
				return
			}
			if err := rc.Flush(); err != nil {
				h.logger.Debug().Err(err).Msg("flush not supported")
			}
		}
		if readErr == io.EOF {
			return
		}
		if readErr != nil {
			if r.Context().Err() == nil {
				h.logger.Error().Err(readErr).Str("endpoint", kind.endpoint).Msg("upstream stream interrupted")
			}
			return
		}
	}
}
