package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/ChannovDenis/dobro20-sub000/internal/gateway"
	"github.com/ChannovDenis/dobro20-sub000/internal/metrics"
	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

// jsonObjectRegex spans from the first '{' to the last '}' of the reply.
var jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)

type colorTypeRequest struct {
	ImageURL string `json:"imageUrl"`
}

// ColorTypeAnalyzer asks the model for a seasonal color analysis of a photo
// and returns the palette object embedded in its reply.
func (h *Handler) ColorTypeAnalyzer(w http.ResponseWriter, r *http.Request) {
	var req colorTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateImageURL(req.ImageURL, h.imageHosts); err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	t := h.admit(w, r, kindColorType)
	if t == nil {
		return
	}
	metrics.AIRequests.WithLabelValues(kindColorType.endpoint).Inc()

	completion, err := h.gateway.Complete(r.Context(), gateway.ChatRequest{
		Model: h.gateway.ChatModel(),
		Messages: []gateway.Message{
			{Role: "system", Content: colorTypeSystemPrompt},
			{Role: "user", Content: []gateway.ContentPart{
				gateway.TextPart(colorTypeUserPrompt),
				gateway.ImagePart(req.ImageURL),
			}},
		},
	})
	if err != nil {
		h.writeUpstreamError(w, r, kindColorType, err)
		return
	}
	palette, ok := extractPalette(completion.Text)
	if !ok {
		h.logger.Error().Str("reply", completion.Text).Msg("color type reply had no JSON object")
		h.Error(w, http.StatusInternalServerError, "failed to parse analysis")
		return
	}
	h.recordUsage(r.Context(), t, kindColorType, map[string]any{"season": palette.Season})
	h.JSON(w, http.StatusOK, palette)
}

func extractPalette(text string) (*models.ColorPaletteData, bool) {
	raw := jsonObjectRegex.FindString(text)
	if raw == "" {
		return nil, false
	}
	var p models.ColorPaletteData
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, false
	}
	return &p, true
}
