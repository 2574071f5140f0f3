package handlers

import (
	"net/http"
	"strings"

	"github.com/ChannovDenis/dobro20-sub000/internal/gateway"
	"github.com/ChannovDenis/dobro20-sub000/internal/metrics"
)

type tryOnRequest struct {
	UserPhotoURL        string `json:"userPhotoUrl"`
	ClothingDescription string `json:"clothingDescription"`
	Style               string `json:"style"`
}

// TryOnResponse is the result of a virtual try-on. ImageURL is null when the
// model produced no image.
type TryOnResponse struct {
	Success     bool    `json:"success"`
	ImageURL    *string `json:"imageUrl"`
	Description string  `json:"description"`
	Message     string  `json:"message,omitempty"`
}

const tryOnNoImageMessage = "The image could not be generated this time. Try another photo or describe the outfit differently."

// VirtualTryOn asks the image model to dress the user's photo.
func (h *Handler) VirtualTryOn(w http.ResponseWriter, r *http.Request) {
	var req tryOnRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateImageURL(req.UserPhotoURL, h.imageHosts); err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	clothing := sanitizeText(req.ClothingDescription, maxClothingDescriptionLen)
	style := sanitizeText(req.Style, maxStyleLength)

	t := h.admit(w, r, kindTryOn)
	if t == nil {
		return
	}
	metrics.AIRequests.WithLabelValues(kindTryOn.endpoint).Inc()

	completion, err := h.gateway.Complete(r.Context(), gateway.ChatRequest{
		Model:      h.gateway.ImageModel(),
		Modalities: []string{"image", "text"},
		Messages: []gateway.Message{
			{Role: "user", Content: []gateway.ContentPart{
				gateway.TextPart(tryOnPrompt(clothing, style)),
				gateway.ImagePart(req.UserPhotoURL),
			}},
		},
	})
	if err != nil {
		h.writeUpstreamError(w, r, kindTryOn, err)
		return
	}
	h.recordUsage(r.Context(), t, kindTryOn, map[string]any{
		"has_description": clothing != "",
		"style":           style,
	})

	description := strings.TrimSpace(completion.Text)
	if len(completion.Images) == 0 {
		h.logger.Warn().Msg("try-on completion returned no image")
		h.JSON(w, http.StatusOK, TryOnResponse{
			Success:     false,
			Description: description,
			Message:     tryOnNoImageMessage,
		})
		return
	}

	img := completion.Images[0]
	h.JSON(w, http.StatusOK, TryOnResponse{
		Success:     true,
		ImageURL:    &img,
		Description: description,
	})
}
