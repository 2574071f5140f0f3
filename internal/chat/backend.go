package chat

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

// HistoryMessage is one entry of the history sent with a streamed request.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TryOnRequest is the body of a virtual try-on call.
type TryOnRequest struct {
	UserPhotoURL        string `json:"userPhotoUrl"`
	ClothingDescription string `json:"clothingDescription,omitempty"`
	Style               string `json:"style,omitempty"`
}

// TryOnResult is a virtual try-on response. ImageURL is nil when no image was
// produced.
type TryOnResult struct {
	Success     bool    `json:"success"`
	ImageURL    *string `json:"imageUrl"`
	Description string  `json:"description"`
	Message     string  `json:"message,omitempty"`
}

// Backend calls the relay endpoints. Stream bodies are raw SSE and must be
// closed by the caller. Errors carrying an HTTP status should implement
// StatusCode() int.
type Backend interface {
	Chat(ctx context.Context, history []HistoryMessage) (io.ReadCloser, error)
	Stylist(ctx context.Context, history []HistoryMessage, styleMode bool) (io.ReadCloser, error)
	AnalyzeColorType(ctx context.Context, imageURL string) (*models.ColorPaletteData, error)
	VirtualTryOn(ctx context.Context, req TryOnRequest) (*TryOnResult, error)
}

// Store persists topic messages.
type Store interface {
	ListMessages(ctx context.Context, topicID uuid.UUID) ([]models.Message, error)
	SaveMessage(ctx context.Context, topicID uuid.UUID, msg models.Message) error
}

// Visible error texts. Each is shown after the warning glyph.
const (
	errorPrefix         = "⚠️ "
	textAuthRequired    = "Authorization required"
	textRateLimited     = "Too many requests, please retry later"
	textPaymentRequired = "Payment required"
	textServerError     = "Server error, please try again"
)

type statusCoder interface {
	StatusCode() int
}

// errorText maps a backend failure to the message shown in the conversation.
func errorText(err error) string {
	var sc statusCoder
	if errors.As(err, &sc) {
		switch sc.StatusCode() {
		case http.StatusUnauthorized:
			return errorPrefix + textAuthRequired
		case http.StatusTooManyRequests:
			return errorPrefix + textRateLimited
		case http.StatusPaymentRequired:
			return errorPrefix + textPaymentRequired
		}
	}
	return errorPrefix + textServerError
}
