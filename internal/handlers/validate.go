package handlers

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

const (
	maxMessages               = 50
	maxMessageLength          = 10000
	maxImageURLLength         = 2048
	maxClothingDescriptionLen = 500
	maxStyleLength            = 100
)

var dataImageRegex = regexp.MustCompile(`^data:image/(jpeg|jpg|png|gif|webp);base64,[A-Za-z0-9+/]+=*$`)

var (
	errNoMessages    = fmt.Errorf("messages must contain 1-%d entries", maxMessages)
	errImageRequired = errors.New("image URL is required")
	errImageTooLong  = fmt.Errorf("image URL exceeds %d characters", maxImageURLLength)
	errImageSource   = errors.New("image URL must be https on an allowed host or a base64 image data URI")
)

// wireMessage is a chat message as sent by clients to the relay endpoints.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func validateMessages(msgs []wireMessage) error {
	if len(msgs) == 0 || len(msgs) > maxMessages {
		return errNoMessages
	}
	for i, m := range msgs {
		if !models.Role(m.Role).Valid() {
			return fmt.Errorf("message %d has invalid role", i)
		}
		if utf8.RuneCountInString(m.Content) > maxMessageLength {
			return fmt.Errorf("message %d exceeds %d characters", i, maxMessageLength)
		}
	}
	return nil
}

// validateImageURL accepts https URLs on an allowed host (exact or subdomain)
// and base64 image data URIs.
func validateImageURL(raw string, hosts []string) error {
	if raw == "" {
		return errImageRequired
	}
	if len(raw) > maxImageURLLength {
		return errImageTooLong
	}
	if strings.HasPrefix(raw, "data:") {
		if dataImageRegex.MatchString(raw) {
			return nil
		}
		return errImageSource
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.User != nil {
		return errImageSource
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range hosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return errImageSource
}

// sanitizeText trims, drops angle brackets and control characters, and caps
// the result at max characters.
func sanitizeText(s string, max int) string {
	s = strings.Map(func(r rune) rune {
		if r == '<' || r == '>' || (unicode.IsControl(r) && r != '\n') {
			return -1
		}
		return r
	}, strings.TrimSpace(s))

	if utf8.RuneCountInString(s) > max {
		s = string([]rune(s)[:max])
	}
	return strings.TrimSpace(s)
}
