package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the roles accepted on the wire.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Button is a contextual follow-up action offered under an assistant reply.
type Button struct {
	Action string `json:"action"`
	Label  string `json:"label"`
	Icon   string `json:"icon,omitempty" yaml:"icon,omitempty"`
}

// Message is a chat message as held by the conversation in memory.
type Message struct {
	ID              string            `json:"id"`
	Role            Role              `json:"role"`
	Content         string            `json:"content"`
	ImageURL        string            `json:"imageUrl,omitempty"`
	ResultImageURL  string            `json:"resultImageUrl,omitempty"`
	BeforeImageURL  string            `json:"beforeImageUrl,omitempty"`
	Buttons         []Button          `json:"buttons,omitempty"`
	ColorPalette    *ColorPaletteData `json:"colorPalette,omitempty"`
	TrendGallery    []TrendItem       `json:"trendGallery,omitempty"`
	ClothingOptions []ClothingItem    `json:"clothingOptions,omitempty"`
	Escalation      *EscalationData   `json:"escalation,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// MessageMetadata is the persisted JSON form of a message's optional fields.
type MessageMetadata struct {
	ImageURL        string            `json:"imageUrl,omitempty"`
	ResultImageURL  string            `json:"resultImageUrl,omitempty"`
	BeforeImageURL  string            `json:"beforeImageUrl,omitempty"`
	Buttons         []Button          `json:"buttons,omitempty"`
	ColorPalette    *ColorPaletteData `json:"colorPalette,omitempty"`
	TrendGallery    []TrendItem       `json:"trendGallery,omitempty"`
	ClothingOptions []ClothingItem    `json:"clothingOptions,omitempty"`
	Escalation      *EscalationData   `json:"escalation,omitempty"`
}

// TopicMessage mirrors a topic_messages row.
type TopicMessage struct {
	ID         string          `json:"id"` // ULID
	TopicID    uuid.UUID       `json:"topic_id"`
	Role       Role            `json:"role"`
	Content    string          `json:"content"`
	Metadata   MessageMetadata `json:"metadata"`
	TokensUsed int             `json:"tokens_used"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Row converts an in-memory message into its persisted form.
func (m Message) Row(topicID uuid.UUID) TopicMessage {
	return TopicMessage{
		ID:      m.ID,
		TopicID: topicID,
		Role:    m.Role,
		Content: m.Content,
		Metadata: MessageMetadata{
			ImageURL:        m.ImageURL,
			ResultImageURL:  m.ResultImageURL,
			BeforeImageURL:  m.BeforeImageURL,
			Buttons:         m.Buttons,
			ColorPalette:    m.ColorPalette,
			TrendGallery:    m.TrendGallery,
			ClothingOptions: m.ClothingOptions,
			Escalation:      m.Escalation,
		},
		CreatedAt: m.CreatedAt,
	}
}

// MessageFromRow rebuilds an in-memory message from a persisted row.
func MessageFromRow(row TopicMessage) Message {
	md := row.Metadata
	return Message{
		ID:              row.ID,
		Role:            row.Role,
		Content:         row.Content,
		ImageURL:        md.ImageURL,
		ResultImageURL:  md.ResultImageURL,
		BeforeImageURL:  md.BeforeImageURL,
		Buttons:         md.Buttons,
		ColorPalette:    md.ColorPalette,
		TrendGallery:    md.TrendGallery,
		ClothingOptions: md.ClothingOptions,
		Escalation:      md.Escalation,
		CreatedAt:       row.CreatedAt,
	}
}

// MarshalMetadata encodes metadata for a jsonb/TEXT column.
func MarshalMetadata(md MessageMetadata) ([]byte, error) {
	return json.Marshal(md)
}

// UnmarshalMetadata decodes a metadata column. Empty input yields zero metadata.
func UnmarshalMetadata(data []byte) (MessageMetadata, error) {
	var md MessageMetadata
	if len(data) == 0 {
		return md, nil
	}
	err := json.Unmarshal(data, &md)
	return md, err
}
