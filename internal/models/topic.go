package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TopicStatus is the lifecycle state of a conversation thread.
type TopicStatus string

const (
	TopicActive    TopicStatus = "active"
	TopicArchived  TopicStatus = "archived"
	TopicEscalated TopicStatus = "escalated"
)

// Valid reports whether s is a known status.
func (s TopicStatus) Valid() bool {
	switch s {
	case TopicActive, TopicArchived, TopicEscalated:
		return true
	}
	return false
}

// Topic is a single conversation thread.
type Topic struct {
	ID          uuid.UUID       `json:"id"`
	UserID      *uuid.UUID      `json:"user_id,omitempty"`
	SessionID   string          `json:"-"`
	TenantID    *uuid.UUID      `json:"tenant_id,omitempty"`
	Title       string          `json:"title"`
	ServiceType string          `json:"service_type,omitempty"`
	Context     json.RawMessage `json:"context,omitempty"`
	Status      TopicStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Owner identifies who may see a topic: a signed-in user, or an anonymous session.
type Owner struct {
	UserID    *uuid.UUID
	SessionID string
}

// Owns reports whether o may access t.
func (o Owner) Owns(t *Topic) bool {
	if t == nil {
		return false
	}
	if t.UserID != nil {
		return o.UserID != nil && *o.UserID == *t.UserID
	}
	return o.SessionID != "" && o.SessionID == t.SessionID
}

// TopicFilter narrows a topic listing.
type TopicFilter struct {
	Owner  Owner
	Status TopicStatus // empty means any
	Limit  int
	Offset int
}

// TopicUpdate holds the mutable fields of a topic; nil fields are left unchanged.
type TopicUpdate struct {
	Title   *string
	Status  *TopicStatus
	Context json.RawMessage
}
