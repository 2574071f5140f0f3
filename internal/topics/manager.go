// Package topics manages conversation threads and their messages.
package topics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ChannovDenis/dobro20-sub000/internal/metrics"
	"github.com/ChannovDenis/dobro20-sub000/internal/models"
	"github.com/ChannovDenis/dobro20-sub000/internal/notify"
	"github.com/ChannovDenis/dobro20-sub000/internal/store"
)

const (
	MaxTitleLength       = 200
	MaxServiceTypeLength = 64
	DefaultTitle         = "New conversation"
	autoTitleLength      = 50
)

var (
	// ErrNotFound covers both missing topics and topics owned by someone else.
	ErrNotFound       = store.ErrNotFound
	ErrInvalidTitle   = errors.New("title must be 1-200 characters")
	ErrInvalidStatus  = errors.New("unknown topic status")
	ErrInvalidService = errors.New("service type must be at most 64 characters")
	ErrInvalidMessage = errors.New("message role must be user or assistant")
	ErrNoOwner        = errors.New("caller has neither a user nor a session")
)

// Store is the persistence the manager needs.
type Store interface {
	CreateTopic(ctx context.Context, topic *models.Topic) error
	GetTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error)
	ListTopics(ctx context.Context, filter models.TopicFilter) ([]models.Topic, error)
	UpdateTopic(ctx context.Context, id uuid.UUID, upd models.TopicUpdate) (*models.Topic, error)
	DeleteTopic(ctx context.Context, id uuid.UUID) error
	AddTopicMessage(ctx context.Context, msg *models.TopicMessage) error
	ListTopicMessages(ctx context.Context, topicID uuid.UUID, limit int) ([]models.TopicMessage, error)
	CountTopicMessages(ctx context.Context, topicID uuid.UUID) (int64, error)
}

// CreateInput describes a new topic.
type CreateInput struct {
	Title        string
	FirstMessage string // used for the title when Title is blank
	ServiceType  string
	Context      json.RawMessage
	TenantID     *uuid.UUID
}

// Manager implements topic CRUD scoped to an owner.
type Manager struct {
	store    Store
	notifier notify.Notifier
	logger   zerolog.Logger
}

// NewManager creates a topic manager. notifier may be nil.
func NewManager(s Store, notifier notify.Notifier, logger zerolog.Logger) *Manager {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Manager{store: s, notifier: notifier, logger: logger}
}

func validOwner(o models.Owner) bool {
	return o.UserID != nil || o.SessionID != ""
}

func cleanTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > MaxTitleLength {
		return "", ErrInvalidTitle
	}
	return title, nil
}

// TitleFromMessage derives a topic title from the first user message: the
// first 50 characters cut back to a word boundary.
func TitleFromMessage(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if content == "" {
		return ""
	}
	runes := []rune(content)
	if len(runes) <= autoTitleLength {
		return content
	}
	cut := string(runes[:autoTitleLength])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:!?") + "…"
}

// Create stores a new topic for owner.
func (m *Manager) Create(ctx context.Context, owner models.Owner, in CreateInput) (*models.Topic, error) {
	if !validOwner(owner) {
		return nil, ErrNoOwner
	}

	raw := in.Title
	if strings.TrimSpace(raw) == "" {
		raw = TitleFromMessage(in.FirstMessage)
	}
	if strings.TrimSpace(raw) == "" {
		raw = DefaultTitle
	}
	title, err := cleanTitle(raw)
	if err != nil {
		return nil, err
	}

	serviceType := strings.TrimSpace(in.ServiceType)
	if len(serviceType) > MaxServiceTypeLength {
		return nil, ErrInvalidService
	}

	t := &models.Topic{
		UserID:      owner.UserID,
		SessionID:   owner.SessionID,
		TenantID:    in.TenantID,
		Title:       title,
		ServiceType: serviceType,
		Context:     in.Context,
		Status:      models.TopicActive,
	}
	if err := m.store.CreateTopic(ctx, t); err != nil {
		return nil, fmt.Errorf("create topic: %w", err)
	}
	metrics.TopicsCreated.Inc()
	return t, nil
}

// Get returns a topic owned by owner.
func (m *Manager) Get(ctx context.Context, owner models.Owner, id uuid.UUID) (*models.Topic, error) {
	t, err := m.store.GetTopic(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get topic: %w", err)
	}
	if !owner.Owns(t) {
		return nil, ErrNotFound
	}
	return t, nil
}

// List returns the owner's topics, most recently updated first.
func (m *Manager) List(ctx context.Context, owner models.Owner, status models.TopicStatus, limit, offset int) ([]models.Topic, error) {
	if !validOwner(owner) {
		return nil, ErrNoOwner
	}
	if status != "" && !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if offset < 0 {
		offset = 0
	}
	return m.store.ListTopics(ctx, models.TopicFilter{Owner: owner, Status: status, Limit: limit, Offset: offset})
}

// Update applies a partial update. Moving a topic to escalated notifies the
// expert channel.
func (m *Manager) Update(ctx context.Context, owner models.Owner, id uuid.UUID, upd models.TopicUpdate) (*models.Topic, error) {
	before, err := m.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if upd.Title != nil {
		title, err := cleanTitle(*upd.Title)
		if err != nil {
			return nil, err
		}
		upd.Title = &title
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	t, err := m.store.UpdateTopic(ctx, id, upd)
	if err != nil {
		return nil, fmt.Errorf("update topic: %w", err)
	}

	if t.Status == models.TopicEscalated && before.Status != models.TopicEscalated {
		metrics.Escalations.Inc()
		if err := m.notifier.Escalated(ctx, t); err != nil {
			m.logger.Error().Err(err).Str("topic_id", t.ID.String()).Msg("escalation notification failed")
		}
	}
	return t, nil
}

// Rename changes a topic's title.
func (m *Manager) Rename(ctx context.Context, owner models.Owner, id uuid.UUID, title string) (*models.Topic, error) {
	return m.Update(ctx, owner, id, models.TopicUpdate{Title: &title})
}

// Archive hides a topic from the active list.
func (m *Manager) Archive(ctx context.Context, owner models.Owner, id uuid.UUID) (*models.Topic, error) {
	return m.setStatus(ctx, owner, id, models.TopicArchived)
}

// Restore returns an archived topic to the active list.
func (m *Manager) Restore(ctx context.Context, owner models.Owner, id uuid.UUID) (*models.Topic, error) {
	return m.setStatus(ctx, owner, id, models.TopicActive)
}

// Escalate hands a topic over to a human expert.
func (m *Manager) Escalate(ctx context.Context, owner models.Owner, id uuid.UUID) (*models.Topic, error) {
	return m.setStatus(ctx, owner, id, models.TopicEscalated)
}

func (m *Manager) setStatus(ctx context.Context, owner models.Owner, id uuid.UUID, status models.TopicStatus) (*models.Topic, error) {
	return m.Update(ctx, owner, id, models.TopicUpdate{Status: &status})
}

// Delete removes a topic and its messages.
func (m *Manager) Delete(ctx context.Context, owner models.Owner, id uuid.UUID) error {
	if _, err := m.Get(ctx, owner, id); err != nil {
		return err
	}
	if err := m.store.DeleteTopic(ctx, id); err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	return nil
}

// AddMessage appends a message to an owned topic and touches it.
func (m *Manager) AddMessage(ctx context.Context, owner models.Owner, id uuid.UUID, msg *models.TopicMessage) error {
	if _, err := m.Get(ctx, owner, id); err != nil {
		return err
	}
	if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
		return ErrInvalidMessage
	}
	msg.TopicID = id
	if err := m.store.AddTopicMessage(ctx, msg); err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	metrics.TopicMessages.WithLabelValues(string(msg.Role)).Inc()
	return nil
}

// Messages returns an owned topic's messages, oldest first, and the topic's
// total message count, which exceeds len(msgs) when limit truncated them.
func (m *Manager) Messages(ctx context.Context, owner models.Owner, id uuid.UUID, limit int) ([]models.TopicMessage, int64, error) {
	if _, err := m.Get(ctx, owner, id); err != nil {
		return nil, 0, err
	}
	msgs, err := m.store.ListTopicMessages(ctx, id, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	total, err := m.store.CountTopicMessages(ctx, id)
	if err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	return msgs, total, nil
}
