package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ChannovDenis/dobro20-sub000/internal/auth"
	"github.com/ChannovDenis/dobro20-sub000/internal/models"
	"github.com/ChannovDenis/dobro20-sub000/internal/topics"
)

// CreateTopicRequest represents the topic creation request.
type CreateTopicRequest struct {
	Title        string          `json:"title"`
	FirstMessage string          `json:"first_message,omitempty"`
	ServiceType  string          `json:"service_type,omitempty"`
	Context      json.RawMessage `json:"context,omitempty"`
}

// UpdateTopicRequest represents a partial topic update.
type UpdateTopicRequest struct {
	Title   *string             `json:"title,omitempty"`
	Status  *models.TopicStatus `json:"status,omitempty"`
	Context json.RawMessage     `json:"context,omitempty"`
}

// TopicListResponse represents the list topics response.
type TopicListResponse struct {
	Topics []models.Topic `json:"topics"`
	Total  int            `json:"total"`
}

// TopicMessagesResponse represents a topic's message history.
type TopicMessagesResponse struct {
	Topic    *models.Topic    `json:"topic"`
	Messages []models.Message `json:"messages"`
	Total    int64            `json:"total"`
}

func owner(r *http.Request) models.Owner {
	id := auth.FromContext(r.Context())
	if id == nil {
		return models.Owner{}
	}
	return id.Owner()
}

// intParam reads a non-negative integer query parameter.
func intParam(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// topicID parses the {id} URL parameter, writing a 400 on failure.
func (h *Handler) topicID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid topic ID format")
		return uuid.Nil, false
	}
	return id, true
}

// topicError maps manager errors to responses.
func (h *Handler) topicError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, topics.ErrNotFound):
		h.Error(w, http.StatusNotFound, "topic not found")
	case errors.Is(err, topics.ErrInvalidTitle),
		errors.Is(err, topics.ErrInvalidStatus),
		errors.Is(err, topics.ErrInvalidService),
		errors.Is(err, topics.ErrInvalidMessage):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, topics.ErrNoOwner):
		h.Error(w, http.StatusUnauthorized, "authorization required")
	default:
		h.logger.Error().Err(err).Msg("topic operation failed")
		h.Error(w, http.StatusInternalServerError, "database error")
	}
}

// ListTopics returns the caller's topics, most recently updated first.
func (h *Handler) ListTopics(w http.ResponseWriter, r *http.Request) {
	status := models.TopicStatus(r.URL.Query().Get("status"))
	list, err := h.topics.List(r.Context(), owner(r), status, intParam(r, "limit"), intParam(r, "offset"))
	if err != nil {
		h.topicError(w, err)
		return
	}
	if list == nil {
		list = []models.Topic{}
	}
	h.JSON(w, http.StatusOK, TopicListResponse{Topics: list, Total: len(list)})
}

// CreateTopic starts a new conversation for the caller.
func (h *Handler) CreateTopic(w http.ResponseWriter, r *http.Request) {
	var req CreateTopicRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	in := topics.CreateInput{
		Title:        req.Title,
		FirstMessage: req.FirstMessage,
		ServiceType:  req.ServiceType,
		Context:      req.Context,
	}
	if t := h.requestTenant(r); t.ID != uuid.Nil {
		tid := t.ID
		in.TenantID = &tid
	}

	topic, err := h.topics.Create(r.Context(), owner(r), in)
	if err != nil {
		h.topicError(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, topic)
}

// GetTopic returns one of the caller's topics.
func (h *Handler) GetTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := h.topicID(w, r)
	if !ok {
		return
	}
	topic, err := h.topics.Get(r.Context(), owner(r), id)
	if err != nil {
		h.topicError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, topic)
}

// UpdateTopic renames a topic, changes its status or replaces its context.
func (h *Handler) UpdateTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := h.topicID(w, r)
	if !ok {
		return
	}
	var req UpdateTopicRequest
	if !h.decode(w, r, &req) {
		return
	}
	topic, err := h.topics.Update(r.Context(), owner(r), id, models.TopicUpdate{
		Title:   req.Title,
		Status:  req.Status,
		Context: req.Context,
	})
	if err != nil {
		h.topicError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, topic)
}

// DeleteTopic removes a topic and all of its messages.
func (h *Handler) DeleteTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := h.topicID(w, r)
	if !ok {
		return
	}
	if err := h.topics.Delete(r.Context(), owner(r), id); err != nil {
		h.topicError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTopicMessages returns a topic's messages, oldest first.
func (h *Handler) ListTopicMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.topicID(w, r)
	if !ok {
		return
	}
	o := owner(r)
	topic, err := h.topics.Get(r.Context(), o, id)
	if err != nil {
		h.topicError(w, err)
		return
	}
	rows, total, err := h.topics.Messages(r.Context(), o, id, intParam(r, "limit"))
	if err != nil {
		h.topicError(w, err)
		return
	}

	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, models.MessageFromRow(row))
	}
	h.JSON(w, http.StatusOK, TopicMessagesResponse{Topic: topic, Messages: msgs, Total: total})
}

// PostTopicMessage appends a message to a topic. Buttons, palettes and other
// attachments are stored as message metadata.
func (h *Handler) PostTopicMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.topicID(w, r)
	if !ok {
		return
	}
	var msg models.Message
	if !h.decode(w, r, &msg) {
		return
	}
	if len([]rune(msg.Content)) > maxMessageLength {
		h.Error(w, http.StatusBadRequest, "message content too long")
		return
	}

	row := msg.Row(id)
	if err := h.topics.AddMessage(r.Context(), owner(r), id, &row); err != nil {
		h.topicError(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, models.MessageFromRow(row))
}
