package chat

import (
	"context"
	"io"
	"strings"

	"github.com/ChannovDenis/dobro20-sub000/internal/models"
	"github.com/ChannovDenis/dobro20-sub000/internal/sse"
)

// SendMessage appends a user message and streams the assistant reply into
// the list. The user message carries the pending photo, if any. Backend
// failures end up as a visible assistant message, not as the returned error.
//
// The user message save and the start of the stream are not ordered against
// each other.
func (c *Conversation) SendMessage(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	opCtx, done, gen, err := c.beginLocked(ctx)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	defer done()

	if c.catalog.IsStyleTrigger(content) {
		c.styleMode = true
	}
	user := newMessage(models.RoleUser, content)
	if c.photo != nil {
		user.ImageURL = c.photo.URL
	}
	c.appendLocked(gen, user, true)

	history := make([]HistoryMessage, 0, len(c.messages))
	for _, m := range c.messages {
		history = append(history, HistoryMessage{Role: string(m.Role), Content: m.Content})
	}
	styleMode := c.styleMode
	c.mu.Unlock()

	var body io.ReadCloser
	if styleMode {
		body, err = c.backend.Stylist(opCtx, history, true)
	} else {
		body, err = c.backend.Chat(opCtx, history)
	}
	if err != nil {
		c.mu.Lock()
		c.failLocked(gen, opCtx, err)
		c.mu.Unlock()
		return nil
	}
	defer body.Close()

	var replyID string
	readErr := sse.Read(opCtx, body, func(delta string) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation != gen {
			return
		}
		if replyID == "" {
			reply := newMessage(models.RoleAssistant, delta)
			replyID = reply.ID
			c.appendLocked(gen, reply, false)
			return
		}
		if i := c.indexLocked(replyID); i >= 0 {
			c.messages[i].Content += delta
			c.notifyLocked()
		}
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return nil
	}
	if readErr != nil {
		c.failLocked(gen, opCtx, readErr)
		return nil
	}

	if replyID == "" {
		reply := newMessage(models.RoleAssistant, "")
		replyID = reply.ID
		c.appendLocked(gen, reply, false)
	}
	i := c.indexLocked(replyID)
	if i < 0 {
		return nil
	}
	reply := &c.messages[i]
	reply.Buttons = c.catalog.Buttons(c.stateLocked())
	if c.topic.ServiceType != "" && len(c.messages) >= EscalationThreshold {
		reply.Escalation = &models.EscalationData{ServiceID: c.topic.ServiceType}
	}
	c.saveLocked(*reply)

	// The sent message still shows the photo, so it is dropped without Release.
	c.photo = nil
	c.notifyLocked()
	return nil
}
