// Package chat drives a single active conversation: it streams assistant
// replies, attaches follow-up buttons and escalation offers, dispatches the
// photo and catalog actions, and mirrors every message to a Store.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/ChannovDenis/dobro20-sub000/internal/catalog"
	"github.com/ChannovDenis/dobro20-sub000/internal/metrics"
	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

// EscalationThreshold is the message count from which assistant replies in a
// topic with a service type carry an expert hand-off offer.
const EscalationThreshold = 5

var (
	ErrNoActiveTopic = errors.New("chat: no active topic")
	ErrEmptyMessage  = errors.New("chat: empty message")
	ErrClosed        = errors.New("chat: conversation closed")
)

// Photo is an uploaded image awaiting use. Release frees any local resource
// behind URL and may be nil.
type Photo struct {
	URL     string
	Release func()
}

func (p *Photo) release() {
	if p != nil && p.Release != nil {
		p.Release()
	}
}

// Conversation owns the message list of one active topic. All methods are
// safe for concurrent use; the list has a single writer, the Conversation.
//
// Persistence is write-behind: saves run in the background, failures are
// logged, and nothing waits for a save before the next local change. Flush
// waits for outstanding saves.
type Conversation struct {
	backend Backend
	store   Store
	catalog *catalog.Catalog
	logger  zerolog.Logger

	mu         sync.Mutex
	topic      *models.Topic
	messages   []models.Message
	photo      *Photo
	styleMode  bool
	lastAction string
	rotation   *catalog.Rotation
	observers  []func([]models.Message)
	closed     bool

	// generation increments on every topic switch; work started under an
	// older generation never touches the list again.
	generation uint64
	topicCtx   context.Context
	cancel     context.CancelFunc

	saves sync.WaitGroup
}

// New creates a conversation with no active topic. cat may be nil for the
// embedded catalog.
func New(backend Backend, store Store, cat *catalog.Catalog, logger zerolog.Logger) *Conversation {
	if cat == nil {
		cat = catalog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Conversation{
		backend:  backend,
		store:    store,
		catalog:  cat,
		logger:   logger.With().Str("component", "chat").Logger(),
		rotation: catalog.NewRotation(cat.Trends()),
		topicCtx: ctx,
		cancel:   cancel,
	}
}

// OnChange registers fn to receive a copy of the message list after every
// change. fn runs with the conversation locked and must not call back into it.
func (c *Conversation) OnChange(fn func([]models.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Messages returns a copy of the current message list.
func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Topic returns the active topic, or nil.
func (c *Conversation) Topic() *models.Topic {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.topic == nil {
		return nil
	}
	t := *c.topic
	return &t
}

// StyleMode reports whether the stylist persona is active.
func (c *Conversation) StyleMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.styleMode
}

// HasPhoto reports whether an uploaded photo is pending.
func (c *Conversation) HasPhoto() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.photo != nil
}

// SelectTopic makes topic active: in-flight work for the previous topic is
// cancelled, the list is cleared and the topic's history is loaded, oldest
// first. A nil topic only clears.
func (c *Conversation) SelectTopic(ctx context.Context, topic *models.Topic) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	gen := c.switchLocked(topic)
	c.notifyLocked()
	c.mu.Unlock()

	if topic == nil {
		return nil
	}

	history, err := c.store.ListMessages(ctx, topic.ID)
	if err != nil {
		c.logger.Error().Err(err).Str("topic_id", topic.ID.String()).Msg("load history failed")
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return nil
	}
	// Messages added while the history was loading stay after it. A save that
	// landed before the read already returned them in history.
	live := make(map[string]bool, len(c.messages))
	for _, m := range c.messages {
		live[m.ID] = true
	}
	merged := make([]models.Message, 0, len(history)+len(c.messages))
	for _, m := range history {
		if !live[m.ID] {
			merged = append(merged, m)
		}
	}
	c.messages = append(merged, c.messages...)
	c.notifyLocked()
	return nil
}

// switchLocked cancels the current generation and installs topic.
func (c *Conversation) switchLocked(topic *models.Topic) uint64 {
	c.cancel()
	c.topicCtx, c.cancel = context.WithCancel(context.Background())
	c.generation++
	c.messages = nil
	c.lastAction = ""
	if topic != nil {
		t := *topic
		c.topic = &t
	} else {
		c.topic = nil
	}
	return c.generation
}

// Close cancels in-flight work, releases the pending photo and waits for
// outstanding saves.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	c.generation++
	c.photo.release()
	c.photo = nil
	c.mu.Unlock()

	c.saves.Wait()
}

// Flush waits until every queued save has finished.
func (c *Conversation) Flush() {
	c.saves.Wait()
}

// HandleImageUpload stores photo as the pending upload, releasing any
// previous one, and turns style mode on.
func (c *Conversation) HandleImageUpload(photo Photo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.photo != nil {
		c.photo.release()
	}
	p := photo
	c.photo = &p
	c.styleMode = true
}

// ClearUploadedPhoto releases and forgets the pending photo.
func (c *Conversation) ClearUploadedPhoto() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.photo.release()
	c.photo = nil
}

// beginLocked checks for an active topic and returns a context cancelled by either
// ctx or the next topic switch.
func (c *Conversation) beginLocked(ctx context.Context) (context.Context, context.CancelFunc, uint64, error) {
	if c.closed {
		return nil, nil, 0, ErrClosed
	}
	if c.topic == nil {
		c.logger.Warn().Msg("ignoring request without an active topic")
		return nil, nil, 0, ErrNoActiveTopic
	}
	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.topicCtx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}, c.generation, nil
}

func newMessage(role models.Role, content string) models.Message {
	return models.Message{
		ID:        ulid.Make().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// appendLocked adds msg to the list if gen is still current and schedules a
// save. It reports whether the message was added.
func (c *Conversation) appendLocked(gen uint64, msg models.Message, persist bool) bool {
	if c.generation != gen || c.topic == nil {
		return false
	}
	c.messages = append(c.messages, msg)
	c.notifyLocked()
	if persist {
		c.saveLocked(msg)
	}
	return true
}

// saveLocked mirrors msg to the store in the background.
func (c *Conversation) saveLocked(msg models.Message) {
	topicID := c.topic.ID
	c.saves.Add(1)
	go func() {
		defer c.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := c.store.SaveMessage(ctx, topicID, msg); err != nil {
			metrics.PersistenceFailures.WithLabelValues("save_message").Inc()
			c.logger.Error().
				Err(err).
				Str("topic_id", topicID.String()).
				Str("message_id", msg.ID).
				Msg("save message failed")
		}
	}()
}

// failLocked appends the visible error message for err unless the work was
// cancelled.
func (c *Conversation) failLocked(gen uint64, opCtx context.Context, err error) {
	if opCtx.Err() != nil || errors.Is(err, context.Canceled) {
		c.logger.Debug().Err(err).Msg("request cancelled")
		return
	}
	c.logger.Error().Err(err).Msg("request failed")
	c.appendLocked(gen, newMessage(models.RoleAssistant, errorText(err)), false)
}

func (c *Conversation) indexLocked(id string) int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Conversation) snapshotLocked() []models.Message {
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) notifyLocked() {
	if len(c.observers) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, fn := range c.observers {
		fn(snap)
	}
}

func (c *Conversation) stateLocked() catalog.State {
	return catalog.State{
		HasPhoto:   c.photo != nil,
		LastAction: c.lastAction,
		StyleMode:  c.styleMode,
	}
}
