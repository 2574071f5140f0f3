package chat

import (
	"context"
	"strings"

	"github.com/ChannovDenis/dobro20-sub000/internal/catalog"
	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

// HandleAction runs a follow-up action picked from a reply's buttons.
// Unknown actions are logged and ignored.
func (c *Conversation) HandleAction(ctx context.Context, action string) error {
	switch action {
	case catalog.ActionTryOn:
		return c.TryOn(ctx, TryOnRequest{})
	case catalog.ActionColorType:
		return c.analyzeColorType(ctx)
	case catalog.ActionTrends, catalog.ActionMoreTrends:
		return c.showTrends(ctx, action)
	case catalog.ActionStyle:
		return c.askStyle(ctx)
	case catalog.ActionTryAnother:
		return c.cannedReply(ctx, catalog.ReplyTryAnother, c.catalog.Clothing())
	case catalog.ActionWhereToBuy:
		return c.cannedReply(ctx, catalog.ReplyWhereToBuy, nil)
	default:
		c.logger.Warn().Str("action", action).Msg("unknown action")
		return nil
	}
}

// TryOn renders the pending photo wearing the described clothing. Without a
// photo it only asks for one.
func (c *Conversation) TryOn(ctx context.Context, req TryOnRequest) error {
	c.mu.Lock()
	opCtx, done, gen, err := c.beginLocked(ctx)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	defer done()

	if c.photo == nil {
		c.appendLocked(gen, newMessage(models.RoleAssistant, c.catalog.Reply(catalog.ReplyPhotoForTryOn)), true)
		c.mu.Unlock()
		return nil
	}
	photoURL := c.photo.URL
	c.lastAction = catalog.ActionTryOn
	c.mu.Unlock()

	req.UserPhotoURL = photoURL
	res, err := c.backend.VirtualTryOn(opCtx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failLocked(gen, opCtx, err)
		return nil
	}

	msg := newMessage(models.RoleAssistant, "")
	if res.ImageURL != nil && *res.ImageURL != "" {
		msg.Content = joinText(c.catalog.Reply(catalog.ReplyTryOnDone), res.Description)
		msg.ResultImageURL = *res.ImageURL
		msg.BeforeImageURL = photoURL
	} else {
		msg.Content = joinText(firstNonEmpty(res.Message, c.catalog.Reply(catalog.ReplyTryOnNoImage)), res.Description)
	}
	msg.Buttons = c.catalog.Buttons(c.stateLocked())
	c.appendLocked(gen, msg, true)
	return nil
}

func (c *Conversation) analyzeColorType(ctx context.Context) error {
	c.mu.Lock()
	opCtx, done, gen, err := c.beginLocked(ctx)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	defer done()

	if c.photo == nil {
		c.appendLocked(gen, newMessage(models.RoleAssistant, c.catalog.Reply(catalog.ReplyPhotoForColorType)), true)
		c.mu.Unlock()
		return nil
	}
	photoURL := c.photo.URL
	c.lastAction = catalog.ActionColorType
	c.mu.Unlock()

	palette, err := c.backend.AnalyzeColorType(opCtx, photoURL)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failLocked(gen, opCtx, err)
		return nil
	}

	msg := newMessage(models.RoleAssistant, joinText(c.catalog.Reply(catalog.ReplyColorTypeDone), palette.Description))
	msg.ColorPalette = palette
	msg.Buttons = c.catalog.Buttons(c.stateLocked())
	c.appendLocked(gen, msg, true)
	return nil
}

// showTrends shows the next unseen window of the trend catalog.
func (c *Conversation) showTrends(ctx context.Context, action string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, done, gen, err := c.beginLocked(ctx)
	if err != nil {
		return err
	}
	defer done()

	key := catalog.ReplyTrendsIntro
	if action == catalog.ActionMoreTrends {
		key = catalog.ReplyTrendsMore
	}
	msg := newMessage(models.RoleAssistant, c.catalog.Reply(key))
	msg.TrendGallery = c.rotation.Next(catalog.TrendWindow)
	msg.Buttons = []models.Button{catalog.MoreTrendsButton}
	c.lastAction = catalog.ActionTrends
	c.appendLocked(gen, msg, true)
	return nil
}

func (c *Conversation) askStyle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, done, gen, err := c.beginLocked(ctx)
	if err != nil {
		return err
	}
	defer done()

	c.styleMode = true
	c.lastAction = catalog.ActionStyle
	msg := newMessage(models.RoleAssistant, c.catalog.Reply(catalog.ReplyStylePrompt))
	msg.ClothingOptions = c.catalog.Clothing()
	c.appendLocked(gen, msg, true)
	return nil
}

func (c *Conversation) cannedReply(ctx context.Context, key string, options []models.ClothingItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, done, gen, err := c.beginLocked(ctx)
	if err != nil {
		return err
	}
	defer done()

	msg := newMessage(models.RoleAssistant, c.catalog.Reply(key))
	msg.ClothingOptions = options
	c.appendLocked(gen, msg, true)
	return nil
}

func joinText(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
