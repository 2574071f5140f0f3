// Package notify hands escalated topics over to human experts.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

// Notifier is told when a topic is escalated to a human expert.
type Notifier interface {
	Escalated(ctx context.Context, topic *models.Topic) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Escalated(context.Context, *models.Topic) error { return nil }

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramNotifier posts escalations to an expert chat.
type TelegramNotifier struct {
	sender messageSender
	chatID int64
}

// NewTelegramNotifier creates a notifier posting to chatID.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{sender: b, chatID: chatID}, nil
}

// Escalated sends a hand-off message for topic.
func (n *TelegramNotifier) Escalated(ctx context.Context, topic *models.Topic) error {
	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   escalationText(topic),
	})
	if err != nil {
		return fmt.Errorf("send escalation: %w", err)
	}
	return nil
}

func escalationText(topic *models.Topic) string {
	var b strings.Builder
	b.WriteString("🆘 Expert requested\n")
	fmt.Fprintf(&b, "Topic: %s\n", topic.Title)
	if topic.ServiceType != "" {
		fmt.Fprintf(&b, "Service: %s\n", topic.ServiceType)
	}
	if topic.UserID != nil {
		fmt.Fprintf(&b, "User: %s\n", topic.UserID)
	} else {
		b.WriteString("User: anonymous\n")
	}
	fmt.Fprintf(&b, "ID: %s", topic.ID)
	return b.String()
}
