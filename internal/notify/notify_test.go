package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

type fakeSender struct {
	sent []*bot.SendMessageParams
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.sent = append(f.sent, p)
	return &tgmodels.Message{}, f.err
}

func TestTelegramNotifierSendsToExpertChat(t *testing.T) {
	fake := &fakeSender{}
	n := &TelegramNotifier{sender: fake, chatID: -100123}

	topic := &models.Topic{ID: uuid.New(), Title: "Wedding look", ServiceType: "stylist"}
	if err := n.Escalated(context.Background(), topic); err != nil {
		t.Fatalf("Escalated() error = %v", err)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("sent %d messages", len(fake.sent))
	}
	p := fake.sent[0]
	if p.ChatID != int64(-100123) {
		t.Fatalf("ChatID = %v", p.ChatID)
	}
	for _, want := range []string{"Wedding look", "stylist", topic.ID.String(), "anonymous"} {
		if !strings.Contains(p.Text, want) {
			t.Errorf("text %q missing %q", p.Text, want)
		}
	}
}

func TestTelegramNotifierWrapsError(t *testing.T) {
	n := &TelegramNotifier{sender: &fakeSender{err: errors.New("boom")}, chatID: 1}
	if err := n.Escalated(context.Background(), &models.Topic{}); err == nil {
		t.Fatal("expected error")
	}
}
