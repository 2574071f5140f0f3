package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestTopicLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	topic := &models.Topic{
		UserID:      &userID,
		Title:       "Spring wardrobe",
		ServiceType: "stylist",
		Context:     json.RawMessage(`{"source":"feed"}`),
	}
	if err := s.CreateTopic(ctx, topic); err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}
	if topic.ID == uuid.Nil || topic.Status != models.TopicActive {
		t.Fatalf("topic = %+v", topic)
	}

	got, err := s.GetTopic(ctx, topic.ID)
	if err != nil {
		t.Fatalf("GetTopic() error = %v", err)
	}
	if got.Title != "Spring wardrobe" || got.UserID == nil || *got.UserID != userID {
		t.Fatalf("got = %+v", got)
	}
	if string(got.Context) != `{"source":"feed"}` {
		t.Fatalf("got.Context = %s", got.Context)
	}

	title := "Summer wardrobe"
	status := models.TopicArchived
	updated, err := s.UpdateTopic(ctx, topic.ID, models.TopicUpdate{Title: &title, Status: &status})
	if err != nil {
		t.Fatalf("UpdateTopic() error = %v", err)
	}
	if updated.Title != title || updated.Status != models.TopicArchived {
		t.Fatalf("updated = %+v", updated)
	}
	if !updated.UpdatedAt.After(got.UpdatedAt) {
		t.Fatalf("updated_at not bumped: %v -> %v", got.UpdatedAt, updated.UpdatedAt)
	}

	if err := s.DeleteTopic(ctx, topic.ID); err != nil {
		t.Fatalf("DeleteTopic() error = %v", err)
	}
	if got, _ := s.GetTopic(ctx, topic.ID); got != nil {
		t.Fatal("expected topic to be gone")
	}
	if err := s.DeleteTopic(ctx, topic.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteTopic() again error = %v, want ErrNotFound", err)
	}
	if _, err := s.UpdateTopic(ctx, topic.ID, models.TopicUpdate{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateTopic() missing error = %v, want ErrNotFound", err)
	}
}

func TestGetTopicMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetTopic(context.Background(), uuid.New())
	if err != nil || got != nil {
		t.Fatalf("GetTopic() = %v, %v; want nil, nil", got, err)
	}
}

func TestListTopicsScopesByOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	mine := &models.Topic{SessionID: "session-a", Title: "first"}
	other := &models.Topic{SessionID: "session-b", Title: "other"}
	signed := &models.Topic{UserID: &userID, SessionID: "session-a", Title: "signed"}
	for _, tp := range []*models.Topic{mine, other, signed} {
		if err := s.CreateTopic(ctx, tp); err != nil {
			t.Fatalf("CreateTopic() error = %v", err)
		}
	}
	second := &models.Topic{SessionID: "session-a", Title: "second"}
	if err := s.CreateTopic(ctx, second); err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}

	anon, err := s.ListTopics(ctx, models.TopicFilter{Owner: models.Owner{SessionID: "session-a"}})
	if err != nil {
		t.Fatalf("ListTopics() error = %v", err)
	}
	if len(anon) != 2 || anon[0].Title != "second" || anon[1].Title != "first" {
		t.Fatalf("anon topics = %+v", anon)
	}

	// A new message moves the older topic to the top.
	if err := s.AddTopicMessage(ctx, &models.TopicMessage{TopicID: mine.ID, Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AddTopicMessage() error = %v", err)
	}
	anon, _ = s.ListTopics(ctx, models.TopicFilter{Owner: models.Owner{SessionID: "session-a"}})
	if anon[0].ID != mine.ID {
		t.Fatalf("expected touched topic first, got %q", anon[0].Title)
	}

	user, err := s.ListTopics(ctx, models.TopicFilter{Owner: models.Owner{UserID: &userID}})
	if err != nil {
		t.Fatalf("ListTopics() error = %v", err)
	}
	if len(user) != 1 || user[0].ID != signed.ID {
		t.Fatalf("user topics = %+v", user)
	}

	archived, _ := s.ListTopics(ctx, models.TopicFilter{Owner: models.Owner{SessionID: "session-a"}, Status: models.TopicArchived})
	if len(archived) != 0 {
		t.Fatalf("archived = %+v", archived)
	}
}

func TestTopicMessagesRoundTripMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	topic := &models.Topic{SessionID: "s", Title: "t"}
	if err := s.CreateTopic(ctx, topic); err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}

	base := time.Now().UTC()
	first := &models.TopicMessage{TopicID: topic.ID, Role: models.RoleUser, Content: "hello", CreatedAt: base}
	second := &models.TopicMessage{
		TopicID:   topic.ID,
		Role:      models.RoleAssistant,
		Content:   "hi there",
		CreatedAt: base.Add(time.Millisecond),
		Metadata: models.MessageMetadata{
			Buttons:    []models.Button{{Action: "tryon", Label: "Try on", Icon: "shirt"}},
			Escalation: &models.EscalationData{ServiceID: "stylist"},
		},
	}
	for _, m := range []*models.TopicMessage{second, first} {
		if err := s.AddTopicMessage(ctx, m); err != nil {
			t.Fatalf("AddTopicMessage() error = %v", err)
		}
	}

	msgs, err := s.ListTopicMessages(ctx, topic.ID, 0)
	if err != nil {
		t.Fatalf("ListTopicMessages() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "hello" || msgs[1].Content != "hi there" {
		t.Fatalf("msgs = %+v", msgs)
	}
	md := msgs[1].Metadata
	if len(md.Buttons) != 1 || md.Buttons[0].Action != "tryon" || md.Buttons[0].Icon != "shirt" {
		t.Fatalf("buttons = %+v", md.Buttons)
	}
	if md.Escalation == nil || md.Escalation.ServiceID != "stylist" {
		t.Fatalf("escalation = %+v", md.Escalation)
	}

	n, err := s.CountTopicMessages(ctx, topic.ID)
	if err != nil || n != 2 {
		t.Fatalf("CountTopicMessages() = %d, %v", n, err)
	}

	if err := s.DeleteTopic(ctx, topic.ID); err != nil {
		t.Fatalf("DeleteTopic() error = %v", err)
	}
	if total, _ := s.CountMessages(ctx); total != 0 {
		t.Fatalf("messages not cascaded, total = %d", total)
	}
}

func TestTenantUpsertAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tenant := &models.Tenant{
		Slug:            "acme",
		Name:            "Acme",
		AIName:          "Ada",
		Theme:           map[string]string{"primary": "#ff0000"},
		EnabledServices: []string{"chat", "stylist"},
		Quotas:          models.Quotas{AIRequests: 10},
		IsActive:        true,
	}
	if err := s.UpsertTenant(ctx, tenant); err != nil {
		t.Fatalf("UpsertTenant() error = %v", err)
	}
	firstID := tenant.ID

	tenant.ID = uuid.Nil
	tenant.Name = "Acme Inc"
	if err := s.UpsertTenant(ctx, tenant); err != nil {
		t.Fatalf("UpsertTenant() again error = %v", err)
	}
	if tenant.ID != firstID {
		t.Fatalf("upsert changed id: %v -> %v", firstID, tenant.ID)
	}

	got, err := s.GetTenantBySlug(ctx, "acme")
	if err != nil {
		t.Fatalf("GetTenantBySlug() error = %v", err)
	}
	if got.Name != "Acme Inc" || got.Theme["primary"] != "#ff0000" || got.Quotas.AIRequests != 10 || !got.IsActive {
		t.Fatalf("got = %+v", got)
	}
	if !got.ServiceEnabled("stylist") || got.ServiceEnabled("tryon") {
		t.Fatalf("enabled services = %v", got.EnabledServices)
	}

	if missing, err := s.GetTenantBySlug(ctx, "nope"); err != nil || missing != nil {
		t.Fatalf("GetTenantBySlug(nope) = %v, %v", missing, err)
	}

	byID, err := s.GetTenantByID(ctx, firstID)
	if err != nil || byID == nil || byID.Slug != "acme" || byID.Quotas.AIRequests != 10 {
		t.Fatalf("GetTenantByID() = %+v, %v", byID, err)
	}
	if missing, err := s.GetTenantByID(ctx, uuid.New()); err != nil || missing != nil {
		t.Fatalf("GetTenantByID(unknown) = %v, %v", missing, err)
	}
}

func TestBindProfileTenantKeepsFirstBinding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()
	first, second := uuid.New(), uuid.New()

	if err := s.IncrementUsage(ctx, userID, models.QuotaAIRequests); err != nil {
		t.Fatalf("IncrementUsage() error = %v", err)
	}
	if err := s.BindProfileTenant(ctx, userID, first); err != nil {
		t.Fatalf("BindProfileTenant() error = %v", err)
	}
	if err := s.BindProfileTenant(ctx, userID, second); err != nil {
		t.Fatalf("BindProfileTenant() again error = %v", err)
	}

	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if p.TenantID == nil || *p.TenantID != first {
		t.Fatalf("tenant = %v, want %v", p.TenantID, first)
	}
	if p.AIRequestsUsed != 1 {
		t.Fatalf("binding reset usage: %+v", p)
	}

	fresh := uuid.New()
	if err := s.BindProfileTenant(ctx, fresh, second); err != nil {
		t.Fatalf("BindProfileTenant(new profile) error = %v", err)
	}
	if p, _ := s.GetProfile(ctx, fresh); p == nil || p.TenantID == nil || *p.TenantID != second {
		t.Fatalf("new profile = %+v", p)
	}
}

func TestUsageCountersOnlyGrow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	if p, _ := s.GetProfile(ctx, userID); p != nil {
		t.Fatal("expected no profile yet")
	}
	for i := 0; i < 3; i++ {
		if err := s.IncrementUsage(ctx, userID, models.QuotaTryOns); err != nil {
			t.Fatalf("IncrementUsage() error = %v", err)
		}
	}
	if err := s.IncrementUsage(ctx, userID, models.QuotaAIRequests); err != nil {
		t.Fatalf("IncrementUsage() error = %v", err)
	}
	if err := s.IncrementUsage(ctx, userID, "bogus"); err == nil {
		t.Fatal("expected error for unknown kind")
	}

	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if p.Used(models.QuotaTryOns) != 3 || p.Used(models.QuotaAIRequests) != 1 || p.Used(models.QuotaColorTypes) != 0 {
		t.Fatalf("profile = %+v", p)
	}
}

func TestRolesAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	admin := uuid.New()

	if ok, _ := s.HasRole(ctx, admin, "admin"); ok {
		t.Fatal("unexpected role")
	}
	if err := s.GrantRole(ctx, admin, "admin"); err != nil {
		t.Fatalf("GrantRole() error = %v", err)
	}
	if err := s.GrantRole(ctx, admin, "admin"); err != nil {
		t.Fatalf("GrantRole() twice error = %v", err)
	}
	if ok, err := s.HasRole(ctx, admin, "admin"); err != nil || !ok {
		t.Fatalf("HasRole() = %v, %v", ok, err)
	}

	if last, err := s.GetMostRecentActivity(ctx); err != nil || last != nil {
		t.Fatalf("GetMostRecentActivity() empty = %v, %v", last, err)
	}

	topic := &models.Topic{SessionID: "s", Title: "t"}
	if err := s.CreateTopic(ctx, topic); err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}
	escalated := models.TopicEscalated
	if _, err := s.UpdateTopic(ctx, topic.ID, models.TopicUpdate{Status: &escalated}); err != nil {
		t.Fatalf("UpdateTopic() error = %v", err)
	}
	if err := s.RecordEvent(ctx, &models.AnalyticsEvent{EventType: "chat_request", SessionID: "s"}); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
	old := &models.AnalyticsEvent{EventType: "chat_request", CreatedAt: time.Now().Add(-48 * time.Hour)}
	if err := s.RecordEvent(ctx, old); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}

	byStatus, err := s.CountTopicsByStatus(ctx)
	if err != nil || byStatus[models.TopicEscalated] != 1 {
		t.Fatalf("CountTopicsByStatus() = %v, %v", byStatus, err)
	}
	events, err := s.CountEventsSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || events["chat_request"] != 1 {
		t.Fatalf("CountEventsSince() = %v, %v", events, err)
	}
	last, err := s.GetMostRecentActivity(ctx)
	if err != nil || last == nil {
		t.Fatalf("GetMostRecentActivity() = %v, %v", last, err)
	}
}
