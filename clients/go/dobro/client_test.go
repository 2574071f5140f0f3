package dobro

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/ChannovDenis/dobro20-sub000/internal/chat"
	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

const testSession = "0123456789abcdef0123456789abcdef"

func TestClientSendsCallerHeaders(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"topics":[],"total":0}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithSession(testSession), WithToken("tok"), WithTenant("acme"))
	if _, err := c.ListTopics(context.Background(), models.TopicArchived, 5); err != nil {
		t.Fatalf("ListTopics() error = %v", err)
	}
	if got.Header.Get("X-Session-Id") != testSession {
		t.Fatalf("session header = %q", got.Header.Get("X-Session-Id"))
	}
	if got.Header.Get("Authorization") != "Bearer tok" {
		t.Fatalf("authorization = %q", got.Header.Get("Authorization"))
	}
	q := got.URL.Query()
	if q.Get("tenant") != "acme" || q.Get("status") != "archived" || q.Get("limit") != "5" {
		t.Fatalf("query = %v", q)
	}
}

func TestClientMapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithSession(testSession))
	_, err := c.Chat(context.Background(), []chat.HistoryMessage{{Role: "user", Content: "hi"}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Chat() error = %v, want *APIError", err)
	}
	if apiErr.StatusCode() != http.StatusTooManyRequests || apiErr.Message != "rate limit exceeded" {
		t.Fatalf("APIError = %+v", apiErr)
	}
}

func TestClientStreamsAndStylistFlag(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lisa-stylist" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithSession(testSession))
	rc, err := c.Stylist(context.Background(), []chat.HistoryMessage{{Role: "user", Content: "outfit?"}}, true)
	if err != nil {
		t.Fatalf("Stylist() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !strings.Contains(string(data), `"Hi"`) {
		t.Fatalf("stream = %q", data)
	}
	if body["isStyleMode"] != true {
		t.Fatalf("isStyleMode = %v", body["isStyleMode"])
	}
}

func TestClientMessagesRoundTrip(t *testing.T) {
	topicID := uuid.New()
	var saved []models.Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/topics/"+topicID.String()+"/messages" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPost:
			var m models.Message
			json.NewDecoder(r.Body).Decode(&m)
			saved = append(saved, m)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(m)
		case http.MethodGet:
			json.NewEncoder(w).Encode(TopicMessagesResponse{Messages: saved})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithSession(testSession))
	msg := models.Message{
		ID:         "01HZX",
		Role:       models.RoleAssistant,
		Content:    "hello",
		Buttons:    []models.Button{{Action: "style", Label: "Style advice"}},
		Escalation: &models.EscalationData{ServiceID: "lawyer"},
	}
	if err := c.SaveMessage(context.Background(), topicID, msg); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}
	msgs, err := c.ListMessages(context.Background(), topicID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 1 || len(msgs[0].Buttons) != 1 || msgs[0].Escalation == nil {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestTryOnNullImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":false,"imageUrl":null,"description":"a coat"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).VirtualTryOn(context.Background(), chat.TryOnRequest{UserPhotoURL: "https://x"})
	if err != nil {
		t.Fatalf("VirtualTryOn() error = %v", err)
	}
	if res.ImageURL != nil || res.Description != "a coat" {
		t.Fatalf("result = %+v", res)
	}
}

func TestLoadOrCreateSessionID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")

	id, err := LoadOrCreateSessionID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateSessionID() error = %v", err)
	}
	if len(id) != 32 {
		t.Fatalf("len(id) = %d, want 32", len(id))
	}
	again, err := LoadOrCreateSessionID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateSessionID() error = %v", err)
	}
	if again != id {
		t.Fatalf("session changed: %q then %q", id, again)
	}

	os.WriteFile(filepath.Join(dir, sessionFile), []byte("short"), 0600)
	replaced, err := LoadOrCreateSessionID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateSessionID() error = %v", err)
	}
	if replaced == "short" || len(replaced) != 32 {
		t.Fatalf("invalid session not replaced: %q", replaced)
	}

	if err := SaveTenant(dir, "acme"); err != nil {
		t.Fatalf("SaveTenant() error = %v", err)
	}
	if got := LoadTenant(dir); got != "acme" {
		t.Fatalf("LoadTenant() = %q", got)
	}
}
