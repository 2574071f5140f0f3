package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ChannovDenis/dobro20-sub000/internal/auth"
	"github.com/ChannovDenis/dobro20-sub000/internal/gateway"
	"github.com/ChannovDenis/dobro20-sub000/internal/handlers"
	"github.com/ChannovDenis/dobro20-sub000/internal/models"
	"github.com/ChannovDenis/dobro20-sub000/internal/store"
	"github.com/ChannovDenis/dobro20-sub000/internal/tenant"
	"github.com/ChannovDenis/dobro20-sub000/internal/topics"
)

const testSecret = "test-jwt-secret"

var (
	sessionA = strings.Repeat("a", 32)
	sessionB = strings.Repeat("b", 32)
)

type testEnv struct {
	server        *httptest.Server
	db            *store.SQLiteStore
	upstreamCalls *int32
}

func newTestEnv(t *testing.T, upstream http.HandlerFunc) *testEnv {
	t.Helper()

	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(db.Close)

	var calls int32
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if upstream == nil {
			http.Error(w, "unexpected call", http.StatusTeapot)
			return
		}
		upstream(w, r)
	}))
	t.Cleanup(up.Close)

	logger := zerolog.Nop()
	resolver := tenant.Resolver{Default: "default"}
	deps := handlers.Deps{
		DB:         db,
		Gateway:    gateway.New(gateway.Config{BaseURL: up.URL, APIKey: "k", ChatModel: "chat-model", ImageModel: "image-model"}),
		Topics:     topics.NewManager(db, nil, logger),
		Tenants:    tenant.NewService(db, nil, resolver.Default, logger),
		Resolver:   resolver,
		ImageHosts: []string{"images.example.com"},
		Logger:     logger,
	}
	srv := httptest.NewServer(NewRouter(logger, deps, Options{Verifier: auth.NewJWTVerifier(testSecret)}))
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, db: db, upstreamCalls: &calls}
}

func (e *testEnv) calls() int32 {
	return atomic.LoadInt32(e.upstreamCalls)
}

type reqOpts struct {
	session string
	bearer  string
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, o reqOpts) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.session != "" {
		req.Header.Set(auth.SessionHeader, o.session)
	}
	if o.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+o.bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	decodeBody(t, resp, &body)
	return body["error"]
}

func chatBody(n int) map[string]interface{} {
	msgs := make([]map[string]string, n)
	for i := range msgs {
		msgs[i] = map[string]string{"role": "user", "content": fmt.Sprintf("message %d", i)}
	}
	return map[string]interface{}{"messages": msgs}
}

func completionHandler(content string, images ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imgs := make([]map[string]interface{}, 0, len(images))
		for _, u := range images {
			imgs = append(imgs, map[string]interface{}{"type": "image_url", "image_url": map[string]string{"url": u}})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []interface{}{
				map[string]interface{}{"message": map[string]interface{}{"content": content, "images": imgs}},
			},
		})
	}
}

func TestRelayRejectsOversizedHistoryBeforeUpstream(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/chat", "/lisa-stylist"} {
		resp := env.do(t, http.MethodPost, path, chatBody(51), reqOpts{session: sessionA})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s status = %d, want 400", path, resp.StatusCode)
		}
		resp = env.do(t, http.MethodPost, path, chatBody(0), reqOpts{session: sessionA})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s empty status = %d, want 400", path, resp.StatusCode)
		}
	}

	long := map[string]interface{}{"messages": []map[string]string{{"role": "user", "content": strings.Repeat("x", 10001)}}}
	if resp := env.do(t, http.MethodPost, "/chat", long, reqOpts{session: sessionA}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("long content status = %d, want 400", resp.StatusCode)
	}
	badRole := map[string]interface{}{"messages": []map[string]string{{"role": "tool", "content": "x"}}}
	if resp := env.do(t, http.MethodPost, "/chat", badRole, reqOpts{session: sessionA}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad role status = %d, want 400", resp.StatusCode)
	}

	if env.calls() != 0 {
		t.Fatalf("upstream calls = %d, want 0", env.calls())
	}
}

func TestEndpointsRequireSessionOrBearer(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		method, path string
		body         interface{}
	}{
		{http.MethodPost, "/chat", chatBody(1)},
		{http.MethodPost, "/lisa-stylist", chatBody(1)},
		{http.MethodPost, "/colortype-analyzer", map[string]string{"imageUrl": "https://images.example.com/a.jpg"}},
		{http.MethodPost, "/virtual-tryon", map[string]string{"userPhotoUrl": "https://images.example.com/a.jpg"}},
		{http.MethodGet, "/topics", nil},
	}
	badSessions := []reqOpts{
		{},
		{session: "short"},
		{session: strings.Repeat("a", 31)},
		{session: strings.Repeat("a", 129)},
		{session: strings.Repeat("a", 31) + "!"},
		{bearer: "not-a-jwt"},
	}
	for _, tc := range cases {
		for _, o := range badSessions {
			resp := env.do(t, tc.method, tc.path, tc.body, o)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("%s %s with %+v status = %d, want 401", tc.method, tc.path, o, resp.StatusCode)
			}
		}
	}
	if env.calls() != 0 {
		t.Fatalf("upstream calls = %d, want 0", env.calls())
	}
}

func TestChatStreamsUpstreamVerbatim(t *testing.T) {
	const stream = "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: [DONE]\n\n"
	var gotModel, gotSystem string
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		var req gateway.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		if len(req.Messages) > 0 {
			gotSystem, _ = req.Messages[0].Content.(string)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, stream)
	})

	resp := env.do(t, http.MethodPost, "/chat", chatBody(2), reqOpts{session: sessionA})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != stream {
		t.Fatalf("body = %q, want %q", body, stream)
	}
	if gotModel != "chat-model" || !strings.Contains(gotSystem, "Lisa") {
		t.Fatalf("upstream model = %q, system = %q", gotModel, gotSystem)
	}

	events, err := env.db.CountEventsSince(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountEventsSince() error = %v", err)
	}
	if events["chat_request"] != 1 {
		t.Fatalf("events = %v, want one chat_request", events)
	}
}

func TestUpstreamErrorsAreNormalized(t *testing.T) {
	cases := []struct {
		upstream int
		want     int
		message  string
	}{
		{http.StatusTooManyRequests, http.StatusTooManyRequests, "AI service is overloaded, please retry later"},
		{http.StatusPaymentRequired, http.StatusPaymentRequired, "payment required"},
		{http.StatusBadGateway, http.StatusInternalServerError, "AI service error"},
		{http.StatusUnauthorized, http.StatusInternalServerError, "AI service error"},
	}
	for _, tc := range cases {
		env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal upstream detail", tc.upstream)
		})
		resp := env.do(t, http.MethodPost, "/lisa-stylist", chatBody(1), reqOpts{session: sessionA})
		if resp.StatusCode != tc.want {
			t.Fatalf("upstream %d: status = %d, want %d", tc.upstream, resp.StatusCode, tc.want)
		}
		body, _ := io.ReadAll(resp.Body)
		if strings.Contains(string(body), "internal upstream detail") {
			t.Fatalf("upstream detail leaked: %s", body)
		}
		var parsed map[string]string
		json.Unmarshal(body, &parsed)
		if parsed["error"] != tc.message {
			t.Fatalf("upstream %d: error = %q, want %q", tc.upstream, parsed["error"], tc.message)
		}
	}
}

func TestColorTypeExtractsEmbeddedJSON(t *testing.T) {
	reply := "Here is your analysis:\n```json\n{\"type\":\"Soft Summer\",\"season\":\"summer\",\"colors\":[\"#a1b2c3\"],\"description\":\"Cool and muted.\",\"recommendations\":[\"Wear grey-blue\"]}\n```"
	env := newTestEnv(t, completionHandler(reply))

	resp := env.do(t, http.MethodPost, "/colortype-analyzer", map[string]string{"imageUrl": "https://cdn.images.example.com/me.jpg"}, reqOpts{session: sessionA})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var palette models.ColorPaletteData
	decodeBody(t, resp, &palette)
	if palette.Type != "Soft Summer" || palette.Season != "summer" || len(palette.Colors) != 1 || len(palette.Recommendations) != 1 {
		t.Fatalf("palette = %+v", palette)
	}

	noJSON := newTestEnv(t, completionHandler("I could not see a face in this photo."))
	resp = noJSON.do(t, http.MethodPost, "/colortype-analyzer", map[string]string{"imageUrl": "https://images.example.com/me.jpg"}, reqOpts{session: sessionA})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if msg := errorMessage(t, resp); msg != "failed to parse analysis" {
		t.Fatalf("error = %q", msg)
	}
}

func TestImageURLPolicy(t *testing.T) {
	env := newTestEnv(t, nil)

	bad := []string{
		"",
		"http://images.example.com/a.jpg",
		"https://evil.com/a.jpg",
		"https://images.example.com.evil.com/a.jpg",
		"https://" + strings.Repeat("a", 2048) + ".images.example.com/a.jpg",
		"data:image/svg+xml;base64,PHN2Zz4=",
		"data:text/html;base64,PGgxPg==",
		"javascript:alert(1)",
	}
	for _, u := range bad {
		resp := env.do(t, http.MethodPost, "/colortype-analyzer", map[string]string{"imageUrl": u}, reqOpts{session: sessionA})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("imageUrl %.40q status = %d, want 400", u, resp.StatusCode)
		}
	}
	if env.calls() != 0 {
		t.Fatalf("upstream calls = %d, want 0", env.calls())
	}
}

func TestVirtualTryOn(t *testing.T) {
	env := newTestEnv(t, completionHandler("A navy linen suit.", "data:image/png;base64,iVBORw0KGgo="))
	resp := env.do(t, http.MethodPost, "/virtual-tryon", map[string]string{
		"userPhotoUrl":        "data:image/jpeg;base64,/9j/4AAQSkZJRg==",
		"clothingDescription": "navy <b>linen</b> suit",
		"style":               "smart casual",
	}, reqOpts{session: sessionA})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var ok handlers.TryOnResponse
	decodeBody(t, resp, &ok)
	if !ok.Success || ok.ImageURL == nil || *ok.ImageURL != "data:image/png;base64,iVBORw0KGgo=" || ok.Description != "A navy linen suit." {
		t.Fatalf("response = %+v", ok)
	}

	noImage := newTestEnv(t, completionHandler("I can only describe it."))
	resp = noImage.do(t, http.MethodPost, "/virtual-tryon", map[string]string{"userPhotoUrl": "https://images.example.com/me.jpg"}, reqOpts{session: sessionA})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var raw map[string]json.RawMessage
	decodeBody(t, resp, &raw)
	if string(raw["imageUrl"]) != "null" || string(raw["success"]) != "false" {
		t.Fatalf("response = %s", raw)
	}
	if len(raw["message"]) == 0 || string(raw["description"]) != `"I can only describe it."` {
		t.Fatalf("response = %s", raw)
	}
}

func TestQuotaExceededReturns402(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	acme := &models.Tenant{Slug: "acme", Name: "Acme", IsActive: true, Quotas: models.Quotas{AIRequests: 1}}
	if err := env.db.UpsertTenant(ctx, acme); err != nil {
		t.Fatalf("UpsertTenant() error = %v", err)
	}
	userID := uuid.New()
	if err := env.db.BindProfileTenant(ctx, userID, acme.ID); err != nil {
		t.Fatalf("BindProfileTenant() error = %v", err)
	}
	if err := env.db.IncrementUsage(ctx, userID, models.QuotaAIRequests); err != nil {
		t.Fatalf("IncrementUsage() error = %v", err)
	}
	token, err := auth.MintToken(testSecret, userID, "user@example.com", time.Hour)
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}

	// The bound tenant meters the user whatever tenant the request names.
	for _, path := range []string{"/chat?tenant=acme", "/chat?tenant=other", "/chat", "/lisa-stylist?tenant=default"} {
		resp := env.do(t, http.MethodPost, path, chatBody(1), reqOpts{bearer: token})
		if resp.StatusCode != http.StatusPaymentRequired {
			t.Fatalf("%s status = %d, want 402", path, resp.StatusCode)
		}
		if msg := errorMessage(t, resp); msg != "quota exceeded" {
			t.Fatalf("%s error = %q", path, msg)
		}
	}
	if env.calls() != 0 {
		t.Fatalf("upstream calls = %d, want 0", env.calls())
	}
}

func TestFirstMeteredCallBindsTenant(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: [DONE]\n\n")
	})
	ctx := context.Background()

	acme := &models.Tenant{Slug: "acme", Name: "Acme", IsActive: true, Quotas: models.Quotas{AIRequests: 1}}
	if err := env.db.UpsertTenant(ctx, acme); err != nil {
		t.Fatalf("UpsertTenant() error = %v", err)
	}
	userID := uuid.New()
	token, err := auth.MintToken(testSecret, userID, "", time.Hour)
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}

	resp := env.do(t, http.MethodPost, "/chat?tenant=acme", chatBody(1), reqOpts{bearer: token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first call status = %d, want 200", resp.StatusCode)
	}
	io.ReadAll(resp.Body)

	profile, err := env.db.GetProfile(ctx, userID)
	if err != nil || profile == nil {
		t.Fatalf("GetProfile() = %v, %v", profile, err)
	}
	if profile.TenantID == nil || *profile.TenantID != acme.ID || profile.AIRequestsUsed != 1 {
		t.Fatalf("profile = %+v", profile)
	}

	if resp := env.do(t, http.MethodPost, "/chat", chatBody(1), reqOpts{bearer: token}); resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("second call status = %d, want 402", resp.StatusCode)
	}
	if env.calls() != 1 {
		t.Fatalf("upstream calls = %d, want 1", env.calls())
	}
}

func TestColorTypeParseFailureIsNotCharged(t *testing.T) {
	env := newTestEnv(t, completionHandler("I could not see a face in this photo."))
	userID := uuid.New()
	token, err := auth.MintToken(testSecret, userID, "", time.Hour)
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}

	resp := env.do(t, http.MethodPost, "/colortype-analyzer", map[string]string{"imageUrl": "https://images.example.com/me.jpg"}, reqOpts{bearer: token})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	profile, err := env.db.GetProfile(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if profile != nil && profile.ColorTypesUsed != 0 {
		t.Fatalf("colortypes used = %d, want 0", profile.ColorTypesUsed)
	}
}

func TestTopicsOwnershipAndMetadataRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/topics", map[string]string{"title": "Wedding outfit", "service_type": "stylist"}, reqOpts{session: sessionA})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var topic models.Topic
	decodeBody(t, resp, &topic)

	path := "/topics/" + topic.ID.String()
	if resp := env.do(t, http.MethodGet, path, nil, reqOpts{session: sessionB}); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign GET status = %d, want 404", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodDelete, path, nil, reqOpts{session: sessionB}); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign DELETE status = %d, want 404", resp.StatusCode)
	}

	reply := models.Message{
		ID:         "01J9Z8Y7X6W5V4T3S2R1Q0P9N8",
		Role:       models.RoleAssistant,
		Content:    "Try a linen suit.",
		Buttons:    []models.Button{{Action: "tryon", Label: "Try on"}},
		Escalation: &models.EscalationData{ServiceID: "stylist"},
	}
	if resp := env.do(t, http.MethodPost, path+"/messages", reply, reqOpts{session: sessionA}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("post message status = %d, want 201", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, path+"/messages", nil, reqOpts{session: sessionA})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list messages status = %d", resp.StatusCode)
	}
	var history handlers.TopicMessagesResponse
	decodeBody(t, resp, &history)
	if len(history.Messages) != 1 || history.Total != 1 {
		t.Fatalf("messages = %+v, total = %d", history.Messages, history.Total)
	}
	got := history.Messages[0]
	if got.ID != reply.ID || len(got.Buttons) != 1 || got.Buttons[0] != reply.Buttons[0] {
		t.Fatalf("buttons lost: %+v", got)
	}
	if got.Escalation == nil || got.Escalation.ServiceID != "stylist" {
		t.Fatalf("escalation lost: %+v", got)
	}

	status := models.TopicArchived
	resp = env.do(t, http.MethodPatch, path, map[string]interface{}{"status": status}, reqOpts{session: sessionA})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodPatch, path, map[string]interface{}{"status": "gone"}, reqOpts{session: sessionA})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid status patch = %d, want 400", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/topics?status=active", nil, reqOpts{session: sessionA})
	var list handlers.TopicListResponse
	decodeBody(t, resp, &list)
	if list.Total != 0 {
		t.Fatalf("active topics = %d, want 0", list.Total)
	}

	if resp := env.do(t, http.MethodDelete, path, nil, reqOpts{session: sessionA}); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, path, nil, reqOpts{session: sessionA}); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete = %d, want 404", resp.StatusCode)
	}
}

func TestAdminStatsRequiresAdminRole(t *testing.T) {
	env := newTestEnv(t, nil)
	userID := uuid.New()
	token, err := auth.MintToken(testSecret, userID, "", time.Hour)
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}

	if resp := env.do(t, http.MethodGet, "/admin/stats", nil, reqOpts{session: sessionA}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("session-only status = %d, want 401", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/admin/stats", nil, reqOpts{bearer: token}); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want 403", resp.StatusCode)
	}

	if err := env.db.GrantRole(context.Background(), userID, "admin"); err != nil {
		t.Fatalf("GrantRole() error = %v", err)
	}
	env.do(t, http.MethodPost, "/topics", map[string]string{"title": "one"}, reqOpts{session: sessionA})

	resp := env.do(t, http.MethodGet, "/admin/stats", nil, reqOpts{bearer: token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", resp.StatusCode)
	}
	var stats handlers.StatsResponse
	decodeBody(t, resp, &stats)
	if stats.TotalTopics != 1 || stats.TopicsByStatus[models.TopicActive] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestTenantEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if err := env.db.UpsertTenant(ctx, &models.Tenant{
		Slug: "acme", Name: "Acme", AIName: "Ava", IsActive: true,
		Theme: map[string]string{"primary": "#123456"},
	}); err != nil {
		t.Fatalf("UpsertTenant() error = %v", err)
	}

	resp := env.do(t, http.MethodGet, "/tenant?tenant=acme", nil, reqOpts{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got handlers.TenantResponse
	decodeBody(t, resp, &got)
	if got.Tenant == nil || got.Name != "Acme" || got.AIName != "Ava" || !strings.Contains(got.CSS, "--primary:#123456;") {
		t.Fatalf("tenant = %+v", got)
	}

	resp = env.do(t, http.MethodGet, "/tenants/unknown", nil, reqOpts{})
	var fallback handlers.TenantResponse
	decodeBody(t, resp, &fallback)
	if fallback.Tenant == nil || fallback.Slug != "default" {
		t.Fatalf("fallback = %+v", fallback)
	}

	if resp := env.do(t, http.MethodGet, "/tenants/Bad_Slug", nil, reqOpts{}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid slug status = %d, want 400", resp.StatusCode)
	}
}

func TestCORSPreflightAllowsSessionHeader(t *testing.T) {
	env := newTestEnv(t, nil)

	req, _ := http.NewRequest(http.MethodOptions, env.server.URL+"/chat", nil)
	req.Header.Set("Origin", "https://acme.dobro.app")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "x-session-id, content-type")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight error = %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("allow origin = %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(strings.ToLower(resp.Header.Get("Access-Control-Allow-Headers")), "x-session-id") {
		t.Fatalf("allow headers = %q", resp.Header.Get("Access-Control-Allow-Headers"))
	}
}
