package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelrelay/modelrelay/gateway/internal/api"
	"github.com/modelrelay/modelrelay/gateway/internal/api/handlers"
	"github.com/modelrelay/modelrelay/gateway/internal/chat"
	"github.com/modelrelay/modelrelay/gateway/internal/config"
	"github.com/modelrelay/modelrelay/gateway/internal/store"
	"github.com/modelrelay/modelrelay/gateway/internal/upstream"
	"github.com/modelrelay/modelrelay/gateway/pkg/contracts"
	"github.com/modelrelay/modelrelay/gateway/pkg/models"
)

// stubChat emits scripted chunks, then returns its error.
type stubChat struct {
	chunks []string
	err    error
	gotReq *models.ChatRequest
}

func (s *stubChat) Stream(_ context.Context, req *models.ChatRequest, emit contracts.EmitFunc) error {
	s.gotReq = req
	for _, c := range s.chunks {
		if err := emit(models.ContentChunk(c)); err != nil {
			return err
		}
	}
	return s.err
}

func newTestRouter(t *testing.T, chatSvc contracts.ChatService) (http.Handler, *store.MemoryStore) {
	t.Helper()
	t.Setenv("MODELRELAY_DATA_DIR", "")
	dataStore := store.NewMemoryStore()
	t.Cleanup(func() { dataStore.Close() })

	if chatSvc == nil {
		chatSvc = &stubChat{}
	}
	return api.NewRouter(config.Load(), handlers.New(dataStore, chatSvc)), dataStore
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

// ── Health & Info ────────────────────────────────────────────

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "healthy" || body["service"] != "modelrelay-gateway" {
		t.Errorf("body = %v, want healthy gateway", body)
	}
}

func TestVersion(t *testing.T) {
	t.Setenv("MODELRELAY_VERSION", "9.9.9-test")
	router, _ := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/version", "")
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["version"] != "9.9.9-test" {
		t.Errorf("version = %q, want env override", body["version"])
	}
}

// ── Catalog ──────────────────────────────────────────────────

func TestListProviders(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/v1/providers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var providers []struct {
		ID            string `json:"id"`
		DefaultModel  string `json:"default_model"`
		SupportsTools bool   `json:"supports_tools"`
		RequiresKey   bool   `json:"requires_key"`
	}
	decodeBody(t, rec, &providers)
	if len(providers) != 10 {
		t.Fatalf("providers = %d, want 10", len(providers))
	}

	byID := make(map[string]bool)
	for _, p := range providers {
		byID[p.ID] = p.RequiresKey
	}
	if requiresKey, ok := byID["lovable"]; !ok || requiresKey {
		t.Errorf("lovable requires_key = %v, want listed and false", requiresKey)
	}
	if requiresKey, ok := byID["anthropic"]; !ok || !requiresKey {
		t.Errorf("anthropic requires_key = %v, want listed and true", requiresKey)
	}
}

func TestListTools(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/v1/tools", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Tools        []models.ToolDefinition `json:"tools"`
		Capabilities map[string][]string     `json:"capabilities"`
	}
	decodeBody(t, rec, &body)
	if len(body.Tools) != 8 {
		t.Errorf("tools = %d, want 8", len(body.Tools))
	}
	wantMaps := []string{"geocode_address", "get_directions"}
	if got := body.Capabilities["Google Maps"]; len(got) != 2 || got[0] != wantMaps[0] || got[1] != wantMaps[1] {
		t.Errorf("Google Maps capability = %v, want %v", got, wantMaps)
	}
}

// ── Chat ─────────────────────────────────────────────────────

func TestChat_StreamsSSE(t *testing.T) {
	stub := &stubChat{chunks: []string{"Hel", "lo"}}
	router, _ := newTestRouter(t, stub)

	rec := doJSON(t, router, http.MethodPost, "/v1/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if got := rec.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Errorf("X-Accel-Buffering = %q, want no", got)
	}

	body := rec.Body.String()
	if got := strings.Count(body, "data: {"); got != 2 {
		t.Errorf("content events = %d, want 2; body %q", got, body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("body %q does not end with the [DONE] marker", body)
	}
}

func TestChat_InvalidBody(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodPost, "/v1/chat", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "Invalid request body" {
		t.Errorf("error = %q, want invalid body message", body["error"])
	}
}

func TestChat_ValidationErrorBeforeStream(t *testing.T) {
	stub := &stubChat{err: &chat.ValidationError{Message: "provider openai requires an API key"}}
	router, _ := newTestRouter(t, stub)

	rec := doJSON(t, router, http.MethodPost, "/v1/chat", `{"messages":[{"role":"user","content":"hi"}],"provider":"openai"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json for pre-stream failures", ct)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "provider openai requires an API key" {
		t.Errorf("error = %q, want validation message", body["error"])
	}
}

func TestChat_UpstreamErrorMapsStatus(t *testing.T) {
	stub := &stubChat{err: &upstream.CallError{Provider: "lovable", Status: http.StatusTooManyRequests}}
	router, _ := newTestRouter(t, stub)

	rec := doJSON(t, router, http.MethodPost, "/v1/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if want := "Rate limit exceeded, please try again later."; body["error"] != want {
		t.Errorf("error = %q, want %q", body["error"], want)
	}
}

func TestChat_MidStreamFailure(t *testing.T) {
	stub := &stubChat{chunks: []string{"partial"}, err: context.DeadlineExceeded}
	router, _ := newTestRouter(t, stub)

	rec := doJSON(t, router, http.MethodPost, "/v1/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (headers already sent)", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `data: {"error":"Failed to process chat request"}`) {
		t.Errorf("body %q missing the stream error event", body)
	}
	if strings.Contains(body, "[DONE]") {
		t.Errorf("body %q signals [DONE] after a failure", body)
	}
}

func TestChat_UserIDFromHeader(t *testing.T) {
	stub := &stubChat{}
	router, _ := newTestRouter(t, stub)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if stub.gotReq == nil {
		t.Fatal("chat service never called")
	}
	if stub.gotReq.UserID != "u42" {
		t.Errorf("UserID = %q, want from X-User-ID header", stub.gotReq.UserID)
	}
}

func TestChat_BodyUserIDWins(t *testing.T) {
	stub := &stubChat{}
	router, _ := newTestRouter(t, stub)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}],"userId":"body-user"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "header-user")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if stub.gotReq == nil {
		t.Fatal("chat service never called")
	}
	if stub.gotReq.UserID != "body-user" {
		t.Errorf("UserID = %q, want explicit body value to win", stub.gotReq.UserID)
	}
}

// ── User Settings ────────────────────────────────────────────

func TestUserSettings_PutRedactsKeys(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodPut, "/v1/users/u1/settings", `{"api_keys":{"serper":"sk-12345678"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %q", rec.Code, rec.Body.String())
	}

	var settings models.UserSettings
	decodeBody(t, rec, &settings)
	if got, want := settings.APIKeys["serper"], "sk-1****"; got != want {
		t.Errorf("api_keys[serper] = %q, want redacted %q", got, want)
	}
}

func TestUserSettings_GetRoundTrip(t *testing.T) {
	router, dataStore := newTestRouter(t, nil)

	err := dataStore.PutUserSettings(context.Background(), &models.UserSettings{
		UserID:  "u1",
		APIKeys: map[string]string{"firecrawl": "fc-secret-key"},
	})
	if err != nil {
		t.Fatalf("PutUserSettings() error = %v", err)
	}

	rec := doJSON(t, router, http.MethodGet, "/v1/users/u1/settings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var settings models.UserSettings
	decodeBody(t, rec, &settings)
	if got := settings.APIKeys["firecrawl"]; got != "fc-s****" {
		t.Errorf("api_keys[firecrawl] = %q, want redacted, never the raw key", got)
	}
}

func TestUserSettings_GetMissing(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/v1/users/ghost/settings", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestUserSettings_Delete(t *testing.T) {
	router, dataStore := newTestRouter(t, nil)

	dataStore.PutUserSettings(context.Background(), &models.UserSettings{UserID: "u1"})

	rec := doJSON(t, router, http.MethodDelete, "/v1/users/u1/settings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "deleted" || body["user"] != "u1" {
		t.Errorf("body = %v, want deleted confirmation", body)
	}

	if rec := doJSON(t, router, http.MethodDelete, "/v1/users/u1/settings", ""); rec.Code != http.StatusNotFound {
		t.Errorf("repeat delete status = %d, want 404", rec.Code)
	}
}

// ── Chat History ─────────────────────────────────────────────

func TestListChats_EmptyIsArray(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/v1/chats?user=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want empty JSON array, not null", got)
	}
}

func TestListChats_ReturnsRecords(t *testing.T) {
	router, dataStore := newTestRouter(t, nil)

	err := dataStore.CreateChatRecord(context.Background(), &models.ChatRecord{
		ID:        "r1",
		UserID:    "u1",
		Provider:  "lovable",
		Model:     "google/gemini-2.5-flash",
		Prompt:    "hi",
		Answer:    "hello",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateChatRecord() error = %v", err)
	}

	rec := doJSON(t, router, http.MethodGet, "/v1/chats?user=u1", "")
	var records []models.ChatRecord
	decodeBody(t, rec, &records)
	if len(records) != 1 || records[0].ID != "r1" {
		t.Errorf("records = %v, want r1", records)
	}

	other := doJSON(t, router, http.MethodGet, "/v1/chats?user=u2", "")
	var none []models.ChatRecord
	decodeBody(t, other, &none)
	if len(none) != 0 {
		t.Errorf("records for u2 = %v, want none", none)
	}
}
