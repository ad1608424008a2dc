package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mvailland/cyrano/internal/api/handler"
	"github.com/mvailland/cyrano/internal/api/middleware"
	"github.com/mvailland/cyrano/internal/api/response"
	"github.com/mvailland/cyrano/internal/llm"
)

// authenticated wires a fake caller and a conversation route param into the
// request context, the way the middleware and chi would.
func authenticated(r *http.Request, userID uuid.UUID, conversationID string) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
	if conversationID != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("conversationID", conversationID)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return r.WithContext(ctx)
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHealthCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.HealthCheck(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	resp := decodeResponse(t, w)
	if !resp.Success {
		t.Error("expected success to be true")
	}

	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected data to be an object, got %T", resp.Data)
	}
	if data["status"] != "ok" {
		t.Errorf("expected status ok, got %v", data["status"])
	}
}

func TestListLLMProviders(t *testing.T) {
	router := llm.NewRouter("gemini")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/llm-providers", nil)
	w := httptest.NewRecorder()

	handler.ListLLMProviders(router)(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	resp := decodeResponse(t, w)
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected data to be an object, got %T", resp.Data)
	}
	if data["default_provider"] != "gemini" {
		t.Errorf("expected default provider gemini, got %v", data["default_provider"])
	}
}

func TestMediaUpload_RejectsUnauthenticated(t *testing.T) {
	h := handler.NewMediaHandler(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/x/media", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	h.Upload(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
}

func TestMediaUpload_ValidatesRequest(t *testing.T) {
	// Validation fires before any service call, so nil services are safe.
	h := handler.NewMediaHandler(nil, nil)
	conversationID := uuid.New().String()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"media_url":`},
		{"missing url", `{"media_type": "image"}`},
		{"bad url", `{"media_url": "not a url", "media_type": "image"}`},
		{"missing type", `{"media_url": "https://cdn.example.com/a.jpg"}`},
		{"unknown type", `{"media_url": "https://cdn.example.com/a.mp4", "media_type": "video"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/"+conversationID+"/media", strings.NewReader(tt.body))
			req = authenticated(req, uuid.New(), conversationID)
			w := httptest.NewRecorder()

			h.Upload(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", w.Code)
			}
			resp := decodeResponse(t, w)
			if resp.Success {
				t.Error("expected success to be false")
			}
		})
	}
}

func TestMediaResults_ValidatesRequest(t *testing.T) {
	h := handler.NewMediaHandler(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media/results", strings.NewReader(`{"text": "hello"}`))
	w := httptest.NewRecorder()

	h.Results(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	resp := decodeResponse(t, w)
	errs, ok := resp.Error.(map[string]any)
	if !ok {
		t.Fatalf("expected error to be a field map, got %T", resp.Error)
	}
	if _, found := errs["MessageID"]; !found {
		t.Errorf("expected MessageID in validation errors, got %v", errs)
	}
}

func TestSessionRename_ValidatesRequest(t *testing.T) {
	h := handler.NewSessionHandler(nil)
	conversationID := uuid.New().String()

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/chats/"+conversationID+"/rename", strings.NewReader(`{"title": ""}`))
	req = authenticated(req, uuid.New(), conversationID)
	w := httptest.NewRecorder()

	h.Rename(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestSessionGet_RejectsBadConversationID(t *testing.T) {
	h := handler.NewSessionHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats/not-a-uuid", nil)
	req = authenticated(req, uuid.New(), "not-a-uuid")
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}
