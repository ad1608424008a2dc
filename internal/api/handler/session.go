package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mvailland/cyrano/internal/api/middleware"
	"github.com/mvailland/cyrano/internal/api/response"
	"github.com/mvailland/cyrano/internal/service"
)

// SessionHandler handles chat session endpoints
type SessionHandler struct {
	chatService *service.ChatService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(chatService *service.ChatService) *SessionHandler {
	return &SessionHandler{chatService: chatService}
}

// List returns the caller's sessions, most recently active first
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "user ID not found")
		return
	}

	limit := 20
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	sessions, err := h.chatService.ListSessions(r.Context(), userID, limit, offset)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, sessions)
}

// Create starts a new session, optionally pinned to a saved profile
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "user ID not found")
		return
	}

	var req struct {
		TargetID *uuid.UUID `json:"target_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Optional body
	}

	session, err := h.chatService.StartSession(r.Context(), userID, req.TargetID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.Created(w, session)
}

// Get returns the detail view for one conversation
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "user ID not found")
		return
	}

	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		response.BadRequest(w, "invalid conversation ID")
		return
	}

	detail, err := h.chatService.GetDetail(r.Context(), userID, conversationID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, detail)
}

// GetHistory returns the recent message window, oldest first
func (h *SessionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "user ID not found")
		return
	}

	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		response.BadRequest(w, "invalid conversation ID")
		return
	}

	history, err := h.chatService.History(r.Context(), userID, conversationID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, history)
}

// Rename sets a session title
func (h *SessionHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "user ID not found")
		return
	}

	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		response.BadRequest(w, "invalid conversation ID")
		return
	}

	var req struct {
		Title string `json:"title" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, validationMessages(err))
		return
	}

	session, err := h.chatService.Rename(r.Context(), userID, conversationID, req.Title)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, session)
}

// Delete removes one conversation and its messages
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "user ID not found")
		return
	}

	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		response.BadRequest(w, "invalid conversation ID")
		return
	}

	if err := h.chatService.Delete(r.Context(), userID, conversationID); err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, map[string]string{"message": "Session deleted"})
}

// DeleteAll clears every conversation for the caller
func (h *SessionHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "user ID not found")
		return
	}

	deleted, err := h.chatService.DeleteAll(r.Context(), userID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, map[string]any{"deleted": deleted})
}

// RebuildPreview recomputes a session's counters and preview from its
// message table
func (h *SessionHandler) RebuildPreview(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "user ID not found")
		return
	}

	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		response.BadRequest(w, "invalid conversation ID")
		return
	}

	session, err := h.chatService.RebuildPreview(r.Context(), userID, conversationID)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, session)
}
