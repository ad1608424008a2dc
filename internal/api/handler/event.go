package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mvailland/cyrano/internal/api/middleware"
	"github.com/mvailland/cyrano/internal/api/response"
	"github.com/mvailland/cyrano/internal/service"
)

// EventHandler handles detected event endpoints
type EventHandler struct {
	eventService *service.EventService
}

// NewEventHandler creates a new event handler
func NewEventHandler(eventService *service.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

// List returns the caller's detected events, upcoming first
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "user ID not found")
		return
	}

	includeCancelled := r.URL.Query().Get("include_cancelled") == "true"

	events, err := h.eventService.List(r.Context(), userID, includeCancelled)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, events)
}

// Confirm marks a detected event as confirmed
func (h *EventHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "user ID not found")
		return
	}

	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		response.BadRequest(w, "invalid event ID")
		return
	}

	if err := h.eventService.Confirm(r.Context(), eventID, userID); err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, map[string]string{"message": "Event confirmed"})
}

// Cancel marks a detected event as cancelled
func (h *EventHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "user ID not found")
		return
	}

	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		response.BadRequest(w, "invalid event ID")
		return
	}

	if err := h.eventService.Cancel(r.Context(), eventID, userID); err != nil {
		response.DomainError(w, err)
		return
	}

	response.OK(w, map[string]string{"message": "Event cancelled"})
}
