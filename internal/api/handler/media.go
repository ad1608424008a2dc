package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mvailland/cyrano/internal/api/middleware"
	"github.com/mvailland/cyrano/internal/api/response"
	"github.com/mvailland/cyrano/internal/domain"
	"github.com/mvailland/cyrano/internal/service"
	"github.com/rs/zerolog/log"
)

// MediaHandler handles media upload and extraction intake endpoints
type MediaHandler struct {
	mediaService *service.MediaService
	responder    *service.Responder
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(mediaService *service.MediaService, responder *service.Responder) *MediaHandler {
	return &MediaHandler{mediaService: mediaService, responder: responder}
}

// Upload attaches an already stored media object to a conversation
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
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
		MediaURL  string `json:"media_url" validate:"required,url"`
		MediaType string `json:"media_type" validate:"required,oneof=image voice"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, validationMessages(err))
		return
	}

	msg, err := h.mediaService.HandleUpload(r.Context(), userID, conversationID, service.UploadInput{
		MediaURL:  req.MediaURL,
		MediaType: domain.MediaType(req.MediaType),
		Text:      req.Text,
	})
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.Created(w, msg)
}

// Results ingests an extraction result from the OCR or transcription
// worker. A transcript flagged with respond re-enters the reply cycle as
// the user's turn; failures there are logged, the extraction still lands.
func (h *MediaHandler) Results(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID uuid.UUID `json:"message_id" validate:"required"`
		Text      string    `json:"text"`
		Respond   bool      `json:"respond"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, validationMessages(err))
		return
	}

	msg, sess, err := h.mediaService.CompleteExtraction(r.Context(), req.MessageID, req.Text)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	if req.Respond && sess != nil && msg.MediaType != nil && *msg.MediaType == domain.MediaVoice {
		if err := h.responder.Respond(r.Context(), sess, msg); err != nil {
			log.Warn().Err(err).
				Str("message_id", msg.ID.String()).
				Msg("transcript did not start a reply cycle")
		}
	}

	response.OK(w, msg)
}
