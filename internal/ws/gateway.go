package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mvailland/cyrano/internal/config"
	"github.com/mvailland/cyrano/internal/domain"
	"github.com/mvailland/cyrano/internal/security"
	"github.com/mvailland/cyrano/internal/service"
)

// inboundTimeout bounds the synchronous half of a chat turn. Generation
// itself runs on its own clock.
const inboundTimeout = 15 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Gateway upgrades connections, authenticates them, replays history and
// routes inbound frames into the responder.
type Gateway struct {
	hub       *Hub
	responder *service.Responder
	chat      *service.ChatService
	verifier  *security.TokenVerifier
	cfg       config.WSConfig
}

// NewGateway creates a new websocket gateway
func NewGateway(hub *Hub, responder *service.Responder, chat *service.ChatService, verifier *security.TokenVerifier, cfg config.WSConfig) *Gateway {
	return &Gateway{
		hub:       hub,
		responder: responder,
		chat:      chat,
		verifier:  verifier,
		cfg:       cfg,
	}
}

// RegisterRoutes registers the websocket endpoints
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", g.HandleChat)
	r.Get("/ws/chat/{conversationID}", g.HandleChat)
}

// HandleChat serves one chat connection. The token rides the query string
// because browsers cannot set headers on websocket dials. Rejections
// happen after the upgrade so the client gets an error event and a
// distinguishing close code instead of a failed handshake.
func (g *Gateway) HandleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	user, err := g.verifier.Verify(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		g.reject(conn, "", "unauthorized", "authentication required", CloseUnauthorized)
		return
	}

	client := newClient(g.hub, g, conn, user.ID, g.cfg)

	// A conversation in the path means the client wants a replay before
	// anything else happens on this connection.
	var replay *Envelope
	var replayCID uuid.UUID
	if raw := chi.URLParam(r, "conversationID"); raw != "" {
		cid, err := uuid.Parse(raw)
		if err != nil {
			g.reject(conn, raw, "not_found", "unknown conversation", CloseUnknownSession)
			return
		}
		history, err := g.chat.History(r.Context(), user.ID, cid)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnauthorized) {
				g.reject(conn, cid.String(), "not_found", "unknown conversation", CloseUnknownSession)
			} else {
				log.Error().Err(err).Msg("failed to load history for replay")
				g.reject(conn, cid.String(), "internal", "something went wrong", websocket.CloseInternalServerErr)
			}
			return
		}
		ev := HistoryEvent(cid, history)
		replay = &ev
		replayCID = cid
	}

	g.hub.Register(client)
	if replay != nil {
		g.hub.Subscribe(client, replayCID)
	}

	go client.WritePump()
	go client.ReadPump()

	if replay != nil {
		client.Send(*replay)
	}
}

// handleFrame processes one inbound frame from the read pump.
func (g *Gateway) handleFrame(c *Client, raw []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.Send(ErrorEvent("", "invalid_frame", "malformed frame"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()

	sess, msg, err := g.responder.HandleInbound(ctx, c.userID, service.InboundMessage{
		ConversationID: frame.ConversationID,
		TargetID:       frame.TargetID,
		Text:           frame.Message,
		Tone:           frame.Tone,
	})
	if err != nil {
		// A busy rejection still carries a persisted turn worth echoing.
		if errors.Is(err, domain.ErrBusy) && sess != nil && msg != nil {
			g.hub.Subscribe(c, sess.ConversationID)
			c.Send(MessageEvent(EventNewMessage, sess.ConversationID, msg))
		}
		cid := ""
		if sess != nil {
			cid = sess.ConversationID.String()
		} else if frame.ConversationID != nil {
			cid = frame.ConversationID.String()
		}
		c.Send(errorEventFor(cid, err))
		return
	}

	// The sender gets a direct echo; lifecycle events for the reply reach
	// the whole group via the hub.
	g.hub.Subscribe(c, sess.ConversationID)
	c.Send(MessageEvent(EventNewMessage, sess.ConversationID, msg))
}

// errorEventFor maps a service error to the wire. Internal details never
// leave the server.
func errorEventFor(conversationID string, err error) Envelope {
	code := errorCode(err)
	message := err.Error()
	if code == "internal" {
		message = "something went wrong"
	}
	return ErrorEvent(conversationID, code, message)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, domain.ErrMessageTooLong):
		return "message_too_long"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, domain.ErrUploadQuota):
		return "upload_limit"
	case errors.Is(err, domain.ErrTooManyRequests):
		return "too_many_requests"
	case errors.Is(err, domain.ErrBusy):
		return "busy"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}

// reject closes a connection the gateway will not serve: one error event,
// one close frame with a code the client can match on, then hang up.
func (g *Gateway) reject(conn *websocket.Conn, conversationID, code, message string, closeCode int) {
	deadline := time.Now().Add(g.cfg.WriteWait)
	if data, err := json.Marshal(ErrorEvent(conversationID, code, message)); err == nil {
		conn.SetWriteDeadline(deadline)
		conn.WriteMessage(websocket.TextMessage, data)
	}
	conn.SetWriteDeadline(deadline)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, code))
	conn.Close()
}
