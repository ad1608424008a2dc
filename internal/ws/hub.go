package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mvailland/cyrano/internal/domain"
	"github.com/mvailland/cyrano/internal/metrics"
)

// Hub tracks live connections and fans conversation events out to their
// subscribers. It carries no chat logic; the gateway decides what to send.
type Hub struct {
	// sessions maps a conversation to its subscribed clients.
	sessions map[uuid.UUID]map[*Client]struct{}
	clients  map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	mu       sync.RWMutex
	recorder *metrics.Recorder
}

// NewHub creates a new hub
func NewHub(recorder *metrics.Recorder) *Hub {
	return &Hub{
		sessions:   make(map[uuid.UUID]map[*Client]struct{}),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		recorder:   recorder,
	}
}

// Run processes connect and disconnect events until ctx is cancelled.
// Runs in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// Register hands a new connection to the hub.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister detaches a connection; called once from the read pump on exit.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.recorder.ConnOpened()
	log.Info().Str("user_id", c.userID.String()).Msg("WebSocket client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for cid := range c.subs {
		if subs, ok := h.sessions[cid]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.sessions, cid)
			}
		}
	}
	close(c.send)
	h.recorder.ConnClosed()
	log.Info().Str("user_id", c.userID.String()).Msg("WebSocket client disconnected")
}

// Subscribe adds the client to a conversation's fan-out group. Safe to
// call repeatedly.
func (h *Hub) Subscribe(c *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[conversationID] == nil {
		h.sessions[conversationID] = make(map[*Client]struct{})
	}
	h.sessions[conversationID][c] = struct{}{}
	c.subs[conversationID] = struct{}{}
}

// Subscribers reports how many clients watch a conversation.
func (h *Hub) Subscribers(conversationID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[conversationID])
}

// Broadcast sends an envelope to every subscriber of the conversation.
// Slow clients lose the frame rather than stall the rest.
func (h *Hub) Broadcast(conversationID uuid.UUID, event Envelope) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.sessions[conversationID] {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("user_id", c.userID.String()).Msg("client send buffer full, dropping event")
		}
	}
	h.recorder.IncEvent(event.Type)
}

// NewMessage implements service.Broadcaster.
func (h *Hub) NewMessage(conversationID uuid.UUID, msg *domain.Message) {
	h.Broadcast(conversationID, MessageEvent(EventNewMessage, conversationID, msg))
}

// MessageUpdate implements service.Broadcaster.
func (h *Hub) MessageUpdate(conversationID uuid.UUID, msg *domain.Message) {
	h.Broadcast(conversationID, MessageEvent(EventMessageUpdate, conversationID, msg))
}
