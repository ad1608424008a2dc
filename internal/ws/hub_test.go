package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/mvailland/cyrano/internal/domain"
	"github.com/mvailland/cyrano/internal/metrics"
)

func newTestHub() *Hub {
	return NewHub(metrics.NewRecorder(prometheus.NewRegistry()))
}

func newTestClient(buffer int) *Client {
	return &Client{
		send:   make(chan []byte, buffer),
		userID: uuid.New(),
		subs:   make(map[uuid.UUID]struct{}),
	}
}

func clientCount(h *Hub) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func readFrame(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.send:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
		return nil
	}
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	hub := newTestHub()
	conversationID := uuid.New()
	otherID := uuid.New()

	subscriber := newTestClient(4)
	bystander := newTestClient(4)
	hub.add(subscriber)
	hub.add(bystander)
	hub.Subscribe(subscriber, conversationID)
	hub.Subscribe(bystander, otherID)

	assert.Equal(t, 1, hub.Subscribers(conversationID))
	assert.Equal(t, 1, hub.Subscribers(otherID))

	msg := &domain.Message{ID: uuid.New(), Role: domain.RoleAssistant, Content: "hello"}
	hub.Broadcast(conversationID, MessageEvent(EventNewMessage, conversationID, msg))

	var envelope struct {
		Type           string `json:"type"`
		ConversationID string `json:"conversation_id"`
	}
	assert.NoError(t, json.Unmarshal(readFrame(t, subscriber), &envelope))
	assert.Equal(t, EventNewMessage, envelope.Type)
	assert.Equal(t, conversationID.String(), envelope.ConversationID)

	select {
	case <-bystander.send:
		t.Fatal("frame leaked to a client on another conversation")
	default:
	}
}

func TestHub_BroadcastDropsSlowClient(t *testing.T) {
	hub := newTestHub()
	conversationID := uuid.New()

	slow := newTestClient(1)
	hub.add(slow)
	hub.Subscribe(slow, conversationID)

	msg := &domain.Message{ID: uuid.New(), Role: domain.RoleAssistant, Content: "hello"}
	hub.Broadcast(conversationID, MessageEvent(EventNewMessage, conversationID, msg))

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Buffer is full now; a second broadcast must not block.
		hub.Broadcast(conversationID, MessageEvent(EventNewMessage, conversationID, msg))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a full client buffer")
	}

	assert.Len(t, slow.send, 1)
}

func TestHub_RemoveCleansUp(t *testing.T) {
	hub := newTestHub()
	conversationID := uuid.New()

	client := newTestClient(4)
	hub.add(client)
	hub.Subscribe(client, conversationID)
	assert.Equal(t, 1, hub.Subscribers(conversationID))

	hub.remove(client)

	assert.Equal(t, 0, clientCount(hub))
	assert.Equal(t, 0, hub.Subscribers(conversationID))

	_, open := <-client.send
	assert.False(t, open, "send channel should be closed on removal")

	// Removing twice is harmless.
	hub.remove(client)
}

func TestHub_RunLifecycle(t *testing.T) {
	hub := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		hub.Run(ctx)
	}()

	client := newTestClient(4)
	hub.Register(client)
	assert.Eventually(t, func() bool { return clientCount(hub) == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Unregister(client)
	assert.Eventually(t, func() bool { return clientCount(hub) == 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop on context cancellation")
	}
}
