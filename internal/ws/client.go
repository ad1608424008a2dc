package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mvailland/cyrano/internal/config"
)

// sendBuffer bounds how many queued frames a slow client may hold.
const sendBuffer = 256

// Client is one websocket connection. Frames come in through ReadPump and
// go out through WritePump; everything else talks to the client only via
// the send channel.
type Client struct {
	hub     *Hub
	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte
	userID  uuid.UUID
	cfg     config.WSConfig

	// subs is owned by the hub and guarded by its mutex.
	subs map[uuid.UUID]struct{}
}

func newClient(hub *Hub, gateway *Gateway, conn *websocket.Conn, userID uuid.UUID, cfg config.WSConfig) *Client {
	return &Client{
		hub:     hub,
		gateway: gateway,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		userID:  userID,
		cfg:     cfg,
		subs:    make(map[uuid.UUID]struct{}),
	}
}

// ReadPump reads frames until the connection dies, handing each to the
// gateway. Runs as one goroutine per client and owns all reads.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("user_id", c.userID.String()).Msg("websocket read error")
			}
			break
		}
		c.gateway.handleFrame(c, raw)
	}
}

// WritePump drains the send channel onto the wire and keeps the
// connection alive with pings. Owns all writes.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send queues an envelope for this client only. A full buffer drops the
// frame; the client catches up from history on its next replay.
func (c *Client) Send(event Envelope) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn().Str("user_id", c.userID.String()).Msg("client send buffer full, dropping event")
	}
}
