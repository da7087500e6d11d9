package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // time allowed to write a message to the peer
	pongWait       = 60 * time.Second    // time allowed to read the next pong
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 4096

	// frameTimeout bounds the storage work triggered by one inbound frame.
	// It is deliberately independent of the connection: a disconnect never
	// cancels a write already in flight.
	frameTimeout = 10 * time.Second
)

// Client is the middleman between one websocket connection and the hub.
// The hub owns the rooms set; the pumps never touch it.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	UserID      int64
	Username    string
	DisplayName string

	rooms map[int64]bool
}

// readPump pumps frames from the connection to the hub. Malformed frames
// are logged and dropped; only read errors end the connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("websocket read error")
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.hub.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("malformed frame dropped")
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame clientFrame) {
	switch frame.Type {
	case FrameJoin:
		ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
		ok, err := c.hub.chats.IsParticipant(ctx, c.UserID, frame.ConversationID)
		cancel()
		if err != nil {
			c.hub.log.Error().Err(err).Int64("user_id", c.UserID).Msg("join authorization failed")
			return
		}
		if !ok {
			c.hub.log.Warn().Int64("user_id", c.UserID).
				Int64("conversation_id", frame.ConversationID).Msg("join denied")
			return
		}
		c.hub.joins <- joinRequest{client: c, conversationID: frame.ConversationID}

	case FrameTyping:
		c.hub.typingC <- typingSignal{client: c, conversationID: frame.ConversationID, isTyping: frame.IsTyping}

	case FrameMessage:
		ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
		_, err := c.hub.chats.Send(ctx, c.UserID, frame.ConversationID, frame.Content)
		cancel()
		if err != nil {
			c.hub.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("websocket send rejected")
		}

	default:
		c.hub.log.Warn().Str("type", frame.Type).Int64("user_id", c.UserID).Msg("unknown frame type dropped")
	}
}

// writePump pumps events from the hub to the connection and keeps the
// heartbeat going.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
