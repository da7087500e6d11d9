package gateway

import (
	"encoding/json"
	"time"
)

// Server->client event types.
const (
	EventMessage             = "message"
	EventTyping              = "typing"
	EventPresence            = "presence"
	EventConversation        = "conversation"
	EventConversationUpdate  = "conversation:update"
	EventFriendRequest       = "friendRequest"
	EventFriendRequestUpdate = "friendRequestUpdate"
)

// Client->server frame types.
const (
	FrameJoin    = "join"
	FrameTyping  = "typing"
	FrameMessage = "message"
)

// Envelope is the wire format in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func encodeEvent(eventType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Data: raw})
}

// TypingEvent is room-scoped; the server also emits a synthetic
// IsTyping=false when the sender's typing window expires.
type TypingEvent struct {
	ConversationID int64  `json:"conversation_id"`
	UserID         int64  `json:"user_id"`
	Username       string `json:"username"`
	DisplayName    string `json:"display_name"`
	IsTyping       bool   `json:"is_typing"`
}

// PresenceEvent is broadcast to every connection. LastSeen is set only on
// the offline transition.
type PresenceEvent struct {
	UserID   int64      `json:"user_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// ConversationUpdateEvent is an addressed refetch hint: a participant who
// has not joined the room still learns the conversation changed.
type ConversationUpdateEvent struct {
	ConversationID int64 `json:"conversation_id"`
}

// FriendRequestUpdateEvent is addressed to both parties of a request.
type FriendRequestUpdateEvent struct {
	RequestID  int64  `json:"request_id"`
	Status     string `json:"status"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
}

// clientFrame is the decoded inbound envelope. Unknown or malformed
// frames are logged and dropped, never fatal to the connection.
type clientFrame struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
	Content        string `json:"content"`
}
