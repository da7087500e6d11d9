package model

import "time"

// User is an account. PasswordHash never leaves the server.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	AvatarColor  string    `json:"avatar_color"`
	Online       bool      `json:"online"`
	LastSeen     time.Time `json:"last_seen"`
	CreatedAt    time.Time `json:"created_at"`
}

// Conversation is a direct or group chat. Name is empty for direct
// conversations; LastActivity is bumped on every new message.
type Conversation struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name,omitempty"`
	IsGroup      bool      `json:"is_group"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Participant is the membership row between a user and a conversation.
// LastReadAt is the read watermark: everything at or before it counts as read.
type Participant struct {
	ConversationID int64     `json:"conversation_id"`
	UserID         int64     `json:"user_id"`
	JoinedAt       time.Time `json:"joined_at"`
	LastReadAt     time.Time `json:"last_read_at"`
}

// Message is one entry in a conversation's append-only log.
// SenderID is nil for system messages.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       *int64    `json:"sender_id"`
	Content        string    `json:"content"`
	IsSystem       bool      `json:"is_system"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageWithSender carries the resolved sender for display.
// Sender is nil for system messages.
type MessageWithSender struct {
	Message
	Sender *User `json:"sender,omitempty"`
}

// FriendStatus is the lifecycle state of a friend request.
type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
	FriendRejected FriendStatus = "rejected"
)

// Relation is the friendship state between two users as seen by one of them.
type Relation string

const (
	RelationNone     Relation = "none"
	RelationPending  Relation = "pending"  // I sent, awaiting their answer
	RelationReceived Relation = "received" // they sent, awaiting my answer
	RelationAccepted Relation = "accepted"
)

// FriendRequest is a directed request record. At most one logical
// relationship exists per unordered user pair; a rejected record may be
// superseded by a fresh pending one.
type FriendRequest struct {
	ID         int64        `json:"id"`
	SenderID   int64        `json:"sender_id"`
	ReceiverID int64        `json:"receiver_id"`
	Status     FriendStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
}

// FriendRequestWithUsers decorates a request with whichever party the
// caller needs resolved.
type FriendRequestWithUsers struct {
	FriendRequest
	Sender   *User `json:"sender,omitempty"`
	Receiver *User `json:"receiver,omitempty"`
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	Conversation
	Participants []User             `json:"participants"`
	LastMessage  *MessageWithSender `json:"last_message,omitempty"`
	UnreadCount  int                `json:"unread_count"`
}
