// Package store defines the storage capability consumed by every feature.
// Two implementations exist, postgres and memory; they must be
// behaviorally identical and the storetest suite runs against both.
package store

import (
	"context"
	"time"

	"github.com/Devansh1501S/Chat-Sphere/internal/model"
)

// SystemFriendsMessage is appended to the direct conversation created when
// a friend request is accepted.
const SystemFriendsMessage = "You both are friends now"

// DefaultMessageWindow is the message window size used when callers pass a
// non-positive limit.
const DefaultMessageWindow = 100

// Store is the single source of truth for users, conversations,
// participants, messages and friend requests. Every call is a
// self-contained read or write and is safe for concurrent use.
//
// Errors outside the happy path are apperr values: KindNotFound for
// unknown ids, KindConflict for uniqueness violations and invalid
// lifecycle transitions.
type Store interface {
	// Users

	// CreateUser inserts a new account. Fails with KindConflict when the
	// username is taken.
	CreateUser(ctx context.Context, username, passwordHash, displayName, avatarColor string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	// SearchUserExact returns the single user with exactly the given
	// username, excluding excludeID. Exact match only; substring search is
	// deliberately not offered.
	SearchUserExact(ctx context.Context, username string, excludeID int64) (*model.User, error)
	// SetUserOnline flips the online flag. lastSeen is recorded when
	// going offline.
	SetUserOnline(ctx context.Context, userID int64, online bool, lastSeen time.Time) error

	// Conversations

	// CreateConversation creates the conversation and adds the creator plus
	// the listed participants (deduplicated) as members.
	CreateConversation(ctx context.Context, creatorID int64, participantIDs []int64, isGroup bool, name string) (*model.Conversation, error)
	GetConversation(ctx context.Context, id int64) (*model.Conversation, error)
	// FindOrCreateDirect returns the direct conversation between a and b,
	// creating it (with both memberships) when absent. Exactly one such
	// conversation exists per pair, including under concurrent calls.
	// The second result reports whether it was created by this call.
	FindOrCreateDirect(ctx context.Context, a, b int64) (*model.Conversation, bool, error)
	AddParticipant(ctx context.Context, conversationID, userID int64) error
	ListParticipants(ctx context.Context, conversationID int64) ([]model.User, error)
	IsParticipant(ctx context.Context, userID, conversationID int64) (bool, error)
	// MarkRead advances the caller's read watermark to now. Idempotent;
	// never touches other participants' watermarks.
	MarkRead(ctx context.Context, userID, conversationID int64) error
	// UnreadCount counts messages strictly newer than the user's watermark.
	UnreadCount(ctx context.Context, userID, conversationID int64) (int, error)
	BumpLastActivity(ctx context.Context, conversationID int64, at time.Time) error
	// ListConversations returns the user's conversations with participants,
	// last message and unread count, newest activity first.
	ListConversations(ctx context.Context, userID int64) ([]model.ConversationSummary, error)

	// Messages

	// AppendMessage inserts one message. senderID nil marks a system
	// message. Callers bump last activity separately.
	AppendMessage(ctx context.Context, conversationID int64, senderID *int64, content string, isSystem bool) (*model.Message, error)
	// ListMessages returns the most recent limit messages in ascending
	// timestamp order (ties broken by insertion order).
	ListMessages(ctx context.Context, conversationID int64, limit int) ([]model.MessageWithSender, error)

	// Friends

	// SendFriendRequest creates a pending request from sender to receiver.
	// When a pending or accepted relationship already exists between the
	// pair (either direction) the existing record is returned unchanged and
	// created is false. A rejected record does not block a fresh request.
	SendFriendRequest(ctx context.Context, senderID, receiverID int64) (req *model.FriendRequest, created bool, err error)
	GetFriendRequest(ctx context.Context, id int64) (*model.FriendRequest, error)
	// AcceptFriendRequest atomically marks the pending request accepted,
	// finds or creates the direct conversation between the pair and appends
	// the SystemFriendsMessage to it. Fails with KindConflict when the
	// request is not pending.
	AcceptFriendRequest(ctx context.Context, id int64) (*model.FriendRequest, *model.Conversation, *model.Message, error)
	// RejectFriendRequest marks a pending request rejected.
	RejectFriendRequest(ctx context.Context, id int64) (*model.FriendRequest, error)
	ListPendingReceived(ctx context.Context, userID int64) ([]model.FriendRequestWithUsers, error)
	ListSentRequests(ctx context.Context, userID int64) ([]model.FriendRequestWithUsers, error)
	AreFriends(ctx context.Context, a, b int64) (bool, error)

	// Close releases resources and, for the memory backend, flushes the
	// snapshot.
	Close() error
}
