// Package storetest holds the behavioral suite shared by every store.Store
// implementation. The postgres and memory backends must both pass it
// unchanged.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/model"
	"github.com/Devansh1501S/Chat-Sphere/internal/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the full suite against the given backend.
func Run(t *testing.T, factory Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, factory(t)) })
	t.Run("DirectConversations", func(t *testing.T) { testDirectConversations(t, factory(t)) })
	t.Run("Groups", func(t *testing.T) { testGroups(t, factory(t)) })
	t.Run("Watermarks", func(t *testing.T) { testWatermarks(t, factory(t)) })
	t.Run("Messages", func(t *testing.T) { testMessages(t, factory(t)) })
	t.Run("FriendFlow", func(t *testing.T) { testFriendFlow(t, factory(t)) })
	t.Run("FriendRequestDedup", func(t *testing.T) { testFriendRequestDedup(t, factory(t)) })
	t.Run("ConversationList", func(t *testing.T) { testConversationList(t, factory(t)) })
	t.Run("BefriendAndChat", func(t *testing.T) { testBefriendAndChat(t, factory(t)) })
	t.Run("ConcurrentDirectCreate", func(t *testing.T) { testConcurrentDirectCreate(t, factory(t)) })
}

func seedUser(t *testing.T, s store.Store, username string) *model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), username, "hash-"+username, username, "#FF6B6B")
	require.NoError(t, err)
	return u
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	assert.Equal(t, "alice", alice.Username)
	assert.NotZero(t, alice.ID)

	_, err := s.CreateUser(ctx, "alice", "other-hash", "Alice II", "#4ECDC4")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	got, err := s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.Username, got.Username)

	got, err = s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = s.GetUserByID(ctx, alice.ID+1000)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	bob := seedUser(t, s, "bob")

	// Exact match only, and never yourself.
	found, err := s.SearchUserExact(ctx, "bob", alice.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, found.ID)

	_, err = s.SearchUserExact(ctx, "bo", alice.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = s.SearchUserExact(ctx, "alice", alice.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	all, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.SetUserOnline(ctx, alice.ID, true, time.Time{}))
	got, err = s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, got.Online)

	seen := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SetUserOnline(ctx, alice.ID, false, seen))
	got, err = s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, got.Online)
	assert.False(t, got.LastSeen.Before(seen))

	err = s.SetUserOnline(ctx, alice.ID+1000, true, time.Time{})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func testDirectConversations(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	conv, created, err := s.FindOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, conv.IsGroup)

	// Same pair in either order resolves to the same conversation.
	again, created, err := s.FindOrCreateDirect(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)

	members, err := s.ListParticipants(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, alice.ID, members[0].ID)
	assert.Equal(t, bob.ID, members[1].ID)

	for _, id := range []int64{alice.ID, bob.ID} {
		in, err := s.IsParticipant(ctx, id, conv.ID)
		require.NoError(t, err)
		assert.True(t, in)
	}

	carol := seedUser(t, s, "carol")
	in, err := s.IsParticipant(ctx, carol.ID, conv.ID)
	require.NoError(t, err)
	assert.False(t, in)

	// A distinct pair gets a distinct conversation.
	other, created, err := s.FindOrCreateDirect(ctx, alice.ID, carol.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, conv.ID, other.ID)

	_, _, err = s.FindOrCreateDirect(ctx, alice.ID, alice.ID)
	assert.Error(t, err)
}

func testGroups(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	carol := seedUser(t, s, "carol")

	conv, err := s.CreateConversation(ctx, alice.ID, []int64{bob.ID, carol.ID, bob.ID}, true, "weekend plans")
	require.NoError(t, err)
	assert.True(t, conv.IsGroup)
	assert.Equal(t, "weekend plans", conv.Name)

	members, err := s.ListParticipants(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	dave := seedUser(t, s, "dave")
	require.NoError(t, s.AddParticipant(ctx, conv.ID, dave.ID))
	require.NoError(t, s.AddParticipant(ctx, conv.ID, dave.ID)) // idempotent

	members, err = s.ListParticipants(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, members, 4)

	// Groups never collide with direct lookups for overlapping pairs.
	_, created, err := s.FindOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, created)

	// A member id that does not exist fails the whole creation; no
	// conversation is left behind with the ghost silently dropped.
	ghost := dave.ID + 1000
	_, err = s.CreateConversation(ctx, alice.ID, []int64{bob.ID, ghost}, true, "ghost group")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = s.CreateConversation(ctx, ghost, []int64{bob.ID}, true, "ghost creator")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func testWatermarks(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	conv, _, err := s.FindOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.AppendMessage(ctx, conv.ID, &alice.ID, fmt.Sprintf("hello %d", i), false)
		require.NoError(t, err)
	}

	unread, err := s.UnreadCount(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	// Reading as bob leaves alice's watermark alone.
	require.NoError(t, s.MarkRead(ctx, bob.ID, conv.ID))

	unread, err = s.UnreadCount(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	unread, err = s.UnreadCount(ctx, alice.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	_, err = s.AppendMessage(ctx, conv.ID, &alice.ID, "one more", false)
	require.NoError(t, err)

	unread, err = s.UnreadCount(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	// MarkRead is idempotent.
	require.NoError(t, s.MarkRead(ctx, bob.ID, conv.ID))
	require.NoError(t, s.MarkRead(ctx, bob.ID, conv.ID))
	unread, err = s.UnreadCount(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	carol := seedUser(t, s, "carol")
	err = s.MarkRead(ctx, carol.ID, conv.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func testMessages(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	conv, _, err := s.FindOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := s.AppendMessage(ctx, conv.ID, &alice.ID, fmt.Sprintf("msg %d", i), false)
		require.NoError(t, err)
	}

	// The window keeps the most recent N, oldest first.
	msgs, err := s.ListMessages(ctx, conv.ID, 4)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "msg 6", msgs[0].Content)
	assert.Equal(t, "msg 9", msgs[3].Content)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
	require.NotNil(t, msgs[0].Sender)
	assert.Equal(t, "alice", msgs[0].Sender.Username)

	// Non-positive limits fall back to the default window.
	msgs, err = s.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 10)

	// System messages carry no sender.
	_, err = s.AppendMessage(ctx, conv.ID, nil, store.SystemFriendsMessage, true)
	require.NoError(t, err)
	msgs, err = s.ListMessages(ctx, conv.ID, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsSystem)
	assert.Nil(t, msgs[0].SenderID)
	assert.Nil(t, msgs[0].Sender)

	_, err = s.ListMessages(ctx, conv.ID+1000, 10)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// Last activity only moves forward.
	at := time.Now().UTC().Add(time.Minute)
	require.NoError(t, s.BumpLastActivity(ctx, conv.ID, at))
	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, got.LastActivity.Before(at.Truncate(time.Second)))

	require.NoError(t, s.BumpLastActivity(ctx, conv.ID, at.Add(-time.Hour)))
	after, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, got.LastActivity.Unix(), after.LastActivity.Unix())
}

func testFriendFlow(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	friends, err := s.AreFriends(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, friends)

	req, created, err := s.SendFriendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.FriendPending, req.Status)

	pending, err := s.ListPendingReceived(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].Sender)
	assert.Equal(t, "alice", pending[0].Sender.Username)

	sent, err := s.ListSentRequests(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0].Receiver)
	assert.Equal(t, "bob", sent[0].Receiver.Username)

	accepted, conv, msg, err := s.AcceptFriendRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FriendAccepted, accepted.Status)
	require.NotNil(t, conv)
	assert.False(t, conv.IsGroup)
	require.NotNil(t, msg)
	assert.True(t, msg.IsSystem)
	assert.Equal(t, store.SystemFriendsMessage, msg.Content)
	assert.Nil(t, msg.SenderID)

	// Acceptance materialized the direct conversation with the greeting.
	found, created, err := s.FindOrCreateDirect(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, found.ID)

	msgs, err := s.ListMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.SystemFriendsMessage, msgs[0].Content)

	// Friendship is symmetric, and double-accept conflicts.
	for _, pair := range [][2]int64{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		friends, err := s.AreFriends(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, friends)
	}

	_, _, _, err = s.AcceptFriendRequest(ctx, req.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	_, err = s.RejectFriendRequest(ctx, req.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	pending, err = s.ListPendingReceived(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, _, _, err = s.AcceptFriendRequest(ctx, req.ID+1000)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func testFriendRequestDedup(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	req, created, err := s.SendFriendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.True(t, created)

	// Resending, in either direction, returns the live record.
	dup, created, err := s.SendFriendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, req.ID, dup.ID)

	dup, created, err = s.SendFriendRequest(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, req.ID, dup.ID)

	// A rejection clears the way for a fresh request.
	_, err = s.RejectFriendRequest(ctx, req.ID)
	require.NoError(t, err)

	fresh, created, err := s.SendFriendRequest(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, req.ID, fresh.ID)
	assert.Equal(t, model.FriendPending, fresh.Status)

	// An accepted pair blocks further requests.
	_, _, _, err = s.AcceptFriendRequest(ctx, fresh.ID)
	require.NoError(t, err)

	_, created, err = s.SendFriendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, created)
}

func testConversationList(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	carol := seedUser(t, s, "carol")

	withBob, _, err := s.FindOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	withCarol, _, err := s.FindOrCreateDirect(ctx, alice.ID, carol.ID)
	require.NoError(t, err)

	msg, err := s.AppendMessage(ctx, withBob.ID, &bob.ID, "ping", false)
	require.NoError(t, err)
	require.NoError(t, s.BumpLastActivity(ctx, withBob.ID, msg.CreatedAt))

	summaries, err := s.ListConversations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Newest activity first: bob's conversation got the message.
	assert.Equal(t, withBob.ID, summaries[0].ID)
	assert.Equal(t, 1, summaries[0].UnreadCount)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "ping", summaries[0].LastMessage.Content)
	require.NotNil(t, summaries[0].LastMessage.Sender)
	assert.Equal(t, "bob", summaries[0].LastMessage.Sender.Username)
	assert.Len(t, summaries[0].Participants, 2)

	assert.Equal(t, withCarol.ID, summaries[1].ID)
	assert.Equal(t, 0, summaries[1].UnreadCount)
	assert.Nil(t, summaries[1].LastMessage)

	// Carol only sees her own conversation.
	carols, err := s.ListConversations(ctx, carol.ID)
	require.NoError(t, err)
	require.Len(t, carols, 1)
	assert.Equal(t, withCarol.ID, carols[0].ID)
}

// testBefriendAndChat walks the whole first-contact flow end to end.
func testBefriendAndChat(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	req, created, err := s.SendFriendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.True(t, created)

	_, conv, sysMsg, err := s.AcceptFriendRequest(ctx, req.ID)
	require.NoError(t, err)

	// Exactly one direct conversation with exactly the greeting in it.
	msgs, err := s.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.SystemFriendsMessage, msgs[0].Content)
	assert.Equal(t, sysMsg.ID, msgs[0].ID)

	require.NoError(t, s.MarkRead(ctx, bob.ID, conv.ID))

	msg, err := s.AppendMessage(ctx, conv.ID, &alice.ID, "hi", false)
	require.NoError(t, err)
	require.NoError(t, s.BumpLastActivity(ctx, conv.ID, msg.CreatedAt))

	unread, err := s.UnreadCount(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	require.NoError(t, s.MarkRead(ctx, bob.ID, conv.ID))
	unread, err = s.UnreadCount(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, got.LastActivity.Before(msg.CreatedAt.Truncate(time.Second)))
}

func testConcurrentDirectCreate(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	const workers = 8
	ids := make([]int64, workers)
	createdCount := make([]bool, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice.ID, bob.ID
			if i%2 == 1 {
				a, b = b, a
			}
			conv, created, err := s.FindOrCreateDirect(ctx, a, b)
			if err != nil {
				return
			}
			ids[i] = conv.ID
			createdCount[i] = created
		}(i)
	}
	wg.Wait()

	var winner int64
	creations := 0
	for i := 0; i < workers; i++ {
		require.NotZero(t, ids[i], "worker %d failed", i)
		if winner == 0 {
			winner = ids[i]
		}
		assert.Equal(t, winner, ids[i])
		if createdCount[i] {
			creations++
		}
	}
	assert.Equal(t, 1, creations)

	members, err := s.ListParticipants(ctx, winner)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}
