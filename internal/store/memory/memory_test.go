package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devansh1501S/Chat-Sphere/internal/store"
	"github.com/Devansh1501S/Chat-Sphere/internal/store/storetest"
)

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := New("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, newStore)
}

func TestSnapshotReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.json")

	s, err := New(path, zerolog.Nop())
	require.NoError(t, err)

	alice, err := s.CreateUser(ctx, "alice", "$2a$10$alice-bcrypt-hash", "Alice", "#FF6B6B")
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob", "$2a$10$bob-bcrypt-hash", "Bob", "#4ECDC4")
	require.NoError(t, err)

	req, _, err := s.SendFriendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, conv, _, err := s.AcceptFriendRequest(ctx, req.ID)
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, conv.ID, &alice.ID, "hello bob", false)
	require.NoError(t, err)
	require.NoError(t, s.MarkRead(ctx, bob.ID, conv.ID))
	require.NoError(t, s.Close())

	// A fresh store on the same path sees everything, including watermarks
	// and id counters.
	reloaded, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	defer reloaded.Close()

	got, err := reloaded.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	// The hash is invisible on the wire but must round-trip to disk, or
	// every login breaks after a restart.
	assert.Equal(t, "$2a$10$alice-bcrypt-hash", got.PasswordHash)

	friends, err := reloaded.AreFriends(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, friends)

	msgs, err := reloaded.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.SystemFriendsMessage, msgs[0].Content)
	assert.Equal(t, "hello bob", msgs[1].Content)

	unread, err := reloaded.UnreadCount(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
	unread, err = reloaded.UnreadCount(ctx, alice.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	// New ids continue past the reloaded counters.
	carol, err := reloaded.CreateUser(ctx, "carol", "hash", "Carol", "#45B7D1")
	require.NoError(t, err)
	assert.Greater(t, carol.ID, bob.ID)
}
