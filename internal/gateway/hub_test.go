package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devansh1501S/Chat-Sphere/internal/chat"
	"github.com/Devansh1501S/Chat-Sphere/internal/model"
	"github.com/Devansh1501S/Chat-Sphere/internal/store"
	"github.com/Devansh1501S/Chat-Sphere/internal/store/memory"
)

func newTestHub(t *testing.T, typingWindow time.Duration) (*Hub, store.Store) {
	t.Helper()
	st, err := memory.New("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	chats := chat.NewService(st, 100, zerolog.Nop())
	h := NewHub(st, chats, nil, typingWindow, zerolog.Nop())
	chats.SetNotifier(h)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h, st
}

func newTestClient(h *Hub, u *model.User) *Client {
	return &Client{
		hub:         h,
		send:        make(chan []byte, 16),
		UserID:      u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		rooms:       make(map[int64]bool),
	}
}

func seedUser(t *testing.T, st store.Store, username string) *model.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), username, "hash", username, "#E0533D")
	require.NoError(t, err)
	return u
}

// recv waits for one event on the client's send channel.
func recv(t *testing.T, c *Client, within time.Duration) Envelope {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var env Envelope
		require.NoError(t, json.Unmarshal(payload, &env))
		return env
	case <-time.After(within):
		t.Fatal("timed out waiting for event")
		return Envelope{}
	}
}

// expectNone asserts the client receives nothing for the given window.
func expectNone(t *testing.T, c *Client, within time.Duration) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected event: %s", payload)
	case <-time.After(within):
	}
}

func TestPresenceFirstUpLastDown(t *testing.T) {
	h, st := newTestHub(t, time.Second)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	watcher := newTestClient(h, bob)
	h.register <- watcher
	recv(t, watcher, time.Second) // bob's own online broadcast

	// First connection flips alice online, exactly once.
	conn1 := newTestClient(h, alice)
	h.register <- conn1

	env := recv(t, watcher, time.Second)
	assert.Equal(t, EventPresence, env.Type)
	var ev PresenceEvent
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, alice.ID, ev.UserID)
	assert.True(t, ev.IsOnline)
	assert.Nil(t, ev.LastSeen)

	got, err := st.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, got.Online)

	// A second connection for the same user is silent.
	conn2 := newTestClient(h, alice)
	h.register <- conn2
	expectNone(t, watcher, 50*time.Millisecond)

	// Dropping one of two connections is also silent.
	h.unregister <- conn1
	expectNone(t, watcher, 50*time.Millisecond)

	// The last connection going away flips alice offline with a last-seen.
	h.unregister <- conn2
	env = recv(t, watcher, time.Second)
	assert.Equal(t, EventPresence, env.Type)
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, alice.ID, ev.UserID)
	assert.False(t, ev.IsOnline)
	require.NotNil(t, ev.LastSeen)

	got, err = st.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, got.Online)
}

func TestTypingFanOutExcludesTypist(t *testing.T) {
	h, st := newTestHub(t, time.Hour) // expiry out of the picture
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	conv, _, err := st.FindOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	aliceConn := newTestClient(h, alice)
	bobConn := newTestClient(h, bob)
	h.register <- aliceConn
	h.register <- bobConn
	h.joins <- joinRequest{client: aliceConn, conversationID: conv.ID}
	h.joins <- joinRequest{client: bobConn, conversationID: conv.ID}
	drainPresence(aliceConn)
	drainPresence(bobConn)

	h.typingC <- typingSignal{client: aliceConn, conversationID: conv.ID, isTyping: true}

	env := recv(t, bobConn, time.Second)
	assert.Equal(t, EventTyping, env.Type)
	var ev TypingEvent
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, alice.ID, ev.UserID)
	assert.Equal(t, conv.ID, ev.ConversationID)
	assert.True(t, ev.IsTyping)

	// The typist never hears their own indicator.
	expectNone(t, aliceConn, 50*time.Millisecond)

	// An explicit stop reaches the room and cancels the expiry timer.
	h.typingC <- typingSignal{client: aliceConn, conversationID: conv.ID, isTyping: false}
	env = recv(t, bobConn, time.Second)
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.False(t, ev.IsTyping)
}

func TestTypingAutoExpiry(t *testing.T) {
	window := 80 * time.Millisecond
	h, st := newTestHub(t, window)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	conv, _, err := st.FindOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	aliceConn := newTestClient(h, alice)
	bobConn := newTestClient(h, bob)
	h.register <- aliceConn
	h.register <- bobConn
	h.joins <- joinRequest{client: aliceConn, conversationID: conv.ID}
	h.joins <- joinRequest{client: bobConn, conversationID: conv.ID}
	drainPresence(aliceConn)
	drainPresence(bobConn)

	// Two keystrokes inside the window refresh the timer; bob sees two
	// starts and then exactly one synthetic stop.
	h.typingC <- typingSignal{client: aliceConn, conversationID: conv.ID, isTyping: true}
	time.Sleep(window / 2)
	h.typingC <- typingSignal{client: aliceConn, conversationID: conv.ID, isTyping: true}

	for i := 0; i < 2; i++ {
		env := recv(t, bobConn, time.Second)
		var ev TypingEvent
		require.NoError(t, json.Unmarshal(env.Data, &ev))
		assert.True(t, ev.IsTyping)
	}

	env := recv(t, bobConn, time.Second)
	assert.Equal(t, EventTyping, env.Type)
	var ev TypingEvent
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.False(t, ev.IsTyping)

	expectNone(t, bobConn, 2*window)
}

func TestMessageFanOut(t *testing.T) {
	h, st := newTestHub(t, time.Hour)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	conv, _, err := st.FindOrCreateDirect(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	// Bob is in the room; alice is connected but has not joined it.
	aliceConn := newTestClient(h, alice)
	bobConn := newTestClient(h, bob)
	h.register <- aliceConn
	h.register <- bobConn
	h.joins <- joinRequest{client: bobConn, conversationID: conv.ID}
	drainPresence(aliceConn)
	drainPresence(bobConn)

	msg, err := st.AppendMessage(ctx, conv.ID, &alice.ID, "hello", false)
	require.NoError(t, err)
	h.MessageCreated(&model.MessageWithSender{Message: *msg, Sender: alice}, []int64{alice.ID, bob.ID})

	// Bob gets the full message plus the refetch hint.
	sawMessage, sawHint := false, false
	for i := 0; i < 2; i++ {
		env := recv(t, bobConn, time.Second)
		switch env.Type {
		case EventMessage:
			var got model.MessageWithSender
			require.NoError(t, json.Unmarshal(env.Data, &got))
			assert.Equal(t, "hello", got.Content)
			sawMessage = true
		case EventConversationUpdate:
			sawHint = true
		}
	}
	assert.True(t, sawMessage)
	assert.True(t, sawHint)

	// Alice, outside the room, only gets the addressed hint.
	env := recv(t, aliceConn, time.Second)
	assert.Equal(t, EventConversationUpdate, env.Type)
	expectNone(t, aliceConn, 50*time.Millisecond)
}

func TestFriendEventsAreAddressed(t *testing.T) {
	h, st := newTestHub(t, time.Hour)
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	carol := seedUser(t, st, "carol")

	aliceConn := newTestClient(h, alice)
	bobConn := newTestClient(h, bob)
	carolConn := newTestClient(h, carol)
	h.register <- aliceConn
	h.register <- bobConn
	h.register <- carolConn
	drainPresence(aliceConn)
	drainPresence(bobConn)
	drainPresence(carolConn)

	h.FriendRequestCreated(&model.FriendRequestWithUsers{
		FriendRequest: model.FriendRequest{ID: 1, SenderID: alice.ID, ReceiverID: bob.ID, Status: model.FriendPending},
		Sender:        alice,
	})

	env := recv(t, bobConn, time.Second)
	assert.Equal(t, EventFriendRequest, env.Type)
	expectNone(t, aliceConn, 50*time.Millisecond)
	expectNone(t, carolConn, 50*time.Millisecond)

	h.FriendRequestUpdated(1, model.FriendAccepted, alice.ID, bob.ID)
	for _, c := range []*Client{aliceConn, bobConn} {
		env = recv(t, c, time.Second)
		assert.Equal(t, EventFriendRequestUpdate, env.Type)
		var ev FriendRequestUpdateEvent
		require.NoError(t, json.Unmarshal(env.Data, &ev))
		assert.Equal(t, string(model.FriendAccepted), ev.Status)
	}
	expectNone(t, carolConn, 50*time.Millisecond)
}

func TestSlowConsumerIsDropped(t *testing.T) {
	h, st := newTestHub(t, time.Hour)
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	// Room for alice's own registration broadcast and nothing else.
	stuck := newTestClient(h, alice)
	stuck.send = make(chan []byte, 1)
	h.register <- stuck

	// Any broadcast now overflows the stuck connection and evicts it,
	// which flips alice offline.
	watcher := newTestClient(h, bob)
	h.register <- watcher

	deadline := time.After(2 * time.Second)
	for {
		select {
		case payload, ok := <-watcher.send:
			if !ok {
				t.Fatal("watcher dropped instead of the stuck connection")
			}
			var env Envelope
			require.NoError(t, json.Unmarshal(payload, &env))
			if env.Type != EventPresence {
				continue
			}
			var ev PresenceEvent
			require.NoError(t, json.Unmarshal(env.Data, &ev))
			if ev.UserID == alice.ID && !ev.IsOnline {
				return
			}
		case <-deadline:
			t.Fatal("stuck connection was never evicted")
		}
	}
}

func TestTypingTimerReleasedAfterShutdown(t *testing.T) {
	const window = 20 * time.Millisecond

	st, err := memory.New("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	chats := chat.NewService(st, 100, zerolog.Nop())
	h := NewHub(st, chats, nil, window, zerolog.Nop())
	chats.SetNotifier(h)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	conv, _, err := st.FindOrCreateDirect(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)

	a := newTestClient(h, alice)
	b := newTestClient(h, bob)
	h.register <- a
	h.register <- b
	h.joins <- joinRequest{client: a, conversationID: conv.ID}
	h.joins <- joinRequest{client: b, conversationID: conv.ID}
	h.typingC <- typingSignal{client: a, conversationID: conv.ID, isTyping: true}

	// Stop the loop before the auto-expiry timer fires.
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("run loop did not stop")
	}
	select {
	case <-h.done:
	default:
		t.Fatal("done was not closed when Run returned")
	}

	// Let the armed timer fire against the stopped hub. Its goroutine must
	// exit; a goroutine stuck sending the expiry would hand us the key here.
	time.Sleep(5 * window)
	select {
	case key := <-h.typingExpired:
		t.Fatalf("timer goroutine still blocked after shutdown, delivered %+v", key)
	default:
	}
}

// drainPresence clears queued presence broadcasts left over from setup.
func drainPresence(c *Client) {
	for {
		select {
		case <-c.send:
		case <-time.After(20 * time.Millisecond):
			return
		}
	}
}
