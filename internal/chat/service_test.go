package chat

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/model"
	"github.com/Devansh1501S/Chat-Sphere/internal/store"
	"github.com/Devansh1501S/Chat-Sphere/internal/store/memory"
)

type recordingNotifier struct {
	messages      []*model.MessageWithSender
	conversations []*model.Conversation
}

func (n *recordingNotifier) MessageCreated(msg *model.MessageWithSender, _ []int64) {
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) ConversationCreated(conv *model.Conversation, _ []int64) {
	n.conversations = append(n.conversations, conv)
}

type fixture struct {
	service  *Service
	store    store.Store
	notifier *recordingNotifier
	alice    *model.User
	bob      *model.User
	carol    *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := memory.New("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{store: st, notifier: &recordingNotifier{}}
	f.service = NewService(st, 50, zerolog.Nop())
	f.service.SetNotifier(f.notifier)

	ctx := context.Background()
	for _, ref := range []struct {
		name string
		dst  **model.User
	}{{"alice", &f.alice}, {"bob", &f.bob}, {"carol", &f.carol}} {
		u, err := st.CreateUser(ctx, ref.name, "hash", ref.name, "#E0533D")
		require.NoError(t, err)
		*ref.dst = u
	}
	return f
}

func (f *fixture) befriend(t *testing.T, a, b int64) {
	t.Helper()
	req, _, err := f.store.SendFriendRequest(context.Background(), a, b)
	require.NoError(t, err)
	_, _, _, err = f.store.AcceptFriendRequest(context.Background(), req.ID)
	require.NoError(t, err)
}

func TestDirectConversationRequiresFriendship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.DirectConversation(ctx, f.alice.ID, f.bob.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = f.service.DirectConversation(ctx, f.alice.ID, f.alice.ID)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	f.befriend(t, f.alice.ID, f.bob.ID)
	conv, err := f.service.DirectConversation(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	assert.False(t, conv.IsGroup)

	// The second call resolves to the same conversation without another
	// created event. Acceptance already made the conversation, so none of
	// these calls fire one.
	again, err := f.service.DirectConversation(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
	assert.Empty(t, f.notifier.conversations)
}

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateGroup(ctx, f.alice.ID, []int64{f.bob.ID}, "  ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.service.CreateGroup(ctx, f.alice.ID, nil, "lunch crew")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	conv, err := f.service.CreateGroup(ctx, f.alice.ID, []int64{f.bob.ID, f.carol.ID}, "lunch crew")
	require.NoError(t, err)
	assert.True(t, conv.IsGroup)
	assert.Equal(t, "lunch crew", conv.Name)
	require.Len(t, f.notifier.conversations, 1)
	assert.Equal(t, conv.ID, f.notifier.conversations[0].ID)

	members, err := f.store.ListParticipants(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.befriend(t, f.alice.ID, f.bob.ID)
	conv, err := f.service.DirectConversation(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	_, err = f.service.Send(ctx, f.alice.ID, conv.ID, "   ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.service.Send(ctx, f.carol.ID, conv.ID, "let me in")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = f.service.Send(ctx, f.alice.ID, conv.ID+1000, "hello")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	msg, err := f.service.Send(ctx, f.alice.ID, conv.ID, "  hello bob  ")
	require.NoError(t, err)
	assert.Equal(t, "hello bob", msg.Content)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "alice", msg.Sender.Username)

	require.Len(t, f.notifier.messages, 1)
	assert.Equal(t, msg.ID, f.notifier.messages[0].ID)

	// Sending moved the conversation's activity forward.
	got, err := f.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, got.LastActivity.Before(msg.CreatedAt))
}

func TestMessagesWindowAndAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.befriend(t, f.alice.ID, f.bob.ID)
	conv, err := f.service.DirectConversation(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		_, err := f.service.Send(ctx, f.alice.ID, conv.ID, "spam")
		require.NoError(t, err)
	}

	_, err = f.service.Messages(ctx, f.carol.ID, conv.ID, 10)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	// Requests beyond the configured window are clamped to it. The system
	// greeting from acceptance counts toward history but falls outside the
	// window here.
	msgs, err := f.service.Messages(ctx, f.bob.ID, conv.ID, 500)
	require.NoError(t, err)
	assert.Len(t, msgs, 50)

	msgs, err = f.service.Messages(ctx, f.bob.ID, conv.ID, 5)
	require.NoError(t, err)
	assert.Len(t, msgs, 5)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.befriend(t, f.alice.ID, f.bob.ID)
	conv, err := f.service.DirectConversation(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	_, err = f.service.Send(ctx, f.alice.ID, conv.ID, "unread this")
	require.NoError(t, err)

	err = f.service.MarkRead(ctx, f.carol.ID, conv.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	require.NoError(t, f.service.MarkRead(ctx, f.bob.ID, conv.ID))
	unread, err := f.store.UnreadCount(ctx, f.bob.ID, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)
}
