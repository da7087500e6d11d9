package friend

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
	created       []*model.FriendRequestWithUsers
	updated       []model.FriendStatus
	conversations []*model.Conversation
	messages      []*model.MessageWithSender
}

func (n *recordingNotifier) FriendRequestCreated(req *model.FriendRequestWithUsers) {
	n.created = append(n.created, req)
}

func (n *recordingNotifier) FriendRequestUpdated(_ int64, status model.FriendStatus, _, _ int64) {
	n.updated = append(n.updated, status)
}

func (n *recordingNotifier) ConversationCreated(conv *model.Conversation, _ []int64) {
	n.conversations = append(n.conversations, conv)
}

func (n *recordingNotifier) MessageCreated(msg *model.MessageWithSender, _ []int64) {
	n.messages = append(n.messages, msg)
}

type fixture struct {
	service  *Service
	store    store.Store
	notifier *recordingNotifier
	alice    *model.User
	bob      *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := memory.New("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{store: st, notifier: &recordingNotifier{}}
	f.service = NewService(st, zerolog.Nop())
	f.service.SetNotifier(f.notifier)

	ctx := context.Background()
	f.alice, err = st.CreateUser(ctx, "alice", "hash", "Alice", "#E0533D")
	require.NoError(t, err)
	f.bob, err = st.CreateUser(ctx, "bob", "hash", "Bob", "#3D7BE0")
	require.NoError(t, err)
	return f
}

func TestSendRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Send(ctx, f.alice.ID, f.alice.ID)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.service.Send(ctx, f.alice.ID, f.bob.ID+1000)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	req, err := f.service.Send(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FriendPending, req.Status)
	require.Len(t, f.notifier.created, 1)
	require.NotNil(t, f.notifier.created[0].Sender)
	assert.Equal(t, "alice", f.notifier.created[0].Sender.Username)

	// Resending returns the same record and stays silent.
	dup, err := f.service.Send(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, dup.ID)
	assert.Len(t, f.notifier.created, 1)
}

func TestAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.service.Send(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	// Only the receiver may respond; the sender cannot self-accept.
	_, err = f.service.Accept(ctx, f.alice.ID, req.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = f.service.Accept(ctx, f.bob.ID, req.ID+1000)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	accepted, err := f.service.Accept(ctx, f.bob.ID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FriendAccepted, accepted.Status)

	// Acceptance fans out the status change, the new conversation and the
	// system greeting.
	require.Len(t, f.notifier.updated, 1)
	assert.Equal(t, model.FriendAccepted, f.notifier.updated[0])
	require.Len(t, f.notifier.conversations, 1)
	require.Len(t, f.notifier.messages, 1)
	assert.True(t, f.notifier.messages[0].IsSystem)
	assert.Equal(t, store.SystemFriendsMessage, f.notifier.messages[0].Content)

	friends, err := f.store.AreFriends(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	assert.True(t, friends)

	_, err = f.service.Accept(ctx, f.bob.ID, req.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.service.Send(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	_, err = f.service.Reject(ctx, f.alice.ID, req.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	rejected, err := f.service.Reject(ctx, f.bob.ID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FriendRejected, rejected.Status)
	require.Len(t, f.notifier.updated, 1)
	assert.Equal(t, model.FriendRejected, f.notifier.updated[0])

	// No conversation or greeting on rejection.
	assert.Empty(t, f.notifier.conversations)
	assert.Empty(t, f.notifier.messages)

	// The pair can try again after a rejection.
	fresh, err := f.service.Send(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, fresh.ID)
	assert.Equal(t, model.FriendPending, fresh.Status)
}

func TestRelation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rel, err := f.service.Relation(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RelationNone, rel)

	req, err := f.service.Send(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	rel, err = f.service.Relation(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RelationPending, rel)

	rel, err = f.service.Relation(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RelationReceived, rel)

	_, err = f.service.Accept(ctx, f.bob.ID, req.ID)
	require.NoError(t, err)

	for _, pair := range [][2]int64{{f.alice.ID, f.bob.ID}, {f.bob.ID, f.alice.ID}} {
		rel, err = f.service.Relation(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.Equal(t, model.RelationAccepted, rel)
	}
}
