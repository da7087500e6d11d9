// Package memory implements store.Store with mutex-guarded maps and a
// wholesale JSON snapshot rewritten after every mutation. Suitable for
// development and tests; the snapshot strategy does not scale past small
// deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/model"
	"github.com/Devansh1501S/Chat-Sphere/internal/store"
)

// Store is the in-memory backend. All maps are guarded by mu; every write
// happens under the exclusive lock, so the read-then-write sequences that
// race on other backends are serialized here by construction.
type Store struct {
	mu           sync.RWMutex
	log          zerolog.Logger
	snapshotPath string // empty disables persistence

	users         map[int64]*model.User
	usersByName   map[string]int64
	conversations map[int64]*model.Conversation
	participants  map[int64]map[int64]*model.Participant // convID -> userID
	messages      map[int64][]*model.Message             // convID, insertion order
	requests      map[int64]*model.FriendRequest

	lastMsgAt map[int64]time.Time // convID -> newest message timestamp

	nextUserID int64
	nextConvID int64
	nextMsgID  int64
	nextReqID  int64
}

var _ store.Store = (*Store)(nil)

// New creates the store, reloading the snapshot at path when it exists.
// An empty path disables persistence.
func New(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{
		log:           log.With().Str("component", "memory-store").Logger(),
		snapshotPath:  path,
		users:         make(map[int64]*model.User),
		usersByName:   make(map[string]int64),
		conversations: make(map[int64]*model.Conversation),
		participants:  make(map[int64]map[int64]*model.Participant),
		messages:      make(map[int64][]*model.Message),
		requests:      make(map[int64]*model.FriendRequest),
		lastMsgAt:     make(map[int64]time.Time),
	}
	if err := s.loadSnapshot(); err != nil {
		return nil, err
	}
	return s, nil
}

// now returns a UTC timestamp that is strictly after prev, so per-clock
// ties cannot break watermark comparisons or message ordering.
func now(prev time.Time) time.Time {
	t := time.Now().UTC()
	if !t.After(prev) {
		t = prev.Add(time.Nanosecond)
	}
	return t
}

func userCopy(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Users

func (s *Store) CreateUser(ctx context.Context, username, passwordHash, displayName, avatarColor string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usersByName[username]; taken {
		return nil, apperr.Field(apperr.KindConflict, "username", "username already taken")
	}

	s.nextUserID++
	u := &model.User{
		ID:           s.nextUserID,
		Username:     username,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		AvatarColor:  avatarColor,
		CreatedAt:    time.Now().UTC(),
	}
	u.LastSeen = u.CreatedAt
	s.users[u.ID] = u
	s.usersByName[username] = u.ID
	s.persistLocked()
	return userCopy(u), nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	return userCopy(u), nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByName[username]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	return userCopy(s.users[id]), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SearchUserExact(ctx context.Context, username string, excludeID int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByName[username]
	if !ok || id == excludeID {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	return userCopy(s.users[id]), nil
}

func (s *Store) SetUserOnline(ctx context.Context, userID int64, online bool, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	u.Online = online
	if !online {
		u.LastSeen = lastSeen.UTC()
	}
	s.persistLocked()
	return nil
}

// Conversations

func (s *Store) CreateConversation(ctx context.Context, creatorID int64, participantIDs []int64, isGroup bool, name string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[creatorID]; !ok {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	for _, id := range participantIDs {
		if _, ok := s.users[id]; !ok {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
	}
	conv := s.createConversationLocked(isGroup, name)
	s.addParticipantLocked(conv.ID, creatorID, conv.CreatedAt)
	for _, id := range participantIDs {
		s.addParticipantLocked(conv.ID, id, conv.CreatedAt)
	}
	s.persistLocked()
	c := *conv
	return &c, nil
}

func (s *Store) createConversationLocked(isGroup bool, name string) *model.Conversation {
	s.nextConvID++
	t := time.Now().UTC()
	conv := &model.Conversation{
		ID:           s.nextConvID,
		Name:         name,
		IsGroup:      isGroup,
		CreatedAt:    t,
		LastActivity: t,
	}
	s.conversations[conv.ID] = conv
	s.participants[conv.ID] = make(map[int64]*model.Participant)
	return conv
}

func (s *Store) addParticipantLocked(convID, userID int64, joinedAt time.Time) {
	members := s.participants[convID]
	if _, exists := members[userID]; exists {
		return
	}
	members[userID] = &model.Participant{
		ConversationID: convID,
		UserID:         userID,
		JoinedAt:       joinedAt,
		LastReadAt:     joinedAt,
	}
}

func (s *Store) GetConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "conversation not found")
	}
	c := *conv
	return &c, nil
}

func (s *Store) FindOrCreateDirect(ctx context.Context, a, b int64) (*model.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, created, err := s.findOrCreateDirectLocked(a, b)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.persistLocked()
	}
	c := *conv
	return &c, created, nil
}

func (s *Store) findOrCreateDirectLocked(a, b int64) (*model.Conversation, bool, error) {
	if a == b {
		return nil, false, apperr.New(apperr.KindValidation, "cannot open a conversation with yourself")
	}
	if _, ok := s.users[a]; !ok {
		return nil, false, apperr.New(apperr.KindNotFound, "user not found")
	}
	if _, ok := s.users[b]; !ok {
		return nil, false, apperr.New(apperr.KindNotFound, "user not found")
	}

	for convID, members := range s.participants {
		conv := s.conversations[convID]
		if conv.IsGroup || len(members) != 2 {
			continue
		}
		if _, hasA := members[a]; !hasA {
			continue
		}
		if _, hasB := members[b]; !hasB {
			continue
		}
		return conv, false, nil
	}

	conv := s.createConversationLocked(false, "")
	s.addParticipantLocked(conv.ID, a, conv.CreatedAt)
	s.addParticipantLocked(conv.ID, b, conv.CreatedAt)
	return conv, true, nil
}

func (s *Store) AddParticipant(ctx context.Context, conversationID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return apperr.New(apperr.KindNotFound, "conversation not found")
	}
	if _, ok := s.users[userID]; !ok {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	s.addParticipantLocked(conversationID, userID, time.Now().UTC())
	s.persistLocked()
	return nil
}

func (s *Store) ListParticipants(ctx context.Context, conversationID int64) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, ok := s.participants[conversationID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "conversation not found")
	}
	out := make([]model.User, 0, len(members))
	for userID := range members {
		out = append(out, *s.users[userID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) IsParticipant(ctx context.Context, userID, conversationID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, ok := s.participants[conversationID]
	if !ok {
		return false, nil
	}
	_, in := members[userID]
	return in, nil
}

func (s *Store) MarkRead(ctx context.Context, userID, conversationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.participants[conversationID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "conversation not found")
	}
	p, in := members[userID]
	if !in {
		return apperr.New(apperr.KindForbidden, "not a participant")
	}
	p.LastReadAt = now(s.lastMsgAt[conversationID])
	s.persistLocked()
	return nil
}

func (s *Store) UnreadCount(ctx context.Context, userID, conversationID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadCountLocked(userID, conversationID)
}

func (s *Store) unreadCountLocked(userID, conversationID int64) (int, error) {
	members, ok := s.participants[conversationID]
	if !ok {
		return 0, apperr.New(apperr.KindNotFound, "conversation not found")
	}
	p, in := members[userID]
	if !in {
		return 0, apperr.New(apperr.KindForbidden, "not a participant")
	}
	count := 0
	for _, m := range s.messages[conversationID] {
		if m.CreatedAt.After(p.LastReadAt) {
			count++
		}
	}
	return count, nil
}

func (s *Store) BumpLastActivity(ctx context.Context, conversationID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "conversation not found")
	}
	if at.After(conv.LastActivity) {
		conv.LastActivity = at.UTC()
	}
	s.persistLocked()
	return nil
}

func (s *Store) ListConversations(ctx context.Context, userID int64) ([]model.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ConversationSummary
	for convID, members := range s.participants {
		if _, in := members[userID]; !in {
			continue
		}
		conv := s.conversations[convID]
		summary := model.ConversationSummary{Conversation: *conv}

		for memberID := range members {
			summary.Participants = append(summary.Participants, *s.users[memberID])
		}
		sort.Slice(summary.Participants, func(i, j int) bool {
			return summary.Participants[i].ID < summary.Participants[j].ID
		})

		if msgs := s.messages[convID]; len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			summary.LastMessage = s.withSenderLocked(last)
		}

		unread, err := s.unreadCountLocked(userID, convID)
		if err != nil {
			return nil, err
		}
		summary.UnreadCount = unread
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

// Messages

func (s *Store) AppendMessage(ctx context.Context, conversationID int64, senderID *int64, content string, isSystem bool) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.appendMessageLocked(conversationID, senderID, content, isSystem)
	if err != nil {
		return nil, err
	}
	s.persistLocked()
	c := *msg
	return &c, nil
}

func (s *Store) appendMessageLocked(conversationID int64, senderID *int64, content string, isSystem bool) (*model.Message, error) {
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, apperr.New(apperr.KindNotFound, "conversation not found")
	}
	s.nextMsgID++
	msg := &model.Message{
		ID:             s.nextMsgID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		IsSystem:       isSystem,
		CreatedAt:      now(s.lastMsgAt[conversationID]),
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	s.lastMsgAt[conversationID] = msg.CreatedAt
	return msg, nil
}

func (s *Store) withSenderLocked(m *model.Message) *model.MessageWithSender {
	out := &model.MessageWithSender{Message: *m}
	if m.SenderID != nil {
		out.Sender = userCopy(s.users[*m.SenderID])
	}
	return out
}

func (s *Store) ListMessages(ctx context.Context, conversationID int64, limit int) ([]model.MessageWithSender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, apperr.New(apperr.KindNotFound, "conversation not found")
	}
	if limit <= 0 {
		limit = store.DefaultMessageWindow
	}
	msgs := s.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]model.MessageWithSender, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, *s.withSenderLocked(m))
	}
	return out, nil
}

// Friends

func (s *Store) SendFriendRequest(ctx context.Context, senderID, receiverID int64) (*model.FriendRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[senderID]; !ok {
		return nil, false, apperr.New(apperr.KindNotFound, "user not found")
	}
	if _, ok := s.users[receiverID]; !ok {
		return nil, false, apperr.New(apperr.KindNotFound, "user not found")
	}

	if existing := s.findActiveRequestLocked(senderID, receiverID); existing != nil {
		c := *existing
		return &c, false, nil
	}

	s.nextReqID++
	req := &model.FriendRequest{
		ID:         s.nextReqID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     model.FriendPending,
		CreatedAt:  time.Now().UTC(),
	}
	s.requests[req.ID] = req
	s.persistLocked()
	c := *req
	return &c, true, nil
}

// findActiveRequestLocked returns the pending or accepted request between
// the pair, if any. Rejected records are ignored, so a fresh request can
// supersede them.
func (s *Store) findActiveRequestLocked(a, b int64) *model.FriendRequest {
	for _, r := range s.requests {
		if r.Status == model.FriendRejected {
			continue
		}
		if (r.SenderID == a && r.ReceiverID == b) || (r.SenderID == b && r.ReceiverID == a) {
			return r
		}
	}
	return nil
}

func (s *Store) GetFriendRequest(ctx context.Context, id int64) (*model.FriendRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "friend request not found")
	}
	c := *r
	return &c, nil
}

func (s *Store) AcceptFriendRequest(ctx context.Context, id int64) (*model.FriendRequest, *model.Conversation, *model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, nil, nil, apperr.New(apperr.KindNotFound, "friend request not found")
	}
	if r.Status != model.FriendPending {
		return nil, nil, nil, apperr.New(apperr.KindConflict, "friend request is not pending")
	}
	r.Status = model.FriendAccepted

	conv, _, err := s.findOrCreateDirectLocked(r.SenderID, r.ReceiverID)
	if err != nil {
		return nil, nil, nil, err
	}
	msg, err := s.appendMessageLocked(conv.ID, nil, store.SystemFriendsMessage, true)
	if err != nil {
		return nil, nil, nil, err
	}
	if msg.CreatedAt.After(conv.LastActivity) {
		conv.LastActivity = msg.CreatedAt
	}
	s.persistLocked()

	rc, cc, mc := *r, *conv, *msg
	return &rc, &cc, &mc, nil
}

func (s *Store) RejectFriendRequest(ctx context.Context, id int64) (*model.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "friend request not found")
	}
	if r.Status != model.FriendPending {
		return nil, apperr.New(apperr.KindConflict, "friend request is not pending")
	}
	r.Status = model.FriendRejected
	s.persistLocked()
	c := *r
	return &c, nil
}

func (s *Store) ListPendingReceived(ctx context.Context, userID int64) ([]model.FriendRequestWithUsers, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.FriendRequestWithUsers
	for _, r := range s.requests {
		if r.ReceiverID != userID || r.Status != model.FriendPending {
			continue
		}
		out = append(out, model.FriendRequestWithUsers{
			FriendRequest: *r,
			Sender:        userCopy(s.users[r.SenderID]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListSentRequests(ctx context.Context, userID int64) ([]model.FriendRequestWithUsers, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.FriendRequestWithUsers
	for _, r := range s.requests {
		if r.SenderID != userID {
			continue
		}
		out = append(out, model.FriendRequestWithUsers{
			FriendRequest: *r,
			Receiver:      userCopy(s.users[r.ReceiverID]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.requests {
		if r.Status != model.FriendAccepted {
			continue
		}
		if (r.SenderID == a && r.ReceiverID == b) || (r.SenderID == b && r.ReceiverID == a) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSnapshotLocked()
}
