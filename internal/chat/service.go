package chat

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/metrics"
	"github.com/Devansh1501S/Chat-Sphere/internal/model"
	"github.com/Devansh1501S/Chat-Sphere/internal/store"
)

// Notifier receives live events after a successful mutation. Implemented
// by the gateway hub; a nil notifier disables fan-out (tests).
type Notifier interface {
	// MessageCreated fans the message out to the conversation room and
	// nudges every participant's addressed channel.
	MessageCreated(msg *model.MessageWithSender, participantIDs []int64)
	// ConversationCreated tells each participant a new conversation exists.
	ConversationCreated(conv *model.Conversation, participantIDs []int64)
}

// Service implements conversation and message operations over the store.
type Service struct {
	store         store.Store
	notifier      Notifier
	messageWindow int
	log           zerolog.Logger
}

func NewService(s store.Store, messageWindow int, log zerolog.Logger) *Service {
	return &Service{
		store:         s,
		messageWindow: messageWindow,
		log:           log.With().Str("component", "chat-service").Logger(),
	}
}

// SetNotifier wires the gateway in after construction; the hub depends on
// this service, so the reverse edge is provided late.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// DirectConversation finds or creates the direct conversation between the
// caller and the target. Only friends may open direct conversations.
func (s *Service) DirectConversation(ctx context.Context, callerID, targetID int64) (*model.Conversation, error) {
	if callerID == targetID {
		return nil, apperr.New(apperr.KindValidation, "cannot open a conversation with yourself")
	}
	friends, err := s.store.AreFriends(ctx, callerID, targetID)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, apperr.New(apperr.KindForbidden, "you can only message friends")
	}

	conv, created, err := s.store.FindOrCreateDirect(ctx, callerID, targetID)
	if err != nil {
		return nil, err
	}
	if created && s.notifier != nil {
		s.notifier.ConversationCreated(conv, []int64{callerID, targetID})
	}
	return conv, nil
}

// CreateGroup creates a named group conversation with the caller and the
// listed participants.
func (s *Service) CreateGroup(ctx context.Context, creatorID int64, participantIDs []int64, name string) (*model.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Field(apperr.KindValidation, "name", "group conversations require a name")
	}
	if len(participantIDs) == 0 {
		return nil, apperr.Field(apperr.KindValidation, "participant_ids", "at least one participant is required")
	}

	conv, err := s.store.CreateConversation(ctx, creatorID, participantIDs, true, name)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.ConversationCreated(conv, append([]int64{creatorID}, participantIDs...))
	}
	return conv, nil
}

// List returns the caller's conversation summaries, newest activity first.
func (s *Service) List(ctx context.Context, userID int64) ([]model.ConversationSummary, error) {
	return s.store.ListConversations(ctx, userID)
}

// Messages returns the most recent window of messages, oldest first.
// Callers must be participants.
func (s *Service) Messages(ctx context.Context, userID, conversationID int64, limit int) ([]model.MessageWithSender, error) {
	if err := s.requireParticipant(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.messageWindow {
		limit = s.messageWindow
	}
	return s.store.ListMessages(ctx, conversationID, limit)
}

// Send appends a message, bumps the conversation's activity and fans out.
func (s *Service) Send(ctx context.Context, senderID, conversationID int64, content string) (*model.MessageWithSender, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Field(apperr.KindValidation, "content", "message content is required")
	}
	if err := s.requireParticipant(ctx, senderID, conversationID); err != nil {
		return nil, err
	}

	msg, err := s.store.AppendMessage(ctx, conversationID, &senderID, content, false)
	if err != nil {
		return nil, err
	}
	if err := s.store.BumpLastActivity(ctx, conversationID, msg.CreatedAt); err != nil {
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues("user").Inc()

	sender, err := s.store.GetUserByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	out := &model.MessageWithSender{Message: *msg, Sender: sender}

	s.notifyMessage(ctx, out)
	return out, nil
}

func (s *Service) notifyMessage(ctx context.Context, msg *model.MessageWithSender) {
	if s.notifier == nil {
		return
	}
	participants, err := s.store.ListParticipants(ctx, msg.ConversationID)
	if err != nil {
		s.log.Error().Err(err).Int64("conversation_id", msg.ConversationID).
			Msg("resolve participants for fan-out")
		return
	}
	ids := make([]int64, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.ID)
	}
	s.notifier.MessageCreated(msg, ids)
}

// MarkRead advances the caller's read watermark to now.
func (s *Service) MarkRead(ctx context.Context, userID, conversationID int64) error {
	if err := s.requireParticipant(ctx, userID, conversationID); err != nil {
		return err
	}
	return s.store.MarkRead(ctx, userID, conversationID)
}

// IsParticipant gates gateway room joins.
func (s *Service) IsParticipant(ctx context.Context, userID, conversationID int64) (bool, error) {
	return s.store.IsParticipant(ctx, userID, conversationID)
}

func (s *Service) requireParticipant(ctx context.Context, userID, conversationID int64) error {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return err
	}
	ok, err := s.store.IsParticipant(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindForbidden, "not a participant")
	}
	return nil
}
