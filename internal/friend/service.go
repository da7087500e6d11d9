package friend

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/metrics"
	"github.com/Devansh1501S/Chat-Sphere/internal/model"
	"github.com/Devansh1501S/Chat-Sphere/internal/store"
)

// Notifier receives live friend events. Implemented by the gateway hub.
type Notifier interface {
	// FriendRequestCreated reaches the receiver's addressed channel.
	FriendRequestCreated(req *model.FriendRequestWithUsers)
	// FriendRequestUpdated reaches both parties' addressed channels.
	FriendRequestUpdated(requestID int64, status model.FriendStatus, senderID, receiverID int64)
	// ConversationCreated reaches each participant's addressed channel.
	ConversationCreated(conv *model.Conversation, participantIDs []int64)
	// MessageCreated fans a message out to its conversation room and the
	// participants' addressed channels.
	MessageCreated(msg *model.MessageWithSender, participantIDs []int64)
}

// Service implements the friend-request state machine:
// none -> pending -> accepted | rejected, with rejected permitting a fresh
// request. Acceptance also creates the direct conversation and its system
// message.
type Service struct {
	store    store.Store
	notifier Notifier
	log      zerolog.Logger
}

func NewService(s store.Store, log zerolog.Logger) *Service {
	return &Service{store: s, log: log.With().Str("component", "friend-service").Logger()}
}

// SetNotifier wires the gateway in after construction.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// Send creates a pending request from the caller to receiverID. When a
// pending or accepted relationship already exists, the existing record is
// returned unchanged and no event fires.
func (s *Service) Send(ctx context.Context, senderID, receiverID int64) (*model.FriendRequest, error) {
	if senderID == receiverID {
		return nil, apperr.New(apperr.KindValidation, "cannot send a friend request to yourself")
	}
	if _, err := s.store.GetUserByID(ctx, receiverID); err != nil {
		return nil, err
	}

	req, created, err := s.store.SendFriendRequest(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if !created {
		return req, nil
	}
	metrics.FriendRequestsTotal.WithLabelValues("sent").Inc()

	if s.notifier != nil {
		sender, err := s.store.GetUserByID(ctx, senderID)
		if err != nil {
			s.log.Error().Err(err).Int64("sender_id", senderID).Msg("resolve sender for event")
		} else {
			s.notifier.FriendRequestCreated(&model.FriendRequestWithUsers{
				FriendRequest: *req,
				Sender:        sender,
			})
		}
	}
	return req, nil
}

// Accept transitions a pending request to accepted. Only the receiver may
// accept. The store call atomically creates the direct conversation and
// appends the system message; both are then fanned out.
func (s *Service) Accept(ctx context.Context, callerID, requestID int64) (*model.FriendRequest, error) {
	req, err := s.store.GetFriendRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReceiverID != callerID {
		return nil, apperr.New(apperr.KindForbidden, "only the receiver may respond to a friend request")
	}

	accepted, conv, sysMsg, err := s.store.AcceptFriendRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	metrics.FriendRequestsTotal.WithLabelValues("accepted").Inc()
	metrics.MessagesTotal.WithLabelValues("system").Inc()

	if s.notifier != nil {
		pair := []int64{accepted.SenderID, accepted.ReceiverID}
		s.notifier.FriendRequestUpdated(accepted.ID, accepted.Status, accepted.SenderID, accepted.ReceiverID)
		s.notifier.ConversationCreated(conv, pair)
		s.notifier.MessageCreated(&model.MessageWithSender{Message: *sysMsg}, pair)
	}
	return accepted, nil
}

// Reject transitions a pending request to rejected. Only the receiver may
// reject. A rejected pair may be courted again with a fresh request.
func (s *Service) Reject(ctx context.Context, callerID, requestID int64) (*model.FriendRequest, error) {
	req, err := s.store.GetFriendRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReceiverID != callerID {
		return nil, apperr.New(apperr.KindForbidden, "only the receiver may respond to a friend request")
	}

	rejected, err := s.store.RejectFriendRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	metrics.FriendRequestsTotal.WithLabelValues("rejected").Inc()

	if s.notifier != nil {
		s.notifier.FriendRequestUpdated(rejected.ID, rejected.Status, rejected.SenderID, rejected.ReceiverID)
	}
	return rejected, nil
}

func (s *Service) PendingReceived(ctx context.Context, userID int64) ([]model.FriendRequestWithUsers, error) {
	return s.store.ListPendingReceived(ctx, userID)
}

func (s *Service) Sent(ctx context.Context, userID int64) ([]model.FriendRequestWithUsers, error) {
	return s.store.ListSentRequests(ctx, userID)
}

// Relation derives the friendship state between the caller and another
// user, from the caller's perspective. The accepted relation wins over any
// stale request records.
func (s *Service) Relation(ctx context.Context, callerID, otherID int64) (model.Relation, error) {
	friends, err := s.store.AreFriends(ctx, callerID, otherID)
	if err != nil {
		return model.RelationNone, err
	}
	if friends {
		return model.RelationAccepted, nil
	}

	sent, err := s.store.ListSentRequests(ctx, callerID)
	if err != nil {
		return model.RelationNone, err
	}
	for _, r := range sent {
		if r.ReceiverID == otherID && r.Status == model.FriendPending {
			return model.RelationPending, nil
		}
	}

	received, err := s.store.ListPendingReceived(ctx, callerID)
	if err != nil {
		return model.RelationNone, err
	}
	for _, r := range received {
		if r.SenderID == otherID {
			return model.RelationReceived, nil
		}
	}
	return model.RelationNone, nil
}
