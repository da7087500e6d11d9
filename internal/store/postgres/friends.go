package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/model"
	"github.com/Devansh1501S/Chat-Sphere/internal/store"
)

const requestColumns = "id, sender_id, receiver_id, status, created_at"

func scanRequest(row interface{ Scan(...any) error }) (*model.FriendRequest, error) {
	r := &model.FriendRequest{}
	if err := row.Scan(&r.ID, &r.SenderID, &r.ReceiverID, &r.Status, &r.CreatedAt); err != nil {
		return nil, err
	}
	return r, nil
}

// SendFriendRequest inserts a pending request. The partial unique index on
// the normalized pair makes the insert lose against an existing pending or
// accepted record, in which case that record is returned unchanged.
func (s *Store) SendFriendRequest(ctx context.Context, senderID, receiverID int64) (*model.FriendRequest, bool, error) {
	r, err := scanRequest(s.db.QueryRowContext(ctx,
		`INSERT INTO friend_requests (sender_id, receiver_id)
         VALUES ($1, $2)
         ON CONFLICT (LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id))
            WHERE status <> 'rejected'
         DO NOTHING
         RETURNING `+requestColumns, senderID, receiverID))
	switch {
	case err == nil:
		return r, true, nil
	case errors.Is(err, sql.ErrNoRows):
		r, err = scanRequest(s.db.QueryRowContext(ctx,
			`SELECT `+requestColumns+`
             FROM friend_requests
             WHERE status <> 'rejected'
               AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))`,
			senderID, receiverID))
		if err != nil {
			return nil, false, apperr.Wrap(err, "find friend request")
		}
		return r, false, nil
	case isForeignKeyViolation(err):
		return nil, false, apperr.New(apperr.KindNotFound, "user not found")
	default:
		return nil, false, apperr.Wrap(err, "send friend request")
	}
}

func (s *Store) GetFriendRequest(ctx context.Context, id int64) (*model.FriendRequest, error) {
	r, err := scanRequest(s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM friend_requests WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "friend request not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, "get friend request")
	}
	return r, nil
}

func (s *Store) AcceptFriendRequest(ctx context.Context, id int64) (*model.FriendRequest, *model.Conversation, *model.Message, error) {
	var (
		req  *model.FriendRequest
		conv *model.Conversation
		msg  *model.Message
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := scanRequest(tx.QueryRowContext(ctx,
			`UPDATE friend_requests SET status = 'accepted'
             WHERE id = $1 AND status = 'pending'
             RETURNING `+requestColumns, id))
		if errors.Is(err, sql.ErrNoRows) {
			return s.requestTransitionError(ctx, id)
		}
		if err != nil {
			return apperr.Wrap(err, "accept friend request")
		}

		c, _, err := findOrCreateDirect(ctx, tx, r.SenderID, r.ReceiverID)
		if err != nil {
			return err
		}
		m, err := appendMessage(ctx, tx, c.ID, nil, store.SystemFriendsMessage, true)
		if err != nil {
			return err
		}
		if err := bumpLastActivityTx(ctx, tx, c.ID, m.CreatedAt); err != nil {
			return err
		}
		c.LastActivity = m.CreatedAt

		req, conv, msg = r, c, m
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return req, conv, msg, nil
}

func (s *Store) RejectFriendRequest(ctx context.Context, id int64) (*model.FriendRequest, error) {
	r, err := scanRequest(s.db.QueryRowContext(ctx,
		`UPDATE friend_requests SET status = 'rejected'
         WHERE id = $1 AND status = 'pending'
         RETURNING `+requestColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.requestTransitionError(ctx, id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, "reject friend request")
	}
	return r, nil
}

// requestTransitionError distinguishes a missing request from one that is
// no longer pending.
func (s *Store) requestTransitionError(ctx context.Context, id int64) error {
	if _, err := s.GetFriendRequest(ctx, id); err != nil {
		return err
	}
	return apperr.New(apperr.KindConflict, "friend request is not pending")
}

func (s *Store) ListPendingReceived(ctx context.Context, userID int64) ([]model.FriendRequestWithUsers, error) {
	return s.listRequests(ctx,
		`SELECT r.id, r.sender_id, r.receiver_id, r.status, r.created_at,
                u.id, u.username, u.password_hash, u.display_name, u.avatar_color,
                u.online, u.last_seen, u.created_at
         FROM friend_requests r
         JOIN users u ON u.id = r.sender_id
         WHERE r.receiver_id = $1 AND r.status = 'pending'
         ORDER BY r.id`, userID, true)
}

func (s *Store) ListSentRequests(ctx context.Context, userID int64) ([]model.FriendRequestWithUsers, error) {
	return s.listRequests(ctx,
		`SELECT r.id, r.sender_id, r.receiver_id, r.status, r.created_at,
                u.id, u.username, u.password_hash, u.display_name, u.avatar_color,
                u.online, u.last_seen, u.created_at
         FROM friend_requests r
         JOIN users u ON u.id = r.receiver_id
         WHERE r.sender_id = $1
         ORDER BY r.id`, userID, false)
}

func (s *Store) listRequests(ctx context.Context, query string, userID int64, joinedIsSender bool) ([]model.FriendRequestWithUsers, error) {
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, apperr.Wrap(err, "list friend requests")
	}
	defer rows.Close()

	var out []model.FriendRequestWithUsers
	for rows.Next() {
		var item model.FriendRequestWithUsers
		u := &model.User{}
		err := rows.Scan(&item.ID, &item.SenderID, &item.ReceiverID, &item.Status, &item.CreatedAt,
			&u.ID, &u.Username, &u.PasswordHash, &u.DisplayName, &u.AvatarColor,
			&u.Online, &u.LastSeen, &u.CreatedAt)
		if err != nil {
			return nil, apperr.Wrap(err, "scan friend request")
		}
		if joinedIsSender {
			item.Sender = u
		} else {
			item.Receiver = u
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
            SELECT 1 FROM friend_requests
            WHERE status = 'accepted'
              AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
         )`, a, b).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(err, "check friendship")
	}
	return exists, nil
}
