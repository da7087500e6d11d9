package postgres

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/model"
	"github.com/Devansh1501S/Chat-Sphere/internal/store"
)

func (s *Store) AppendMessage(ctx context.Context, conversationID int64, senderID *int64, content string, isSystem bool) (*model.Message, error) {
	return appendMessage(ctx, s.db, conversationID, senderID, content, isSystem)
}

func appendMessage(ctx context.Context, q querier, conversationID int64, senderID *int64, content string, isSystem bool) (*model.Message, error) {
	var sender sql.NullInt64
	if senderID != nil {
		sender = sql.NullInt64{Int64: *senderID, Valid: true}
	}

	msg := &model.Message{ConversationID: conversationID, SenderID: senderID, Content: content, IsSystem: isSystem}
	err := q.QueryRowContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content, is_system)
         VALUES ($1, $2, $3, $4)
         RETURNING id, created_at`,
		conversationID, sender, content, isSystem).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, apperr.New(apperr.KindNotFound, "conversation not found")
		}
		return nil, apperr.Wrap(err, "append message")
	}
	return msg, nil
}

// ListMessages returns the most recent limit messages oldest first: the
// query fetches newest-first with the limit, then the window is reversed.
func (s *Store) ListMessages(ctx context.Context, conversationID int64, limit int) ([]model.MessageWithSender, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = store.DefaultMessageWindow
	}
	msgs, err := s.queryMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// queryMessages fetches up to limit messages newest first with senders
// resolved.
func (s *Store) queryMessages(ctx context.Context, conversationID int64, limit int) ([]model.MessageWithSender, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id, m.content, m.is_system, m.created_at,
                u.id, u.username, u.display_name, u.avatar_color, u.online, u.last_seen, u.created_at
         FROM messages m
         LEFT JOIN users u ON u.id = m.sender_id
         WHERE m.conversation_id = $1
         ORDER BY m.created_at DESC, m.id DESC
         LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, apperr.Wrap(err, "list messages")
	}
	defer rows.Close()

	var msgs []model.MessageWithSender
	for rows.Next() {
		var m model.MessageWithSender
		var senderID sql.NullInt64
		var uID sql.NullInt64
		var username, displayName, avatarColor sql.NullString
		var online sql.NullBool
		var lastSeen, userCreated sql.NullTime

		err := rows.Scan(&m.ID, &m.ConversationID, &senderID, &m.Content, &m.IsSystem, &m.CreatedAt,
			&uID, &username, &displayName, &avatarColor, &online, &lastSeen, &userCreated)
		if err != nil {
			return nil, apperr.Wrap(err, "scan message")
		}

		if senderID.Valid {
			id := senderID.Int64
			m.SenderID = &id
		}
		if uID.Valid {
			m.Sender = &model.User{
				ID:          uID.Int64,
				Username:    username.String,
				DisplayName: displayName.String,
				AvatarColor: avatarColor.String,
				Online:      online.Bool,
				LastSeen:    lastSeen.Time,
				CreatedAt:   userCreated.Time,
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// bumpLastActivityTx sets last_activity inside a transaction.
func bumpLastActivityTx(ctx context.Context, q querier, conversationID int64, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE conversations SET last_activity = GREATEST(last_activity, $2) WHERE id = $1`,
		conversationID, at.UTC())
	if err != nil {
		return apperr.Wrap(err, "bump last activity")
	}
	return nil
}
