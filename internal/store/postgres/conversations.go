package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/model"
)

const convColumns = "id, name, is_group, created_at, last_activity"

func scanConversation(row interface{ Scan(...any) error }) (*model.Conversation, error) {
	c := &model.Conversation{}
	if err := row.Scan(&c.ID, &c.Name, &c.IsGroup, &c.CreatedAt, &c.LastActivity); err != nil {
		return nil, err
	}
	return c, nil
}

// directKey normalizes a user pair into the unique key enforcing one
// direct conversation per pair.
func directKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

func (s *Store) CreateConversation(ctx context.Context, creatorID int64, participantIDs []int64, isGroup bool, name string) (*model.Conversation, error) {
	var conv *model.Conversation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := scanConversation(tx.QueryRowContext(ctx,
			`INSERT INTO conversations (name, is_group) VALUES ($1, $2) RETURNING `+convColumns,
			name, isGroup))
		if err != nil {
			return apperr.Wrap(err, "create conversation")
		}

		members := append([]int64{creatorID}, participantIDs...)
		seen := make(map[int64]bool, len(members))
		for _, userID := range members {
			if seen[userID] {
				continue
			}
			seen[userID] = true
			if err := addParticipant(ctx, tx, c.ID, userID); err != nil {
				return err
			}
		}
		conv = c
		return nil
	})
	return conv, err
}

func addParticipant(ctx context.Context, q querier, convID, userID int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO participants (conversation_id, user_id)
         VALUES ($1, $2) ON CONFLICT DO NOTHING`, convID, userID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperr.New(apperr.KindNotFound, "user not found")
		}
		return apperr.Wrap(err, "add participant")
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx,
		`SELECT `+convColumns+` FROM conversations WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "conversation not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, "get conversation")
	}
	return c, nil
}

func (s *Store) FindOrCreateDirect(ctx context.Context, a, b int64) (*model.Conversation, bool, error) {
	if a == b {
		return nil, false, apperr.New(apperr.KindValidation, "cannot open a conversation with yourself")
	}

	var conv *model.Conversation
	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, madeNew, err := findOrCreateDirect(ctx, tx, a, b)
		if err != nil {
			return err
		}
		conv, created = c, madeNew
		return nil
	})
	return conv, created, err
}

// findOrCreateDirect runs inside the caller's transaction. The unique
// direct_key index makes concurrent calls converge on one row: the loser
// of the insert race sees DO NOTHING and reads the winner's row.
func findOrCreateDirect(ctx context.Context, tx *sql.Tx, a, b int64) (*model.Conversation, bool, error) {
	key := directKey(a, b)

	c, err := scanConversation(tx.QueryRowContext(ctx,
		`INSERT INTO conversations (is_group, direct_key) VALUES (FALSE, $1)
         ON CONFLICT (direct_key) DO NOTHING
         RETURNING `+convColumns, key))
	switch {
	case err == nil:
		if err := addParticipant(ctx, tx, c.ID, a); err != nil {
			return nil, false, err
		}
		if err := addParticipant(ctx, tx, c.ID, b); err != nil {
			return nil, false, err
		}
		return c, true, nil
	case errors.Is(err, sql.ErrNoRows):
		c, err = scanConversation(tx.QueryRowContext(ctx,
			`SELECT `+convColumns+` FROM conversations WHERE direct_key = $1`, key))
		if err != nil {
			return nil, false, apperr.Wrap(err, "find direct conversation")
		}
		return c, false, nil
	default:
		return nil, false, apperr.Wrap(err, "create direct conversation")
	}
}

func (s *Store) AddParticipant(ctx context.Context, conversationID, userID int64) error {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return err
	}
	return addParticipant(ctx, s.db, conversationID, userID)
}

func (s *Store) ListParticipants(ctx context.Context, conversationID int64) ([]model.User, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return listParticipants(ctx, s.db, conversationID)
}

func listParticipants(ctx context.Context, q querier, conversationID int64) ([]model.User, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT u.id, u.username, u.password_hash, u.display_name, u.avatar_color,
                u.online, u.last_seen, u.created_at
         FROM participants p JOIN users u ON u.id = p.user_id
         WHERE p.conversation_id = $1 ORDER BY u.id`, conversationID)
	if err != nil {
		return nil, apperr.Wrap(err, "list participants")
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperr.Wrap(err, "scan participant")
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) IsParticipant(ctx context.Context, userID, conversationID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
            SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2
         )`, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(err, "check participant")
	}
	return exists, nil
}

func (s *Store) MarkRead(ctx context.Context, userID, conversationID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE participants SET last_read_at = now()
         WHERE conversation_id = $1 AND user_id = $2`, conversationID, userID)
	if err != nil {
		return apperr.Wrap(err, "mark read")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindForbidden, "not a participant")
	}
	return nil
}

func (s *Store) UnreadCount(ctx context.Context, userID, conversationID int64) (int, error) {
	return unreadCount(ctx, s.db, userID, conversationID)
}

func unreadCount(ctx context.Context, q querier, userID, conversationID int64) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*)
         FROM messages m
         JOIN participants p ON p.conversation_id = m.conversation_id AND p.user_id = $2
         WHERE m.conversation_id = $1 AND m.created_at > p.last_read_at`,
		conversationID, userID).Scan(&count)
	if err != nil {
		return 0, apperr.Wrap(err, "unread count")
	}
	return count, nil
}

func (s *Store) BumpLastActivity(ctx context.Context, conversationID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_activity = GREATEST(last_activity, $2) WHERE id = $1`,
		conversationID, at.UTC())
	if err != nil {
		return apperr.Wrap(err, "bump last activity")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindNotFound, "conversation not found")
	}
	return nil
}

func (s *Store) ListConversations(ctx context.Context, userID int64) ([]model.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.is_group, c.created_at, c.last_activity
         FROM conversations c
         JOIN participants p ON p.conversation_id = c.id
         WHERE p.user_id = $1
         ORDER BY c.last_activity DESC`, userID)
	if err != nil {
		return nil, apperr.Wrap(err, "list conversations")
	}
	defer rows.Close()

	var summaries []model.ConversationSummary
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, apperr.Wrap(err, "scan conversation")
		}
		summaries = append(summaries, model.ConversationSummary{Conversation: *c})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, "list conversations")
	}

	// Resolve participants, last message and unread count per conversation.
	// One query per row; acceptable at this scale, the index on
	// (conversation_id, created_at) keeps each lookup cheap.
	for i := range summaries {
		convID := summaries[i].ID

		participants, err := listParticipants(ctx, s.db, convID)
		if err != nil {
			return nil, err
		}
		summaries[i].Participants = participants

		last, err := s.lastMessage(ctx, convID)
		if err != nil {
			return nil, err
		}
		summaries[i].LastMessage = last

		unread, err := unreadCount(ctx, s.db, userID, convID)
		if err != nil {
			return nil, err
		}
		summaries[i].UnreadCount = unread
	}
	return summaries, nil
}

func (s *Store) lastMessage(ctx context.Context, conversationID int64) (*model.MessageWithSender, error) {
	msgs, err := s.queryMessages(ctx, conversationID, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

// isForeignKeyViolation reports a Postgres foreign_key_violation (23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
