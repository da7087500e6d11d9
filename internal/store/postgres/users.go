package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/model"
)

const userColumns = "id, username, password_hash, display_name, avatar_color, online, last_seen, created_at"

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.DisplayName,
		&u.AvatarColor, &u.Online, &u.LastSeen, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash, displayName, avatarColor string) (*model.User, error) {
	query := `INSERT INTO users (username, password_hash, display_name, avatar_color)
              VALUES ($1, $2, $3, $4)
              RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRowContext(ctx, query, username, passwordHash, displayName, avatarColor))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Field(apperr.KindConflict, "username", "username already taken")
		}
		return nil, apperr.Wrap(err, "create user")
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, "get user")
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, "get user")
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, apperr.Wrap(err, "list users")
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperr.Wrap(err, "scan user")
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) SearchUserExact(ctx context.Context, username string, excludeID int64) (*model.User, error) {
	// Exact match only. Substring search would allow account enumeration.
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 AND id <> $2`,
		username, excludeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, "search user")
	}
	return u, nil
}

func (s *Store) SetUserOnline(ctx context.Context, userID int64, online bool, lastSeen time.Time) error {
	var res sql.Result
	var err error
	if online {
		res, err = s.db.ExecContext(ctx,
			`UPDATE users SET online = TRUE WHERE id = $1`, userID)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE users SET online = FALSE, last_seen = $2 WHERE id = $1`, userID, lastSeen.UTC())
	}
	if err != nil {
		return apperr.Wrap(err, "set user online")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	return nil
}

// isUniqueViolation reports a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
