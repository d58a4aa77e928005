package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/accord-chat/accord/internal/domain"
)

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, username, display_name, avatar_url, bio, is_bot, is_admin, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.conn(ctx).Exec(ctx, query,
		u.ID, u.Username, u.DisplayName, u.AvatarURL, u.Bio, u.IsBot, u.IsAdmin,
		nullIfEmpty(u.PasswordHash), u.CreatedAt, u.UpdatedAt)
	return translateError("create user", err)
}

func (s *Store) UserByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, username, display_name, avatar_url, bio, is_bot, is_admin, COALESCE(password_hash, ''), created_at, updated_at
		FROM users
		WHERE id = $1`

	u := &domain.User{}
	err := s.conn(ctx).QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.Bio,
		&u.IsBot, &u.IsAdmin, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translateError("get user", err)
	}
	return u, nil
}

// UserByUsername finds a non-bot account by case-insensitive username.
func (s *Store) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT id, username, display_name, avatar_url, bio, is_bot, is_admin, COALESCE(password_hash, ''), created_at, updated_at
		FROM users
		WHERE lower(username) = lower($1) AND NOT is_bot`

	u := &domain.User{}
	err := s.conn(ctx).QueryRow(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.Bio,
		&u.IsBot, &u.IsAdmin, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translateError("get user by username", err)
	}
	return u, nil
}

func (s *Store) UsersByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, username, display_name, avatar_url, bio, is_bot, is_admin, COALESCE(password_hash, ''), created_at, updated_at
		FROM users
		WHERE id = ANY($1)`

	rows, err := s.conn(ctx).Query(ctx, query, ids)
	if err != nil {
		return nil, translateError("list users", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

func (s *Store) UpdateUser(ctx context.Context, u *domain.User) error {
	query := `
		UPDATE users
		SET display_name = $2, avatar_url = $3, bio = $4, updated_at = $5
		WHERE id = $1`

	tag, err := s.conn(ctx).Exec(ctx, query, u.ID, u.DisplayName, u.AvatarURL, u.Bio, time.Now().UTC())
	if err != nil {
		return translateError("update user", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`

	tag, err := s.conn(ctx).Exec(ctx, query, id, passwordHash)
	if err != nil {
		return translateError("update user password", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanUsers(rows pgx.Rows) ([]domain.User, error) {
	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(
			&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.Bio,
			&u.IsBot, &u.IsAdmin, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, translateError("scan user", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
