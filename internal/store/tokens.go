package store

import (
	"context"
	"time"

	"github.com/accord-chat/accord/internal/domain"
)

// PrincipalByUserToken resolves a bearer token hash, honoring server-side
// expiry.
func (s *Store) PrincipalByUserToken(ctx context.Context, hash string) (*domain.Principal, error) {
	query := `
		SELECT u.id, u.is_bot, u.is_admin
		FROM user_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1 AND t.expires_at > now()`

	p := &domain.Principal{}
	err := s.conn(ctx).QueryRow(ctx, query, hash).Scan(&p.UserID, &p.Bot, &p.Admin)
	if err != nil {
		return nil, translateError("resolve user token", err)
	}
	return p, nil
}

func (s *Store) PrincipalByBotToken(ctx context.Context, hash string) (*domain.Principal, error) {
	query := `
		SELECT u.id, u.is_bot, u.is_admin
		FROM bot_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1`

	p := &domain.Principal{}
	err := s.conn(ctx).QueryRow(ctx, query, hash).Scan(&p.UserID, &p.Bot, &p.Admin)
	if err != nil {
		return nil, translateError("resolve bot token", err)
	}
	return p, nil
}

func (s *Store) InsertUserToken(ctx context.Context, hash, userID string, expiresAt time.Time) error {
	query := `INSERT INTO user_tokens (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`

	_, err := s.conn(ctx).Exec(ctx, query, hash, userID, expiresAt)
	return translateError("insert user token", err)
}

func (s *Store) InsertBotToken(ctx context.Context, hash, userID string) error {
	query := `INSERT INTO bot_tokens (token_hash, user_id) VALUES ($1, $2)`

	_, err := s.conn(ctx).Exec(ctx, query, hash, userID)
	return translateError("insert bot token", err)
}

func (s *Store) DeleteUserToken(ctx context.Context, hash string) error {
	query := `DELETE FROM user_tokens WHERE token_hash = $1`

	tag, err := s.conn(ctx).Exec(ctx, query, hash)
	if err != nil {
		return translateError("delete user token", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUserTokensByUser(ctx context.Context, userID string) error {
	query := `DELETE FROM user_tokens WHERE user_id = $1`

	_, err := s.conn(ctx).Exec(ctx, query, userID)
	return translateError("delete user tokens", err)
}

func (s *Store) DeleteBotTokensByUser(ctx context.Context, userID string) error {
	query := `DELETE FROM bot_tokens WHERE user_id = $1`

	_, err := s.conn(ctx).Exec(ctx, query, userID)
	return translateError("delete bot tokens", err)
}
