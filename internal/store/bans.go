package store

import (
	"context"

	"github.com/accord-chat/accord/internal/domain"
)

// CreateBan records the ban and removes the member in one transaction.
func (s *Store) CreateBan(ctx context.Context, ban *domain.Ban) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		query := `INSERT INTO bans (space_id, user_id, reason, banned_by, created_at) VALUES ($1, $2, $3, $4, $5)`

		if _, err := s.conn(ctx).Exec(ctx, query,
			ban.SpaceID, ban.UserID, ban.Reason, ban.BannedBy, ban.CreatedAt); err != nil {
			return translateError("create ban", err)
		}

		// The target may have already left; the ban still stands.
		_, err := s.conn(ctx).Exec(ctx,
			`DELETE FROM space_members WHERE space_id = $1 AND user_id = $2`, ban.SpaceID, ban.UserID)
		return translateError("create ban", err)
	})
}

func (s *Store) Ban(ctx context.Context, spaceID, userID string) (*domain.Ban, error) {
	query := `
		SELECT b.space_id, b.user_id, b.reason, b.banned_by, b.created_at,
			u.id, u.username, u.display_name, u.avatar_url, u.bio, u.is_bot, u.is_admin, u.created_at, u.updated_at
		FROM bans b
		JOIN users u ON u.id = b.user_id
		WHERE b.space_id = $1 AND b.user_id = $2`

	ban := &domain.Ban{User: &domain.User{}}
	err := s.conn(ctx).QueryRow(ctx, query, spaceID, userID).Scan(
		&ban.SpaceID, &ban.UserID, &ban.Reason, &ban.BannedBy, &ban.CreatedAt,
		&ban.User.ID, &ban.User.Username, &ban.User.DisplayName, &ban.User.AvatarURL,
		&ban.User.Bio, &ban.User.IsBot, &ban.User.IsAdmin, &ban.User.CreatedAt, &ban.User.UpdatedAt)
	if err != nil {
		return nil, translateError("get ban", err)
	}
	return ban, nil
}

func (s *Store) BansBySpace(ctx context.Context, spaceID string) ([]domain.Ban, error) {
	query := `
		SELECT b.space_id, b.user_id, b.reason, b.banned_by, b.created_at,
			u.id, u.username, u.display_name, u.avatar_url, u.bio, u.is_bot, u.is_admin, u.created_at, u.updated_at
		FROM bans b
		JOIN users u ON u.id = b.user_id
		WHERE b.space_id = $1
		ORDER BY b.created_at DESC`

	rows, err := s.conn(ctx).Query(ctx, query, spaceID)
	if err != nil {
		return nil, translateError("list bans", err)
	}
	defer rows.Close()

	var bans []domain.Ban
	for rows.Next() {
		ban := domain.Ban{User: &domain.User{}}
		if err := rows.Scan(
			&ban.SpaceID, &ban.UserID, &ban.Reason, &ban.BannedBy, &ban.CreatedAt,
			&ban.User.ID, &ban.User.Username, &ban.User.DisplayName, &ban.User.AvatarURL,
			&ban.User.Bio, &ban.User.IsBot, &ban.User.IsAdmin, &ban.User.CreatedAt, &ban.User.UpdatedAt); err != nil {
			return nil, translateError("scan ban", err)
		}
		bans = append(bans, ban)
	}
	return bans, rows.Err()
}

func (s *Store) IsBanned(ctx context.Context, spaceID, userID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM bans WHERE space_id = $1 AND user_id = $2)`

	var banned bool
	if err := s.conn(ctx).QueryRow(ctx, query, spaceID, userID).Scan(&banned); err != nil {
		return false, translateError("check ban", err)
	}
	return banned, nil
}

func (s *Store) DeleteBan(ctx context.Context, spaceID, userID string) error {
	query := `DELETE FROM bans WHERE space_id = $1 AND user_id = $2`

	tag, err := s.conn(ctx).Exec(ctx, query, spaceID, userID)
	if err != nil {
		return translateError("delete ban", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
