package store

import (
	"context"

	"github.com/accord-chat/accord/internal/domain"
)

func (s *Store) CreateEmoji(ctx context.Context, e *domain.Emoji) error {
	query := `
		INSERT INTO emojis (id, space_id, name, creator_id, path, animated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.conn(ctx).Exec(ctx, query,
		e.ID, e.SpaceID, e.Name, e.CreatorID, e.Path, e.Animated, e.CreatedAt)
	return translateError("create emoji", err)
}

func (s *Store) EmojiByID(ctx context.Context, id string) (*domain.Emoji, error) {
	query := `
		SELECT id, space_id, name, creator_id, path, animated, created_at
		FROM emojis
		WHERE id = $1`

	e := &domain.Emoji{}
	err := s.conn(ctx).QueryRow(ctx, query, id).Scan(
		&e.ID, &e.SpaceID, &e.Name, &e.CreatorID, &e.Path, &e.Animated, &e.CreatedAt)
	if err != nil {
		return nil, translateError("get emoji", err)
	}
	return e, nil
}

func (s *Store) EmojisBySpace(ctx context.Context, spaceID string) ([]domain.Emoji, error) {
	query := `
		SELECT id, space_id, name, creator_id, path, animated, created_at
		FROM emojis
		WHERE space_id = $1
		ORDER BY name`

	rows, err := s.conn(ctx).Query(ctx, query, spaceID)
	if err != nil {
		return nil, translateError("list emojis", err)
	}
	defer rows.Close()

	var emojis []domain.Emoji
	for rows.Next() {
		var e domain.Emoji
		if err := rows.Scan(&e.ID, &e.SpaceID, &e.Name, &e.CreatorID, &e.Path, &e.Animated, &e.CreatedAt); err != nil {
			return nil, translateError("scan emoji", err)
		}
		emojis = append(emojis, e)
	}
	return emojis, rows.Err()
}

func (s *Store) UpdateEmoji(ctx context.Context, id, name string) error {
	query := `UPDATE emojis SET name = $2 WHERE id = $1`

	tag, err := s.conn(ctx).Exec(ctx, query, id, name)
	if err != nil {
		return translateError("update emoji", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteEmoji(ctx context.Context, id string) error {
	query := `DELETE FROM emojis WHERE id = $1`

	tag, err := s.conn(ctx).Exec(ctx, query, id)
	if err != nil {
		return translateError("delete emoji", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
