package store

import (
	"context"

	"github.com/accord-chat/accord/internal/domain"
)

func (s *Store) CreateSound(ctx context.Context, snd *domain.SoundboardSound) error {
	query := `
		INSERT INTO soundboard_sounds (id, space_id, name, creator_id, path, volume, emoji_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.conn(ctx).Exec(ctx, query,
		snd.ID, snd.SpaceID, snd.Name, snd.CreatorID, snd.Path, snd.Volume, snd.EmojiName, snd.CreatedAt)
	return translateError("create sound", err)
}

func (s *Store) SoundByID(ctx context.Context, id string) (*domain.SoundboardSound, error) {
	query := `
		SELECT id, space_id, name, creator_id, path, volume, emoji_name, created_at
		FROM soundboard_sounds
		WHERE id = $1`

	snd := &domain.SoundboardSound{}
	err := s.conn(ctx).QueryRow(ctx, query, id).Scan(
		&snd.ID, &snd.SpaceID, &snd.Name, &snd.CreatorID, &snd.Path, &snd.Volume, &snd.EmojiName, &snd.CreatedAt)
	if err != nil {
		return nil, translateError("get sound", err)
	}
	return snd, nil
}

func (s *Store) SoundsBySpace(ctx context.Context, spaceID string) ([]domain.SoundboardSound, error) {
	query := `
		SELECT id, space_id, name, creator_id, path, volume, emoji_name, created_at
		FROM soundboard_sounds
		WHERE space_id = $1
		ORDER BY name`

	rows, err := s.conn(ctx).Query(ctx, query, spaceID)
	if err != nil {
		return nil, translateError("list sounds", err)
	}
	defer rows.Close()

	var sounds []domain.SoundboardSound
	for rows.Next() {
		var snd domain.SoundboardSound
		if err := rows.Scan(
			&snd.ID, &snd.SpaceID, &snd.Name, &snd.CreatorID, &snd.Path,
			&snd.Volume, &snd.EmojiName, &snd.CreatedAt); err != nil {
			return nil, translateError("scan sound", err)
		}
		sounds = append(sounds, snd)
	}
	return sounds, rows.Err()
}

func (s *Store) UpdateSound(ctx context.Context, snd *domain.SoundboardSound) error {
	query := `UPDATE soundboard_sounds SET name = $2, volume = $3, emoji_name = $4 WHERE id = $1`

	tag, err := s.conn(ctx).Exec(ctx, query, snd.ID, snd.Name, snd.Volume, snd.EmojiName)
	if err != nil {
		return translateError("update sound", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSound(ctx context.Context, id string) error {
	query := `DELETE FROM soundboard_sounds WHERE id = $1`

	tag, err := s.conn(ctx).Exec(ctx, query, id)
	if err != nil {
		return translateError("delete sound", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
