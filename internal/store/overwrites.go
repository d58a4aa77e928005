package store

import (
	"context"

	"github.com/accord-chat/accord/internal/domain"
)

func (s *Store) OverwritesByChannel(ctx context.Context, channelID string) ([]domain.PermissionOverwrite, error) {
	query := `
		SELECT channel_id, target_id, target_type, allow, deny
		FROM permission_overwrites
		WHERE channel_id = $1`

	rows, err := s.conn(ctx).Query(ctx, query, channelID)
	if err != nil {
		return nil, translateError("list overwrites", err)
	}
	defer rows.Close()

	var overwrites []domain.PermissionOverwrite
	for rows.Next() {
		var ow domain.PermissionOverwrite
		if err := rows.Scan(&ow.ChannelID, &ow.TargetID, &ow.TargetType, &ow.Allow, &ow.Deny); err != nil {
			return nil, translateError("scan overwrite", err)
		}
		overwrites = append(overwrites, ow)
	}
	return overwrites, rows.Err()
}

func (s *Store) UpsertOverwrite(ctx context.Context, ow *domain.PermissionOverwrite) error {
	query := `
		INSERT INTO permission_overwrites (channel_id, target_id, target_type, allow, deny)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (channel_id, target_id) DO UPDATE SET
			target_type = EXCLUDED.target_type,
			allow = EXCLUDED.allow,
			deny = EXCLUDED.deny`

	_, err := s.conn(ctx).Exec(ctx, query, ow.ChannelID, ow.TargetID, ow.TargetType, ow.Allow, ow.Deny)
	return translateError("upsert overwrite", err)
}

func (s *Store) DeleteOverwrite(ctx context.Context, channelID, targetID string) error {
	query := `DELETE FROM permission_overwrites WHERE channel_id = $1 AND target_id = $2`

	tag, err := s.conn(ctx).Exec(ctx, query, channelID, targetID)
	if err != nil {
		return translateError("delete overwrite", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
