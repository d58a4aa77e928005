package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/accord-chat/accord/internal/domain"
)

func (s *Store) insertChannel(ctx context.Context, ch *domain.Channel) error {
	query := `
		INSERT INTO channels (id, space_id, type, name, topic, position, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.conn(ctx).Exec(ctx, query,
		ch.ID, ch.SpaceID, ch.Type, ch.Name, ch.Topic, ch.Position, ch.ParentID,
		ch.CreatedAt, ch.UpdatedAt)
	return translateError("create channel", err)
}

// CreateChannel inserts a space channel at the end of the channel list.
func (s *Store) CreateChannel(ctx context.Context, ch *domain.Channel) error {
	query := `
		INSERT INTO channels (id, space_id, type, name, topic, position, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5,
			(SELECT COALESCE(MAX(position), -1) + 1 FROM channels WHERE space_id = $2),
			$6, $7, $8)
		RETURNING position`

	err := s.conn(ctx).QueryRow(ctx, query,
		ch.ID, ch.SpaceID, ch.Type, ch.Name, ch.Topic, ch.ParentID,
		ch.CreatedAt, ch.UpdatedAt).Scan(&ch.Position)
	return translateError("create channel", err)
}

// CreateDMChannel inserts a direct message channel and its participants.
func (s *Store) CreateDMChannel(ctx context.Context, ch *domain.Channel) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.insertChannel(ctx, ch); err != nil {
			return err
		}
		query := `INSERT INTO dm_participants (channel_id, user_id) VALUES ($1, $2)`
		for _, userID := range ch.RecipientIDs {
			if _, err := s.conn(ctx).Exec(ctx, query, ch.ID, userID); err != nil {
				return translateError("add dm participant", err)
			}
		}
		return nil
	})
}

func (s *Store) ChannelByID(ctx context.Context, id string) (*domain.Channel, error) {
	query := `
		SELECT c.id, c.space_id, c.type, c.name, c.topic, c.position, c.parent_id, c.last_message_id, c.created_at, c.updated_at,
			COALESCE(array_agg(dp.user_id) FILTER (WHERE dp.user_id IS NOT NULL), '{}')
		FROM channels c
		LEFT JOIN dm_participants dp ON dp.channel_id = c.id
		WHERE c.id = $1
		GROUP BY c.id`

	ch := &domain.Channel{}
	err := s.conn(ctx).QueryRow(ctx, query, id).Scan(
		&ch.ID, &ch.SpaceID, &ch.Type, &ch.Name, &ch.Topic, &ch.Position,
		&ch.ParentID, &ch.LastMessageID, &ch.CreatedAt, &ch.UpdatedAt, &ch.RecipientIDs)
	if err != nil {
		return nil, translateError("get channel", err)
	}
	return ch, nil
}

func (s *Store) ChannelsBySpace(ctx context.Context, spaceID string) ([]domain.Channel, error) {
	query := `
		SELECT id, space_id, type, name, topic, position, parent_id, last_message_id, created_at, updated_at
		FROM channels
		WHERE space_id = $1
		ORDER BY position, (id)::bigint`

	rows, err := s.conn(ctx).Query(ctx, query, spaceID)
	if err != nil {
		return nil, translateError("list channels", err)
	}
	defer rows.Close()

	return scanChannels(rows)
}

// DMChannelsByUser lists the user's direct message channels with their
// participants.
func (s *Store) DMChannelsByUser(ctx context.Context, userID string) ([]domain.Channel, error) {
	query := `
		SELECT c.id, c.space_id, c.type, c.name, c.topic, c.position, c.parent_id, c.last_message_id, c.created_at, c.updated_at,
			COALESCE(array_agg(dp.user_id) FILTER (WHERE dp.user_id IS NOT NULL), '{}')
		FROM channels c
		JOIN dm_participants me ON me.channel_id = c.id AND me.user_id = $1
		LEFT JOIN dm_participants dp ON dp.channel_id = c.id
		GROUP BY c.id
		ORDER BY (c.id)::bigint DESC`

	rows, err := s.conn(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, translateError("list dm channels", err)
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(
			&ch.ID, &ch.SpaceID, &ch.Type, &ch.Name, &ch.Topic, &ch.Position,
			&ch.ParentID, &ch.LastMessageID, &ch.CreatedAt, &ch.UpdatedAt, &ch.RecipientIDs); err != nil {
			return nil, translateError("scan dm channel", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// FindDMChannel returns the existing one-to-one channel between two users,
// or ErrNotFound.
func (s *Store) FindDMChannel(ctx context.Context, userA, userB string) (*domain.Channel, error) {
	query := `
		SELECT c.id
		FROM channels c
		JOIN dm_participants a ON a.channel_id = c.id AND a.user_id = $1
		JOIN dm_participants b ON b.channel_id = c.id AND b.user_id = $2
		WHERE c.type = 'dm'
		LIMIT 1`

	var id string
	if err := s.conn(ctx).QueryRow(ctx, query, userA, userB).Scan(&id); err != nil {
		return nil, translateError("find dm channel", err)
	}
	return s.ChannelByID(ctx, id)
}

func (s *Store) UpdateChannel(ctx context.Context, ch *domain.Channel) error {
	query := `
		UPDATE channels
		SET name = $2, topic = $3, position = $4, parent_id = $5, updated_at = $6
		WHERE id = $1`

	tag, err := s.conn(ctx).Exec(ctx, query,
		ch.ID, ch.Name, ch.Topic, ch.Position, ch.ParentID, time.Now().UTC())
	if err != nil {
		return translateError("update channel", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetLastMessage advances the channel's last_message_id, never moving it
// backwards.
func (s *Store) SetLastMessage(ctx context.Context, channelID, messageID string) error {
	query := `
		UPDATE channels
		SET last_message_id = $2
		WHERE id = $1 AND (last_message_id IS NULL OR (last_message_id)::bigint < ($2)::bigint)`

	_, err := s.conn(ctx).Exec(ctx, query, channelID, messageID)
	return translateError("set last message", err)
}

func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	query := `DELETE FROM channels WHERE id = $1`

	tag, err := s.conn(ctx).Exec(ctx, query, id)
	if err != nil {
		return translateError("delete channel", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanChannels(rows pgx.Rows) ([]domain.Channel, error) {
	var channels []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(
			&ch.ID, &ch.SpaceID, &ch.Type, &ch.Name, &ch.Topic, &ch.Position,
			&ch.ParentID, &ch.LastMessageID, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, translateError("scan channel", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}
