package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/accord-chat/accord/internal/domain"
)

// CreateMessage inserts the message and advances the channel's last_message_id.
func (s *Store) CreateMessage(ctx context.Context, msg *domain.Message) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO messages (id, channel_id, author_id, content, reply_to_id, thread_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`

		if _, err := s.conn(ctx).Exec(ctx, query,
			msg.ID, msg.ChannelID, msg.AuthorID, msg.Content,
			msg.ReplyToID, msg.ThreadID, msg.CreatedAt); err != nil {
			return translateError("create message", err)
		}
		return s.SetLastMessage(ctx, msg.ChannelID, msg.ID)
	})
}

func (s *Store) MessageByID(ctx context.Context, id string) (*domain.Message, error) {
	query := `
		SELECT m.id, m.channel_id, m.author_id, m.content, m.reply_to_id, m.thread_id, m.pinned, m.edited_at, m.created_at,
			u.id, u.username, u.display_name, u.avatar_url, u.bio, u.is_bot, u.is_admin, u.created_at, u.updated_at
		FROM messages m
		JOIN users u ON u.id = m.author_id
		WHERE m.id = $1`

	msg, err := scanMessage(s.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, translateError("get message", err)
	}
	return msg, nil
}

// MessagesByChannel pages backwards through channel history: newest first,
// strictly older than beforeID when set.
func (s *Store) MessagesByChannel(ctx context.Context, channelID, beforeID string, limit int) ([]domain.Message, error) {
	base := `
		SELECT m.id, m.channel_id, m.author_id, m.content, m.reply_to_id, m.thread_id, m.pinned, m.edited_at, m.created_at,
			u.id, u.username, u.display_name, u.avatar_url, u.bio, u.is_bot, u.is_admin, u.created_at, u.updated_at
		FROM messages m
		JOIN users u ON u.id = m.author_id
		WHERE m.channel_id = $1`

	var (
		rows pgx.Rows
		err  error
	)
	if beforeID == "" {
		query := base + `
		ORDER BY (m.id)::bigint DESC
		LIMIT $2`
		rows, err = s.conn(ctx).Query(ctx, query, channelID, limit)
	} else {
		query := base + ` AND (m.id)::bigint < ($3)::bigint
		ORDER BY (m.id)::bigint DESC
		LIMIT $2`
		rows, err = s.conn(ctx).Query(ctx, query, channelID, limit, beforeID)
	}
	if err != nil {
		return nil, translateError("list messages", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MessagesByChannelAfter pages forwards: oldest first, strictly newer than
// afterID.
func (s *Store) MessagesByChannelAfter(ctx context.Context, channelID, afterID string, limit int) ([]domain.Message, error) {
	query := `
		SELECT m.id, m.channel_id, m.author_id, m.content, m.reply_to_id, m.thread_id, m.pinned, m.edited_at, m.created_at,
			u.id, u.username, u.display_name, u.avatar_url, u.bio, u.is_bot, u.is_admin, u.created_at, u.updated_at
		FROM messages m
		JOIN users u ON u.id = m.author_id
		WHERE m.channel_id = $1 AND (m.id)::bigint > ($3)::bigint
		ORDER BY (m.id)::bigint
		LIMIT $2`

	rows, err := s.conn(ctx).Query(ctx, query, channelID, limit, afterID)
	if err != nil {
		return nil, translateError("list messages", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MessagesByThread lists a thread's replies oldest first.
func (s *Store) MessagesByThread(ctx context.Context, threadID string, limit int) ([]domain.Message, error) {
	query := `
		SELECT m.id, m.channel_id, m.author_id, m.content, m.reply_to_id, m.thread_id, m.pinned, m.edited_at, m.created_at,
			u.id, u.username, u.display_name, u.avatar_url, u.bio, u.is_bot, u.is_admin, u.created_at, u.updated_at
		FROM messages m
		JOIN users u ON u.id = m.author_id
		WHERE m.thread_id = $1
		ORDER BY (m.id)::bigint
		LIMIT $2`

	rows, err := s.conn(ctx).Query(ctx, query, threadID, limit)
	if err != nil {
		return nil, translateError("list thread messages", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *Store) UpdateMessage(ctx context.Context, id, content string) (*domain.Message, error) {
	query := `
		UPDATE messages
		SET content = $2, edited_at = $3
		WHERE id = $1`

	tag, err := s.conn(ctx).Exec(ctx, query, id, content, time.Now().UTC())
	if err != nil {
		return nil, translateError("update message", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrNotFound
	}
	return s.MessageByID(ctx, id)
}

func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	query := `DELETE FROM messages WHERE id = $1`

	tag, err := s.conn(ctx).Exec(ctx, query, id)
	if err != nil {
		return translateError("delete message", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteMessages removes a batch of messages from one channel, returning the
// ids that were actually deleted.
func (s *Store) DeleteMessages(ctx context.Context, channelID string, ids []string) ([]string, error) {
	query := `DELETE FROM messages WHERE channel_id = $1 AND id = ANY($2) RETURNING id`

	rows, err := s.conn(ctx).Query(ctx, query, channelID, ids)
	if err != nil {
		return nil, translateError("bulk delete messages", err)
	}
	defer rows.Close()

	var deleted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translateError("scan deleted message", err)
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}

// PinMessage records the pin and flips the message's pinned flag.
func (s *Store) PinMessage(ctx context.Context, channelID, messageID, pinnedBy string) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		query := `INSERT INTO pinned_messages (channel_id, message_id, pinned_by) VALUES ($1, $2, $3)`

		if _, err := s.conn(ctx).Exec(ctx, query, channelID, messageID, pinnedBy); err != nil {
			return translateError("pin message", err)
		}

		_, err := s.conn(ctx).Exec(ctx, `UPDATE messages SET pinned = TRUE WHERE id = $1`, messageID)
		return translateError("pin message", err)
	})
}

func (s *Store) UnpinMessage(ctx context.Context, channelID, messageID string) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		query := `DELETE FROM pinned_messages WHERE channel_id = $1 AND message_id = $2`

		tag, err := s.conn(ctx).Exec(ctx, query, channelID, messageID)
		if err != nil {
			return translateError("unpin message", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}

		_, err = s.conn(ctx).Exec(ctx, `UPDATE messages SET pinned = FALSE WHERE id = $1`, messageID)
		return translateError("unpin message", err)
	})
}

func (s *Store) PinnedMessages(ctx context.Context, channelID string) ([]domain.Message, error) {
	query := `
		SELECT m.id, m.channel_id, m.author_id, m.content, m.reply_to_id, m.thread_id, m.pinned, m.edited_at, m.created_at,
			u.id, u.username, u.display_name, u.avatar_url, u.bio, u.is_bot, u.is_admin, u.created_at, u.updated_at
		FROM pinned_messages p
		JOIN messages m ON m.id = p.message_id
		JOIN users u ON u.id = m.author_id
		WHERE p.channel_id = $1
		ORDER BY p.pinned_at DESC`

	rows, err := s.conn(ctx).Query(ctx, query, channelID)
	if err != nil {
		return nil, translateError("list pinned messages", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

type messageRow interface {
	Scan(dest ...any) error
}

func scanMessage(row messageRow) (*domain.Message, error) {
	msg := &domain.Message{Author: &domain.User{}}
	err := row.Scan(
		&msg.ID, &msg.ChannelID, &msg.AuthorID, &msg.Content, &msg.ReplyToID,
		&msg.ThreadID, &msg.Pinned, &msg.EditedAt, &msg.CreatedAt,
		&msg.Author.ID, &msg.Author.Username, &msg.Author.DisplayName, &msg.Author.AvatarURL,
		&msg.Author.Bio, &msg.Author.IsBot, &msg.Author.IsAdmin,
		&msg.Author.CreatedAt, &msg.Author.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	var msgs []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, translateError("scan message", err)
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}
