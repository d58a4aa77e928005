package store

import (
	"context"

	"github.com/accord-chat/accord/internal/domain"
)

// AddReaction is idempotent: reacting twice with the same emoji is a no-op.
func (s *Store) AddReaction(ctx context.Context, messageID, userID, emoji string) error {
	query := `
		INSERT INTO reactions (message_id, user_id, emoji)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`

	_, err := s.conn(ctx).Exec(ctx, query, messageID, userID, emoji)
	return translateError("add reaction", err)
}

func (s *Store) RemoveReaction(ctx context.Context, messageID, userID, emoji string) error {
	query := `DELETE FROM reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`

	tag, err := s.conn(ctx).Exec(ctx, query, messageID, userID, emoji)
	if err != nil {
		return translateError("remove reaction", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClearReactions deletes every reaction on a message.
func (s *Store) ClearReactions(ctx context.Context, messageID string) error {
	query := `DELETE FROM reactions WHERE message_id = $1`

	_, err := s.conn(ctx).Exec(ctx, query, messageID)
	return translateError("clear reactions", err)
}

// ClearEmojiReactions deletes one emoji's reactions on a message.
func (s *Store) ClearEmojiReactions(ctx context.Context, messageID, emoji string) error {
	query := `DELETE FROM reactions WHERE message_id = $1 AND emoji = $2`

	_, err := s.conn(ctx).Exec(ctx, query, messageID, emoji)
	return translateError("clear emoji reactions", err)
}

// ReactionCounts aggregates reactions for a batch of messages.
func (s *Store) ReactionCounts(ctx context.Context, messageIDs []string) (map[string][]domain.ReactionCount, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT message_id, emoji, COUNT(*)
		FROM reactions
		WHERE message_id = ANY($1)
		GROUP BY message_id, emoji
		ORDER BY message_id, MIN(created_at)`

	rows, err := s.conn(ctx).Query(ctx, query, messageIDs)
	if err != nil {
		return nil, translateError("count reactions", err)
	}
	defer rows.Close()

	counts := make(map[string][]domain.ReactionCount)
	for rows.Next() {
		var (
			messageID string
			rc        domain.ReactionCount
		)
		if err := rows.Scan(&messageID, &rc.Emoji, &rc.Count); err != nil {
			return nil, translateError("scan reaction count", err)
		}
		counts[messageID] = append(counts[messageID], rc)
	}
	return counts, rows.Err()
}

// ReactorIDs lists the users who reacted with one emoji, oldest first.
func (s *Store) ReactorIDs(ctx context.Context, messageID, emoji string, limit int) ([]string, error) {
	query := `
		SELECT user_id
		FROM reactions
		WHERE message_id = $1 AND emoji = $2
		ORDER BY created_at
		LIMIT $3`

	rows, err := s.conn(ctx).Query(ctx, query, messageID, emoji, limit)
	if err != nil {
		return nil, translateError("list reactors", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translateError("scan reactor", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
