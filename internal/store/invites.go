package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/accord-chat/accord/internal/domain"
)

func (s *Store) CreateInvite(ctx context.Context, inv *domain.Invite) error {
	query := `
		INSERT INTO invites (code, space_id, channel_id, inviter_id, max_uses, uses, max_age_seconds, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.conn(ctx).Exec(ctx, query,
		inv.Code, inv.SpaceID, inv.ChannelID, inv.InviterID,
		inv.MaxUses, inv.Uses, inv.MaxAgeSec, inv.ExpiresAt, inv.CreatedAt)
	return translateError("create invite", err)
}

func (s *Store) InviteByCode(ctx context.Context, code string) (*domain.Invite, error) {
	query := `
		SELECT code, space_id, channel_id, inviter_id, max_uses, uses, max_age_seconds, expires_at, created_at
		FROM invites
		WHERE code = $1`

	inv := &domain.Invite{}
	err := s.conn(ctx).QueryRow(ctx, query, code).Scan(
		&inv.Code, &inv.SpaceID, &inv.ChannelID, &inv.InviterID,
		&inv.MaxUses, &inv.Uses, &inv.MaxAgeSec, &inv.ExpiresAt, &inv.CreatedAt)
	if err != nil {
		return nil, translateError("get invite", err)
	}
	return inv, nil
}

func (s *Store) InvitesBySpace(ctx context.Context, spaceID string) ([]domain.Invite, error) {
	query := `
		SELECT code, space_id, channel_id, inviter_id, max_uses, uses, max_age_seconds, expires_at, created_at
		FROM invites
		WHERE space_id = $1
		ORDER BY created_at DESC`

	rows, err := s.conn(ctx).Query(ctx, query, spaceID)
	if err != nil {
		return nil, translateError("list invites", err)
	}
	defer rows.Close()

	var invites []domain.Invite
	for rows.Next() {
		var inv domain.Invite
		if err := rows.Scan(
			&inv.Code, &inv.SpaceID, &inv.ChannelID, &inv.InviterID,
			&inv.MaxUses, &inv.Uses, &inv.MaxAgeSec, &inv.ExpiresAt, &inv.CreatedAt); err != nil {
			return nil, translateError("scan invite", err)
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

// ConsumeInvite atomically claims one use of the invite. Exhausted or
// expired invites fail with BadRequest, unknown codes with NotFound.
func (s *Store) ConsumeInvite(ctx context.Context, code string) (*domain.Invite, error) {
	query := `
		UPDATE invites
		SET uses = uses + 1
		WHERE code = $1
			AND (max_uses = 0 OR uses < max_uses)
			AND (expires_at IS NULL OR expires_at > now())
		RETURNING code, space_id, channel_id, inviter_id, max_uses, uses, max_age_seconds, expires_at, created_at`

	inv := &domain.Invite{}
	err := s.conn(ctx).QueryRow(ctx, query, code).Scan(
		&inv.Code, &inv.SpaceID, &inv.ChannelID, &inv.InviterID,
		&inv.MaxUses, &inv.Uses, &inv.MaxAgeSec, &inv.ExpiresAt, &inv.CreatedAt)
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, translateError("consume invite", err)
	}

	// Distinguish a dead invite from a missing one.
	if _, err := s.InviteByCode(ctx, code); err != nil {
		return nil, err
	}
	return nil, domain.BadRequest("invite is expired or exhausted")
}

func (s *Store) DeleteInvite(ctx context.Context, code string) error {
	query := `DELETE FROM invites WHERE code = $1`

	tag, err := s.conn(ctx).Exec(ctx, query, code)
	if err != nil {
		return translateError("delete invite", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
