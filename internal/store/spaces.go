package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/permissions"
)

// CreateSpace inserts the space together with its bootstrap rows: the
// @everyone, Moderator and Admin roles, a #general text channel, the owner's
// membership and their Admin assignment. All or nothing.
func (s *Store) CreateSpace(ctx context.Context, space *domain.Space) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO spaces (id, name, slug, description, icon_url, owner_id, public, voice_region, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

		if _, err := s.conn(ctx).Exec(ctx, query,
			space.ID, space.Name, space.Slug, space.Description, space.IconURL,
			space.OwnerID, space.Public, space.VoiceRegion, space.CreatedAt, space.UpdatedAt); err != nil {
			return translateError("create space", err)
		}

		now := space.CreatedAt
		bootstrap := []domain.Role{
			{ID: s.NewID(), SpaceID: space.ID, Name: "@everyone", Position: 0, Permissions: permissions.EveryoneDefaults(), Managed: true, CreatedAt: now},
			{ID: s.NewID(), SpaceID: space.ID, Name: "Moderator", Position: 1, Permissions: permissions.ModeratorDefaults(), CreatedAt: now},
			{ID: s.NewID(), SpaceID: space.ID, Name: "Admin", Position: 2, Permissions: permissions.AdminDefaults(), CreatedAt: now},
		}
		for i := range bootstrap {
			if err := s.insertRole(ctx, &bootstrap[i]); err != nil {
				return err
			}
		}

		general := &domain.Channel{
			ID:        s.NewID(),
			SpaceID:   &space.ID,
			Type:      domain.ChannelTypeText,
			Name:      "general",
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.insertChannel(ctx, general); err != nil {
			return err
		}

		if err := s.AddMember(ctx, space.ID, space.OwnerID, nil); err != nil {
			return err
		}
		return s.AddMemberRole(ctx, space.ID, space.OwnerID, bootstrap[2].ID)
	})
}

func (s *Store) SpaceByID(ctx context.Context, id string) (*domain.Space, error) {
	query := `
		SELECT id, name, slug, description, icon_url, owner_id, public, voice_region, created_at, updated_at
		FROM spaces
		WHERE id = $1`

	sp := &domain.Space{}
	err := s.conn(ctx).QueryRow(ctx, query, id).Scan(
		&sp.ID, &sp.Name, &sp.Slug, &sp.Description, &sp.IconURL,
		&sp.OwnerID, &sp.Public, &sp.VoiceRegion, &sp.CreatedAt, &sp.UpdatedAt)
	if err != nil {
		return nil, translateError("get space", err)
	}
	return sp, nil
}

func (s *Store) SpaceBySlug(ctx context.Context, slug string) (*domain.Space, error) {
	query := `
		SELECT id, name, slug, description, icon_url, owner_id, public, voice_region, created_at, updated_at
		FROM spaces
		WHERE slug = $1`

	sp := &domain.Space{}
	err := s.conn(ctx).QueryRow(ctx, query, slug).Scan(
		&sp.ID, &sp.Name, &sp.Slug, &sp.Description, &sp.IconURL,
		&sp.OwnerID, &sp.Public, &sp.VoiceRegion, &sp.CreatedAt, &sp.UpdatedAt)
	if err != nil {
		return nil, translateError("get space by slug", err)
	}
	return sp, nil
}

// SpacesByUser lists the spaces the user is a member of, oldest first.
func (s *Store) SpacesByUser(ctx context.Context, userID string) ([]domain.Space, error) {
	query := `
		SELECT sp.id, sp.name, sp.slug, sp.description, sp.icon_url, sp.owner_id, sp.public, sp.voice_region, sp.created_at, sp.updated_at
		FROM spaces sp
		JOIN space_members m ON m.space_id = sp.id
		WHERE m.user_id = $1
		ORDER BY (sp.id)::bigint`

	rows, err := s.conn(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, translateError("list spaces", err)
	}
	defer rows.Close()

	return scanSpaces(rows)
}

// PublicSpaces lists discoverable spaces, newest first.
func (s *Store) PublicSpaces(ctx context.Context, limit int) ([]domain.Space, error) {
	query := `
		SELECT id, name, slug, description, icon_url, owner_id, public, voice_region, created_at, updated_at
		FROM spaces
		WHERE public
		ORDER BY (id)::bigint DESC
		LIMIT $1`

	rows, err := s.conn(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, translateError("list public spaces", err)
	}
	defer rows.Close()

	return scanSpaces(rows)
}

func (s *Store) UpdateSpace(ctx context.Context, space *domain.Space) error {
	query := `
		UPDATE spaces
		SET name = $2, slug = $3, description = $4, icon_url = $5, owner_id = $6, public = $7, voice_region = $8, updated_at = $9
		WHERE id = $1`

	tag, err := s.conn(ctx).Exec(ctx, query,
		space.ID, space.Name, space.Slug, space.Description, space.IconURL,
		space.OwnerID, space.Public, space.VoiceRegion, time.Now().UTC())
	if err != nil {
		return translateError("update space", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSpace(ctx context.Context, id string) error {
	query := `DELETE FROM spaces WHERE id = $1`

	tag, err := s.conn(ctx).Exec(ctx, query, id)
	if err != nil {
		return translateError("delete space", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSpaces(rows pgx.Rows) ([]domain.Space, error) {
	var spaces []domain.Space
	for rows.Next() {
		var sp domain.Space
		if err := rows.Scan(
			&sp.ID, &sp.Name, &sp.Slug, &sp.Description, &sp.IconURL,
			&sp.OwnerID, &sp.Public, &sp.VoiceRegion, &sp.CreatedAt, &sp.UpdatedAt); err != nil {
			return nil, translateError("scan space", err)
		}
		spaces = append(spaces, sp)
	}
	return spaces, rows.Err()
}
