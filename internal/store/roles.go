package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/accord-chat/accord/internal/domain"
)

func (s *Store) insertRole(ctx context.Context, role *domain.Role) error {
	query := `
		INSERT INTO roles (id, space_id, name, color, position, permissions, managed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.conn(ctx).Exec(ctx, query,
		role.ID, role.SpaceID, role.Name, role.Color, role.Position,
		role.Permissions, role.Managed, role.CreatedAt)
	return translateError("create role", err)
}

// CreateRole inserts a role at the top of the hierarchy.
func (s *Store) CreateRole(ctx context.Context, role *domain.Role) error {
	query := `
		INSERT INTO roles (id, space_id, name, color, position, permissions, managed, created_at)
		VALUES ($1, $2, $3, $4,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM roles WHERE space_id = $2),
			$5, $6, $7)
		RETURNING position`

	err := s.conn(ctx).QueryRow(ctx, query,
		role.ID, role.SpaceID, role.Name, role.Color,
		role.Permissions, role.Managed, role.CreatedAt).Scan(&role.Position)
	return translateError("create role", err)
}

func (s *Store) RoleByID(ctx context.Context, id string) (*domain.Role, error) {
	query := `
		SELECT id, space_id, name, color, position, permissions, managed, created_at
		FROM roles
		WHERE id = $1`

	role := &domain.Role{}
	err := s.conn(ctx).QueryRow(ctx, query, id).Scan(
		&role.ID, &role.SpaceID, &role.Name, &role.Color,
		&role.Position, &role.Permissions, &role.Managed, &role.CreatedAt)
	if err != nil {
		return nil, translateError("get role", err)
	}
	return role, nil
}

func (s *Store) RolesBySpace(ctx context.Context, spaceID string) ([]domain.Role, error) {
	query := `
		SELECT id, space_id, name, color, position, permissions, managed, created_at
		FROM roles
		WHERE space_id = $1
		ORDER BY position`

	rows, err := s.conn(ctx).Query(ctx, query, spaceID)
	if err != nil {
		return nil, translateError("list roles", err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

func (s *Store) UpdateRole(ctx context.Context, role *domain.Role) error {
	query := `
		UPDATE roles
		SET name = $2, color = $3, permissions = $4
		WHERE id = $1`

	tag, err := s.conn(ctx).Exec(ctx, query, role.ID, role.Name, role.Color, role.Permissions)
	if err != nil {
		return translateError("update role", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ReorderRoles rewrites hierarchy positions in one transaction. orderedIDs
// runs lowest to highest and must not include @everyone, which stays at 0.
func (s *Store) ReorderRoles(ctx context.Context, spaceID string, orderedIDs []string) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		query := `UPDATE roles SET position = $3 WHERE id = $1 AND space_id = $2 AND position > 0`

		for i, id := range orderedIDs {
			tag, err := s.conn(ctx).Exec(ctx, query, id, spaceID, i+1)
			if err != nil {
				return translateError("reorder roles", err)
			}
			if tag.RowsAffected() == 0 {
				return domain.ErrNotFound
			}
		}
		return nil
	})
}

func (s *Store) DeleteRole(ctx context.Context, id string) error {
	query := `DELETE FROM roles WHERE id = $1 AND NOT managed`

	tag, err := s.conn(ctx).Exec(ctx, query, id)
	if err != nil {
		return translateError("delete role", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanRoles(rows pgx.Rows) ([]domain.Role, error) {
	var roles []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(
			&role.ID, &role.SpaceID, &role.Name, &role.Color,
			&role.Position, &role.Permissions, &role.Managed, &role.CreatedAt); err != nil {
			return nil, translateError("scan role", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
