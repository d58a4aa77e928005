package store

import (
	"context"

	"github.com/accord-chat/accord/internal/domain"
)

func (s *Store) CreateApplication(ctx context.Context, app *domain.Application) error {
	query := `
		INSERT INTO applications (id, owner_id, bot_user_id, name, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.conn(ctx).Exec(ctx, query,
		app.ID, app.OwnerID, app.BotUserID, app.Name, app.Description, app.CreatedAt)
	return translateError("create application", err)
}

func (s *Store) ApplicationByID(ctx context.Context, id string) (*domain.Application, error) {
	query := `
		SELECT id, owner_id, bot_user_id, name, description, created_at
		FROM applications
		WHERE id = $1`

	app := &domain.Application{}
	err := s.conn(ctx).QueryRow(ctx, query, id).Scan(
		&app.ID, &app.OwnerID, &app.BotUserID, &app.Name, &app.Description, &app.CreatedAt)
	if err != nil {
		return nil, translateError("get application", err)
	}
	return app, nil
}

func (s *Store) ApplicationsByOwner(ctx context.Context, ownerID string) ([]domain.Application, error) {
	query := `
		SELECT id, owner_id, bot_user_id, name, description, created_at
		FROM applications
		WHERE owner_id = $1
		ORDER BY (id)::bigint`

	rows, err := s.conn(ctx).Query(ctx, query, ownerID)
	if err != nil {
		return nil, translateError("list applications", err)
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		var app domain.Application
		if err := rows.Scan(&app.ID, &app.OwnerID, &app.BotUserID, &app.Name, &app.Description, &app.CreatedAt); err != nil {
			return nil, translateError("scan application", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func (s *Store) UpdateApplication(ctx context.Context, app *domain.Application) error {
	query := `UPDATE applications SET name = $2, description = $3 WHERE id = $1`

	tag, err := s.conn(ctx).Exec(ctx, query, app.ID, app.Name, app.Description)
	if err != nil {
		return translateError("update application", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteApplication removes the application by deleting its bot account;
// the application row, memberships and tokens go with it.
func (s *Store) DeleteApplication(ctx context.Context, id string) error {
	query := `DELETE FROM users WHERE id = (SELECT bot_user_id FROM applications WHERE id = $1)`

	tag, err := s.conn(ctx).Exec(ctx, query, id)
	if err != nil {
		return translateError("delete application", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
