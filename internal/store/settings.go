package store

import (
	"context"
	"time"

	"github.com/accord-chat/accord/internal/domain"
)

func (s *Store) ServerSettings(ctx context.Context) (*domain.ServerSettings, error) {
	query := `SELECT name, description, registration_open, updated_at FROM server_settings WHERE singleton`

	st := &domain.ServerSettings{}
	err := s.conn(ctx).QueryRow(ctx, query).Scan(
		&st.Name, &st.Description, &st.RegistrationOpen, &st.UpdatedAt)
	if err != nil {
		return nil, translateError("get server settings", err)
	}
	return st, nil
}

func (s *Store) UpdateServerSettings(ctx context.Context, st *domain.ServerSettings) error {
	query := `
		UPDATE server_settings
		SET name = $1, description = $2, registration_open = $3, updated_at = $4
		WHERE singleton`

	_, err := s.conn(ctx).Exec(ctx, query, st.Name, st.Description, st.RegistrationOpen, time.Now().UTC())
	return translateError("update server settings", err)
}
