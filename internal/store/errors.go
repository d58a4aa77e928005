package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/accord-chat/accord/internal/domain"
)

// Postgres error codes the boundary cares about.
const (
	codeUniqueViolation     = "23505"
	codeNotNullViolation    = "23502"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// translateError maps driver failures onto domain errors so handlers never
// see postgres details. Anything unrecognized is wrapped with the operation
// name.
func translateError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return domain.Conflict(conflictMessage(pgErr.ConstraintName))
		case codeNotNullViolation:
			return domain.BadRequestf("missing required field: %s", pgErr.ColumnName)
		case codeForeignKeyViolation:
			return domain.BadRequest("referenced resource does not exist")
		case codeCheckViolation:
			return domain.BadRequest("invalid field value")
		}
	}

	return fmt.Errorf("%s: %w", operation, err)
}

func conflictMessage(constraint string) string {
	switch constraint {
	case "users_username_key":
		return "username is already taken"
	case "spaces_slug_key":
		return "slug is already taken"
	case "space_members_pkey":
		return "already a member of this space"
	case "member_roles_pkey":
		return "member already has this role"
	case "reactions_pkey":
		return "reaction already exists"
	case "pinned_messages_pkey":
		return "message is already pinned"
	case "bans_pkey":
		return "user is already banned"
	case "emojis_space_id_name_key":
		return "an emoji with this name already exists"
	case "soundboard_sounds_space_id_name_key":
		return "a sound with this name already exists"
	default:
		return "resource already exists"
	}
}
