package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/accord-chat/accord/internal/domain"
)

func (s *Store) AddMember(ctx context.Context, spaceID, userID string, nickname *string) error {
	query := `INSERT INTO space_members (space_id, user_id, nickname) VALUES ($1, $2, $3)`

	_, err := s.conn(ctx).Exec(ctx, query, spaceID, userID, nickname)
	return translateError("add member", err)
}

func (s *Store) Member(ctx context.Context, spaceID, userID string) (*domain.Member, error) {
	query := `
		SELECT m.space_id, m.user_id, m.nickname, m.joined_at,
			COALESCE(array_agg(mr.role_id) FILTER (WHERE mr.role_id IS NOT NULL), '{}'),
			u.id, u.username, u.display_name, u.avatar_url, u.bio, u.is_bot, u.is_admin, u.created_at, u.updated_at
		FROM space_members m
		JOIN users u ON u.id = m.user_id
		LEFT JOIN member_roles mr ON mr.space_id = m.space_id AND mr.user_id = m.user_id
		WHERE m.space_id = $1 AND m.user_id = $2
		GROUP BY m.space_id, m.user_id, u.id`

	member, err := scanMember(s.conn(ctx).QueryRow(ctx, query, spaceID, userID))
	if err != nil {
		return nil, translateError("get member", err)
	}
	return member, nil
}

// MembersBySpace pages through the member list ordered by user snowflake.
// afterID is exclusive; empty starts from the beginning.
func (s *Store) MembersBySpace(ctx context.Context, spaceID, afterID string, limit int) ([]domain.Member, error) {
	base := `
		SELECT m.space_id, m.user_id, m.nickname, m.joined_at,
			COALESCE(array_agg(mr.role_id) FILTER (WHERE mr.role_id IS NOT NULL), '{}'),
			u.id, u.username, u.display_name, u.avatar_url, u.bio, u.is_bot, u.is_admin, u.created_at, u.updated_at
		FROM space_members m
		JOIN users u ON u.id = m.user_id
		LEFT JOIN member_roles mr ON mr.space_id = m.space_id AND mr.user_id = m.user_id
		WHERE m.space_id = $1`

	var (
		rows pgx.Rows
		err  error
	)
	if afterID == "" {
		query := base + `
		GROUP BY m.space_id, m.user_id, u.id
		ORDER BY (m.user_id)::bigint
		LIMIT $2`
		rows, err = s.conn(ctx).Query(ctx, query, spaceID, limit)
	} else {
		query := base + ` AND (m.user_id)::bigint > ($3)::bigint
		GROUP BY m.space_id, m.user_id, u.id
		ORDER BY (m.user_id)::bigint
		LIMIT $2`
		rows, err = s.conn(ctx).Query(ctx, query, spaceID, limit, afterID)
	}
	if err != nil {
		return nil, translateError("list members", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, translateError("scan member", err)
		}
		members = append(members, *member)
	}
	return members, rows.Err()
}

// SearchMembers matches username, display name or nickname by prefix,
// case-insensitively.
func (s *Store) SearchMembers(ctx context.Context, spaceID, query string, limit int) ([]domain.Member, error) {
	sql := `
		SELECT m.space_id, m.user_id, m.nickname, m.joined_at,
			COALESCE(array_agg(mr.role_id) FILTER (WHERE mr.role_id IS NOT NULL), '{}'),
			u.id, u.username, u.display_name, u.avatar_url, u.bio, u.is_bot, u.is_admin, u.created_at, u.updated_at
		FROM space_members m
		JOIN users u ON u.id = m.user_id
		LEFT JOIN member_roles mr ON mr.space_id = m.space_id AND mr.user_id = m.user_id
		WHERE m.space_id = $1
			AND (u.username ILIKE $2 OR u.display_name ILIKE $2 OR m.nickname ILIKE $2)
		GROUP BY m.space_id, m.user_id, u.id
		ORDER BY (m.user_id)::bigint
		LIMIT $3`

	rows, err := s.conn(ctx).Query(ctx, sql, spaceID, likePrefix(query), limit)
	if err != nil {
		return nil, translateError("search members", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, translateError("scan member", err)
		}
		members = append(members, *member)
	}
	return members, rows.Err()
}

// likePrefix escapes LIKE metacharacters so user input only ever matches as a
// literal prefix.
func likePrefix(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q) + "%"
}

// MemberIDsBySpace returns every member's user id, for event fan-out checks.
func (s *Store) MemberIDsBySpace(ctx context.Context, spaceID string) ([]string, error) {
	query := `SELECT user_id FROM space_members WHERE space_id = $1`

	rows, err := s.conn(ctx).Query(ctx, query, spaceID)
	if err != nil {
		return nil, translateError("list member ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translateError("scan member id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SpaceIDsByUser returns the ids of every space the user belongs to.
func (s *Store) SpaceIDsByUser(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT space_id FROM space_members WHERE user_id = $1`

	rows, err := s.conn(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, translateError("list member spaces", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translateError("scan space id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) UpdateMemberNickname(ctx context.Context, spaceID, userID string, nickname *string) error {
	query := `UPDATE space_members SET nickname = $3 WHERE space_id = $1 AND user_id = $2`

	tag, err := s.conn(ctx).Exec(ctx, query, spaceID, userID, nickname)
	if err != nil {
		return translateError("update member nickname", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, spaceID, userID string) error {
	query := `DELETE FROM space_members WHERE space_id = $1 AND user_id = $2`

	tag, err := s.conn(ctx).Exec(ctx, query, spaceID, userID)
	if err != nil {
		return translateError("remove member", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) AddMemberRole(ctx context.Context, spaceID, userID, roleID string) error {
	query := `INSERT INTO member_roles (space_id, user_id, role_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`

	_, err := s.conn(ctx).Exec(ctx, query, spaceID, userID, roleID)
	return translateError("add member role", err)
}

func (s *Store) RemoveMemberRole(ctx context.Context, spaceID, userID, roleID string) error {
	query := `DELETE FROM member_roles WHERE space_id = $1 AND user_id = $2 AND role_id = $3`

	tag, err := s.conn(ctx).Exec(ctx, query, spaceID, userID, roleID)
	if err != nil {
		return translateError("remove member role", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type memberRow interface {
	Scan(dest ...any) error
}

func scanMember(row memberRow) (*domain.Member, error) {
	member := &domain.Member{User: &domain.User{}}
	err := row.Scan(
		&member.SpaceID, &member.UserID, &member.Nickname, &member.JoinedAt, &member.RoleIDs,
		&member.User.ID, &member.User.Username, &member.User.DisplayName, &member.User.AvatarURL,
		&member.User.Bio, &member.User.IsBot, &member.User.IsAdmin,
		&member.User.CreatedAt, &member.User.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return member, nil
}
