package store

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/accord-chat/accord/internal/domain"
)

// anyArgs builds n AnyArg matchers for expectations that accept any values,
// e.g. inserts whose IDs and timestamps are generated inside the store.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestCreateUser(t *testing.T) {
	mock := newMock(t)
	s := New(nil)
	now := time.Now().UTC()

	u := &domain.User{
		ID:           s.NewID(),
		Username:     "alice",
		DisplayName:  "Alice",
		PasswordHash: "$argon2id$...",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec("INSERT INTO users").
		WithArgs(u.ID, "alice", "Alice", (*string)(nil), (*string)(nil), false, false, &u.PasswordHash, now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ctx := setupMockContext(mock)
	if err := s.CreateUser(ctx, u); err != nil {
		t.Errorf("CreateUser: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUserByIDNotFound(t *testing.T) {
	mock := newMock(t)
	s := New(nil)

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("42").
		WillReturnError(pgx.ErrNoRows)

	ctx := setupMockContext(mock)
	_, err := s.UserByID(ctx, "42")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUserByUsername(t *testing.T) {
	mock := newMock(t)
	s := New(nil)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "username", "display_name", "avatar_url", "bio", "is_bot", "is_admin", "coalesce", "created_at", "updated_at",
	}).AddRow("7", "Alice", "Alice", nil, nil, false, false, "$argon2id$hash", now, now)

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("alice").
		WillReturnRows(rows)

	ctx := setupMockContext(mock)
	u, err := s.UserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("UserByUsername: %v", err)
	}
	if u.ID != "7" || u.PasswordHash != "$argon2id$hash" {
		t.Errorf("user = %+v", u)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateSpaceBootstrap(t *testing.T) {
	mock := newMock(t)
	s := New(nil)
	now := time.Now().UTC()

	space := &domain.Space{
		ID:        s.NewID(),
		Name:      "Test Space",
		Slug:      "test-space",
		OwnerID:   "owner1",
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO spaces").
		WithArgs(space.ID, "Test Space", "test-space", (*string)(nil), (*string)(nil), "owner1", false, (*string)(nil), now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// @everyone at 0, Moderator at 1, Admin at 2.
	for range 3 {
		mock.ExpectExec("INSERT INTO roles").
			WithArgs(anyArgs(8)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectExec("INSERT INTO channels").
		WithArgs(anyArgs(9)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO space_members").
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO member_roles").
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ctx := setupMockContext(mock)
	if err := s.CreateSpace(ctx, space); err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateSpaceDuplicateSlug(t *testing.T) {
	mock := newMock(t)
	s := New(nil)
	now := time.Now().UTC()

	space := &domain.Space{
		ID: s.NewID(), Name: "Test", Slug: "taken", OwnerID: "owner1",
		CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO spaces").
		WithArgs(anyArgs(10)...).
		WillReturnError(&pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "spaces_slug_key"})

	ctx := setupMockContext(mock)
	err := s.CreateSpace(ctx, space)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMessagesByChannelPagination(t *testing.T) {
	mock := newMock(t)
	s := New(nil)
	now := time.Now().UTC()

	cols := []string{
		"id", "channel_id", "author_id", "content", "reply_to_id", "thread_id", "pinned", "edited_at", "created_at",
		"uid", "username", "display_name", "avatar_url", "bio", "is_bot", "is_admin", "ucreated_at", "uupdated_at",
	}
	rows := pgxmock.NewRows(cols).
		AddRow("900", "ch1", "u1", "newer", nil, nil, false, nil, now, "u1", "alice", "Alice", nil, nil, false, false, now, now).
		AddRow("800", "ch1", "u1", "older", nil, nil, false, nil, now, "u1", "alice", "Alice", nil, nil, false, false, now, now)

	mock.ExpectQuery("SELECT (.+) FROM messages").
		WithArgs("ch1", 50, "1000").
		WillReturnRows(rows)

	ctx := setupMockContext(mock)
	msgs, err := s.MessagesByChannel(ctx, "ch1", "1000", 50)
	if err != nil {
		t.Fatalf("MessagesByChannel: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "900" {
		t.Errorf("msgs = %+v", msgs)
	}
	if msgs[0].Author == nil || msgs[0].Author.Username != "alice" {
		t.Errorf("author not populated: %+v", msgs[0].Author)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestConsumeInviteExhausted(t *testing.T) {
	mock := newMock(t)
	s := New(nil)
	now := time.Now().UTC()

	// The guarded UPDATE misses, then the bare lookup still finds the row.
	mock.ExpectQuery("UPDATE invites").
		WithArgs("deadcode").
		WillReturnError(pgx.ErrNoRows)
	rows := pgxmock.NewRows([]string{
		"code", "space_id", "channel_id", "inviter_id", "max_uses", "uses", "max_age_seconds", "expires_at", "created_at",
	}).AddRow("deadcode", "s1", nil, "u1", 5, 5, 0, nil, now)
	mock.ExpectQuery("SELECT (.+) FROM invites").
		WithArgs("deadcode").
		WillReturnRows(rows)

	ctx := setupMockContext(mock)
	_, err := s.ConsumeInvite(ctx, "deadcode")
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("err = %v, want ErrBadRequest", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestConsumeInviteUnknown(t *testing.T) {
	mock := newMock(t)
	s := New(nil)

	mock.ExpectQuery("UPDATE invites").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM invites").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	ctx := setupMockContext(mock)
	_, err := s.ConsumeInvite(ctx, "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestConsumeInviteSuccess(t *testing.T) {
	mock := newMock(t)
	s := New(nil)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"code", "space_id", "channel_id", "inviter_id", "max_uses", "uses", "max_age_seconds", "expires_at", "created_at",
	}).AddRow("goodcode", "s1", nil, "u1", 0, 3, 0, nil, now)

	mock.ExpectQuery("UPDATE invites").
		WithArgs("goodcode").
		WillReturnRows(rows)

	ctx := setupMockContext(mock)
	inv, err := s.ConsumeInvite(ctx, "goodcode")
	if err != nil {
		t.Fatalf("ConsumeInvite: %v", err)
	}
	if inv.Uses != 3 || inv.SpaceID != "s1" {
		t.Errorf("invite = %+v", inv)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRemoveMemberNotFound(t *testing.T) {
	mock := newMock(t)
	s := New(nil)

	mock.ExpectExec("DELETE FROM space_members").
		WithArgs("s1", "ghost").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	ctx := setupMockContext(mock)
	if err := s.RemoveMember(ctx, "s1", "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
