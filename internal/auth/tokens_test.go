package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/accord-chat/accord/internal/domain"
)

type fakeTokenStore struct {
	userTokens map[string]userTokenRow
	botTokens  map[string]string // hash -> user id
}

type userTokenRow struct {
	userID    string
	expiresAt time.Time
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{
		userTokens: map[string]userTokenRow{},
		botTokens:  map[string]string{},
	}
}

func (f *fakeTokenStore) PrincipalByBotToken(_ context.Context, hash string) (*domain.Principal, error) {
	userID, ok := f.botTokens[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.Principal{UserID: userID, Bot: true}, nil
}

func (f *fakeTokenStore) PrincipalByUserToken(_ context.Context, hash string) (*domain.Principal, error) {
	row, ok := f.userTokens[hash]
	if !ok || row.expiresAt.Before(time.Now()) {
		return nil, domain.ErrNotFound
	}
	return &domain.Principal{UserID: row.userID}, nil
}

func (f *fakeTokenStore) InsertUserToken(_ context.Context, hash, userID string, expiresAt time.Time) error {
	f.userTokens[hash] = userTokenRow{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeTokenStore) InsertBotToken(_ context.Context, hash, userID string) error {
	f.botTokens[hash] = userID
	return nil
}

func (f *fakeTokenStore) DeleteUserToken(_ context.Context, hash string) error {
	delete(f.userTokens, hash)
	return nil
}

func (f *fakeTokenStore) DeleteUserTokensByUser(_ context.Context, userID string) error {
	for hash, row := range f.userTokens {
		if row.userID == userID {
			delete(f.userTokens, hash)
		}
	}
	return nil
}

func (f *fakeTokenStore) DeleteBotTokensByUser(_ context.Context, userID string) error {
	for hash, id := range f.botTokens {
		if id == userID {
			delete(f.botTokens, hash)
		}
	}
	return nil
}

func TestUserTokenRoundTrip(t *testing.T) {
	svc := NewService(newFakeTokenStore())
	ctx := context.Background()

	raw, err := svc.CreateUserToken(ctx, "42", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("CreateUserToken: %v", err)
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 2 {
		t.Fatalf("raw token %q not of form nanos.nonce", raw)
	}

	p, err := svc.Resolve(ctx, "Bearer "+raw)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.UserID != "42" || p.Bot {
		t.Errorf("principal = %+v", p)
	}

	if err := svc.Revoke(ctx, raw); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := svc.Resolve(ctx, "Bearer "+raw); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("after revoke: err = %v, want unauthorized", err)
	}
}

func TestBotTokenResolve(t *testing.T) {
	svc := NewService(newFakeTokenStore())
	ctx := context.Background()

	raw, err := svc.CreateBotToken(ctx, "777")
	if err != nil {
		t.Fatal(err)
	}
	p, err := svc.Resolve(ctx, "Bot "+raw)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.UserID != "777" || !p.Bot {
		t.Errorf("principal = %+v", p)
	}

	// A bot token is not a bearer token.
	if _, err := svc.Resolve(ctx, "Bearer "+raw); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("bot raw as bearer: err = %v, want unauthorized", err)
	}
}

func TestResolveMalformedHeader(t *testing.T) {
	svc := NewService(newFakeTokenStore())
	for _, header := range []string{"", "token abc", "bearer lowercase", "Basic dXNlcjpwYXNz"} {
		if _, err := svc.Resolve(context.Background(), header); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("header %q: err = %v, want unauthorized", header, err)
		}
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	store := newFakeTokenStore()
	svc := NewService(store)
	ctx := context.Background()

	raw, err := svc.CreateUserToken(ctx, "42", time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := svc.Resolve(ctx, "Bearer "+raw); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expired token: err = %v, want unauthorized", err)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	svc := NewService(newFakeTokenStore())
	ctx := context.Background()

	a, _ := svc.CreateUserToken(ctx, "42", time.Hour)
	b, _ := svc.CreateUserToken(ctx, "42", time.Hour)
	other, _ := svc.CreateUserToken(ctx, "43", time.Hour)

	if err := svc.RevokeAllForUser(ctx, "42"); err != nil {
		t.Fatal(err)
	}
	for _, raw := range []string{a, b} {
		if _, err := svc.Resolve(ctx, "Bearer "+raw); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("token survived revoke-all: %v", err)
		}
	}
	if _, err := svc.Resolve(ctx, "Bearer "+other); err != nil {
		t.Errorf("unrelated user's token revoked: %v", err)
	}
}

func TestRevokeHeaderRejectsBot(t *testing.T) {
	svc := NewService(newFakeTokenStore())
	if err := svc.RevokeHeader(context.Background(), "Bot abc"); !errors.Is(err, domain.ErrBadRequest) {
		t.Errorf("err = %v, want bad request", err)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correctbatteryhorse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	ok, err := VerifyPassword("correctbatteryhorse", hash)
	if err != nil || !ok {
		t.Errorf("verify correct password: ok=%v err=%v", ok, err)
	}
	ok, err = VerifyPassword("wrong", hash)
	if err != nil || ok {
		t.Errorf("verify wrong password: ok=%v err=%v", ok, err)
	}
}
