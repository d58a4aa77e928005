// Package auth resolves Authorization headers to principals and manages the
// credential lifecycle.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/accord-chat/accord/internal/domain"
)

// DefaultUserTokenTTL is the lifetime of tokens issued at login.
const DefaultUserTokenTTL = 30 * 24 * time.Hour

const (
	prefixBot    = "Bot "
	prefixBearer = "Bearer "
)

// Store is the credential slice of the repository.
type Store interface {
	PrincipalByBotToken(ctx context.Context, hash string) (*domain.Principal, error)
	PrincipalByUserToken(ctx context.Context, hash string) (*domain.Principal, error)
	InsertUserToken(ctx context.Context, hash, userID string, expiresAt time.Time) error
	InsertBotToken(ctx context.Context, hash, userID string) error
	DeleteUserToken(ctx context.Context, hash string) error
	DeleteUserTokensByUser(ctx context.Context, userID string) error
	DeleteBotTokensByUser(ctx context.Context, userID string) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// HashToken returns the lowercase hex SHA-256 of a raw token. Only hashes
// are ever stored or compared.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func newRawToken() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(fmt.Sprintf("auth: rand.Read: %v", err))
	}
	nonce := binary.BigEndian.Uint64(buf[:])
	return fmt.Sprintf("%x.%x", time.Now().UnixNano(), nonce)
}

// Resolve maps an Authorization header to a principal. Bot tokens have no
// expiry; user tokens expire server-side.
func (s *Service) Resolve(ctx context.Context, header string) (*domain.Principal, error) {
	switch {
	case strings.HasPrefix(header, prefixBot):
		p, err := s.store.PrincipalByBotToken(ctx, HashToken(strings.TrimPrefix(header, prefixBot)))
		return checkResolved(p, err)
	case strings.HasPrefix(header, prefixBearer):
		p, err := s.store.PrincipalByUserToken(ctx, HashToken(strings.TrimPrefix(header, prefixBearer)))
		return checkResolved(p, err)
	default:
		return nil, domain.Unauthorized("missing or malformed authorization header")
	}
}

func checkResolved(p *domain.Principal, err error) (*domain.Principal, error) {
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Unauthorized("invalid or expired token")
		}
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	return p, nil
}

// CreateUserToken issues a fresh token for the user and returns the raw form
// exactly once.
func (s *Service) CreateUserToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultUserTokenTTL
	}
	raw := newRawToken()
	if err := s.store.InsertUserToken(ctx, HashToken(raw), userID, time.Now().Add(ttl)); err != nil {
		return "", fmt.Errorf("create user token: %w", err)
	}
	return raw, nil
}

// CreateBotToken issues a non-expiring token for an application's bot user.
func (s *Service) CreateBotToken(ctx context.Context, botUserID string) (string, error) {
	raw := newRawToken()
	if err := s.store.InsertBotToken(ctx, HashToken(raw), botUserID); err != nil {
		return "", fmt.Errorf("create bot token: %w", err)
	}
	return raw, nil
}

// RevokeHeader revokes the single bearer token that authorized a request.
func (s *Service) RevokeHeader(ctx context.Context, header string) error {
	if !strings.HasPrefix(header, prefixBearer) {
		return domain.BadRequest("only bearer tokens can be revoked")
	}
	return s.Revoke(ctx, strings.TrimPrefix(header, prefixBearer))
}

// Revoke invalidates one raw user token.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	if err := s.store.DeleteUserToken(ctx, HashToken(raw)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeAllForUser invalidates every user token belonging to userID.
func (s *Service) RevokeAllForUser(ctx context.Context, userID string) error {
	if err := s.store.DeleteUserTokensByUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

// RotateBotToken revokes every token of the bot user and issues a new one.
func (s *Service) RotateBotToken(ctx context.Context, botUserID string) (string, error) {
	if err := s.store.DeleteBotTokensByUser(ctx, botUserID); err != nil {
		return "", fmt.Errorf("rotate bot token: %w", err)
	}
	return s.CreateBotToken(ctx, botUserID)
}
