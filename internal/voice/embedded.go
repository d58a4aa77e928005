package voice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/accord-chat/accord/internal/domain"
)

// EmbeddedRouter implements RouterClient on top of the SFU node fleet. Rooms
// are pinned to one node for their whole lifetime; participant tokens are
// HS256 JWTs verified by the edge node with the shared secret.
type EmbeddedRouter struct {
	mu            sync.Mutex
	directory     *Directory
	secret        []byte
	defaultRegion string
	rooms         map[string]*embeddedRoom
}

type embeddedRoom struct {
	nodeID       string
	endpoint     string
	participants map[string]struct{}
}

func NewEmbeddedRouter(directory *Directory, secret, defaultRegion string) *EmbeddedRouter {
	return &EmbeddedRouter{
		directory:     directory,
		secret:        []byte(secret),
		defaultRegion: defaultRegion,
		rooms:         make(map[string]*embeddedRoom),
	}
}

func (r *EmbeddedRouter) Backend() string { return "custom" }

// EnsureRoom pins the room to an online node, re-pinning if the previous
// node went away.
func (r *EmbeddedRouter) EnsureRoom(_ context.Context, channelID, preferredRegion string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[channelID]; ok {
		if node := r.directory.Get(room.nodeID); node != nil && node.Status == domain.NodeStatusOnline {
			return nil
		}
		// The pinned node is gone; everyone in the room lost media
		// anyway, so start over on a fresh node.
		delete(r.rooms, channelID)
	}

	region := preferredRegion
	if region == "" {
		region = r.defaultRegion
	}
	node := r.directory.Select(region)
	if node == nil {
		return domain.Internal("no voice nodes available")
	}
	r.rooms[channelID] = &embeddedRoom{
		nodeID:       node.ID,
		endpoint:     node.Endpoint,
		participants: make(map[string]struct{}),
	}
	slog.Info("voice: room pinned to node", "channel_id", channelID, "node_id", node.ID, "region", node.Region)
	return nil
}

type TokenGrants struct {
	Publish     bool `json:"publish"`
	Subscribe   bool `json:"subscribe"`
	PublishData bool `json:"publish_data"`
}

type TokenClaims struct {
	jwt.RegisteredClaims
	Room   string    `json:"room"`
	Name   string    `json:"name"`
	Grants TokenGrants `json:"grants"`
}

// GenerateToken signs a capability token for the room's node and records
// the participant.
func (r *EmbeddedRouter) GenerateToken(userID, displayName, channelID string, ttl time.Duration) (string, error) {
	r.mu.Lock()
	room, ok := r.rooms[channelID]
	if !ok {
		r.mu.Unlock()
		return "", domain.Internal("room does not exist")
	}
	room.participants[userID] = struct{}{}
	nodeID := room.nodeID
	r.mu.Unlock()

	now := time.Now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "accord",
			Subject:   userID,
			Audience:  jwt.ClaimStrings{nodeID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Room: channelID,
		Name: displayName,
		Grants: TokenGrants{
			Publish:     true,
			Subscribe:   true,
			PublishData: true,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

func (r *EmbeddedRouter) RemoveParticipant(_ context.Context, channelID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[channelID]
	if !ok {
		return
	}
	delete(room.participants, userID)
}

func (r *EmbeddedRouter) DeleteRoomIfEmpty(_ context.Context, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[channelID]
	if !ok {
		return
	}
	if len(room.participants) == 0 {
		delete(r.rooms, channelID)
		slog.Info("voice: empty room released", "channel_id", channelID, "node_id", room.nodeID)
	}
}

func (r *EmbeddedRouter) ExternalURL(channelID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[channelID]; ok {
		return room.endpoint
	}
	return ""
}

// ParseToken verifies a token the way an edge node does; used by the sfu
// agent and by tests.
func ParseToken(raw string, secret []byte) (*TokenClaims, error) {
	var claims TokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return &claims, nil
}
