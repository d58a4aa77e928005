package voice

import (
	"context"
	"time"
)

// RouterClient is the thin admin/token interface to a media router. Rooms
// are keyed by voice channel id.
//
// EnsureRoom and GenerateToken surface their errors; RemoveParticipant and
// DeleteRoomIfEmpty are best-effort cleanup and only log.
type RouterClient interface {
	EnsureRoom(ctx context.Context, channelID, preferredRegion string) error
	GenerateToken(userID, displayName, channelID string, ttl time.Duration) (string, error)
	RemoveParticipant(ctx context.Context, channelID, userID string)
	DeleteRoomIfEmpty(ctx context.Context, channelID string)
	ExternalURL(channelID string) string
	Backend() string
}

// ParticipantTokenTTL bounds how long an issued room token stays valid.
const ParticipantTokenTTL = 6 * time.Hour
