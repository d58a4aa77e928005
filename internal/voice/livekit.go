package voice

import (
	"context"
	"log/slog"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// LiveKitRouter implements RouterClient against a LiveKit deployment.
type LiveKitRouter struct {
	url       string
	apiKey    string
	apiSecret string
	client    *lksdk.RoomServiceClient
}

func NewLiveKitRouter(url, apiKey, apiSecret string) *LiveKitRouter {
	return &LiveKitRouter{
		url:       url,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    lksdk.NewRoomServiceClient(url, apiKey, apiSecret),
	}
}

func (r *LiveKitRouter) Backend() string { return "livekit" }

func (r *LiveKitRouter) ExternalURL(string) string { return r.url }

// EnsureRoom creates the room if needed. CreateRoom is idempotent on the
// LiveKit side; region placement is LiveKit's concern.
func (r *LiveKitRouter) EnsureRoom(ctx context.Context, channelID, _ string) error {
	_, err := r.client.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:            channelID,
		EmptyTimeout:    300, // 5 minutes
		MaxParticipants: 100,
	})
	return err
}

func (r *LiveKitRouter) GenerateToken(userID, displayName, channelID string, ttl time.Duration) (string, error) {
	at := auth.NewAccessToken(r.apiKey, r.apiSecret)

	canPublish := true
	canSubscribe := true
	canPublishData := true

	grant := &auth.VideoGrant{
		RoomJoin:       true,
		Room:           channelID,
		CanPublish:     &canPublish,
		CanSubscribe:   &canSubscribe,
		CanPublishData: &canPublishData,
	}

	at.AddGrant(grant).
		SetIdentity(userID).
		SetName(displayName).
		SetValidFor(ttl)

	return at.ToJWT()
}

func (r *LiveKitRouter) RemoveParticipant(ctx context.Context, channelID, userID string) {
	_, err := r.client.RemoveParticipant(ctx, &livekit.RoomParticipantIdentity{
		Room:     channelID,
		Identity: userID,
	})
	if err != nil {
		slog.Warn("voice: remove participant failed", "channel_id", channelID, "user_id", userID, "error", err)
	}
}

func (r *LiveKitRouter) DeleteRoomIfEmpty(ctx context.Context, channelID string) {
	res, err := r.client.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: channelID})
	if err != nil {
		slog.Warn("voice: list participants failed", "channel_id", channelID, "error", err)
		return
	}
	if len(res.Participants) > 0 {
		return
	}
	if _, err := r.client.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: channelID}); err != nil {
		slog.Warn("voice: delete room failed", "channel_id", channelID, "error", err)
	}
}
