// Package gateway implements the WebSocket protocol: the per-connection
// state machine, session registry, presence table, and event fan-out from
// the bus to connected clients.
package gateway

import (
	"encoding/json"

	"github.com/accord-chat/accord/internal/domain"
)

// APIVersion is reported in READY.
const APIVersion = 1

// Opcodes.
const (
	OpEvent            = 0
	OpHeartbeat        = 1
	OpIdentify         = 2
	OpResume           = 3
	OpHeartbeatAck     = 4
	OpHello            = 5
	OpReconnect        = 6
	OpInvalidSession   = 7
	OpPresenceUpdate   = 8
	OpVoiceStateUpdate = 9
	OpRequestMembers   = 10
)

// Close codes.
const (
	CloseUnknownError         = 4000
	CloseUnknownOpcode        = 4001
	CloseDecodeError          = 4002
	CloseNotAuthenticated     = 4003
	CloseAuthFailed           = 4004
	CloseAlreadyAuthenticated = 4005
	CloseInvalidSeq           = 4007
	CloseRateLimited          = 4008
	CloseSessionTimedOut      = 4009
	CloseInvalidVersion       = 4012
	CloseInvalidIntent        = 4013
	CloseDisallowedIntent     = 4014
)

// Frame is the wire envelope in both directions. Seq is present on every
// event frame and strictly increases per session; control frames carry none.
type Frame struct {
	Op   int             `json:"op"`
	Seq  int64           `json:"seq,omitempty"`
	Type string          `json:"type,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type helloData struct {
	HeartbeatIntervalMS int64 `json:"heartbeat_interval_ms"`
}

type identifyData struct {
	Token      string          `json:"token"`
	Intents    []string        `json:"intents"`
	Properties json.RawMessage `json:"properties,omitempty"`
	Presence   *presenceData   `json:"presence,omitempty"`
}

type presenceData struct {
	Status   string `json:"status"`
	Activity string `json:"activity,omitempty"`
}

type invalidSessionData struct {
	Resumable bool `json:"resumable"`
}

type readyData struct {
	SessionID     string            `json:"session_id"`
	UserID        string            `json:"user_id"`
	Spaces        []domain.Space    `json:"spaces"`
	Presences     []domain.Presence `json:"presences"`
	APIVersion    int               `json:"api_version"`
	ServerVersion string            `json:"server_version"`
}

type voiceStateUpdateData struct {
	SpaceID    string  `json:"space_id"`
	ChannelID  *string `json:"channel_id"`
	SelfMute   *bool   `json:"self_mute,omitempty"`
	SelfDeaf   *bool   `json:"self_deaf,omitempty"`
	SelfVideo  *bool   `json:"self_video,omitempty"`
	SelfStream *bool   `json:"self_stream,omitempty"`
}

type serverUpdateData struct {
	SpaceID   string `json:"space_id"`
	ChannelID string `json:"channel_id"`
	Backend   string `json:"backend"`
	URL       string `json:"url"`
	Token     string `json:"token"`
}

type requestMembersData struct {
	SpaceID string `json:"space_id"`
	Query   string `json:"query,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type memberSummary struct {
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	Nickname    *string `json:"nickname,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

type memberChunkData struct {
	SpaceID string          `json:"space_id"`
	Members []memberSummary `json:"members"`
}

// mustRaw marshals a frame payload built entirely from our own types; a
// failure is a bug.
func mustRaw(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic("gateway: marshal frame data: " + err.Error())
	}
	return raw
}

func helloFrame(intervalMS int64) Frame {
	return Frame{Op: OpHello, Data: mustRaw(helloData{HeartbeatIntervalMS: intervalMS})}
}

func invalidSessionFrame() Frame {
	return Frame{Op: OpInvalidSession, Data: mustRaw(invalidSessionData{Resumable: false})}
}
