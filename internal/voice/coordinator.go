package voice

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/metrics"
	"github.com/accord-chat/accord/internal/permissions"
)

// Store is the slice of the repository the coordinator reads.
type Store interface {
	ChannelByID(ctx context.Context, id string) (*domain.Channel, error)
	SpaceByID(ctx context.Context, id string) (*domain.Space, error)
	UserByID(ctx context.Context, id string) (*domain.User, error)
}

// Coordinator owns every voice channel transition. The gateway and the HTTP
// endpoints both go through it so join/move/leave semantics stay identical.
type Coordinator struct {
	store         Store
	perms         *permissions.Resolver
	bus           *events.Bus
	states        *StateTable
	router        RouterClient
	directory     *Directory // nil when the media router manages its own fleet
	defaultRegion string
}

func NewCoordinator(store Store, perms *permissions.Resolver, bus *events.Bus, states *StateTable, router RouterClient, directory *Directory, defaultRegion string) *Coordinator {
	return &Coordinator{
		store:         store,
		perms:         perms,
		bus:           bus,
		states:        states,
		router:        router,
		directory:     directory,
		defaultRegion: defaultRegion,
	}
}

type JoinRequest struct {
	ChannelID string
	SessionID string
	Region    string
	Flags     Flags
}

// JoinResult carries everything the client needs to reach the media room.
// Transports deliver it only to the session that initiated the join.
type JoinResult struct {
	State   domain.VoiceState `json:"state"`
	SpaceID string            `json:"space_id"`
	Backend string            `json:"backend"`
	URL     string            `json:"url"`
	Token   string            `json:"token"`
}

// stateEvent is the voice.state_update payload. The outer field shadows the
// embedded one so a leave can put an explicit null on the wire.
type stateEvent struct {
	domain.VoiceState
	ChannelID *string `json:"channel_id"`
}

func statePayload(st domain.VoiceState) stateEvent {
	ch := st.ChannelID
	return stateEvent{VoiceState: st, ChannelID: &ch}
}

func leavePayload(st domain.VoiceState) stateEvent {
	ev := stateEvent{VoiceState: st}
	ev.VoiceState.ChannelID = ""
	return ev
}

// Join connects the user to a voice channel, tearing down the previous room
// when this is a move. Room provisioning happens after the state broadcast;
// a router failure surfaces to the caller.
func (c *Coordinator) Join(ctx context.Context, p domain.Principal, req JoinRequest) (*JoinResult, error) {
	channel, err := c.store.ChannelByID(ctx, req.ChannelID)
	if err != nil {
		return nil, err
	}
	if channel.Type != domain.ChannelTypeVoice || channel.SpaceID == nil {
		return nil, domain.BadRequest("channel is not a voice channel")
	}
	space, err := c.store.SpaceByID(ctx, *channel.SpaceID)
	if err != nil {
		return nil, err
	}
	perms, err := c.perms.ChannelPermissions(ctx, p, space, channel)
	if err != nil {
		return nil, err
	}
	if !perms.Allows(permissions.Connect) {
		return nil, domain.Forbidden("missing permission: connect")
	}
	user, err := c.store.UserByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	state, previous := c.states.Join(p.UserID, space.ID, channel.ID, req.SessionID, req.Flags)
	if previous != "" {
		c.router.RemoveParticipant(ctx, previous, p.UserID)
		c.router.DeleteRoomIfEmpty(ctx, previous)
	}
	c.bus.Publish(events.New(events.TypeVoiceStateUpdate, space.ID, statePayload(state)))

	region := req.Region
	if region == "" {
		region = c.defaultRegion
	}
	if err := c.router.EnsureRoom(ctx, channel.ID, region); err != nil {
		return nil, err
	}
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}
	token, err := c.router.GenerateToken(p.UserID, name, channel.ID, ParticipantTokenTTL)
	if err != nil {
		return nil, err
	}

	metrics.VoiceJoinsTotal.WithLabelValues(c.router.Backend()).Inc()
	metrics.VoiceStatesActive.Set(float64(c.states.Count()))
	slog.Info("voice: joined", "user_id", p.UserID, "channel_id", channel.ID, "previous", previous)

	return &JoinResult{
		State:   state,
		SpaceID: space.ID,
		Backend: c.router.Backend(),
		URL:     c.router.ExternalURL(channel.ID),
		Token:   token,
	}, nil
}

// UpdateFlags adjusts self mute/deaf/video/stream without touching the media
// room.
func (c *Coordinator) UpdateFlags(ctx context.Context, p domain.Principal, flags Flags) (*domain.VoiceState, error) {
	state := c.states.UpdateFlags(p.UserID, flags)
	if state == nil {
		return nil, domain.NotFound("you are not connected to voice")
	}
	c.bus.Publish(events.New(events.TypeVoiceStateUpdate, state.SpaceID, statePayload(*state)))
	return state, nil
}

// Leave disconnects the user: broadcast first, then best-effort room cleanup.
func (c *Coordinator) Leave(ctx context.Context, p domain.Principal) (*domain.VoiceState, error) {
	state := c.states.Leave(p.UserID)
	if state == nil {
		return nil, domain.NotFound("you are not connected to voice")
	}
	c.bus.Publish(events.New(events.TypeVoiceStateUpdate, state.SpaceID, leavePayload(*state)))
	c.router.RemoveParticipant(ctx, state.ChannelID, p.UserID)
	c.router.DeleteRoomIfEmpty(ctx, state.ChannelID)

	metrics.VoiceStatesActive.Set(float64(c.states.Count()))
	slog.Info("voice: left", "user_id", p.UserID, "channel_id", state.ChannelID)
	return state, nil
}

// CurrentState reports the caller's live voice state, nil when disconnected.
func (c *Coordinator) CurrentState(userID string) *domain.VoiceState {
	return c.states.ByUser(userID)
}

// ChannelStates lists who is connected to a voice channel.
func (c *Coordinator) ChannelStates(ctx context.Context, p domain.Principal, channelID string) ([]domain.VoiceState, error) {
	channel, err := c.store.ChannelByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.SpaceID == nil {
		return nil, domain.BadRequest("channel is not a voice channel")
	}
	space, err := c.store.SpaceByID(ctx, *channel.SpaceID)
	if err != nil {
		return nil, err
	}
	perms, err := c.perms.ChannelPermissions(ctx, p, space, channel)
	if err != nil {
		return nil, err
	}
	if !perms.Allows(permissions.ViewChannels) {
		return nil, domain.Forbidden("missing permission: view_channels")
	}
	return c.states.ByChannel(channelID), nil
}

type signalEvent struct {
	ChannelID string          `json:"channel_id"`
	UserID    string          `json:"user_id"`
	Data      json.RawMessage `json:"data"`
}

// Signal relays an opaque payload to everyone receiving voice events for the
// space. Only current channel occupants may send.
func (c *Coordinator) Signal(ctx context.Context, p domain.Principal, channelID string, data json.RawMessage) error {
	state := c.states.ByUser(p.UserID)
	if state == nil || state.ChannelID != channelID {
		return domain.Forbidden("you are not connected to this voice channel")
	}
	c.bus.Publish(events.New(events.TypeVoiceSignal, state.SpaceID, signalEvent{
		ChannelID: channelID,
		UserID:    p.UserID,
		Data:      data,
	}))
	return nil
}

type Region struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// Regions lists the voice regions currently served. With a node fleet this
// is the distinct regions of online nodes; otherwise the configured default.
func (c *Coordinator) Regions() []Region {
	if c.directory == nil {
		return []Region{{ID: c.defaultRegion, Name: c.defaultRegion, Default: true}}
	}
	seen := make(map[string]bool)
	for _, node := range c.directory.Online() {
		seen[node.Region] = true
	}
	regions := make([]Region, 0, len(seen))
	for id := range seen {
		regions = append(regions, Region{ID: id, Name: id, Default: id == c.defaultRegion})
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].ID < regions[j].ID })
	return regions
}
