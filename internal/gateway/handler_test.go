package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/accord-chat/accord/internal/auth"
	"github.com/accord-chat/accord/internal/config"
	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/permissions"
	"github.com/accord-chat/accord/internal/voice"
)

// fakeBackend seeds three users and three spaces: s1 holds everyone, s2
// holds u1 and u3, s3 holds only u3. It serves the store slices the gateway,
// the voice coordinator, the permission resolver and the auth service read.
type fakeBackend struct {
	users    map[string]*domain.User
	spaces   map[string]*domain.Space
	channels map[string]*domain.Channel
	members  map[string][]domain.Member
	roles    map[string][]domain.Role
	tokens   map[string]*domain.Principal
}

func newFakeBackend() *fakeBackend {
	f := &fakeBackend{
		users: map[string]*domain.User{
			"u1": {ID: "u1", Username: "alice", DisplayName: "Alice"},
			"u2": {ID: "u2", Username: "bob", DisplayName: "Bob"},
			"u3": {ID: "u3", Username: "carol", DisplayName: "Carol"},
		},
		spaces: map[string]*domain.Space{
			"s1": {ID: "s1", Name: "General", Slug: "general", OwnerID: "u3"},
			"s2": {ID: "s2", Name: "Side", Slug: "side", OwnerID: "u3"},
			"s3": {ID: "s3", Name: "Private", Slug: "private", OwnerID: "u3"},
		},
		channels: map[string]*domain.Channel{
			"c1": {ID: "c1", SpaceID: ptr("s1"), Type: domain.ChannelTypeText, Name: "general"},
			"v1": {ID: "v1", SpaceID: ptr("s1"), Type: domain.ChannelTypeVoice, Name: "Voice"},
			"v3": {ID: "v3", SpaceID: ptr("s3"), Type: domain.ChannelTypeVoice, Name: "Lounge"},
		},
		members: map[string][]domain.Member{},
		roles:   map[string][]domain.Role{},
		tokens:  map[string]*domain.Principal{},
	}
	for _, spaceID := range []string{"s1", "s2", "s3"} {
		f.roles[spaceID] = []domain.Role{{
			ID:          "r-" + spaceID,
			SpaceID:     spaceID,
			Name:        "@everyone",
			Position:    0,
			Permissions: permissions.EveryoneDefaults(),
			Managed:     true,
		}}
	}
	f.addMember("s1", "u1", nil)
	f.addMember("s1", "u2", nil)
	f.addMember("s1", "u3", ptr("Chief"))
	f.addMember("s2", "u1", nil)
	f.addMember("s2", "u3", nil)
	f.addMember("s3", "u3", nil)
	for _, id := range []string{"u1", "u2", "u3"} {
		f.tokens[auth.HashToken("tok-"+id)] = &domain.Principal{UserID: id}
	}
	return f
}

func ptr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func (f *fakeBackend) addMember(spaceID, userID string, nickname *string) {
	f.members[spaceID] = append(f.members[spaceID], domain.Member{
		SpaceID:  spaceID,
		UserID:   userID,
		Nickname: nickname,
		RoleIDs:  []string{},
		User:     f.users[userID],
	})
	sort.Slice(f.members[spaceID], func(i, j int) bool {
		return f.members[spaceID][i].UserID < f.members[spaceID][j].UserID
	})
}

func (f *fakeBackend) SpacesByUser(ctx context.Context, userID string) ([]domain.Space, error) {
	var out []domain.Space
	for spaceID, members := range f.members {
		for _, m := range members {
			if m.UserID == userID {
				out = append(out, *f.spaces[spaceID])
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBackend) MemberIDsBySpace(ctx context.Context, spaceID string) ([]string, error) {
	var ids []string
	for _, m := range f.members[spaceID] {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

func (f *fakeBackend) MembersBySpace(ctx context.Context, spaceID, afterID string, limit int) ([]domain.Member, error) {
	var out []domain.Member
	for _, m := range f.members[spaceID] {
		if afterID != "" && m.UserID <= afterID {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeBackend) ChannelByID(ctx context.Context, id string) (*domain.Channel, error) {
	ch, ok := f.channels[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return ch, nil
}

func (f *fakeBackend) SpaceByID(ctx context.Context, id string) (*domain.Space, error) {
	sp, ok := f.spaces[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sp, nil
}

func (f *fakeBackend) UserByID(ctx context.Context, id string) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeBackend) Member(ctx context.Context, spaceID, userID string) (*domain.Member, error) {
	for _, m := range f.members[spaceID] {
		if m.UserID == userID {
			return &m, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeBackend) RolesBySpace(ctx context.Context, spaceID string) ([]domain.Role, error) {
	return f.roles[spaceID], nil
}

func (f *fakeBackend) OverwritesByChannel(ctx context.Context, channelID string) ([]domain.PermissionOverwrite, error) {
	return nil, nil
}

func (f *fakeBackend) PrincipalByUserToken(ctx context.Context, hash string) (*domain.Principal, error) {
	p, ok := f.tokens[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeBackend) PrincipalByBotToken(ctx context.Context, hash string) (*domain.Principal, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeBackend) InsertUserToken(ctx context.Context, hash, userID string, expiresAt time.Time) error {
	return nil
}

func (f *fakeBackend) InsertBotToken(ctx context.Context, hash, userID string) error { return nil }

func (f *fakeBackend) DeleteUserToken(ctx context.Context, hash string) error { return nil }

func (f *fakeBackend) DeleteUserTokensByUser(ctx context.Context, userID string) error { return nil }

func (f *fakeBackend) DeleteBotTokensByUser(ctx context.Context, userID string) error { return nil }

type fakeRouter struct{}

func (fakeRouter) EnsureRoom(ctx context.Context, channelID, preferredRegion string) error {
	return nil
}

func (fakeRouter) GenerateToken(userID, displayName, channelID string, ttl time.Duration) (string, error) {
	return "room-token", nil
}

func (fakeRouter) RemoveParticipant(ctx context.Context, channelID, userID string) {}

func (fakeRouter) DeleteRoomIfEmpty(ctx context.Context, channelID string) {}

func (fakeRouter) ExternalURL(channelID string) string { return "wss://sfu.test/" + channelID }

func (fakeRouter) Backend() string { return "custom" }

type gatewayFixture struct {
	srv         *httptest.Server
	bus         *events.Bus
	registry    *SessionRegistry
	coordinator *voice.Coordinator
}

func fixtureTimings() config.Timings {
	return config.Timings{
		HeartbeatInterval: 10 * time.Second,
		IdentifyDeadline:  5 * time.Second,
	}
}

func newGatewayFixture(t *testing.T, timings config.Timings) *gatewayFixture {
	t.Helper()
	backend := newFakeBackend()
	bus := events.NewBus()
	resolver := permissions.NewResolver(backend)
	coordinator := voice.NewCoordinator(backend, resolver, bus, voice.NewStateTable(), fakeRouter{}, nil, "global")
	registry := NewSessionRegistry()
	cfg := &config.Config{
		Server:  config.ServerConfig{AllowedOrigins: []string{"*"}},
		Timings: timings,
	}
	h := NewHandler(cfg, backend, auth.NewService(backend), coordinator, bus, registry, NewPresenceTable(), "test")
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	t.Cleanup(bus.Close)
	return &gatewayFixture{srv: srv, bus: bus, registry: registry, coordinator: coordinator}
}

func dialGateway(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial gateway: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readTestFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var fr Frame
	if err := conn.ReadJSON(&fr); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return fr
}

func sendTestFrame(t *testing.T, conn *websocket.Conn, fr Frame) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(fr); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// identifyConn consumes HELLO, identifies with the token and returns the
// parsed READY payload.
func identifyConn(t *testing.T, conn *websocket.Conn, token string, intents []string) readyData {
	t.Helper()
	if fr := readTestFrame(t, conn); fr.Op != OpHello {
		t.Fatalf("first frame op = %d, want HELLO", fr.Op)
	}
	sendTestFrame(t, conn, Frame{Op: OpIdentify, Data: mustRaw(identifyData{Token: token, Intents: intents})})
	ready := readTestFrame(t, conn)
	if ready.Op != OpEvent || ready.Type != events.TypeReady {
		t.Fatalf("want READY, got op=%d type=%q", ready.Op, ready.Type)
	}
	if ready.Seq != 1 {
		t.Errorf("READY seq = %d, want 1", ready.Seq)
	}
	var rd readyData
	if err := json.Unmarshal(ready.Data, &rd); err != nil {
		t.Fatalf("unmarshal READY: %v", err)
	}
	return rd
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				t.Fatalf("want close %d, got %v", code, err)
			}
			if ce.Code != code {
				t.Errorf("close code = %d (%s), want %d", ce.Code, ce.Text, code)
			}
			return
		}
	}
}

func expectNoFrame(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(wait))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("received a frame where none was expected")
	}
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("want read timeout, got %v", err)
	}
}

func TestHandshake(t *testing.T) {
	fx := newGatewayFixture(t, fixtureTimings())
	conn := dialGateway(t, fx.srv)

	hello := readTestFrame(t, conn)
	if hello.Op != OpHello {
		t.Fatalf("first frame op = %d, want HELLO", hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.Data, &hd); err != nil {
		t.Fatalf("unmarshal HELLO: %v", err)
	}
	if hd.HeartbeatIntervalMS != 10000 {
		t.Errorf("heartbeat_interval_ms = %d, want 10000", hd.HeartbeatIntervalMS)
	}

	sendTestFrame(t, conn, Frame{Op: OpIdentify, Data: mustRaw(identifyData{
		Token:   "tok-u1",
		Intents: []string{events.IntentSpaces, events.IntentMessages},
	})})
	ready := readTestFrame(t, conn)
	if ready.Op != OpEvent || ready.Type != events.TypeReady || ready.Seq != 1 {
		t.Fatalf("READY frame = op:%d seq:%d type:%q", ready.Op, ready.Seq, ready.Type)
	}
	var rd readyData
	if err := json.Unmarshal(ready.Data, &rd); err != nil {
		t.Fatalf("unmarshal READY: %v", err)
	}
	if rd.UserID != "u1" || rd.SessionID == "" {
		t.Errorf("READY identity = %q/%q", rd.UserID, rd.SessionID)
	}
	if len(rd.Spaces) != 2 || rd.Spaces[0].ID != "s1" || rd.Spaces[1].ID != "s2" {
		t.Errorf("READY spaces = %+v, want [s1 s2]", rd.Spaces)
	}
	if len(rd.Presences) != 0 {
		t.Errorf("READY presences = %+v, want none (nobody else online)", rd.Presences)
	}
	if rd.APIVersion != APIVersion || rd.ServerVersion != "test" {
		t.Errorf("READY versions = %d/%q", rd.APIVersion, rd.ServerVersion)
	}

	sendTestFrame(t, conn, Frame{Op: OpHeartbeat})
	if fr := readTestFrame(t, conn); fr.Op != OpHeartbeatAck {
		t.Fatalf("heartbeat response op = %d, want ACK", fr.Op)
	}

	fx.bus.Publish(events.New(events.TypeMessageCreate, "s1", map[string]string{"id": "m1"}))
	fr := readTestFrame(t, conn)
	if fr.Op != OpEvent || fr.Type != events.TypeMessageCreate || fr.Seq != 2 {
		t.Errorf("event frame = op:%d seq:%d type:%q, want message.create seq 2", fr.Op, fr.Seq, fr.Type)
	}
	fx.bus.Publish(events.New(events.TypeChannelCreate, "s2", map[string]string{"id": "c9"}))
	fr = readTestFrame(t, conn)
	if fr.Type != events.TypeChannelCreate || fr.Seq != 3 {
		t.Errorf("event frame = seq:%d type:%q, want channel.create seq 3", fr.Seq, fr.Type)
	}
}

func TestIdentifyBadToken(t *testing.T) {
	fx := newGatewayFixture(t, fixtureTimings())
	conn := dialGateway(t, fx.srv)

	readTestFrame(t, conn)
	sendTestFrame(t, conn, Frame{Op: OpIdentify, Data: mustRaw(identifyData{Token: "tok-nobody"})})

	fr := readTestFrame(t, conn)
	if fr.Op != OpInvalidSession {
		t.Fatalf("op = %d, want INVALID_SESSION", fr.Op)
	}
	var inv invalidSessionData
	if err := json.Unmarshal(fr.Data, &inv); err != nil {
		t.Fatalf("unmarshal INVALID_SESSION: %v", err)
	}
	if inv.Resumable {
		t.Error("invalid session marked resumable")
	}
	expectClose(t, conn, CloseAuthFailed)
}

func TestIdentifyUnknownIntent(t *testing.T) {
	fx := newGatewayFixture(t, fixtureTimings())
	conn := dialGateway(t, fx.srv)

	readTestFrame(t, conn)
	sendTestFrame(t, conn, Frame{Op: OpIdentify, Data: mustRaw(identifyData{
		Token:   "tok-u1",
		Intents: []string{events.IntentSpaces, "time_travel"},
	})})
	expectClose(t, conn, CloseInvalidIntent)
}

func TestIdentifyRequired(t *testing.T) {
	fx := newGatewayFixture(t, fixtureTimings())
	conn := dialGateway(t, fx.srv)

	readTestFrame(t, conn)
	sendTestFrame(t, conn, Frame{Op: OpHeartbeat})
	expectClose(t, conn, CloseNotAuthenticated)
}

func TestSecondIdentify(t *testing.T) {
	fx := newGatewayFixture(t, fixtureTimings())
	conn := dialGateway(t, fx.srv)

	identifyConn(t, conn, "tok-u1", nil)
	sendTestFrame(t, conn, Frame{Op: OpIdentify, Data: mustRaw(identifyData{Token: "tok-u1"})})
	expectClose(t, conn, CloseAlreadyAuthenticated)
}

func TestResumeFallsBackToIdentify(t *testing.T) {
	fx := newGatewayFixture(t, fixtureTimings())
	conn := dialGateway(t, fx.srv)

	readTestFrame(t, conn)
	sendTestFrame(t, conn, Frame{Op: OpResume, Data: mustRaw(map[string]string{"session_id": "stale"})})

	if fr := readTestFrame(t, conn); fr.Op != OpInvalidSession {
		t.Fatalf("op = %d, want INVALID_SESSION", fr.Op)
	}

	// The socket stays open; a fresh IDENTIFY succeeds.
	sendTestFrame(t, conn, Frame{Op: OpIdentify, Data: mustRaw(identifyData{Token: "tok-u1"})})
	ready := readTestFrame(t, conn)
	if ready.Type != events.TypeReady {
		t.Errorf("after resume rejection: type = %q, want ready", ready.Type)
	}
}

func TestIdentifyDeadline(t *testing.T) {
	fx := newGatewayFixture(t, config.Timings{
		HeartbeatInterval: 10 * time.Second,
		IdentifyDeadline:  200 * time.Millisecond,
	})
	conn := dialGateway(t, fx.srv)

	readTestFrame(t, conn)
	if fr := readTestFrame(t, conn); fr.Op != OpInvalidSession {
		t.Fatalf("op = %d, want INVALID_SESSION", fr.Op)
	}
	expectClose(t, conn, CloseSessionTimedOut)
}

func TestHeartbeatTimeout(t *testing.T) {
	fx := newGatewayFixture(t, config.Timings{
		HeartbeatInterval: 150 * time.Millisecond,
		IdentifyDeadline:  5 * time.Second,
	})
	conn := dialGateway(t, fx.srv)

	identifyConn(t, conn, "tok-u1", nil)
	expectClose(t, conn, CloseSessionTimedOut)
}

func TestEventScope(t *testing.T) {
	fx := newGatewayFixture(t, fixtureTimings())
	intents := []string{events.IntentSpaces, events.IntentMessages}

	u1 := dialGateway(t, fx.srv)
	identifyConn(t, u1, "tok-u1", intents)
	u2 := dialGateway(t, fx.srv)
	identifyConn(t, u2, "tok-u2", intents)

	fx.bus.Publish(events.New(events.TypeMessageCreate, "s2", map[string]string{"id": "m1"}))
	fx.bus.Publish(events.NewTargeted(events.TypeChannelCreate, []string{"u2"}, map[string]string{"id": "dm1"}))
	fx.bus.Publish(events.New(events.TypeSoundboardCreate, "", map[string]string{"id": "sb1"}))

	// u1 is in s2, is not targeted, and gets the global event.
	fr := readTestFrame(t, u1)
	if fr.Type != events.TypeMessageCreate || fr.Seq != 2 {
		t.Errorf("u1 frame 1 = %q seq %d, want message.create seq 2", fr.Type, fr.Seq)
	}
	fr = readTestFrame(t, u1)
	if fr.Type != events.TypeSoundboardCreate || fr.Seq != 3 {
		t.Errorf("u1 frame 2 = %q seq %d, want soundboard.create seq 3", fr.Type, fr.Seq)
	}

	// u2 is outside s2, is the target of the channel event, and gets the
	// global event. Each session numbers its own stream.
	fr = readTestFrame(t, u2)
	if fr.Type != events.TypeChannelCreate || fr.Seq != 2 {
		t.Errorf("u2 frame 1 = %q seq %d, want channel.create seq 2", fr.Type, fr.Seq)
	}
	fr = readTestFrame(t, u2)
	if fr.Type != events.TypeSoundboardCreate || fr.Seq != 3 {
		t.Errorf("u2 frame 2 = %q seq %d, want soundboard.create seq 3", fr.Type, fr.Seq)
	}
}

func TestPresenceFanout(t *testing.T) {
	fx := newGatewayFixture(t, fixtureTimings())

	watcher := dialGateway(t, fx.srv)
	identifyConn(t, watcher, "tok-u1", []string{events.IntentPresences})

	readPresence := func() domain.Presence {
		t.Helper()
		fr := readTestFrame(t, watcher)
		if fr.Type != events.TypePresenceUpdate {
			t.Fatalf("frame type = %q, want presence.update", fr.Type)
		}
		var p domain.Presence
		if err := json.Unmarshal(fr.Data, &p); err != nil {
			t.Fatalf("unmarshal presence: %v", err)
		}
		return p
	}

	// A session's own identify broadcast is the first thing it receives.
	if p := readPresence(); p.UserID != "u1" || p.Status != "online" {
		t.Errorf("own presence = %+v, want u1 online", p)
	}

	peer := dialGateway(t, fx.srv)
	identifyConn(t, peer, "tok-u2", nil)
	if p := readPresence(); p.UserID != "u2" || p.Status != "online" {
		t.Errorf("peer connect presence = %+v, want u2 online", p)
	}

	sendTestFrame(t, peer, Frame{Op: OpPresenceUpdate, Data: mustRaw(presenceData{Status: "dnd", Activity: "gaming"})})
	p := readPresence()
	if p.UserID != "u2" || p.Status != "dnd" {
		t.Errorf("updated presence = %+v, want u2 dnd", p)
	}
	if len(p.Activities) != 1 || p.Activities[0] != "gaming" {
		t.Errorf("activities = %v, want [gaming]", p.Activities)
	}

	// Invisible renders as offline to everyone else.
	sendTestFrame(t, peer, Frame{Op: OpPresenceUpdate, Data: mustRaw(presenceData{Status: "invisible"})})
	if p := readPresence(); p.UserID != "u2" || p.Status != domain.PresenceOffline {
		t.Errorf("invisible presence = %+v, want u2 offline", p)
	}

	// A session identifying now sees u1 in its READY snapshot but not the
	// invisible u2.
	third := dialGateway(t, fx.srv)
	rd := identifyConn(t, third, "tok-u3", nil)
	if len(rd.Presences) != 1 || rd.Presences[0].UserID != "u1" {
		t.Errorf("READY presences = %+v, want just u1", rd.Presences)
	}
}

func TestVoiceJoinFlow(t *testing.T) {
	fx := newGatewayFixture(t, fixtureTimings())
	conn := dialGateway(t, fx.srv)
	rd := identifyConn(t, conn, "tok-u1", []string{events.IntentVoiceStates})

	// A voice.state_update that names channel_id explicitly, null on leave.
	type statePayload struct {
		domain.VoiceState
		ChannelID *string `json:"channel_id"`
	}

	sendTestFrame(t, conn, Frame{Op: OpVoiceStateUpdate, Data: mustRaw(voiceStateUpdateData{
		SpaceID:   "s1",
		ChannelID: ptr("v1"),
		SelfMute:  boolPtr(true),
	})})

	// The credentials frame goes only to this session and is written before
	// the broadcast state update is drained from the bus.
	fr := readTestFrame(t, conn)
	if fr.Type != events.TypeVoiceServerUpdate || fr.Seq != 2 {
		t.Fatalf("frame 1 = %q seq %d, want voice.server_update seq 2", fr.Type, fr.Seq)
	}
	var su serverUpdateData
	if err := json.Unmarshal(fr.Data, &su); err != nil {
		t.Fatalf("unmarshal server update: %v", err)
	}
	if su.SpaceID != "s1" || su.ChannelID != "v1" {
		t.Errorf("server update scope = %s/%s, want s1/v1", su.SpaceID, su.ChannelID)
	}
	if su.Backend != "custom" || su.URL != "wss://sfu.test/v1" || su.Token != "room-token" {
		t.Errorf("server update credentials = %+v", su)
	}

	fr = readTestFrame(t, conn)
	if fr.Type != events.TypeVoiceStateUpdate || fr.Seq != 3 {
		t.Fatalf("frame 2 = %q seq %d, want voice.state_update seq 3", fr.Type, fr.Seq)
	}
	var st statePayload
	if err := json.Unmarshal(fr.Data, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.UserID != "u1" || st.ChannelID == nil || *st.ChannelID != "v1" {
		t.Errorf("state = %+v, want u1 in v1", st)
	}
	if !st.SelfMute || st.SessionID != rd.SessionID {
		t.Errorf("state flags/session = mute:%v session:%q", st.SelfMute, st.SessionID)
	}

	// Same channel again only adjusts flags; no new credentials.
	sendTestFrame(t, conn, Frame{Op: OpVoiceStateUpdate, Data: mustRaw(voiceStateUpdateData{
		SpaceID:   "s1",
		ChannelID: ptr("v1"),
		SelfDeaf:  boolPtr(true),
	})})
	fr = readTestFrame(t, conn)
	if fr.Type != events.TypeVoiceStateUpdate || fr.Seq != 4 {
		t.Fatalf("frame 3 = %q seq %d, want voice.state_update seq 4", fr.Type, fr.Seq)
	}
	if err := json.Unmarshal(fr.Data, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if !st.SelfMute || !st.SelfDeaf {
		t.Errorf("flag update lost state: mute:%v deaf:%v", st.SelfMute, st.SelfDeaf)
	}

	// Null channel leaves.
	sendTestFrame(t, conn, Frame{Op: OpVoiceStateUpdate, Data: mustRaw(voiceStateUpdateData{SpaceID: "s1"})})
	fr = readTestFrame(t, conn)
	if fr.Type != events.TypeVoiceStateUpdate || fr.Seq != 5 {
		t.Fatalf("frame 4 = %q seq %d, want voice.state_update seq 5", fr.Type, fr.Seq)
	}
	if err := json.Unmarshal(fr.Data, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.ChannelID != nil {
		t.Errorf("leave state channel = %v, want null", *st.ChannelID)
	}
	if fx.coordinator.CurrentState("u1") != nil {
		t.Error("voice state survived the leave")
	}
}

func TestVoiceJoinIgnored(t *testing.T) {
	fx := newGatewayFixture(t, fixtureTimings())

	// Not a member of the claimed space: dropped before the coordinator.
	conn := dialGateway(t, fx.srv)
	identifyConn(t, conn, "tok-u1", []string{events.IntentVoiceStates})
	sendTestFrame(t, conn, Frame{Op: OpVoiceStateUpdate, Data: mustRaw(voiceStateUpdateData{
		SpaceID:   "s3",
		ChannelID: ptr("v3"),
	})})
	expectNoFrame(t, conn, 250*time.Millisecond)
	if fx.coordinator.CurrentState("u1") != nil {
		t.Error("voice state created for a non-member")
	}

	// Claiming a space the user is in does not smuggle them into a channel
	// that lives elsewhere; the join is rejected and swallowed.
	conn2 := dialGateway(t, fx.srv)
	identifyConn(t, conn2, "tok-u2", []string{events.IntentVoiceStates})
	sendTestFrame(t, conn2, Frame{Op: OpVoiceStateUpdate, Data: mustRaw(voiceStateUpdateData{
		SpaceID:   "s1",
		ChannelID: ptr("v3"),
	})})
	expectNoFrame(t, conn2, 250*time.Millisecond)
	if fx.coordinator.CurrentState("u2") != nil {
		t.Error("voice state created across spaces")
	}
}

func TestMemberChunk(t *testing.T) {
	fx := newGatewayFixture(t, fixtureTimings())
	conn := dialGateway(t, fx.srv)
	identifyConn(t, conn, "tok-u1", []string{events.IntentMembers})

	requestChunk := func(query string) memberChunkData {
		t.Helper()
		sendTestFrame(t, conn, Frame{Op: OpRequestMembers, Data: mustRaw(requestMembersData{SpaceID: "s1", Query: query})})
		fr := readTestFrame(t, conn)
		if fr.Op != OpEvent || fr.Type != events.TypeMemberChunk {
			t.Fatalf("frame = op:%d type:%q, want member.chunk", fr.Op, fr.Type)
		}
		var chunk memberChunkData
		if err := json.Unmarshal(fr.Data, &chunk); err != nil {
			t.Fatalf("unmarshal chunk: %v", err)
		}
		return chunk
	}

	chunk := requestChunk("bo")
	if len(chunk.Members) != 1 || chunk.Members[0].Username != "bob" {
		t.Errorf("query bo = %+v, want just bob", chunk.Members)
	}

	chunk = requestChunk("")
	if len(chunk.Members) != 3 {
		t.Fatalf("unfiltered chunk size = %d, want 3", len(chunk.Members))
	}
	if chunk.Members[0].UserID != "u1" || chunk.Members[2].UserID != "u3" {
		t.Errorf("chunk order = %+v, want u1..u3", chunk.Members)
	}

	// Nicknames match too.
	chunk = requestChunk("chi")
	if len(chunk.Members) != 1 || chunk.Members[0].UserID != "u3" {
		t.Errorf("query chi = %+v, want carol by nickname", chunk.Members)
	}
}

func TestMemberChunkNeedsIntent(t *testing.T) {
	fx := newGatewayFixture(t, fixtureTimings())
	conn := dialGateway(t, fx.srv)
	identifyConn(t, conn, "tok-u1", []string{events.IntentSpaces})

	sendTestFrame(t, conn, Frame{Op: OpRequestMembers, Data: mustRaw(requestMembersData{SpaceID: "s1"})})
	expectNoFrame(t, conn, 250*time.Millisecond)
}

func TestOfflineOnLastDisconnect(t *testing.T) {
	fx := newGatewayFixture(t, fixtureTimings())

	watcher := dialGateway(t, fx.srv)
	identifyConn(t, watcher, "tok-u2", []string{events.IntentSpaces, events.IntentPresences})
	readTestFrame(t, watcher) // own online broadcast

	a := dialGateway(t, fx.srv)
	identifyConn(t, a, "tok-u1", nil)
	readTestFrame(t, watcher) // u1 online
	b := dialGateway(t, fx.srv)
	identifyConn(t, b, "tok-u1", nil)
	readTestFrame(t, watcher) // u1 online again

	// Closing one of two sessions must not broadcast offline. The sentinel
	// published after the teardown proves nothing else was emitted.
	a.Close()
	time.Sleep(150 * time.Millisecond)
	fx.bus.Publish(events.New(events.TypeChannelCreate, "s1", map[string]string{"id": "sentinel"}))
	if fr := readTestFrame(t, watcher); fr.Type != events.TypeChannelCreate {
		t.Fatalf("after first close: frame = %q, want the channel.create sentinel", fr.Type)
	}

	b.Close()
	fr := readTestFrame(t, watcher)
	if fr.Type != events.TypePresenceUpdate {
		t.Fatalf("after last close: frame = %q, want presence.update", fr.Type)
	}
	var p domain.Presence
	if err := json.Unmarshal(fr.Data, &p); err != nil {
		t.Fatalf("unmarshal presence: %v", err)
	}
	if p.UserID != "u1" || p.Status != domain.PresenceOffline {
		t.Errorf("final presence = %+v, want u1 offline", p)
	}
}

func TestCheckOrigin(t *testing.T) {
	h := &Handler{origins: []string{"https://app.example.com"}}

	req := httptest.NewRequest("GET", "/ws", nil)
	if !h.checkOrigin(req) {
		t.Error("request without Origin rejected")
	}

	req = httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://app.example.com")
	if !h.checkOrigin(req) {
		t.Error("allowed origin rejected")
	}

	req = httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	if h.checkOrigin(req) {
		t.Error("unknown origin accepted")
	}

	wild := &Handler{origins: []string{"*"}}
	req = httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	if !wild.checkOrigin(req) {
		t.Error("wildcard origin rejected")
	}
}
