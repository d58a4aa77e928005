package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/permissions"
)

type coordStore struct {
	channels map[string]*domain.Channel
	spaces   map[string]*domain.Space
	users    map[string]*domain.User

	members    map[string]*domain.Member // spaceID/userID
	roles      map[string][]domain.Role
	overwrites map[string][]domain.PermissionOverwrite
}

func (s *coordStore) ChannelByID(_ context.Context, id string) (*domain.Channel, error) {
	if ch, ok := s.channels[id]; ok {
		return ch, nil
	}
	return nil, domain.NotFound("channel not found")
}

func (s *coordStore) SpaceByID(_ context.Context, id string) (*domain.Space, error) {
	if sp, ok := s.spaces[id]; ok {
		return sp, nil
	}
	return nil, domain.NotFound("space not found")
}

func (s *coordStore) UserByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, domain.NotFound("user not found")
}

func (s *coordStore) Member(_ context.Context, spaceID, userID string) (*domain.Member, error) {
	if m, ok := s.members[spaceID+"/"+userID]; ok {
		return m, nil
	}
	return nil, domain.NotFound("member not found")
}

func (s *coordStore) RolesBySpace(_ context.Context, spaceID string) ([]domain.Role, error) {
	return s.roles[spaceID], nil
}

func (s *coordStore) OverwritesByChannel(_ context.Context, channelID string) ([]domain.PermissionOverwrite, error) {
	return s.overwrites[channelID], nil
}

type recordingRouter struct {
	mu        sync.Mutex
	ensured   []string
	removed   []string
	deleted   []string
	ensureErr error
}

func (r *recordingRouter) Backend() string { return "custom" }

func (r *recordingRouter) EnsureRoom(_ context.Context, channelID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ensureErr != nil {
		return r.ensureErr
	}
	r.ensured = append(r.ensured, channelID)
	return nil
}

func (r *recordingRouter) GenerateToken(userID, _, channelID string, _ time.Duration) (string, error) {
	return "tok-" + userID + "-" + channelID, nil
}

func (r *recordingRouter) RemoveParticipant(_ context.Context, channelID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, channelID+"/"+userID)
}

func (r *recordingRouter) DeleteRoomIfEmpty(_ context.Context, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, channelID)
}

func (r *recordingRouter) ExternalURL(string) string { return "wss://media.test" }

func strptr(s string) *string { return &s }

func coordFixture(t *testing.T) (*Coordinator, *coordStore, *recordingRouter, *events.Subscription) {
	t.Helper()
	store := &coordStore{
		channels: map[string]*domain.Channel{
			"v1":  {ID: "v1", SpaceID: strptr("s1"), Type: domain.ChannelTypeVoice, Name: "General Voice"},
			"v2":  {ID: "v2", SpaceID: strptr("s1"), Type: domain.ChannelTypeVoice, Name: "Gaming"},
			"txt": {ID: "txt", SpaceID: strptr("s1"), Type: domain.ChannelTypeText, Name: "general"},
		},
		spaces: map[string]*domain.Space{
			"s1": {ID: "s1", Name: "Test Space", OwnerID: "owner"},
		},
		users: map[string]*domain.User{
			"u1": {ID: "u1", Username: "alice", DisplayName: "Alice"},
			"u2": {ID: "u2", Username: "bob"},
		},
		members: map[string]*domain.Member{
			"s1/u1": {SpaceID: "s1", UserID: "u1"},
			"s1/u2": {SpaceID: "s1", UserID: "u2"},
		},
		roles: map[string][]domain.Role{
			"s1": {{ID: "r-everyone", SpaceID: "s1", Name: "@everyone", Position: 0, Permissions: permissions.EveryoneDefaults()}},
		},
		overwrites: map[string][]domain.PermissionOverwrite{},
	}
	router := &recordingRouter{}
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	sub := bus.Subscribe()
	coord := NewCoordinator(store, permissions.NewResolver(store), bus, NewStateTable(), router, nil, "eu")
	return coord, store, router, sub
}

func nextEvent(t *testing.T, sub *events.Subscription) events.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event on bus")
		return events.Event{}
	}
}

func TestCoordinatorJoin(t *testing.T) {
	coord, _, router, sub := coordFixture(t)
	p := domain.Principal{UserID: "u1"}

	res, err := coord.Join(context.Background(), p, JoinRequest{ChannelID: "v1", SessionID: "sess1"})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if res.Backend != "custom" || res.URL != "wss://media.test" {
		t.Errorf("result backend/url = %q/%q", res.Backend, res.URL)
	}
	if res.Token != "tok-u1-v1" {
		t.Errorf("token = %q", res.Token)
	}
	if res.SpaceID != "s1" || res.State.ChannelID != "v1" {
		t.Errorf("result state = %+v", res.State)
	}

	ev := nextEvent(t, sub)
	if ev.Type != events.TypeVoiceStateUpdate || ev.SpaceID != "s1" {
		t.Errorf("event = %+v, want voice.state_update for s1", ev)
	}
	if ev.Intent != events.IntentVoiceStates {
		t.Errorf("intent = %q", ev.Intent)
	}
	raw, _ := json.Marshal(ev.Payload)
	if !strings.Contains(string(raw), `"channel_id":"v1"`) {
		t.Errorf("payload = %s, want channel_id v1", raw)
	}

	if len(router.ensured) != 1 || router.ensured[0] != "v1" {
		t.Errorf("ensured = %v", router.ensured)
	}
	if st := coord.CurrentState("u1"); st == nil || st.ChannelID != "v1" {
		t.Errorf("CurrentState = %+v", st)
	}
}

func TestCoordinatorMoveTearsDownOldRoomOnce(t *testing.T) {
	coord, _, router, sub := coordFixture(t)
	p := domain.Principal{UserID: "u1"}
	ctx := context.Background()

	if _, err := coord.Join(ctx, p, JoinRequest{ChannelID: "v1", SessionID: "sess1"}); err != nil {
		t.Fatalf("join v1: %v", err)
	}
	nextEvent(t, sub)

	if _, err := coord.Join(ctx, p, JoinRequest{ChannelID: "v2", SessionID: "sess1"}); err != nil {
		t.Fatalf("join v2: %v", err)
	}
	nextEvent(t, sub)

	if len(router.removed) != 1 || router.removed[0] != "v1/u1" {
		t.Fatalf("removed = %v, want exactly [v1/u1]", router.removed)
	}
	if len(router.deleted) != 1 || router.deleted[0] != "v1" {
		t.Fatalf("deleted = %v, want exactly [v1]", router.deleted)
	}
	if st := coord.CurrentState("u1"); st == nil || st.ChannelID != "v2" {
		t.Errorf("CurrentState = %+v, want v2", st)
	}
}

func TestCoordinatorFlagUpdateNeverTouchesRouter(t *testing.T) {
	coord, _, router, sub := coordFixture(t)
	p := domain.Principal{UserID: "u1"}
	ctx := context.Background()

	if _, err := coord.Join(ctx, p, JoinRequest{ChannelID: "v1", SessionID: "sess1"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	nextEvent(t, sub)

	mute := true
	st, err := coord.UpdateFlags(ctx, p, Flags{SelfMute: &mute})
	if err != nil {
		t.Fatalf("UpdateFlags: %v", err)
	}
	if !st.SelfMute || st.ChannelID != "v1" {
		t.Errorf("state = %+v", st)
	}

	ev := nextEvent(t, sub)
	if ev.Type != events.TypeVoiceStateUpdate {
		t.Errorf("event type = %q", ev.Type)
	}
	raw, _ := json.Marshal(ev.Payload)
	if !strings.Contains(string(raw), `"self_mute":true`) {
		t.Errorf("payload = %s", raw)
	}

	// A re-join of the same channel refreshes credentials and must not
	// tear anything down either.
	if _, err := coord.Join(ctx, p, JoinRequest{ChannelID: "v1", SessionID: "sess1"}); err != nil {
		t.Fatalf("re-join: %v", err)
	}
	if len(router.removed) != 0 || len(router.deleted) != 0 {
		t.Fatalf("removed=%v deleted=%v, want no teardown", router.removed, router.deleted)
	}
}

func TestCoordinatorUpdateFlagsNotConnected(t *testing.T) {
	coord, _, _, _ := coordFixture(t)
	mute := true
	_, err := coord.UpdateFlags(context.Background(), domain.Principal{UserID: "u1"}, Flags{SelfMute: &mute})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCoordinatorLeave(t *testing.T) {
	coord, _, router, sub := coordFixture(t)
	p := domain.Principal{UserID: "u1"}
	ctx := context.Background()

	if _, err := coord.Join(ctx, p, JoinRequest{ChannelID: "v1", SessionID: "sess1"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	nextEvent(t, sub)

	st, err := coord.Leave(ctx, p)
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if st.ChannelID != "v1" {
		t.Errorf("departed channel = %q", st.ChannelID)
	}

	ev := nextEvent(t, sub)
	raw, _ := json.Marshal(ev.Payload)
	if !strings.Contains(string(raw), `"channel_id":null`) {
		t.Errorf("leave payload = %s, want null channel_id", raw)
	}

	if len(router.removed) != 1 || router.removed[0] != "v1/u1" {
		t.Errorf("removed = %v", router.removed)
	}
	if len(router.deleted) != 1 {
		t.Errorf("deleted = %v", router.deleted)
	}
	if coord.CurrentState("u1") != nil {
		t.Error("state survived leave")
	}

	if _, err := coord.Leave(ctx, p); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second leave = %v, want ErrNotFound", err)
	}
}

func TestCoordinatorJoinValidation(t *testing.T) {
	coord, store, router, _ := coordFixture(t)
	ctx := context.Background()

	if _, err := coord.Join(ctx, domain.Principal{UserID: "u1"}, JoinRequest{ChannelID: "txt"}); !errors.Is(err, domain.ErrBadRequest) {
		t.Errorf("text channel join = %v, want ErrBadRequest", err)
	}
	if _, err := coord.Join(ctx, domain.Principal{UserID: "u1"}, JoinRequest{ChannelID: "missing"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown channel join = %v, want ErrNotFound", err)
	}
	if _, err := coord.Join(ctx, domain.Principal{UserID: "stranger"}, JoinRequest{ChannelID: "v1"}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("non-member join = %v, want ErrForbidden", err)
	}

	store.overwrites["v1"] = []domain.PermissionOverwrite{{
		ChannelID:  "v1",
		TargetType: domain.OverwriteTargetRole,
		TargetID:   "r-everyone",
		Deny:       []string{permissions.Connect},
	}}
	if _, err := coord.Join(ctx, domain.Principal{UserID: "u1"}, JoinRequest{ChannelID: "v1"}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("denied join = %v, want ErrForbidden", err)
	}

	if len(router.ensured)+len(router.removed)+len(router.deleted) != 0 {
		t.Errorf("router touched during failed joins: %+v", router)
	}
	if coord.CurrentState("u1") != nil {
		t.Error("state recorded for denied join")
	}
}

func TestCoordinatorJoinRouterFailure(t *testing.T) {
	coord, _, router, sub := coordFixture(t)
	router.ensureErr = fmt.Errorf("node pool exhausted")

	_, err := coord.Join(context.Background(), domain.Principal{UserID: "u1"}, JoinRequest{ChannelID: "v1", SessionID: "sess1"})
	if err == nil || !strings.Contains(err.Error(), "node pool exhausted") {
		t.Fatalf("err = %v, want router failure", err)
	}
	// The state broadcast already went out; the client retries the join.
	nextEvent(t, sub)
}

func TestCoordinatorSignal(t *testing.T) {
	coord, _, _, sub := coordFixture(t)
	ctx := context.Background()

	err := coord.Signal(ctx, domain.Principal{UserID: "u1"}, "v1", json.RawMessage(`{"sdp":"offer"}`))
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("signal while disconnected = %v, want ErrForbidden", err)
	}

	if _, err := coord.Join(ctx, domain.Principal{UserID: "u1"}, JoinRequest{ChannelID: "v1", SessionID: "sess1"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	nextEvent(t, sub)

	if err := coord.Signal(ctx, domain.Principal{UserID: "u1"}, "v2", json.RawMessage(`{}`)); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("signal to other channel = %v, want ErrForbidden", err)
	}

	if err := coord.Signal(ctx, domain.Principal{UserID: "u1"}, "v1", json.RawMessage(`{"sdp":"offer"}`)); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	ev := nextEvent(t, sub)
	if ev.Type != events.TypeVoiceSignal || ev.SpaceID != "s1" {
		t.Errorf("event = %+v", ev)
	}
	raw, _ := json.Marshal(ev.Payload)
	if !strings.Contains(string(raw), `"sdp":"offer"`) {
		t.Errorf("payload = %s", raw)
	}
}

func TestCoordinatorChannelStates(t *testing.T) {
	coord, _, _, sub := coordFixture(t)
	ctx := context.Background()

	for _, uid := range []string{"u1", "u2"} {
		if _, err := coord.Join(ctx, domain.Principal{UserID: uid}, JoinRequest{ChannelID: "v1", SessionID: "sess-" + uid}); err != nil {
			t.Fatalf("join %s: %v", uid, err)
		}
		nextEvent(t, sub)
	}

	states, err := coord.ChannelStates(ctx, domain.Principal{UserID: "u1"}, "v1")
	if err != nil {
		t.Fatalf("ChannelStates: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("len(states) = %d, want 2", len(states))
	}

	if _, err := coord.ChannelStates(ctx, domain.Principal{UserID: "stranger"}, "v1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stranger states = %v, want ErrForbidden", err)
	}
}

func TestCoordinatorRegions(t *testing.T) {
	coord, _, _, _ := coordFixture(t)
	regions := coord.Regions()
	if len(regions) != 1 || regions[0].ID != "eu" || !regions[0].Default {
		t.Fatalf("regions = %+v, want single default eu", regions)
	}

	dir := NewDirectory(nil)
	if _, err := dir.Register(context.Background(), "n1", "wss://n1", "us", 100); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := dir.Register(context.Background(), "n2", "wss://n2", "eu", 100); err != nil {
		t.Fatalf("register: %v", err)
	}
	coord.directory = dir
	regions = coord.Regions()
	if len(regions) != 2 || regions[0].ID != "eu" || regions[1].ID != "us" {
		t.Fatalf("regions = %+v, want [eu us]", regions)
	}
	if !regions[0].Default || regions[1].Default {
		t.Fatalf("default flags wrong: %+v", regions)
	}
}
