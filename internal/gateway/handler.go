package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/accord-chat/accord/internal/auth"
	"github.com/accord-chat/accord/internal/config"
	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/metrics"
	"github.com/accord-chat/accord/internal/snowflake"
	"github.com/accord-chat/accord/internal/voice"
)

const memberChunkPageSize = 200

// Store is the slice of the repository the gateway reads at identify and
// for member chunks.
type Store interface {
	SpacesByUser(ctx context.Context, userID string) ([]domain.Space, error)
	MemberIDsBySpace(ctx context.Context, spaceID string) ([]string, error)
	MembersBySpace(ctx context.Context, spaceID, afterID string, limit int) ([]domain.Member, error)
}

// Handler upgrades /ws requests and runs one connection actor per socket.
type Handler struct {
	store    Store
	auth     *auth.Service
	voice    *voice.Coordinator
	bus      *events.Bus
	registry *SessionRegistry
	presence *PresenceTable
	ids      *snowflake.Generator
	timings  config.Timings
	version  string
	origins  []string
	upgrader websocket.Upgrader
}

func NewHandler(cfg *config.Config, store Store, authSvc *auth.Service, coordinator *voice.Coordinator, bus *events.Bus, registry *SessionRegistry, presence *PresenceTable, version string) *Handler {
	h := &Handler{
		store:    store,
		auth:     authSvc,
		voice:    coordinator,
		bus:      bus,
		registry: registry,
		presence: presence,
		ids:      snowflake.NewGenerator(),
		timings:  cfg.Timings,
		version:  version,
		origins:  cfg.Server.AllowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Bots and native clients send no Origin.
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("gateway: upgrade error", "error", err)
		return
	}
	defer conn.Close()

	h.serve(r.Context(), conn)
}

// serve drives the state machine: Hello, AwaitingIdentify, Ready, Closing.
func (h *Handler) serve(parent context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if err := writeFrame(conn, helloFrame(h.timings.HeartbeatInterval.Milliseconds())); err != nil {
		return
	}

	inbound := make(chan Frame, 16)
	readErr := make(chan error, 1)
	go readFrames(conn, inbound, readErr)

	sess := h.awaitIdentify(ctx, cancel, conn, inbound, readErr)
	if sess == nil {
		return
	}
	defer h.teardown(sess)
	h.readyLoop(ctx, sess, inbound, readErr)
}

func (h *Handler) awaitIdentify(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, inbound <-chan Frame, readErr <-chan error) *Session {
	deadline := time.NewTimer(h.timings.IdentifyDeadline)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			closeWith(conn, websocket.CloseGoingAway, "server shutting down")
			return nil
		case <-deadline.C:
			writeFrame(conn, invalidSessionFrame())
			closeWith(conn, CloseSessionTimedOut, "identify deadline exceeded")
			return nil
		case err := <-readErr:
			h.handleReadError(conn, err)
			return nil
		case fr := <-inbound:
			switch fr.Op {
			case OpIdentify:
				return h.identify(ctx, cancel, conn, fr.Data)
			case OpResume:
				// No resume support: tell the client to identify fresh on
				// this same socket.
				writeFrame(conn, invalidSessionFrame())
			default:
				closeWith(conn, CloseNotAuthenticated, "identify first")
				return nil
			}
		}
	}
}

// identify authenticates the connection and brings the session to Ready.
func (h *Handler) identify(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, raw json.RawMessage) *Session {
	var ident identifyData
	if err := json.Unmarshal(raw, &ident); err != nil {
		closeWith(conn, CloseDecodeError, "malformed identify")
		return nil
	}

	p, err := h.resolveToken(ctx, ident.Token)
	if err != nil {
		writeFrame(conn, invalidSessionFrame())
		closeWith(conn, CloseAuthFailed, "authentication failed")
		return nil
	}

	intents, unknown := validateIntents(ident.Intents)
	if unknown != "" {
		closeWith(conn, CloseInvalidIntent, "unknown intent: "+unknown)
		return nil
	}

	spaces, err := h.store.SpacesByUser(ctx, p.UserID)
	if err != nil {
		slog.Error("gateway: load spaces", "error", err, "user_id", p.UserID)
		closeWith(conn, CloseUnknownError, "internal error")
		return nil
	}
	spaceSet := make(map[string]struct{}, len(spaces))
	for _, sp := range spaces {
		spaceSet[sp.ID] = struct{}{}
	}

	presences := h.neighbourPresences(ctx, p.UserID, spaces)

	sub := h.bus.Subscribe()
	if sub == nil {
		closeWith(conn, websocket.CloseGoingAway, "server shutting down")
		return nil
	}

	sess := &Session{
		ID:        h.ids.Next(),
		UserID:    p.UserID,
		principal: *p,
		intents:   intents,
		conn:      conn,
		sub:       sub,
		cancel:    cancel,
		spaces:    spaceSet,
	}
	h.registry.Register(sess)

	status, activity := domain.PresenceOnline, ""
	if ident.Presence != nil {
		status, activity = ident.Presence.Status, ident.Presence.Activity
	}
	pres := h.presence.Connect(sess.UserID, status, activity)

	sess.seq = 1
	ready := Frame{Op: OpEvent, Seq: sess.seq, Type: events.TypeReady, Data: mustRaw(readyData{
		SessionID:     sess.ID,
		UserID:        sess.UserID,
		Spaces:        spaces,
		Presences:     presences,
		APIVersion:    APIVersion,
		ServerVersion: h.version,
	})}
	if err := sess.write(ready); err != nil {
		slog.Warn("gateway: ready write failed", "error", err, "session_id", sess.ID)
	}

	wire := wirePresence(pres)
	for spaceID := range spaceSet {
		h.bus.Publish(events.New(events.TypePresenceUpdate, spaceID, wire))
	}

	slog.Info("gateway: session ready", "session_id", sess.ID, "user_id", sess.UserID, "spaces", len(spaceSet))
	return sess
}

// resolveToken accepts a bare token or one carrying the HTTP header prefix.
func (h *Handler) resolveToken(ctx context.Context, token string) (*domain.Principal, error) {
	if strings.HasPrefix(token, "Bot ") || strings.HasPrefix(token, "Bearer ") {
		return h.auth.Resolve(ctx, token)
	}
	p, err := h.auth.Resolve(ctx, "Bearer "+token)
	if err == nil {
		return p, nil
	}
	return h.auth.Resolve(ctx, "Bot "+token)
}

func (h *Handler) neighbourPresences(ctx context.Context, userID string, spaces []domain.Space) []domain.Presence {
	seen := map[string]struct{}{userID: {}}
	var ids []string
	for _, sp := range spaces {
		memberIDs, err := h.store.MemberIDsBySpace(ctx, sp.ID)
		if err != nil {
			slog.Warn("gateway: presence snapshot", "error", err, "space_id", sp.ID)
			continue
		}
		for _, id := range memberIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return h.presence.Snapshot(ids)
}

func (h *Handler) readyLoop(ctx context.Context, sess *Session, inbound <-chan Frame, readErr <-chan error) {
	interval := h.timings.HeartbeatInterval
	liveness := time.NewTicker(interval)
	defer liveness.Stop()
	lastBeat := time.Now()

	for {
		select {
		case <-ctx.Done():
			closeWith(sess.conn, websocket.CloseGoingAway, "server shutting down")
			return
		case err := <-readErr:
			h.handleReadError(sess.conn, err)
			return
		case fr := <-inbound:
			switch fr.Op {
			case OpHeartbeat:
				lastBeat = time.Now()
				sess.write(Frame{Op: OpHeartbeatAck})
			case OpIdentify:
				closeWith(sess.conn, CloseAlreadyAuthenticated, "already identified")
				return
			case OpPresenceUpdate:
				h.handlePresenceUpdate(sess, fr.Data)
			case OpVoiceStateUpdate:
				h.handleVoiceUpdate(ctx, sess, fr.Data)
			case OpRequestMembers:
				h.handleRequestMembers(ctx, sess, fr.Data)
			default:
				// Unknown ops are ignored.
			}
		case ev, ok := <-sess.sub.Events():
			if !ok {
				// Dropped by the bus for falling behind; the client must
				// reconnect and resync.
				metrics.GatewaySubscribersDropped.Inc()
				sess.write(Frame{Op: OpReconnect})
				closeWith(sess.conn, CloseUnknownError, "event overflow")
				return
			}
			h.deliver(sess, ev)
		case <-liveness.C:
			if time.Since(lastBeat) > 2*interval {
				closeWith(sess.conn, CloseSessionTimedOut, "heartbeat timeout")
				return
			}
		}
	}
}

func (h *Handler) handleReadError(conn *websocket.Conn, err error) {
	if errors.Is(err, errDecode) {
		closeWith(conn, CloseDecodeError, "malformed frame")
		return
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		slog.Debug("gateway: read error", "error", err)
	}
}

func (h *Handler) deliver(sess *Session, ev events.Event) {
	if !sess.wants(ev) {
		return
	}
	sess.sendEvent(ev.Type, ev.Payload)
}

func (h *Handler) handlePresenceUpdate(sess *Session, raw json.RawMessage) {
	var pd presenceData
	if err := json.Unmarshal(raw, &pd); err != nil {
		return
	}
	pres, ok := h.presence.Set(sess.UserID, pd.Status, pd.Activity)
	if !ok {
		return
	}
	wire := wirePresence(pres)
	for _, spaceID := range sess.spaceIDs() {
		h.bus.Publish(events.New(events.TypePresenceUpdate, spaceID, wire))
	}
}

// handleVoiceUpdate drives the voice subflow. Validation failures are
// silently ignored; they never kill the connection.
func (h *Handler) handleVoiceUpdate(ctx context.Context, sess *Session, raw json.RawMessage) {
	var vd voiceStateUpdateData
	if err := json.Unmarshal(raw, &vd); err != nil {
		return
	}
	if !sess.inSpace(vd.SpaceID) {
		return
	}
	flags := voice.Flags{SelfMute: vd.SelfMute, SelfDeaf: vd.SelfDeaf, SelfVideo: vd.SelfVideo, SelfStream: vd.SelfStream}

	if vd.ChannelID == nil {
		if _, err := h.voice.Leave(ctx, sess.principal); err != nil && !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("gateway: voice leave", "error", err, "session_id", sess.ID)
		}
		return
	}

	if cur := h.voice.CurrentState(sess.UserID); cur != nil && cur.ChannelID == *vd.ChannelID {
		if _, err := h.voice.UpdateFlags(ctx, sess.principal, flags); err != nil {
			slog.Warn("gateway: voice flag update", "error", err, "session_id", sess.ID)
		}
		return
	}

	res, err := h.voice.Join(ctx, sess.principal, voice.JoinRequest{
		ChannelID: *vd.ChannelID,
		SessionID: sess.ID,
		Flags:     flags,
	})
	if err != nil {
		slog.Debug("gateway: voice join rejected", "error", err, "session_id", sess.ID, "channel_id", *vd.ChannelID)
		return
	}
	sess.sendEvent(events.TypeVoiceServerUpdate, serverUpdateData{
		SpaceID:   res.SpaceID,
		ChannelID: *vd.ChannelID,
		Backend:   res.Backend,
		URL:       res.URL,
		Token:     res.Token,
	})
}

func (h *Handler) handleRequestMembers(ctx context.Context, sess *Session, raw json.RawMessage) {
	var req requestMembersData
	if err := json.Unmarshal(raw, &req); err != nil {
		return
	}
	if !sess.intents[events.IntentMembers] || !sess.inSpace(req.SpaceID) {
		return
	}
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	prefix := strings.ToLower(req.Query)

	members := make([]memberSummary, 0, limit)
	after := ""
	for len(members) < limit {
		page, err := h.store.MembersBySpace(ctx, req.SpaceID, after, memberChunkPageSize)
		if err != nil {
			slog.Error("gateway: member chunk query", "error", err, "space_id", req.SpaceID)
			return
		}
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			if !matchesMemberQuery(m, prefix) {
				continue
			}
			members = append(members, summarizeMember(m))
			if len(members) == limit {
				break
			}
		}
		after = page[len(page)-1].UserID
		if len(page) < memberChunkPageSize {
			break
		}
	}
	sess.sendEvent(events.TypeMemberChunk, memberChunkData{SpaceID: req.SpaceID, Members: members})
}

func matchesMemberQuery(m domain.Member, prefix string) bool {
	if prefix == "" {
		return true
	}
	if m.Nickname != nil && strings.HasPrefix(strings.ToLower(*m.Nickname), prefix) {
		return true
	}
	if m.User == nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(m.User.Username), prefix) ||
		strings.HasPrefix(strings.ToLower(m.User.DisplayName), prefix)
}

func summarizeMember(m domain.Member) memberSummary {
	s := memberSummary{UserID: m.UserID, Nickname: m.Nickname}
	if m.User != nil {
		s.Username = m.User.Username
		s.DisplayName = m.User.DisplayName
		s.AvatarURL = m.User.AvatarURL
	}
	return s
}

// teardown is the Closing path: voice leave, unregister, presence decrement
// with an offline broadcast when the last session goes.
func (h *Handler) teardown(sess *Session) {
	ctx := context.Background()
	if st := h.voice.CurrentState(sess.UserID); st != nil && st.SessionID == sess.ID {
		if _, err := h.voice.Leave(ctx, sess.principal); err != nil && !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("gateway: voice leave on close", "error", err, "session_id", sess.ID)
		}
	}
	h.registry.Unregister(sess)
	h.bus.Unsubscribe(sess.sub)
	if pres, last := h.presence.Disconnect(sess.UserID); last {
		pres.Status = domain.PresenceOffline
		pres.Activities = nil
		for _, spaceID := range sess.spaceIDs() {
			h.bus.Publish(events.New(events.TypePresenceUpdate, spaceID, pres))
		}
	}
	slog.Info("gateway: session closed", "session_id", sess.ID, "user_id", sess.UserID)
}
