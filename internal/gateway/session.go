package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/metrics"
)

const WriteTimeout = 10 * time.Second

// errDecode marks an inbound frame that failed to parse; the actor closes
// with DECODE_ERROR instead of treating it as a disconnect.
var errDecode = errors.New("malformed frame")

// Session is one identified gateway connection. All socket writes happen on
// the owning actor goroutine; the space set is the only field other
// goroutines touch.
type Session struct {
	ID        string
	UserID    string
	principal domain.Principal

	intents map[string]bool
	conn    *websocket.Conn
	sub     *events.Subscription
	cancel  context.CancelFunc
	seq     int64

	mu     sync.RWMutex
	spaces map[string]struct{}
}

func (s *Session) inSpace(spaceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.spaces[spaceID]
	return ok
}

func (s *Session) spaceIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.spaces))
	for id := range s.spaces {
		out = append(out, id)
	}
	return out
}

func (s *Session) addSpace(spaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spaces[spaceID] = struct{}{}
}

func (s *Session) removeSpace(spaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.spaces, spaceID)
}

// wants applies the fan-out filter: target users beat space scope, global
// events pass, and the event's intent must be held.
func (s *Session) wants(ev events.Event) bool {
	if len(ev.TargetUserIDs) > 0 {
		if !slices.Contains(ev.TargetUserIDs, s.UserID) {
			return false
		}
	} else if ev.SpaceID != "" && !s.inSpace(ev.SpaceID) {
		return false
	}
	return ev.Intent == "" || s.intents[ev.Intent]
}

func (s *Session) write(fr Frame) error {
	s.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return s.conn.WriteJSON(fr)
}

// sendEvent writes a sequenced event frame to this session only.
func (s *Session) sendEvent(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("gateway: marshal event", "error", err, "type", eventType)
		return
	}
	s.seq++
	if err := s.write(Frame{Op: OpEvent, Seq: s.seq, Type: eventType, Data: data}); err != nil {
		slog.Debug("gateway: event write failed", "error", err, "session_id", s.ID)
		return
	}
	metrics.GatewayEventsDelivered.Inc()
}

func writeFrame(conn *websocket.Conn, fr Frame) error {
	conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return conn.WriteJSON(fr)
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	conn.WriteMessage(websocket.CloseMessage, msg)
}

// readFrames pumps inbound frames to the actor until the socket dies or a
// frame fails to decode.
func readFrames(conn *websocket.Conn, frames chan<- Frame, errc chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		var fr Frame
		if err := json.Unmarshal(data, &fr); err != nil {
			errc <- errDecode
			return
		}
		frames <- fr
	}
}
