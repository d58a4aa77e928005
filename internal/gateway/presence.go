package gateway

import (
	"sync"
	"time"

	"github.com/accord-chat/accord/internal/domain"
)

// ClampStatus restricts a client-supplied status to the settable enum.
// Anything else, including "offline", becomes online; going dark is what
// invisible is for.
func ClampStatus(status string) string {
	switch status {
	case domain.PresenceOnline, domain.PresenceIdle, domain.PresenceDnd, domain.PresenceInvisible:
		return status
	default:
		return domain.PresenceOnline
	}
}

// WireStatus maps invisible to offline for everything that leaves the
// server. The table keeps the real status so the owning user's sessions
// still see it.
func WireStatus(status string) string {
	if status == domain.PresenceInvisible {
		return domain.PresenceOffline
	}
	return status
}

func wirePresence(p domain.Presence) domain.Presence {
	p.Status = WireStatus(p.Status)
	return p
}

type presenceEntry struct {
	presence domain.Presence
	sessions int
}

// PresenceTable tracks one presence record per user with a live-session
// refcount. The entry survives as long as at least one session is open.
type PresenceTable struct {
	mu      sync.RWMutex
	entries map[string]*presenceEntry
}

func NewPresenceTable() *PresenceTable {
	return &PresenceTable{entries: make(map[string]*presenceEntry)}
}

// Connect registers one more session for the user and applies the initial
// status. Returns the stored presence.
func (t *PresenceTable) Connect(userID, status, activity string) domain.Presence {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[userID]
	if !ok {
		e = &presenceEntry{presence: domain.Presence{UserID: userID}}
		t.entries[userID] = e
	}
	e.sessions++
	e.presence.Status = ClampStatus(status)
	e.presence.Activities = activities(activity)
	e.presence.UpdatedAt = time.Now()
	return e.presence
}

// Set updates the user's presence without touching the refcount. A user
// with no live session keeps no presence; the update is dropped.
func (t *PresenceTable) Set(userID, status, activity string) (domain.Presence, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[userID]
	if !ok {
		return domain.Presence{}, false
	}
	e.presence.Status = ClampStatus(status)
	e.presence.Activities = activities(activity)
	e.presence.UpdatedAt = time.Now()
	return e.presence, true
}

// Disconnect drops one session. When the last session goes, the entry is
// removed and the returned flag tells the caller to broadcast offline.
func (t *PresenceTable) Disconnect(userID string) (domain.Presence, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[userID]
	if !ok {
		return domain.Presence{}, false
	}
	e.sessions--
	if e.sessions > 0 {
		return e.presence, false
	}
	delete(t.entries, userID)
	return e.presence, true
}

// Get returns the user's presence, if any session holds one.
func (t *PresenceTable) Get(userID string) (domain.Presence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[userID]
	if !ok {
		return domain.Presence{}, false
	}
	return e.presence, true
}

// Snapshot returns the wire presences of the given users, skipping anyone
// who would render offline. Feeds the READY payload.
func (t *PresenceTable) Snapshot(userIDs []string) []domain.Presence {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.Presence, 0, len(userIDs))
	for _, id := range userIDs {
		e, ok := t.entries[id]
		if !ok {
			continue
		}
		p := wirePresence(e.presence)
		if p.Status == domain.PresenceOffline {
			continue
		}
		out = append(out, p)
	}
	return out
}

func activities(activity string) []string {
	if activity == "" {
		return nil
	}
	return []string{activity}
}
