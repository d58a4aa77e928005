// Package voice coordinates voice sessions: the in-memory state table, the
// SFU node directory, and the media-router backends.
package voice

import (
	"sort"
	"sync"
	"time"

	"github.com/accord-chat/accord/internal/domain"
)

// Flags is a partial update of the self-* voice flags; nil fields are left
// untouched.
type Flags struct {
	SelfMute   *bool `json:"self_mute,omitempty"`
	SelfDeaf   *bool `json:"self_deaf,omitempty"`
	SelfVideo  *bool `json:"self_video,omitempty"`
	SelfStream *bool `json:"self_stream,omitempty"`
}

func (f Flags) apply(st *domain.VoiceState) {
	if f.SelfMute != nil {
		st.SelfMute = *f.SelfMute
	}
	if f.SelfDeaf != nil {
		st.SelfDeaf = *f.SelfDeaf
	}
	if f.SelfVideo != nil {
		st.SelfVideo = *f.SelfVideo
	}
	if f.SelfStream != nil {
		st.SelfStream = *f.SelfStream
	}
}

// StateTable is the authoritative map of user id to voice state. At most one
// state per user exists across the whole process.
type StateTable struct {
	mu     sync.RWMutex
	byUser map[string]*domain.VoiceState
}

func NewStateTable() *StateTable {
	return &StateTable{byUser: make(map[string]*domain.VoiceState)}
}

// Join installs the full new state atomically. If the user was already in a
// different channel, that channel id is returned so the caller can clean up
// the media-router room.
func (t *StateTable) Join(userID, spaceID, channelID, sessionID string, flags Flags) (domain.VoiceState, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	previousChannel := ""
	if prev, ok := t.byUser[userID]; ok && prev.ChannelID != channelID {
		previousChannel = prev.ChannelID
	}

	st := &domain.VoiceState{
		UserID:    userID,
		SpaceID:   spaceID,
		ChannelID: channelID,
		SessionID: sessionID,
		JoinedAt:  time.Now(),
	}
	flags.apply(st)
	t.byUser[userID] = st
	return *st, previousChannel
}

// UpdateFlags mutates the flags in place without touching media-router
// state. Returns nil if the user has no voice state.
func (t *StateTable) UpdateFlags(userID string, flags Flags) *domain.VoiceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.byUser[userID]
	if !ok {
		return nil
	}
	flags.apply(st)
	out := *st
	return &out
}

// Leave removes the user's state, returning the removed state or nil.
func (t *StateTable) Leave(userID string) *domain.VoiceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.byUser[userID]
	if !ok {
		return nil
	}
	delete(t.byUser, userID)
	out := *st
	return &out
}

// ByUser returns a copy of the user's state or nil.
func (t *StateTable) ByUser(userID string) *domain.VoiceState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.byUser[userID]
	if !ok {
		return nil
	}
	out := *st
	return &out
}

// ByChannel returns copies of every state in the channel, oldest join first.
func (t *StateTable) ByChannel(channelID string) []domain.VoiceState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.VoiceState, 0, 8)
	for _, st := range t.byUser {
		if st.ChannelID == channelID {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

// Count reports how many users currently hold a voice state.
func (t *StateTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byUser)
}
