package httpapi

import (
	"net/http"
	"net/url"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/permissions"
)

const maxEmojiLength = 64

// emojiParam decodes the {emoji} path segment, which arrives URL-escaped.
func emojiParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "emoji")
	emoji, err := url.PathUnescape(raw)
	if err != nil || emoji == "" {
		return "", domain.BadRequest("invalid emoji")
	}
	if !utf8.ValidString(emoji) || len(emoji) > maxEmojiLength {
		return "", domain.BadRequest("invalid emoji")
	}
	return emoji, nil
}

type reactionPayload struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
}

func (s *Server) handleAddReaction(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	channel, _, set, err := s.channelAccess(r.Context(), p, chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !set.Allows(permissions.AddReactions) {
		respondError(w, r, domain.Forbidden("missing permission: add_reactions"))
		return
	}
	emoji, err := emojiParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	msg, err := s.messageInChannel(r, channel.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.store.AddReaction(r.Context(), msg.ID, p.UserID, emoji); err != nil {
		respondError(w, r, err)
		return
	}
	s.publishChannel(channel, events.TypeReactionAdd, reactionPayload{
		ChannelID: channel.ID,
		MessageID: msg.ID,
		UserID:    p.UserID,
		Emoji:     emoji,
	})
	respondNoContent(w)
}

func (s *Server) handleRemoveOwnReaction(w http.ResponseWriter, r *http.Request) {
	s.removeReaction(w, r, "")
}

// handleRemoveUserReaction lets moderators strip someone else's reaction.
func (s *Server) handleRemoveUserReaction(w http.ResponseWriter, r *http.Request) {
	s.removeReaction(w, r, chi.URLParam(r, "user_id"))
}

func (s *Server) removeReaction(w http.ResponseWriter, r *http.Request, targetUserID string) {
	p := principal(r)
	channel, _, set, err := s.channelAccess(r.Context(), p, chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if targetUserID == "" {
		targetUserID = p.UserID
	} else if targetUserID != p.UserID && !set.Allows(permissions.ManageMessages) {
		respondError(w, r, domain.Forbidden("missing permission: manage_messages"))
		return
	}
	emoji, err := emojiParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	msg, err := s.messageInChannel(r, channel.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.store.RemoveReaction(r.Context(), msg.ID, targetUserID, emoji); err != nil {
		respondError(w, r, err)
		return
	}
	s.publishChannel(channel, events.TypeReactionRemove, reactionPayload{
		ChannelID: channel.ID,
		MessageID: msg.ID,
		UserID:    targetUserID,
		Emoji:     emoji,
	})
	respondNoContent(w)
}

func (s *Server) handleListReactors(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	channel, _, _, err := s.channelAccess(r.Context(), p, chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	emoji, err := emojiParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	msg, err := s.messageInChannel(r, channel.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	limit := clampLimit(parseIntQuery(r, "limit", defaultMessagePage), defaultMessagePage, maxMessagePage)
	ids, err := s.store.ReactorIDs(r.Context(), msg.ID, emoji, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	users, err := s.store.UsersByIDs(r.Context(), ids)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, users, nil)
}

func (s *Server) handleClearEmojiReactions(w http.ResponseWriter, r *http.Request) {
	s.clearReactions(w, r, true)
}

func (s *Server) handleClearReactions(w http.ResponseWriter, r *http.Request) {
	s.clearReactions(w, r, false)
}

func (s *Server) clearReactions(w http.ResponseWriter, r *http.Request, oneEmoji bool) {
	p := principal(r)
	channel, _, set, err := s.channelAccess(r.Context(), p, chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !set.Allows(permissions.ManageMessages) {
		respondError(w, r, domain.Forbidden("missing permission: manage_messages"))
		return
	}
	msg, err := s.messageInChannel(r, channel.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	payload := reactionPayload{ChannelID: channel.ID, MessageID: msg.ID}
	if oneEmoji {
		emoji, err := emojiParam(r)
		if err != nil {
			respondError(w, r, err)
			return
		}
		payload.Emoji = emoji
		err = s.store.ClearEmojiReactions(r.Context(), msg.ID, emoji)
		if err != nil {
			respondError(w, r, err)
			return
		}
	} else if err := s.store.ClearReactions(r.Context(), msg.ID); err != nil {
		respondError(w, r, err)
		return
	}

	s.publishChannel(channel, events.TypeReactionClear, payload)
	respondNoContent(w)
}
