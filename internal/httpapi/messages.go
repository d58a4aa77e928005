package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/permissions"
)

const (
	maxMessageLength   = 4000
	defaultMessagePage = 50
	maxMessagePage     = 100
	maxBulkDelete      = 100
)

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	channel, _, _, err := s.channelAccess(r.Context(), p, chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	limit := clampLimit(parseIntQuery(r, "limit", defaultMessagePage), defaultMessagePage, maxMessagePage)
	before := r.URL.Query().Get("before")
	after := r.URL.Query().Get("after")
	if before != "" && after != "" {
		respondError(w, r, domain.BadRequest("before and after are mutually exclusive"))
		return
	}

	var msgs []domain.Message
	if after != "" {
		msgs, err = s.store.MessagesByChannelAfter(r.Context(), channel.ID, after, limit+1)
	} else {
		msgs, err = s.store.MessagesByChannel(r.Context(), channel.ID, before, limit+1)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	cur := &listCursor{}
	if len(msgs) > limit {
		msgs = msgs[:limit]
		cur.HasMore = true
	}
	if len(msgs) > 0 {
		cur.After = msgs[len(msgs)-1].ID
	}
	if err := s.attachReactions(r, msgs); err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, msgs, cur)
}

func (s *Server) attachReactions(r *http.Request, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
	}
	counts, err := s.store.ReactionCounts(r.Context(), ids)
	if err != nil {
		return err
	}
	for i := range msgs {
		msgs[i].Reactions = counts[msgs[i].ID]
	}
	return nil
}

type createMessageRequest struct {
	Content   string  `json:"content"`
	ReplyToID *string `json:"reply_to_id"`
	ThreadID  *string `json:"thread_id"`
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	channel, _, set, err := s.channelAccess(r.Context(), p, chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !set.Allows(permissions.SendMessages) {
		respondError(w, r, domain.Forbidden("missing permission: send_messages"))
		return
	}
	if channel.Type == domain.ChannelTypeVoice {
		respondError(w, r, domain.BadRequest("cannot send messages to a voice channel"))
		return
	}

	var req createMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Content == "" {
		respondError(w, r, domain.BadRequest("content cannot be empty"))
		return
	}
	if len(req.Content) > maxMessageLength {
		respondError(w, r, domain.PayloadTooLarge("message content exceeds 4000 characters"))
		return
	}
	if req.ReplyToID != nil {
		parent, err := s.store.MessageByID(r.Context(), *req.ReplyToID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if parent.ChannelID != channel.ID {
			respondError(w, r, domain.BadRequest("reply target is in another channel"))
			return
		}
	}

	msg := &domain.Message{
		ID:        s.store.NewID(),
		ChannelID: channel.ID,
		AuthorID:  p.UserID,
		Content:   req.Content,
		ReplyToID: req.ReplyToID,
		ThreadID:  req.ThreadID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateMessage(r.Context(), msg); err != nil {
		respondError(w, r, err)
		return
	}
	full, err := s.store.MessageByID(r.Context(), msg.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.publishChannel(channel, events.TypeMessageCreate, full)
	respondData(w, http.StatusCreated, full)
}

// messageInChannel loads the message and rejects ids from other channels.
func (s *Server) messageInChannel(r *http.Request, channelID string) (*domain.Message, error) {
	msg, err := s.store.MessageByID(r.Context(), chi.URLParam(r, "message_id"))
	if err != nil {
		return nil, err
	}
	if msg.ChannelID != channelID {
		return nil, domain.NotFound("message not found in this channel")
	}
	return msg, nil
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	channel, _, _, err := s.channelAccess(r.Context(), p, chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	msg, err := s.messageInChannel(r, channel.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	msgs := []domain.Message{*msg}
	if err := s.attachReactions(r, msgs); err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, &msgs[0])
}

type updateMessageRequest struct {
	Content string `json:"content"`
}

// handleUpdateMessage is author-only; moderators delete, they do not edit.
func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	channel, _, _, err := s.channelAccess(r.Context(), p, chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	msg, err := s.messageInChannel(r, channel.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if msg.AuthorID != p.UserID {
		respondError(w, r, domain.Forbidden("only the author can edit a message"))
		return
	}

	var req updateMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Content == "" {
		respondError(w, r, domain.BadRequest("content cannot be empty"))
		return
	}
	if len(req.Content) > maxMessageLength {
		respondError(w, r, domain.PayloadTooLarge("message content exceeds 4000 characters"))
		return
	}

	updated, err := s.store.UpdateMessage(r.Context(), msg.ID, req.Content)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.publishChannel(channel, events.TypeMessageUpdate, updated)
	respondData(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	channel, _, set, err := s.channelAccess(r.Context(), p, chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	msg, err := s.messageInChannel(r, channel.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if msg.AuthorID != p.UserID && !set.Allows(permissions.ManageMessages) {
		respondError(w, r, domain.Forbidden("missing permission: manage_messages"))
		return
	}
	if err := s.store.DeleteMessage(r.Context(), msg.ID); err != nil {
		respondError(w, r, err)
		return
	}

	s.publishChannel(channel, events.TypeMessageDelete, map[string]string{
		"id":         msg.ID,
		"channel_id": channel.ID,
	})
	respondNoContent(w)
}

type bulkDeleteRequest struct {
	MessageIDs []string `json:"message_ids"`
}

func (s *Server) handleBulkDeleteMessages(w http.ResponseWriter, r *http.Request) {
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

	var req bulkDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if len(req.MessageIDs) == 0 || len(req.MessageIDs) > maxBulkDelete {
		respondError(w, r, domain.BadRequestf("message_ids must hold 1-%d ids", maxBulkDelete))
		return
	}

	deleted, err := s.store.DeleteMessages(r.Context(), channel.ID, req.MessageIDs)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if len(deleted) > 0 {
		s.publishChannel(channel, events.TypeMessageBulkDelete, map[string]any{
			"channel_id": channel.ID,
			"ids":        deleted,
		})
	}
	respondData(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) handleListThread(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	channel, _, _, err := s.channelAccess(r.Context(), p, chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.messageInChannel(r, channel.ID); err != nil {
		respondError(w, r, err)
		return
	}

	limit := clampLimit(parseIntQuery(r, "limit", defaultMessagePage), defaultMessagePage, maxMessagePage)
	msgs, err := s.store.MessagesByThread(r.Context(), chi.URLParam(r, "message_id"), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, msgs, nil)
}

func (s *Server) handleListPins(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	channel, _, _, err := s.channelAccess(r.Context(), p, chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	msgs, err := s.store.PinnedMessages(r.Context(), channel.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, msgs, nil)
}

func (s *Server) handlePinMessage(w http.ResponseWriter, r *http.Request) {
	s.changePin(w, r, true)
}

func (s *Server) handleUnpinMessage(w http.ResponseWriter, r *http.Request) {
	s.changePin(w, r, false)
}

func (s *Server) changePin(w http.ResponseWriter, r *http.Request, pin bool) {
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

	if pin {
		err = s.store.PinMessage(r.Context(), channel.ID, msg.ID, p.UserID)
	} else {
		err = s.store.UnpinMessage(r.Context(), channel.ID, msg.ID)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	updated, err := s.store.MessageByID(r.Context(), msg.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.publishChannel(channel, events.TypeMessageUpdate, updated)
	if pin {
		respondData(w, http.StatusOK, updated)
		return
	}
	respondNoContent(w)
}
