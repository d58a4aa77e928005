package httpapi

import (
	"errors"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
)

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.UserByID(r.Context(), principal(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, user)
}

type updateUserRequest struct {
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	Bio         *string `json:"bio"`
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	user, err := s.store.UserByID(r.Context(), principal(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if req.DisplayName != nil {
		if *req.DisplayName == "" {
			respondError(w, r, domain.BadRequest("display_name cannot be empty"))
			return
		}
		user.DisplayName = *req.DisplayName
	}
	if req.AvatarURL != nil {
		user.AvatarURL = req.AvatarURL
	}
	if req.Bio != nil {
		user.Bio = req.Bio
	}
	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.UserByID(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, user)
}

func (s *Server) handleMySpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := s.store.SpacesByUser(r.Context(), principal(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, spaces, nil)
}

func (s *Server) handleMyChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.store.DMChannelsByUser(r.Context(), principal(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, channels, nil)
}

type openDMRequest struct {
	RecipientIDs []string `json:"recipient_ids"`
	Name         string   `json:"name"`
}

// handleOpenDM opens (or reuses) a direct message channel. One recipient
// makes a 1:1 dm, reused if it already exists; more make a group_dm.
func (s *Server) handleOpenDM(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var req openDMRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	recipients := make([]string, 0, len(req.RecipientIDs)+1)
	for _, id := range append(req.RecipientIDs, p.UserID) {
		if id != "" && !slices.Contains(recipients, id) {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) < 2 {
		respondError(w, r, domain.BadRequest("at least one recipient is required"))
		return
	}
	if len(recipients) > 10 {
		respondError(w, r, domain.BadRequest("a group dm holds at most 10 participants"))
		return
	}

	users, err := s.store.UsersByIDs(r.Context(), recipients)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if len(users) != len(recipients) {
		respondError(w, r, domain.NotFound("one or more recipients do not exist"))
		return
	}

	if len(recipients) == 2 {
		other := recipients[0]
		if other == p.UserID {
			other = recipients[1]
		}
		existing, err := s.store.FindDMChannel(r.Context(), p.UserID, other)
		if err == nil {
			respondData(w, http.StatusOK, existing)
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			respondError(w, r, err)
			return
		}
	}

	channel := &domain.Channel{
		ID:           s.store.NewID(),
		Type:         domain.ChannelTypeDM,
		Name:         req.Name,
		RecipientIDs: recipients,
	}
	if len(recipients) > 2 {
		channel.Type = domain.ChannelTypeGroupDM
	}
	if err := s.store.CreateDMChannel(r.Context(), channel); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.NewTargeted(events.TypeChannelCreate, channel.RecipientIDs, channel))
	respondData(w, http.StatusCreated, channel)
}
