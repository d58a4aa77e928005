package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/permissions"
)

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	channel, _, _, err := s.channelAccess(r.Context(), principal(r), chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, channel)
}

type updateChannelRequest struct {
	Name     *string `json:"name"`
	Topic    *string `json:"topic"`
	Position *int    `json:"position"`
	ParentID *string `json:"parent_id"`
}

func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	channel, _, set, err := s.channelAccess(r.Context(), p, chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req updateChannelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	switch channel.Type {
	case domain.ChannelTypeDM:
		respondError(w, r, domain.BadRequest("direct message channels cannot be edited"))
		return
	case domain.ChannelTypeGroupDM:
		// Any participant may rename a group dm; nothing else applies.
		if req.Name != nil {
			channel.Name = *req.Name
		}
	default:
		if !set.Allows(permissions.ManageChannels) {
			respondError(w, r, domain.Forbidden("missing permission: manage_channels"))
			return
		}
		if req.Name != nil {
			if *req.Name == "" || len(*req.Name) > maxSpaceNameLength {
				respondError(w, r, domain.BadRequestf("name must be 1-%d characters", maxSpaceNameLength))
				return
			}
			channel.Name = *req.Name
		}
		if req.Topic != nil {
			channel.Topic = req.Topic
		}
		if req.Position != nil {
			channel.Position = *req.Position
		}
		if req.ParentID != nil {
			if *req.ParentID == "" {
				channel.ParentID = nil
			} else {
				channel.ParentID = req.ParentID
			}
		}
	}

	if err := s.store.UpdateChannel(r.Context(), channel); err != nil {
		respondError(w, r, err)
		return
	}
	s.publishChannel(channel, events.TypeChannelUpdate, channel)
	respondData(w, http.StatusOK, channel)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	channel, _, set, err := s.channelAccess(r.Context(), p, chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if channel.SpaceID == nil {
		respondError(w, r, domain.BadRequest("direct message channels cannot be deleted"))
		return
	}
	if !set.Allows(permissions.ManageChannels) {
		respondError(w, r, domain.Forbidden("missing permission: manage_channels"))
		return
	}
	if err := s.store.DeleteChannel(r.Context(), channel.ID); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeChannelDelete, *channel.SpaceID, map[string]string{
		"id":       channel.ID,
		"space_id": *channel.SpaceID,
	}))
	respondNoContent(w)
}

// overwriteTarget verifies the overwrite prerequisites and returns channel
// and space.
func (s *Server) overwriteTarget(w http.ResponseWriter, r *http.Request) (*domain.Channel, *domain.Space, bool) {
	p := principal(r)
	channel, space, set, err := s.channelAccess(r.Context(), p, chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return nil, nil, false
	}
	if channel.SpaceID == nil {
		respondError(w, r, domain.BadRequest("direct message channels have no permission overwrites"))
		return nil, nil, false
	}
	if !set.Allows(permissions.ManageRoles) {
		respondError(w, r, domain.Forbidden("missing permission: manage_roles"))
		return nil, nil, false
	}
	return channel, space, true
}

func (s *Server) handleListOverwrites(w http.ResponseWriter, r *http.Request) {
	channel, _, ok := s.overwriteTarget(w, r)
	if !ok {
		return
	}
	overwrites, err := s.store.OverwritesByChannel(r.Context(), channel.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, overwrites, nil)
}

type overwriteRequest struct {
	Type  string   `json:"type"`
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
}

func (s *Server) handleUpsertOverwrite(w http.ResponseWriter, r *http.Request) {
	channel, space, ok := s.overwriteTarget(w, r)
	if !ok {
		return
	}
	targetID := chi.URLParam(r, "target_id")

	var req overwriteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Type != domain.OverwriteTargetRole && req.Type != domain.OverwriteTargetMember {
		respondError(w, r, domain.BadRequest("type must be role or member"))
		return
	}
	for _, flag := range append(append([]string{}, req.Allow...), req.Deny...) {
		if !permissions.Known[flag] {
			respondError(w, r, domain.BadRequestf("unknown permission: %s", flag))
			return
		}
	}

	// The target must exist in this space.
	switch req.Type {
	case domain.OverwriteTargetRole:
		role, err := s.store.RoleByID(r.Context(), targetID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if role.SpaceID != space.ID {
			respondError(w, r, domain.NotFound("role not found in this space"))
			return
		}
	case domain.OverwriteTargetMember:
		if _, err := s.store.Member(r.Context(), space.ID, targetID); err != nil {
			respondError(w, r, err)
			return
		}
	}

	ow := &domain.PermissionOverwrite{
		ChannelID:  channel.ID,
		TargetID:   targetID,
		TargetType: req.Type,
		Allow:      req.Allow,
		Deny:       req.Deny,
	}
	if ow.Allow == nil {
		ow.Allow = []string{}
	}
	if ow.Deny == nil {
		ow.Deny = []string{}
	}
	if err := s.store.UpsertOverwrite(r.Context(), ow); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeChannelUpdate, space.ID, channel))
	respondData(w, http.StatusOK, ow)
}

func (s *Server) handleDeleteOverwrite(w http.ResponseWriter, r *http.Request) {
	channel, space, ok := s.overwriteTarget(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteOverwrite(r.Context(), channel.ID, chi.URLParam(r, "target_id")); err != nil {
		respondError(w, r, err)
		return
	}
	s.publish(events.New(events.TypeChannelUpdate, space.ID, channel))
	respondNoContent(w)
}

// handleTyping broadcasts a typing indicator; there is no persistence.
func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request) {
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

	s.publishChannel(channel, events.TypeTypingStart, map[string]any{
		"channel_id": channel.ID,
		"user_id":    p.UserID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
	respondNoContent(w)
}
