package httpapi

import (
	"errors"
	"net/http"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/permissions"
)

const maxSpaceNameLength = 100

// spaceDetail is the full space payload: the row plus its roles and channels.
type spaceDetail struct {
	*domain.Space
	Roles    []domain.Role    `json:"roles"`
	Channels []domain.Channel `json:"channels"`
}

func (s *Server) spaceDetail(r *http.Request, space *domain.Space) (*spaceDetail, error) {
	roles, err := s.store.RolesBySpace(r.Context(), space.ID)
	if err != nil {
		return nil, err
	}
	channels, err := s.store.ChannelsBySpace(r.Context(), space.ID)
	if err != nil {
		return nil, err
	}
	return &spaceDetail{Space: space, Roles: roles, Channels: channels}, nil
}

func (s *Server) handlePublicSpaces(w http.ResponseWriter, r *http.Request) {
	limit := clampLimit(parseIntQuery(r, "limit", 50), 50, 100)
	spaces, err := s.store.PublicSpaces(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, spaces, nil)
}

type createSpaceRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Public      bool    `json:"public"`
}

func (s *Server) handleCreateSpace(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var req createSpaceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Name == "" || len(req.Name) > maxSpaceNameLength {
		respondError(w, r, domain.BadRequestf("name must be 1-%d characters", maxSpaceNameLength))
		return
	}

	slug, err := s.store.AvailableSlug(r.Context(), req.Name, "")
	if err != nil {
		respondError(w, r, err)
		return
	}
	space := &domain.Space{
		ID:          s.store.NewID(),
		Name:        req.Name,
		Slug:        slug,
		Description: req.Description,
		OwnerID:     p.UserID,
		Public:      req.Public,
	}
	if err := s.store.CreateSpace(r.Context(), space); err != nil {
		respondError(w, r, err)
		return
	}
	s.registry.AddSpaceForUser(p.UserID, space.ID)

	detail, err := s.spaceDetail(r, space)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, detail)
}

func (s *Server) handleGetSpace(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.perms.SpacePermissions(r.Context(), p, space); err != nil {
		// Public spaces stay visible to non-members.
		if !space.Public || !errors.Is(err, domain.ErrForbidden) {
			respondError(w, r, err)
			return
		}
	}
	detail, err := s.spaceDetail(r, space)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, detail)
}

type updateSpaceRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IconURL     *string `json:"icon_url"`
	Public      *bool   `json:"public"`
	VoiceRegion *string `json:"voice_region"`
}

func (s *Server) handleUpdateSpace(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.ManageSpace); err != nil {
		respondError(w, r, err)
		return
	}

	var req updateSpaceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Name != nil {
		if *req.Name == "" || len(*req.Name) > maxSpaceNameLength {
			respondError(w, r, domain.BadRequestf("name must be 1-%d characters", maxSpaceNameLength))
			return
		}
		if *req.Name != space.Name {
			slug, err := s.store.AvailableSlug(r.Context(), *req.Name, space.ID)
			if err != nil {
				respondError(w, r, err)
				return
			}
			space.Slug = slug
		}
		space.Name = *req.Name
	}
	if req.Description != nil {
		space.Description = req.Description
	}
	if req.IconURL != nil {
		space.IconURL = req.IconURL
	}
	if req.Public != nil {
		space.Public = *req.Public
	}
	if req.VoiceRegion != nil {
		space.VoiceRegion = req.VoiceRegion
	}
	if err := s.store.UpdateSpace(r.Context(), space); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeSpaceUpdate, space.ID, space))
	respondData(w, http.StatusOK, space)
}

// handleDeleteSpace is owner-only; manage_space is not enough to destroy a
// space.
func (s *Server) handleDeleteSpace(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if space.OwnerID != p.UserID && !p.Admin {
		respondError(w, r, domain.Forbidden("only the owner can delete a space"))
		return
	}
	if err := s.store.DeleteSpace(r.Context(), space.ID); err != nil {
		respondError(w, r, err)
		return
	}
	s.publish(events.New(events.TypeSpaceDelete, space.ID, map[string]string{"id": space.ID}))
	respondNoContent(w)
}

// handleJoinSpace lets anyone join a public space directly; private spaces
// require an invite.
func (s *Server) handleJoinSpace(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !space.Public {
		respondError(w, r, domain.Forbidden("this space requires an invite"))
		return
	}
	banned, err := s.store.IsBanned(r.Context(), space.ID, p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if banned {
		respondError(w, r, domain.Forbidden("you are banned from this space"))
		return
	}
	if err := s.store.AddMember(r.Context(), space.ID, p.UserID, nil); err != nil {
		respondError(w, r, err)
		return
	}
	member, err := s.store.Member(r.Context(), space.ID, p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.registry.AddSpaceForUser(p.UserID, space.ID)
	s.publish(events.New(events.TypeMemberJoin, space.ID, member))
	respondData(w, http.StatusOK, member)
}

func (s *Server) handleListSpaceChannels(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.ViewChannels); err != nil {
		respondError(w, r, err)
		return
	}
	channels, err := s.store.ChannelsBySpace(r.Context(), space.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, channels, nil)
}

type createChannelRequest struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Topic    *string `json:"topic"`
	ParentID *string `json:"parent_id"`
}

func (s *Server) handleCreateSpaceChannel(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.ManageChannels); err != nil {
		respondError(w, r, err)
		return
	}

	var req createChannelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Name == "" || len(req.Name) > maxSpaceNameLength {
		respondError(w, r, domain.BadRequestf("name must be 1-%d characters", maxSpaceNameLength))
		return
	}
	if req.Type == "" {
		req.Type = domain.ChannelTypeText
	}
	if req.Type != domain.ChannelTypeText && req.Type != domain.ChannelTypeVoice {
		respondError(w, r, domain.BadRequest("type must be text or voice"))
		return
	}

	channel := &domain.Channel{
		ID:       s.store.NewID(),
		SpaceID:  &space.ID,
		Type:     req.Type,
		Name:     req.Name,
		Topic:    req.Topic,
		ParentID: req.ParentID,
	}
	if err := s.store.CreateChannel(r.Context(), channel); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeChannelCreate, space.ID, channel))
	respondData(w, http.StatusCreated, channel)
}
