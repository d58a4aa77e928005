package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/permissions"
)

const (
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	inviteCodeLength   = 8
)

func newInviteCode() (string, error) {
	code, err := gonanoid.Generate(inviteCodeAlphabet, inviteCodeLength)
	if err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	return code, nil
}

type createInviteRequest struct {
	MaxUses int `json:"max_uses"`
	MaxAge  int `json:"max_age"` // seconds, 0 = never expires
}

// handleCreateInvite mints an invite pointing at a space channel.
func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	channel, space, set, err := s.channelAccess(r.Context(), p, chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if channel.SpaceID == nil {
		respondError(w, r, domain.BadRequest("direct message channels cannot be invited to"))
		return
	}
	if !set.Allows(permissions.CreateInvites) {
		respondError(w, r, domain.Forbidden("missing permission: create_invites"))
		return
	}

	var req createInviteRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, r, err)
			return
		}
	}
	if req.MaxUses < 0 || req.MaxAge < 0 {
		respondError(w, r, domain.BadRequest("max_uses and max_age cannot be negative"))
		return
	}

	code, err := newInviteCode()
	if err != nil {
		respondError(w, r, err)
		return
	}
	invite := &domain.Invite{
		Code:      code,
		SpaceID:   space.ID,
		ChannelID: &channel.ID,
		InviterID: p.UserID,
		MaxUses:   req.MaxUses,
		MaxAgeSec: req.MaxAge,
	}
	if req.MaxAge > 0 {
		expires := time.Now().UTC().Add(time.Duration(req.MaxAge) * time.Second)
		invite.ExpiresAt = &expires
	}
	if err := s.store.CreateInvite(r.Context(), invite); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeInviteCreate, space.ID, invite))
	respondData(w, http.StatusCreated, invite)
}

func (s *Server) handleListSpaceInvites(w http.ResponseWriter, r *http.Request) {
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
	invites, err := s.store.InvitesBySpace(r.Context(), space.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, invites, nil)
}

type invitePreview struct {
	*domain.Invite
	Space spacePreview `json:"space"`
}

type spacePreview struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Slug    string  `json:"slug"`
	IconURL *string `json:"icon_url,omitempty"`
}

// handleInvitePreview is public: enough to render a join page, nothing more.
func (s *Server) handleInvitePreview(w http.ResponseWriter, r *http.Request) {
	invite, err := s.store.InviteByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	space, err := s.store.SpaceByID(r.Context(), invite.SpaceID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, invitePreview{
		Invite: invite,
		Space: spacePreview{
			ID:      space.ID,
			Name:    space.Name,
			Slug:    space.Slug,
			IconURL: space.IconURL,
		},
	})
}

// handleAcceptInvite consumes one use and adds the caller as a member. The
// ban check runs before the use is consumed.
func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	invite, err := s.store.InviteByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	space, err := s.store.SpaceByID(r.Context(), invite.SpaceID)
	if err != nil {
		respondError(w, r, err)
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
	if _, err := s.store.Member(r.Context(), space.ID, p.UserID); err == nil {
		respondError(w, r, domain.Conflict("you are already a member of this space"))
		return
	}

	err = s.store.WithTx(r.Context(), func(ctx context.Context) error {
		if _, err := s.store.ConsumeInvite(ctx, invite.Code); err != nil {
			return err
		}
		return s.store.AddMember(ctx, space.ID, p.UserID, nil)
	})
	if err != nil {
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

	detail, err := s.spaceDetail(r, space)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, detail)
}

// handleDeleteInvite allows the inviter or anyone with manage_space.
func (s *Server) handleDeleteInvite(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	invite, err := s.store.InviteByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if invite.InviterID != p.UserID {
		space, err := s.store.SpaceByID(r.Context(), invite.SpaceID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.ManageSpace); err != nil {
			respondError(w, r, err)
			return
		}
	}
	if err := s.store.DeleteInvite(r.Context(), invite.Code); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeInviteDelete, invite.SpaceID, map[string]string{
		"code":     invite.Code,
		"space_id": invite.SpaceID,
	}))
	respondNoContent(w)
}
