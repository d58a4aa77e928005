package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/permissions"
)

func (s *Server) handleListBans(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.BanMembers); err != nil {
		respondError(w, r, err)
		return
	}
	bans, err := s.store.BansBySpace(r.Context(), space.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, bans, nil)
}

type createBanRequest struct {
	Reason *string `json:"reason"`
}

// handleCreateBan records the ban and removes the member in one transaction.
func (s *Server) handleCreateBan(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	targetID := chi.URLParam(r, "user_id")
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if space.OwnerID == targetID {
		respondError(w, r, domain.Forbidden("the owner cannot be banned"))
		return
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.BanMembers); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.perms.RequireHierarchy(r.Context(), space, p.UserID, targetID); err != nil {
		respondError(w, r, err)
		return
	}

	var req createBanRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, r, err)
			return
		}
	}

	ban := &domain.Ban{
		SpaceID:  space.ID,
		UserID:   targetID,
		Reason:   req.Reason,
		BannedBy: p.UserID,
	}
	if err := s.store.CreateBan(r.Context(), ban); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeBanCreate, space.ID, ban))
	s.publish(events.New(events.TypeMemberLeave, space.ID, map[string]string{
		"space_id": space.ID,
		"user_id":  targetID,
	}))
	s.registry.RemoveSpaceForUser(targetID, space.ID)
	respondData(w, http.StatusOK, ban)
}

func (s *Server) handleDeleteBan(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	targetID := chi.URLParam(r, "user_id")
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.BanMembers); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.store.DeleteBan(r.Context(), space.ID, targetID); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeBanDelete, space.ID, map[string]string{
		"space_id": space.ID,
		"user_id":  targetID,
	}))
	respondNoContent(w)
}
