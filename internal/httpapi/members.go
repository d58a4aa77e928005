package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/permissions"
)

const (
	defaultMemberPage = 50
	maxMemberPage     = 200
)

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
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

	limit := clampLimit(parseIntQuery(r, "limit", defaultMemberPage), defaultMemberPage, maxMemberPage)
	after := r.URL.Query().Get("after")
	members, err := s.store.MembersBySpace(r.Context(), space.ID, after, limit+1)
	if err != nil {
		respondError(w, r, err)
		return
	}

	cur := &listCursor{}
	if len(members) > limit {
		members = members[:limit]
		cur.HasMore = true
	}
	if len(members) > 0 {
		cur.After = members[len(members)-1].UserID
	}
	respondList(w, members, cur)
}

func (s *Server) handleSearchMembers(w http.ResponseWriter, r *http.Request) {
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

	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, r, domain.BadRequest("missing query parameter: q"))
		return
	}
	limit := clampLimit(parseIntQuery(r, "limit", defaultMemberPage), defaultMemberPage, maxMemberPage)
	members, err := s.store.SearchMembers(r.Context(), space.ID, query, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, members, nil)
}

func (s *Server) handleGetOwnMember(w http.ResponseWriter, r *http.Request) {
	s.respondMember(w, r, principal(r).UserID)
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	s.respondMember(w, r, chi.URLParam(r, "user_id"))
}

func (s *Server) respondMember(w http.ResponseWriter, r *http.Request, userID string) {
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
	member, err := s.store.Member(r.Context(), space.ID, userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, member)
}

// handleLeaveSpace removes the caller's own membership. The owner cannot
// leave; they must transfer or delete the space.
func (s *Server) handleLeaveSpace(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if space.OwnerID == p.UserID {
		respondError(w, r, domain.BadRequest("the owner cannot leave their own space"))
		return
	}
	if err := s.store.RemoveMember(r.Context(), space.ID, p.UserID); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeMemberLeave, space.ID, map[string]string{
		"space_id": space.ID,
		"user_id":  p.UserID,
	}))
	s.registry.RemoveSpaceForUser(p.UserID, space.ID)
	respondNoContent(w)
}

type updateMemberRequest struct {
	Nickname *string `json:"nickname"`
}

// handleUpdateMember changes a nickname: change_nickname for yourself,
// manage_nicknames plus hierarchy for anyone else.
func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	targetID := chi.URLParam(r, "user_id")
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	flag := permissions.ChangeNickname
	if targetID != p.UserID {
		flag = permissions.ManageNicknames
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, flag); err != nil {
		respondError(w, r, err)
		return
	}
	if targetID != p.UserID {
		if err := s.perms.RequireHierarchy(r.Context(), space, p.UserID, targetID); err != nil {
			respondError(w, r, err)
			return
		}
	}

	var req updateMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	nickname := req.Nickname
	if nickname != nil && *nickname == "" {
		nickname = nil
	}
	if err := s.store.UpdateMemberNickname(r.Context(), space.ID, targetID, nickname); err != nil {
		respondError(w, r, err)
		return
	}
	member, err := s.store.Member(r.Context(), space.ID, targetID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeMemberUpdate, space.ID, member))
	respondData(w, http.StatusOK, member)
}

func (s *Server) handleKickMember(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	targetID := chi.URLParam(r, "user_id")
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if space.OwnerID == targetID {
		respondError(w, r, domain.Forbidden("the owner cannot be kicked"))
		return
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.KickMembers); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.perms.RequireHierarchy(r.Context(), space, p.UserID, targetID); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.store.RemoveMember(r.Context(), space.ID, targetID); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeMemberLeave, space.ID, map[string]string{
		"space_id": space.ID,
		"user_id":  targetID,
	}))
	s.registry.RemoveSpaceForUser(targetID, space.ID)
	respondNoContent(w)
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	s.changeMemberRole(w, r, true)
}

func (s *Server) handleUnassignRole(w http.ResponseWriter, r *http.Request) {
	s.changeMemberRole(w, r, false)
}

func (s *Server) changeMemberRole(w http.ResponseWriter, r *http.Request, assign bool) {
	p := principal(r)
	targetID := chi.URLParam(r, "user_id")
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.ManageRoles); err != nil {
		respondError(w, r, err)
		return
	}
	role, err := s.store.RoleByID(r.Context(), chi.URLParam(r, "role_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if role.SpaceID != space.ID {
		respondError(w, r, domain.NotFound("role not found in this space"))
		return
	}
	if role.Position == 0 {
		respondError(w, r, domain.BadRequest("the default role cannot be assigned or removed"))
		return
	}
	if err := s.perms.RequireRoleHierarchy(r.Context(), space, p.UserID, role.Position); err != nil {
		respondError(w, r, err)
		return
	}

	if assign {
		err = s.store.AddMemberRole(r.Context(), space.ID, targetID, role.ID)
	} else {
		err = s.store.RemoveMemberRole(r.Context(), space.ID, targetID, role.ID)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	member, err := s.store.Member(r.Context(), space.ID, targetID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeMemberUpdate, space.ID, member))
	respondData(w, http.StatusOK, member)
}
