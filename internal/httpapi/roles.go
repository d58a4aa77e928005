package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/permissions"
)

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
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
	roles, err := s.store.RolesBySpace(r.Context(), space.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, roles, nil)
}

type roleRequest struct {
	Name        *string  `json:"name"`
	Color       *string  `json:"color"`
	Permissions []string `json:"permissions"`
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	set, err := s.requireSpacePermission(r.Context(), p, space, permissions.ManageRoles)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Name == nil || *req.Name == "" {
		respondError(w, r, domain.BadRequest("name is required"))
		return
	}
	if err := permissions.ValidateGrant(set, req.Permissions); err != nil {
		respondError(w, r, err)
		return
	}

	role := &domain.Role{
		ID:          s.store.NewID(),
		SpaceID:     space.ID,
		Name:        *req.Name,
		Color:       req.Color,
		Permissions: req.Permissions,
	}
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	if err := s.store.CreateRole(r.Context(), role); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeRoleCreate, space.ID, role))
	respondData(w, http.StatusCreated, role)
}

type reorderRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

// handleReorderRoles rewrites positions 1..n from the given order. The
// @everyone role stays pinned at 0 and must not appear in the list.
func (s *Server) handleReorderRoles(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.ManageRoles); err != nil {
		respondError(w, r, err)
		return
	}

	var req reorderRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if len(req.RoleIDs) == 0 {
		respondError(w, r, domain.BadRequest("role_ids is required"))
		return
	}

	// Every moved role must sit below the actor's highest role.
	for _, id := range req.RoleIDs {
		role, err := s.store.RoleByID(r.Context(), id)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if role.SpaceID != space.ID {
			respondError(w, r, domain.NotFound("role not found in this space"))
			return
		}
		if role.Position == 0 {
			respondError(w, r, domain.BadRequest("the default role cannot be moved"))
			return
		}
		if err := s.perms.RequireRoleHierarchy(r.Context(), space, p.UserID, role.Position); err != nil {
			respondError(w, r, err)
			return
		}
	}

	if err := s.store.ReorderRoles(r.Context(), space.ID, req.RoleIDs); err != nil {
		respondError(w, r, err)
		return
	}
	roles, err := s.store.RolesBySpace(r.Context(), space.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	for i := range roles {
		s.publish(events.New(events.TypeRoleUpdate, space.ID, &roles[i]))
	}
	respondList(w, roles, nil)
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	set, err := s.requireSpacePermission(r.Context(), p, space, permissions.ManageRoles)
	if err != nil {
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
	if role.Position > 0 {
		if err := s.perms.RequireRoleHierarchy(r.Context(), space, p.UserID, role.Position); err != nil {
			respondError(w, r, err)
			return
		}
	}

	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Name != nil {
		if *req.Name == "" {
			respondError(w, r, domain.BadRequest("name cannot be empty"))
			return
		}
		if role.Position == 0 {
			respondError(w, r, domain.BadRequest("the default role cannot be renamed"))
			return
		}
		role.Name = *req.Name
	}
	if req.Color != nil {
		role.Color = req.Color
	}
	if req.Permissions != nil {
		if err := permissions.ValidateGrant(set, req.Permissions); err != nil {
			respondError(w, r, err)
			return
		}
		role.Permissions = req.Permissions
	}
	if err := s.store.UpdateRole(r.Context(), role); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeRoleUpdate, space.ID, role))
	respondData(w, http.StatusOK, role)
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
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
	if err := s.perms.RequireRoleHierarchy(r.Context(), space, p.UserID, role.Position); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.store.DeleteRole(r.Context(), role.ID); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeRoleDelete, space.ID, map[string]string{
		"id":       role.ID,
		"space_id": space.ID,
	}))
	respondNoContent(w)
}
