package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/accord-chat/accord/internal/domain"
)

// NodeSecretHeader carries the shared fleet secret on SFU node requests.
const NodeSecretHeader = "X-Accord-Node-Secret"

// nodeAuth admits SFU nodes holding the shared secret and instance admins.
// Test mode with no secret configured leaves the fleet API open so an
// end-to-end harness can drive it.
func (s *Server) nodeAuth(r *http.Request) error {
	if secret := s.cfg.Sfu.Secret; secret != "" {
		header := r.Header.Get(NodeSecretHeader)
		if subtle.ConstantTimeCompare([]byte(header), []byte(secret)) == 1 {
			return nil
		}
	}
	if p := PrincipalFromContext(r.Context()); p != nil {
		if p.Admin {
			return nil
		}
		return domain.Forbidden("instance admin required")
	}
	if s.cfg.Sfu.Secret == "" && s.cfg.Server.TestMode {
		return nil
	}
	return domain.Unauthorized("node secret or admin token required")
}

// requireDirectory rejects fleet calls when an external media router owns
// room placement.
func (s *Server) requireDirectory(r *http.Request) error {
	if s.nodes == nil {
		return domain.BadRequest("this instance does not manage an sfu fleet")
	}
	return s.nodeAuth(r)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDirectory(r); err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, s.nodes.Online(), nil)
}

type registerNodeRequest struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
	Region   string `json:"region"`
	Capacity int    `json:"capacity"`
}

func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDirectory(r); err != nil {
		respondError(w, r, err)
		return
	}
	var req registerNodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.ID == "" || req.Endpoint == "" || req.Region == "" {
		respondError(w, r, domain.BadRequest("id, endpoint and region are required"))
		return
	}
	if req.Capacity <= 0 {
		respondError(w, r, domain.BadRequest("capacity must be positive"))
		return
	}

	node, err := s.nodes.Register(r.Context(), req.ID, req.Endpoint, req.Region, req.Capacity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, node)
}

type heartbeatRequest struct {
	CurrentLoad int `json:"current_load"`
}

func (s *Server) handleNodeHeartbeat(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDirectory(r); err != nil {
		respondError(w, r, err)
		return
	}
	var req heartbeatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	node, err := s.nodes.Heartbeat(r.Context(), chi.URLParam(r, "node_id"), req.CurrentLoad)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, node)
}

func (s *Server) handleDeregisterNode(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDirectory(r); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.nodes.Deregister(r.Context(), chi.URLParam(r, "node_id")); err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, true)
}
