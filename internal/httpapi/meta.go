package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/accord-chat/accord/internal/domain"
)

const apiVersion = "v1"

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleHealth also pings the database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	database := "ok"
	status := http.StatusOK
	if err := s.store.Pool().Ping(ctx); err != nil {
		database = "unreachable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"data": map[string]string{
		"status":   "ok",
		"database": database,
	}})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]string{
		"version":     s.version,
		"api_version": apiVersion,
	})
}

// handleGatewayInfo tells clients where to open the websocket.
func (s *Server) handleGatewayInfo(w http.ResponseWriter, r *http.Request) {
	base := s.cfg.Server.PublicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	wsURL := strings.Replace(base, "http", "ws", 1) + "/ws"
	respondData(w, http.StatusOK, map[string]string{"url": wsURL})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if !principal(r).Admin {
		respondError(w, r, domain.Forbidden("instance admin required"))
		return
	}
	settings, err := s.store.ServerSettings(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, settings)
}

type updateSettingsRequest struct {
	Name             *string `json:"name"`
	Description      *string `json:"description"`
	RegistrationOpen *bool   `json:"registration_open"`
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if !principal(r).Admin {
		respondError(w, r, domain.Forbidden("instance admin required"))
		return
	}
	settings, err := s.store.ServerSettings(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req updateSettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Name != nil {
		if *req.Name == "" {
			respondError(w, r, domain.BadRequest("name cannot be empty"))
			return
		}
		settings.Name = *req.Name
	}
	if req.Description != nil {
		settings.Description = *req.Description
	}
	if req.RegistrationOpen != nil {
		settings.RegistrationOpen = *req.RegistrationOpen
	}
	if err := s.store.UpdateServerSettings(r.Context(), settings); err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, settings)
}
