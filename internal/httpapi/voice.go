package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/accord-chat/accord/internal/config"
	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/voice"
)

type voiceJoinRequest struct {
	Region string `json:"region"`
	voice.Flags
}

// voiceJoinResponse mirrors the gateway's voice.server_update payload.
type voiceJoinResponse struct {
	VoiceState domain.VoiceState `json:"voice_state"`
	SpaceID    string            `json:"space_id"`
	Backend    string            `json:"backend"`
	URL        string            `json:"url"`
	LiveKitURL string            `json:"livekit_url,omitempty"`
	Token      string            `json:"token"`
}

// handleVoiceJoin connects over REST. When the caller also has a live
// gateway session the voice state is pinned to it so a socket drop tears the
// state down.
func (s *Server) handleVoiceJoin(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var req voiceJoinRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, r, err)
			return
		}
	}

	sessionID := ""
	if sessions := s.registry.SessionsByUser(p.UserID); len(sessions) > 0 {
		sessionID = sessions[0].ID
	}

	result, err := s.voice.Join(r.Context(), p, voice.JoinRequest{
		ChannelID: chi.URLParam(r, "channel_id"),
		SessionID: sessionID,
		Region:    req.Region,
		Flags:     req.Flags,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := voiceJoinResponse{
		VoiceState: result.State,
		SpaceID:    result.SpaceID,
		Backend:    result.Backend,
		URL:        result.URL,
		Token:      result.Token,
	}
	if result.Backend == config.VoiceBackendLiveKit {
		resp.LiveKitURL = result.URL
	}
	respondData(w, http.StatusOK, resp)
}

func (s *Server) handleVoiceLeave(w http.ResponseWriter, r *http.Request) {
	state, err := s.voice.Leave(r.Context(), principal(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, state)
}

func (s *Server) handleVoiceStatus(w http.ResponseWriter, r *http.Request) {
	var flags voice.Flags
	if err := decodeJSON(w, r, &flags); err != nil {
		respondError(w, r, err)
		return
	}
	state, err := s.voice.UpdateFlags(r.Context(), principal(r), flags)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, state)
}

func (s *Server) handleVoiceStates(w http.ResponseWriter, r *http.Request) {
	states, err := s.voice.ChannelStates(r.Context(), principal(r), chi.URLParam(r, "channel_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, states, nil)
}

type voiceSignalRequest struct {
	Data json.RawMessage `json:"data"`
}

func (s *Server) handleVoiceSignal(w http.ResponseWriter, r *http.Request) {
	var req voiceSignalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if len(req.Data) == 0 {
		respondError(w, r, domain.BadRequest("data is required"))
		return
	}
	if err := s.voice.Signal(r.Context(), principal(r), chi.URLParam(r, "channel_id"), req.Data); err != nil {
		respondError(w, r, err)
		return
	}
	respondNoContent(w)
}

func (s *Server) handleVoiceRegions(w http.ResponseWriter, r *http.Request) {
	respondList(w, s.voice.Regions(), nil)
}
