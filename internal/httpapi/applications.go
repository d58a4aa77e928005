package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
)

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.store.ApplicationsByOwner(r.Context(), principal(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, apps, nil)
}

type createApplicationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// applicationDetail is returned once at creation: the bot token never
// appears again.
type applicationDetail struct {
	Application *domain.Application `json:"application"`
	BotUser     *domain.User        `json:"bot_user"`
	Token       string              `json:"token,omitempty"`
}

// handleCreateApplication creates the application, its bot user and the
// initial bot token in one shot. Bot usernames are exempt from the unique
// index, so no collision handling is needed.
func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if p.Bot {
		respondError(w, r, domain.Forbidden("bots cannot own applications"))
		return
	}

	var req createApplicationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Name == "" || len(req.Name) > 100 {
		respondError(w, r, domain.BadRequest("name must be 1-100 characters"))
		return
	}

	botUser := &domain.User{
		ID:          s.store.NewID(),
		Username:    req.Name,
		DisplayName: req.Name,
		IsBot:       true,
	}
	app := &domain.Application{
		ID:          s.store.NewID(),
		OwnerID:     p.UserID,
		BotUserID:   botUser.ID,
		Name:        req.Name,
		Description: req.Description,
	}
	err := s.store.WithTx(r.Context(), func(ctx context.Context) error {
		if err := s.store.CreateUser(ctx, botUser); err != nil {
			return err
		}
		return s.store.CreateApplication(ctx, app)
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	token, err := s.auth.CreateBotToken(r.Context(), botUser.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, applicationDetail{
		Application: app,
		BotUser:     botUser,
		Token:       token,
	})
}

// ownedApplication loads {app_id} and rejects callers other than the owner.
func (s *Server) ownedApplication(r *http.Request) (*domain.Application, error) {
	app, err := s.store.ApplicationByID(r.Context(), chi.URLParam(r, "app_id"))
	if err != nil {
		return nil, err
	}
	if app.OwnerID != principal(r).UserID {
		return nil, domain.Forbidden("you do not own this application")
	}
	return app, nil
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.ownedApplication(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, app)
}

// handleDeleteApplication removes the application and its bot user; bot
// tokens cascade with the user row.
func (s *Server) handleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.ownedApplication(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.store.DeleteApplication(r.Context(), app.ID); err != nil {
		respondError(w, r, err)
		return
	}
	respondNoContent(w)
}

// handleRotateAppToken invalidates every bot token and returns the fresh one
// exactly once.
func (s *Server) handleRotateAppToken(w http.ResponseWriter, r *http.Request) {
	app, err := s.ownedApplication(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	token, err := s.auth.RotateBotToken(r.Context(), app.BotUserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"token": token})
}

type interactionRequest struct {
	Type      string          `json:"type"`
	SpaceID   string          `json:"space_id"`
	ChannelID string          `json:"channel_id"`
	Data      json.RawMessage `json:"data"`
}

// handleCreateInteraction is a stub: the payload is validated and broadcast
// as interaction.create, nothing is stored.
func (s *Server) handleCreateInteraction(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var req interactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Type == "" {
		respondError(w, r, domain.BadRequest("type is required"))
		return
	}

	id := s.store.NewID()
	payload := map[string]any{
		"id":         id,
		"type":       req.Type,
		"user_id":    p.UserID,
		"space_id":   req.SpaceID,
		"channel_id": req.ChannelID,
		"data":       req.Data,
	}
	if req.SpaceID != "" {
		s.publish(events.New(events.TypeInteractionCreate, req.SpaceID, payload))
	} else {
		s.publish(events.NewTargeted(events.TypeInteractionCreate, []string{p.UserID}, payload))
	}
	respondData(w, http.StatusOK, map[string]any{"ack": true, "id": id})
}
