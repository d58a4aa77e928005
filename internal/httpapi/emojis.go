package httpapi

import (
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/permissions"
)

var emojiNamePattern = regexp.MustCompile(`^[a-z0-9_]{2,32}$`)

func (s *Server) handleListEmojis(w http.ResponseWriter, r *http.Request) {
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
	emojis, err := s.store.EmojisBySpace(r.Context(), space.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, emojis, nil)
}

type createEmojiRequest struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Animated bool   `json:"animated"`
}

func (s *Server) handleCreateEmoji(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.ManageEmojis); err != nil {
		respondError(w, r, err)
		return
	}

	var req createEmojiRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if !emojiNamePattern.MatchString(req.Name) {
		respondError(w, r, domain.BadRequest("name must be 2-32 characters of lowercase letters, digits or '_'"))
		return
	}
	if req.Path == "" {
		respondError(w, r, domain.BadRequest("path is required"))
		return
	}

	emoji := &domain.Emoji{
		ID:        s.store.NewID(),
		SpaceID:   space.ID,
		Name:      req.Name,
		CreatorID: p.UserID,
		Path:      req.Path,
		Animated:  req.Animated,
	}
	if err := s.store.CreateEmoji(r.Context(), emoji); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeEmojiCreate, space.ID, emoji))
	respondData(w, http.StatusCreated, emoji)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleUpdateEmoji(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.ManageEmojis); err != nil {
		respondError(w, r, err)
		return
	}
	emoji, err := s.store.EmojiByID(r.Context(), chi.URLParam(r, "emoji_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if emoji.SpaceID != space.ID {
		respondError(w, r, domain.NotFound("emoji not found in this space"))
		return
	}

	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if !emojiNamePattern.MatchString(req.Name) {
		respondError(w, r, domain.BadRequest("name must be 2-32 characters of lowercase letters, digits or '_'"))
		return
	}
	if err := s.store.UpdateEmoji(r.Context(), emoji.ID, req.Name); err != nil {
		respondError(w, r, err)
		return
	}
	emoji.Name = req.Name

	s.publish(events.New(events.TypeEmojiUpdate, space.ID, emoji))
	respondData(w, http.StatusOK, emoji)
}

func (s *Server) handleDeleteEmoji(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.ManageEmojis); err != nil {
		respondError(w, r, err)
		return
	}
	emoji, err := s.store.EmojiByID(r.Context(), chi.URLParam(r, "emoji_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if emoji.SpaceID != space.ID {
		respondError(w, r, domain.NotFound("emoji not found in this space"))
		return
	}
	if err := s.store.DeleteEmoji(r.Context(), emoji.ID); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeEmojiDelete, space.ID, map[string]string{
		"id":       emoji.ID,
		"space_id": space.ID,
	}))
	respondNoContent(w)
}

func (s *Server) handleListSounds(w http.ResponseWriter, r *http.Request) {
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
	sounds, err := s.store.SoundsBySpace(r.Context(), space.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, sounds, nil)
}

type soundRequest struct {
	Name      string   `json:"name"`
	Path      string   `json:"path"`
	Volume    *float64 `json:"volume"`
	EmojiName *string  `json:"emoji_name"`
}

func (s *Server) handleCreateSound(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.ManageSoundboard); err != nil {
		respondError(w, r, err)
		return
	}

	var req soundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Name == "" || len(req.Name) > 32 {
		respondError(w, r, domain.BadRequest("name must be 1-32 characters"))
		return
	}
	if req.Path == "" {
		respondError(w, r, domain.BadRequest("path is required"))
		return
	}
	volume := 1.0
	if req.Volume != nil {
		volume = *req.Volume
	}
	if volume < 0 || volume > 2 {
		respondError(w, r, domain.BadRequest("volume must be between 0 and 2"))
		return
	}

	sound := &domain.SoundboardSound{
		ID:        s.store.NewID(),
		SpaceID:   space.ID,
		Name:      req.Name,
		CreatorID: p.UserID,
		Path:      req.Path,
		Volume:    volume,
		EmojiName: req.EmojiName,
	}
	if err := s.store.CreateSound(r.Context(), sound); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeSoundboardCreate, space.ID, sound))
	respondData(w, http.StatusCreated, sound)
}

func (s *Server) handleUpdateSound(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.ManageSoundboard); err != nil {
		respondError(w, r, err)
		return
	}
	sound, err := s.store.SoundByID(r.Context(), chi.URLParam(r, "sound_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if sound.SpaceID != space.ID {
		respondError(w, r, domain.NotFound("sound not found in this space"))
		return
	}

	var req soundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Name != "" {
		if len(req.Name) > 32 {
			respondError(w, r, domain.BadRequest("name must be 1-32 characters"))
			return
		}
		sound.Name = req.Name
	}
	if req.Volume != nil {
		if *req.Volume < 0 || *req.Volume > 2 {
			respondError(w, r, domain.BadRequest("volume must be between 0 and 2"))
			return
		}
		sound.Volume = *req.Volume
	}
	if req.EmojiName != nil {
		sound.EmojiName = req.EmojiName
	}
	if err := s.store.UpdateSound(r.Context(), sound); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeSoundboardUpdate, space.ID, sound))
	respondData(w, http.StatusOK, sound)
}

func (s *Server) handleDeleteSound(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	space, err := s.spaceFromPath(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := s.requireSpacePermission(r.Context(), p, space, permissions.ManageSoundboard); err != nil {
		respondError(w, r, err)
		return
	}
	sound, err := s.store.SoundByID(r.Context(), chi.URLParam(r, "sound_id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if sound.SpaceID != space.ID {
		respondError(w, r, domain.NotFound("sound not found in this space"))
		return
	}
	if err := s.store.DeleteSound(r.Context(), sound.ID); err != nil {
		respondError(w, r, err)
		return
	}

	s.publish(events.New(events.TypeSoundboardDelete, space.ID, map[string]string{
		"id":       sound.ID,
		"space_id": space.ID,
	}))
	respondNoContent(w)
}
