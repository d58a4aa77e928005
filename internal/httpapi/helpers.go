package httpapi

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/accord-chat/accord/internal/domain"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/permissions"
)

// principal returns the authenticated caller. Only reachable behind
// requireAuth, so the pointer is never nil.
func principal(r *http.Request) domain.Principal {
	return *PrincipalFromContext(r.Context())
}

// spaceFromPath resolves {space_id} as a snowflake id first, then as a slug.
func (s *Server) spaceFromPath(r *http.Request) (*domain.Space, error) {
	key := chi.URLParam(r, "space_id")
	space, err := s.store.SpaceByID(r.Context(), key)
	if err == nil {
		return space, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return s.store.SpaceBySlug(r.Context(), key)
}

// requireSpacePermission resolves the caller's space-scope set and demands
// one flag.
func (s *Server) requireSpacePermission(ctx context.Context, p domain.Principal, space *domain.Space, flag string) (permissions.Set, error) {
	set, err := s.perms.SpacePermissions(ctx, p, space)
	if err != nil {
		return nil, err
	}
	if !set.Allows(flag) {
		return nil, domain.Forbiddenf("missing permission: %s", flag)
	}
	return set, nil
}

// channelAccess loads the channel and verifies the caller can see it. DM
// channels admit participants only and grant them the default set; space
// channels resolve overwrites and demand view_channels.
func (s *Server) channelAccess(ctx context.Context, p domain.Principal, channelID string) (*domain.Channel, *domain.Space, permissions.Set, error) {
	channel, err := s.store.ChannelByID(ctx, channelID)
	if err != nil {
		return nil, nil, nil, err
	}
	if channel.SpaceID == nil {
		if !slices.Contains(channel.RecipientIDs, p.UserID) {
			return nil, nil, nil, domain.Forbidden("you are not a participant of this channel")
		}
		return channel, nil, permissions.FromSlice(permissions.EveryoneDefaults()), nil
	}
	space, err := s.store.SpaceByID(ctx, *channel.SpaceID)
	if err != nil {
		return nil, nil, nil, err
	}
	set, err := s.perms.ChannelPermissions(ctx, p, space, channel)
	if err != nil {
		return nil, nil, nil, err
	}
	if !set.Allows(permissions.ViewChannels) {
		return nil, nil, nil, domain.Forbidden("missing permission: view_channels")
	}
	return channel, space, set, nil
}

// publishChannel routes a channel-scoped event: space broadcast for space
// channels, participant-targeted for DMs.
func (s *Server) publishChannel(channel *domain.Channel, eventType string, payload any) {
	if channel.SpaceID != nil {
		s.publish(events.New(eventType, *channel.SpaceID, payload))
		return
	}
	s.publish(events.NewTargeted(eventType, channel.RecipientIDs, payload))
}
