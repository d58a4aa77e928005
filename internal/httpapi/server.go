package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/accord-chat/accord/internal/auth"
	"github.com/accord-chat/accord/internal/config"
	"github.com/accord-chat/accord/internal/events"
	"github.com/accord-chat/accord/internal/gateway"
	"github.com/accord-chat/accord/internal/metrics"
	"github.com/accord-chat/accord/internal/permissions"
	"github.com/accord-chat/accord/internal/store"
	"github.com/accord-chat/accord/internal/tracing"
	"github.com/accord-chat/accord/internal/voice"
)

// Server owns the REST surface and mounts the gateway upgrade endpoint.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	auth     *auth.Service
	perms    *permissions.Resolver
	bus      *events.Bus
	voice    *voice.Coordinator
	nodes    *voice.Directory // nil when the media router manages its own fleet
	registry *gateway.SessionRegistry
	limiter  *RateLimiter
	router   *chi.Mux
	server   *http.Server
	version  string
	stop     chan struct{}
}

func NewServer(
	cfg *config.Config,
	st *store.Store,
	authSvc *auth.Service,
	perms *permissions.Resolver,
	bus *events.Bus,
	coordinator *voice.Coordinator,
	nodes *voice.Directory,
	registry *gateway.SessionRegistry,
	gatewayHandler http.Handler,
	version string,
) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		auth:     authSvc,
		perms:    perms,
		bus:      bus,
		voice:    coordinator,
		nodes:    nodes,
		registry: registry,
		limiter:  NewRateLimiter(),
		version:  version,
		stop:     make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(tracing.Middleware)
	r.Use(RequestID)
	r.Use(Recovery)
	r.Use(Logger)
	r.Use(CORS(cfg.Server.AllowedOrigins))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/ws", gatewayHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware)

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Get("/spaces/public", s.handlePublicSpaces)
		r.Get("/invites/{code}", s.handleInvitePreview)
		r.Get("/gateway", s.handleGatewayInfo)
		r.Get("/version", s.handleVersion)
		r.Get("/health", s.handleHealth)

		// SFU fleet endpoints authenticate with either the node secret or
		// an instance-admin token.
		r.Group(func(r chi.Router) {
			r.Use(s.optionalAuth)
			r.Get("/sfu/nodes", s.handleListNodes)
			r.Post("/sfu/nodes", s.handleRegisterNode)
			r.Post("/sfu/nodes/{node_id}/heartbeat", s.handleNodeHeartbeat)
			r.Delete("/sfu/nodes/{node_id}", s.handleDeregisterNode)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/auth/logout", s.handleLogout)

			r.Get("/users/@me", s.handleGetMe)
			r.Patch("/users/@me", s.handleUpdateMe)
			r.Get("/users/@me/spaces", s.handleMySpaces)
			r.Get("/users/@me/channels", s.handleMyChannels)
			r.Post("/users/@me/channels", s.handleOpenDM)
			r.Get("/users/{user_id}", s.handleGetUser)

			r.Post("/spaces", s.handleCreateSpace)
			r.Route("/spaces/{space_id}", func(r chi.Router) {
				r.Get("/", s.handleGetSpace)
				r.Patch("/", s.handleUpdateSpace)
				r.Delete("/", s.handleDeleteSpace)
				r.Post("/join", s.handleJoinSpace)

				r.Get("/channels", s.handleListSpaceChannels)
				r.Post("/channels", s.handleCreateSpaceChannel)

				r.Get("/members", s.handleListMembers)
				r.Get("/members/search", s.handleSearchMembers)
				r.Get("/members/@me", s.handleGetOwnMember)
				r.Delete("/members/@me", s.handleLeaveSpace)
				r.Get("/members/{user_id}", s.handleGetMember)
				r.Patch("/members/{user_id}", s.handleUpdateMember)
				r.Delete("/members/{user_id}", s.handleKickMember)
				r.Put("/members/{user_id}/roles/{role_id}", s.handleAssignRole)
				r.Delete("/members/{user_id}/roles/{role_id}", s.handleUnassignRole)

				r.Get("/roles", s.handleListRoles)
				r.Post("/roles", s.handleCreateRole)
				r.Patch("/roles", s.handleReorderRoles)
				r.Patch("/roles/{role_id}", s.handleUpdateRole)
				r.Delete("/roles/{role_id}", s.handleDeleteRole)

				r.Get("/bans", s.handleListBans)
				r.Put("/bans/{user_id}", s.handleCreateBan)
				r.Delete("/bans/{user_id}", s.handleDeleteBan)

				r.Get("/invites", s.handleListSpaceInvites)

				r.Get("/emojis", s.handleListEmojis)
				r.Post("/emojis", s.handleCreateEmoji)
				r.Patch("/emojis/{emoji_id}", s.handleUpdateEmoji)
				r.Delete("/emojis/{emoji_id}", s.handleDeleteEmoji)

				r.Get("/soundboard", s.handleListSounds)
				r.Post("/soundboard", s.handleCreateSound)
				r.Patch("/soundboard/{sound_id}", s.handleUpdateSound)
				r.Delete("/soundboard/{sound_id}", s.handleDeleteSound)
			})

			r.Route("/channels/{channel_id}", func(r chi.Router) {
				r.Get("/", s.handleGetChannel)
				r.Patch("/", s.handleUpdateChannel)
				r.Delete("/", s.handleDeleteChannel)

				r.Get("/permissions", s.handleListOverwrites)
				r.Put("/permissions/{target_id}", s.handleUpsertOverwrite)
				r.Delete("/permissions/{target_id}", s.handleDeleteOverwrite)

				r.Get("/messages", s.handleListMessages)
				r.Post("/messages", s.handleCreateMessage)
				r.Post("/messages/bulk-delete", s.handleBulkDeleteMessages)
				r.Get("/messages/{message_id}", s.handleGetMessage)
				r.Patch("/messages/{message_id}", s.handleUpdateMessage)
				r.Delete("/messages/{message_id}", s.handleDeleteMessage)
				r.Get("/messages/{message_id}/thread", s.handleListThread)

				r.Put("/messages/{message_id}/reactions/{emoji}/@me", s.handleAddReaction)
				r.Delete("/messages/{message_id}/reactions/{emoji}/@me", s.handleRemoveOwnReaction)
				r.Delete("/messages/{message_id}/reactions/{emoji}/{user_id}", s.handleRemoveUserReaction)
				r.Get("/messages/{message_id}/reactions/{emoji}", s.handleListReactors)
				r.Delete("/messages/{message_id}/reactions/{emoji}", s.handleClearEmojiReactions)
				r.Delete("/messages/{message_id}/reactions", s.handleClearReactions)

				r.Get("/pins", s.handleListPins)
				r.Put("/pins/{message_id}", s.handlePinMessage)
				r.Delete("/pins/{message_id}", s.handleUnpinMessage)

				r.Post("/typing", s.handleTyping)
				r.Post("/invites", s.handleCreateInvite)

				r.Post("/voice/join", s.handleVoiceJoin)
				r.Get("/voice/states", s.handleVoiceStates)
				r.Post("/voice/signal", s.handleVoiceSignal)
			})

			r.Post("/invites/{code}/accept", s.handleAcceptInvite)
			r.Delete("/invites/{code}", s.handleDeleteInvite)

			r.Post("/voice/leave", s.handleVoiceLeave)
			r.Patch("/voice/status", s.handleVoiceStatus)
			r.Get("/voice/regions", s.handleVoiceRegions)

			r.Get("/applications", s.handleListApplications)
			r.Post("/applications", s.handleCreateApplication)
			r.Get("/applications/{app_id}", s.handleGetApplication)
			r.Delete("/applications/{app_id}", s.handleDeleteApplication)
			r.Post("/applications/{app_id}/token", s.handleRotateAppToken)
			r.Post("/interactions", s.handleCreateInteraction)

			r.Get("/admin/settings", s.handleGetSettings)
			r.Patch("/admin/settings", s.handleUpdateSettings)
		})
	})

	s.router = r
	s.server = &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// WriteTimeout stays 0 so gateway sockets are not cut off.
	}
	return s
}

// Handler exposes the routed mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Stop or a listener error.
func (s *Server) Start() error {
	go s.limiter.RunSweeper(s.stop)
	slog.Info("http: listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	close(s.stop)
	return s.server.Shutdown(ctx)
}

// publish counts and forwards a domain event to the gateway fan-out.
func (s *Server) publish(ev events.Event) {
	metrics.EventsPublished.WithLabelValues(ev.Type).Inc()
	s.bus.Publish(ev)
}
