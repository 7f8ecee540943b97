package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pixora/backend/internal/metrics"
	"github.com/pixora/backend/internal/middleware"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Auth    *AuthHandler
	Users   *UserHandler
	Posts   *PostHandler
	Stories *StoryHandler
	Health  *HealthHandler
	Hub     *WebSocketManager
}

// RouterOptions configures the optional surfaces of the router
type RouterOptions struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics // nil disables /metrics and HTTP instrumentation
	UploadDir      string           // non-empty serves local uploads under /uploads
}

// Router holds all handlers and creates the chi router
type Router struct {
	handlers      Handlers
	authenticator middleware.Authenticator
	opts          RouterOptions
	logger        *zap.Logger
}

// NewRouter creates a new router
func NewRouter(handlers Handlers, authenticator middleware.Authenticator, opts RouterOptions, logger *zap.Logger) *Router {
	return &Router{
		handlers:      handlers,
		authenticator: authenticator,
		opts:          opts,
		logger:        logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	r := chi.NewRouter()
	h := rt.handlers

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.LoggingMiddleware(rt.logger))
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	if rt.opts.Metrics != nil {
		r.Use(rt.opts.Metrics.Middleware)
	}
	r.Use(middleware.CORSMiddleware(rt.opts.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/live", h.Health.Live)
	})

	if rt.opts.Metrics != nil {
		r.Handle("/metrics", rt.opts.Metrics.Handler())
	}

	if rt.opts.UploadDir != "" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(rt.opts.UploadDir)))
		r.Get("/uploads/*", fs.ServeHTTP)
	}

	// Event stream
	r.With(middleware.WebSocketAuthMiddleware(rt.authenticator, rt.logger)).Get("/ws", h.Hub.ServeWS)

	requireAuth := middleware.AuthMiddleware(rt.authenticator, rt.logger)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Compress(5))

		// The provider token arrives in the Authorization header; these
		// routes run before it is registered locally.
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Auth.Register)
			r.Post("/login", h.Auth.Login)
			r.With(requireAuth).Post("/logout", h.Auth.Logout)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Route("/users", func(r chi.Router) {
				r.Get("/", h.Users.List)
				r.Get("/me", h.Users.Me)
				r.Get("/me/saved", h.Users.Saved)
				r.Put("/me/profile-picture", h.Users.UploadProfilePicture)
				r.Get("/search", h.Users.Search)
				r.Get("/stories", h.Stories.GetFeed)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Users.Get)
					r.Get("/followers", h.Users.Followers)
					r.Get("/following", h.Users.Following)
					r.Get("/is-following", h.Users.IsFollowing)
					r.Post("/follow", h.Users.Follow)
					r.Post("/unfollow", h.Users.Unfollow)
					r.Get("/posts", h.Posts.ListByAuthor)
				})
			})

			r.Route("/posts", func(r chi.Router) {
				r.Get("/", h.Posts.List)
				r.Post("/", h.Posts.Create)
				r.Get("/me", h.Posts.ListMine)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Posts.Get)
					r.Post("/like", h.Posts.Like)
					r.Post("/unlike", h.Posts.Unlike)
					r.Get("/is-liked", h.Posts.IsLiked)
					r.Post("/save", h.Posts.Save)
					r.Post("/unsave", h.Posts.Unsave)
					r.Get("/is-saved", h.Posts.IsSaved)
					r.Post("/comments", h.Posts.AddComment)
					r.Delete("/comments/{commentId}", h.Posts.RemoveComment)
				})
			})

			r.Route("/stories", func(r chi.Router) {
				r.Post("/", h.Stories.CreateStory)
				r.Get("/feed", h.Stories.GetFeed)
			})
		})
	})

	return r
}
