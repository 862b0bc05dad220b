package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/courseai/courseai/backend/internal/config"
	"github.com/courseai/courseai/backend/internal/handler/chat"
	"github.com/courseai/courseai/backend/internal/handler/home"
	"github.com/courseai/courseai/backend/internal/handler/socket"
	"github.com/courseai/courseai/backend/internal/handler/stream"
	middlewarePkg "github.com/courseai/courseai/backend/internal/middleware"
	chatService "github.com/courseai/courseai/backend/internal/service/chat"
)

// NewRouter wires HTTP routes to the chat service.
func NewRouter(cfg *config.Config, chatSvc *chatService.Service, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(cfg.Server.CORSOrigins))

	limiter := middlewarePkg.NewRateLimiter(cfg.Limits.SubmitRate, cfg.Limits.SubmitBurst)

	homeHandler := home.New(cfg.Widget.ReplyDelay)
	chatHandler := chat.New(chatSvc, limiter.Middleware)
	streamHandler := stream.New(chatSvc)
	socketHandler := socket.NewWebSocketHandler(chatSvc)

	r.Get("/healthz", home.Health)

	r.Route("/api", func(api chi.Router) {
		homeHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		api.With(limiter.Middleware).Get("/stream/{sessionID}", streamHandler.ServeHTTP)
		socketHandler.RegisterWebSocketRoutes(api)
	})

	return r
}
