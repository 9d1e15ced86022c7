package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatcore/internal/auth"
	"github.com/vovakirdan/chatcore/internal/config"
	"github.com/vovakirdan/chatcore/internal/service/chat"
	"github.com/vovakirdan/chatcore/internal/store"
)

// NewServer builds the HTTP server with all routes.
func NewServer(svc *chat.Service, authService *auth.Service, st store.UserStore, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(svc, authService, st, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter registers the REST API on a gin engine.
func NewRouter(svc *chat.Service, authService *auth.Service, st store.UserStore, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))

	apiHandlers := NewAPIHandlers(authService, logger)
	userHandlers := NewUserHandlers(st, logger)
	convHandlers := NewConversationHandlers(svc, logger)
	msgHandlers := NewMessageHandlers(svc, logger)

	r.GET("/health", healthHandler)

	api := r.Group("/api/v1")
	{
		api.POST("/register", apiHandlers.Register)
		api.POST("/login", apiHandlers.Login)

		authGroup := api.Group("")
		authGroup.Use(AuthMiddleware(authService, logger))
		{
			authGroup.GET("/me", userHandlers.Me)

			authGroup.GET("/conversations", convHandlers.List)
			authGroup.POST("/conversations", convHandlers.Create)
			authGroup.GET("/conversations/:id", convHandlers.Get)
			authGroup.PATCH("/conversations/:id", convHandlers.Rename)
			authGroup.DELETE("/conversations/:id", convHandlers.Leave)
			authGroup.POST("/conversations/:id/members", convHandlers.AddMembers)
			authGroup.POST("/conversations/:id/read", convHandlers.MarkRead)
			authGroup.POST("/conversations/:id/typing", convHandlers.SetTyping)
			authGroup.GET("/conversations/:id/typing", convHandlers.Typing)
			authGroup.GET("/conversations/:id/messages", msgHandlers.List)
			authGroup.POST("/conversations/:id/messages", msgHandlers.Send)

			authGroup.GET("/messages/:id", msgHandlers.Get)
			authGroup.PATCH("/messages/:id", msgHandlers.Edit)
			authGroup.DELETE("/messages/:id", msgHandlers.Delete)
		}
	}

	return r
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
