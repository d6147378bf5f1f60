package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	iauth "github.com/openwave-labs/openwave/internal/auth"
	"github.com/openwave-labs/openwave/internal/handlers"
	"github.com/openwave-labs/openwave/internal/middleware"
	"github.com/openwave-labs/openwave/internal/realtime"
	"github.com/openwave-labs/openwave/internal/services"
)

// Dependencies bundles everything the router wires together.
type Dependencies struct {
	JWT      *iauth.JWTService
	Hub      *realtime.Hub
	Chat     *services.ChatService
	Calls    *services.CallService
	Users    *services.UserService
	Presence *services.PresenceService

	RateStore  middleware.RateStore
	RateLimit  int
	RateWindow time.Duration
}

// NewRouter builds the Gin engine, wires middleware and registers all routes:
// the REST reconciliation surface under /api and the websocket endpoints
// under /ws.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("hub must be provided")
	}
	if deps.Chat == nil || deps.Calls == nil || deps.Users == nil || deps.Presence == nil {
		return nil, fmt.Errorf("chat, call, user and presence services must be provided")
	}

	chatRouter, err := realtime.NewChatRouter(deps.Hub, deps.Chat, deps.Users, deps.Presence)
	if err != nil {
		return nil, err
	}
	callRouter, err := realtime.NewCallRouter(deps.Hub, deps.Calls, deps.Chat, deps.Users)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	rateLimit := deps.RateLimit
	if rateLimit <= 0 {
		rateLimit = 100
	}
	rateWindow := deps.RateWindow
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}
	r.Use(middleware.RateLimit(deps.RateStore, rateLimit, rateWindow))

	// Health and metrics endpoints (public)
	r.GET("/health", handlers.Health())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(deps.Users, deps.JWT)
	conversationHandler := handlers.NewConversationHandler(deps.Chat)
	presenceHandler := handlers.NewPresenceHandler(deps.Presence)
	realtimeHandler := handlers.NewRealtimeHandler(deps.JWT, chatRouter, callRouter)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
	}

	// Protected routes
	requireAuth := middleware.Auth(deps.JWT)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)

	conversations := api.Group("/conversations")
	{
		conversations.GET("", conversationHandler.List)
		conversations.POST("", conversationHandler.Create)
		conversations.GET("/:conversation_id/messages", conversationHandler.Messages)
	}
	api.GET("/messages/global", conversationHandler.GlobalMessages)
	api.GET("/presence/:user_id", presenceHandler.Get)

	// Websocket endpoints authenticate during the handshake, before upgrade.
	ws := r.Group("/ws")
	{
		ws.GET("/chat/:conversation_id", realtimeHandler.Conversation)
		ws.GET("/global", realtimeHandler.Global)
		ws.GET("/calls/:conversation_id", realtimeHandler.Calls)
		ws.GET("/observe/calls", realtimeHandler.Observe)
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
