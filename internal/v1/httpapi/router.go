package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	internalAuth "github.com/OpenVidu/openvidu-meet-sub006/internal/v1/auth"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/middleware"
)

// NewRouter builds the gin engine exposing the full HTTP surface (spec §6):
// CORS, correlation-id propagation and rate limiting wrap every route;
// auth requirements are applied per route group below.
func (h *Handlers) NewRouter() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = internalAuth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Api-Key", "X-OvMeet-Room-Member-Token", middleware.HeaderXCorrelationID)
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.MaxAge = 12 * time.Hour
	engine.Use(cors.New(corsConfig))

	if h.RateLimiter != nil {
		engine.Use(h.RateLimiter.GlobalMiddleware())
	}

	if h.Health != nil {
		engine.GET("/health/live", h.Health.Liveness)
		engine.GET("/health/ready", h.Health.Readiness)
	}

	base := engine.Group(h.BasePath)
	h.registerPublicAPI(base.Group("/api/v1"))
	h.registerInternalAPI(base.Group("/internal-api/v1"))

	return engine
}

func (h *Handlers) rateLimitMiddleware(endpoint string) gin.HandlerFunc {
	if h.RateLimiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return h.RateLimiter.MiddlewareForEndpoint(endpoint)
}

func (h *Handlers) registerPublicAPI(g *gin.RouterGroup) {
	rooms := g.Group("/rooms", h.requireAccessToken(), h.requirePasswordNotExpired(), h.rateLimitMiddleware("rooms"))
	rooms.POST("", h.createRoom)
	rooms.GET("", h.listRooms)
	rooms.GET("/:roomId", h.getRoom)
	rooms.DELETE("/:roomId", h.deleteRoom)
	rooms.DELETE("", h.bulkDeleteRooms)
	rooms.PUT("/:roomId/config", h.updateRoomConfig)
	rooms.PUT("/:roomId/status", h.updateRoomStatus)
	rooms.PUT("/:roomId/roles", h.updateRoomRoles)
	rooms.PUT("/:roomId/anonymous", h.updateRoomAnonymous)
	rooms.POST("/:roomId/members", h.createMember)
	rooms.GET("/:roomId/members", h.listMembers)
	rooms.DELETE("/:roomId/members", h.bulkDeleteMembers)
	rooms.GET("/:roomId/members/:memberId", h.getMember)
	rooms.PUT("/:roomId/members/:memberId", h.updateMember)
	rooms.DELETE("/:roomId/members/:memberId", h.deleteMember)
	rooms.POST("/:roomId/members/:memberId/token", h.mintMemberToken)

	recordings := g.Group("/recordings", h.requireAccessToken(), h.requirePasswordNotExpired(), h.rateLimitMiddleware("recordings"))
	recordings.GET("", h.listRecordings)
	recordings.DELETE("", h.bulkDeleteRecordings)
	recordings.GET("/download", h.downloadRecordings)
	recordings.GET("/:recordingId", h.getRecording)
	recordings.DELETE("/:recordingId", h.deleteRecording)

	// Streaming endpoints accept a room-member token in place of an access
	// token (spec §6), so they sit in their own group rather than the
	// blanket-access-token-gated one above.
	streaming := g.Group("/recordings", h.requireAccessOrRoomMemberToken(), h.rateLimitMiddleware("recordings"))
	streaming.GET("/:recordingId/media", h.getRecordingMedia)
	streaming.GET("/:recordingId/url", h.getRecordingURL)
}

func (h *Handlers) registerInternalAPI(g *gin.RouterGroup) {
	auth := g.Group("/auth")
	auth.POST("/login", h.login)
	auth.POST("/refresh", h.refresh)

	internalRecordings := g.Group("/recordings", h.requireAPIKey(h.ApiKeys))
	internalRecordings.POST("", h.startRecording)
	internalRecordings.POST("/:recordingId/stop", h.stopRecording)

	apiKeys := g.Group("/api-keys", h.requireAccessToken(), h.requireAdmin())
	apiKeys.POST("", h.createAPIKey)
	apiKeys.GET("", h.listAPIKeys)
	apiKeys.DELETE("/:keyId", h.revokeAPIKey)

	webhookMiddlewares := []gin.HandlerFunc{h.receiveWebhook}
	if h.RateLimiter != nil {
		webhookMiddlewares = append([]gin.HandlerFunc{h.RateLimiter.WebhookMiddleware()}, webhookMiddlewares...)
	}
	g.POST("/webhook", webhookMiddlewares...)
}
