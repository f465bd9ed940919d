package http

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/adapters/signal"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/app/orch"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/config"
	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

const deviceTokenKey = "device_token"

// ClientTokenMiddleware gives every browser a stable device token kept in
// the session cookie. It only labels connections in logs; identity comes
// from the auth envelope.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(deviceTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			session.Set(deviceTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// ServiceKeyMiddleware guards endpoints called by other platform services.
// An empty key leaves them open for local development.
func ServiceKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-Service-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid service key"})
			return
		}
		c.Next()
	}
}

// SetupRouter builds the gin engine and wraps it with CORS.
func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, history HistoryReader) http.Handler {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("GaminghubSessions", store))
	r.Use(ClientTokenMiddleware())

	h := &handlers{orch: o, history: history}
	ctl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		SendBuffer:     cfg.Hub.SendBuffer,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})
	api.GET("/rooms", h.listRooms)
	api.GET("/rooms/:id/members", h.roomMembers)
	api.GET("/rooms/:id/history", h.roomHistory)
	api.GET("/users/:id/presence", h.userPresence)

	svc := api.Group("", ServiceKeyMiddleware(cfg.Auth.ServiceKey))
	svc.POST("/users/:id/notifications", h.pushNotification)
	svc.POST("/rooms/:id/events", h.pushRoomEvent)

	log.Info().Str("module", "adapters.http").Strs("origins", cfg.CORS.AllowedOrigins).Msg("router setup")

	return cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Service-Key"},
		AllowCredentials: true,
	}).Handler(r)
}
