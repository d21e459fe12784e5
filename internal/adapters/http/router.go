package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/collabquest/relay/internal/adapters/signal"
	"github.com/collabquest/relay/internal/app"
	"github.com/collabquest/relay/internal/config"
	"github.com/collabquest/relay/internal/domain"
)

// DeviceTokenMiddleware hands every browser a stable token so multiple tabs
// and devices of the same user stay tellable apart in the registry.
func DeviceTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("dt")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("dt", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("device_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RelaySessions", store))
	r.Use(DeviceTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	ctl := signal.NewController(orch, cfg)
	r.GET("/ws/:user_id", func(c *gin.Context) {
		ctl.HandleWS(ctx, c)
	})

	api := r.Group("/api")
	api.GET("/presence", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"online": orch.Presence.OnlineUserIDs()})
	})
	api.GET("/presence/:user_id", func(c *gin.Context) {
		userID, err := domain.ParseUserID(c.Param("user_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "online": orch.Presence.IsOnline(userID)})
	})
	api.GET("/calls", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"calls": orch.Calls.Snapshot()})
	})
	api.POST("/notifications", func(c *gin.Context) {
		handleNotify(c, orch)
	})

	return r
}

type notifyRequest struct {
	RecipientID string          `json:"recipient_id" binding:"required"`
	Kind        string          `json:"kind" binding:"required"`
	RelatedID   string          `json:"related_id"`
	Payload     json.RawMessage `json:"payload"`
}

// handleNotify lets the collaborator push a notification through the relay
// for live delivery; the durable copy is written back to the collaborator
// with the delivered flag set.
func handleNotify(c *gin.Context, orch *app.Orchestrator) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n := &domain.Notification{
		RecipientID: domain.UserID(req.RecipientID),
		Kind:        req.Kind,
		RelatedID:   req.RelatedID,
		Payload:     req.Payload,
	}
	delivered := orch.Notifier.Push(c.Request.Context(), n)
	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}
