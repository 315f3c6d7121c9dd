package main

import (
	"database/sql"
	"net/http"
	"time"

	"softphone/internal/auth"
	"softphone/internal/httpapi"
	"softphone/internal/relay"
	"softphone/pkg/utils"

	"github.com/gin-gonic/gin"
)

func registerRoutes(r *gin.Engine, db *sql.DB, h httpapi.Handlers, webhook httpapi.TelnyxWebhookHandler, ws *relay.WSHandler, requireAuth gin.HandlerFunc) {
	r.GET("/healthz", func(c *gin.Context) {
		if db != nil {
			if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/api/login", h.Login)
	r.POST("/api/webhooks/telnyx", webhook.Handle)

	// Auth happens in-band on the socket, not at upgrade time.
	r.GET("/ws", ws.Handle)

	api := r.Group("/api", requireAuth)
	{
		api.GET("/calls/:userId", auth.RequireSelf("userId"), h.ListCalls)
		api.POST("/calls", h.CreateCall)
		api.POST("/calls/:callId/answer", h.AnswerCall)
		api.POST("/calls/:callId/hangup", h.HangupCall)
		api.POST("/calls/:callId/hold", h.HoldCall)
		api.POST("/calls/:callId/mute", h.MuteCall)
		api.POST("/calls/:callId/transfer", h.TransferCall)

		api.GET("/contacts/:userId", auth.RequireSelf("userId"), h.ListContacts)
		api.POST("/contacts", h.CreateContact)
	}
}
