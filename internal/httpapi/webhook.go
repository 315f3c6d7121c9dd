package httpapi

import (
	"errors"
	"io"
	"net/http"

	"softphone/internal/calls"
	"softphone/internal/telephony"
	"softphone/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	headerWebhookSignature = "telnyx-signature-ed25519"
	headerWebhookTimestamp = "telnyx-timestamp"

	maxWebhookBody = 64 << 10
)

// TelnyxWebhookHandler verifies, parses, and applies inbound provider
// events. This endpoint is an untrusted boundary: when a Verifier is
// configured, unsigned or tampered payloads are rejected before any
// state changes. Without one, payloads are accepted and a warning is
// logged at wiring time.
type TelnyxWebhookHandler struct {
	Calls    *calls.Service
	Verifier *telephony.WebhookVerifier
}

func (h TelnyxWebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if h.Verifier != nil {
		sig := c.GetHeader(headerWebhookSignature)
		ts := c.GetHeader(headerWebhookTimestamp)
		if err := h.Verifier.Verify(sig, ts, body); err != nil {
			log.Warn("webhook signature rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	}

	ev, err := telephony.ParseEvent(body)
	if err != nil {
		if errors.Is(err, telephony.ErrUnhandledEvent) {
			// Acknowledge event types outside the supported union so the
			// provider does not retry them.
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		log.Warn("webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.Calls.HandleProviderEvent(c.Request.Context(), ev); err != nil {
		log.Error("webhook processing failed", "type", string(ev.Type), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
