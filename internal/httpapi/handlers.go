package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"softphone/internal/auth"
	"softphone/internal/calls"
	"softphone/internal/contacts"
	"softphone/internal/users"
	"softphone/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Users    users.Repo
	Calls    *calls.Service
	Contacts contacts.Repo
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login validates credentials against the users table and issues a JWT
// token pair.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || h.Users == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Username == "" || req.Password == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	u, err := h.Users.GetByUsername(c.Request.Context(), req.Username)
	if err != nil || subtle.ConstantTimeCompare([]byte(u.Password), []byte(req.Password)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	pair, err := h.Auth.IssuePair(time.Now(), u.ID, u.Username)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":        u.ID,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

// --- Calls ---

// ListCalls serves call history for the authenticated user, newest
// first. RequireSelf guards the path parameter.
func (h Handlers) ListCalls(c *gin.Context) {
	sessions, err := h.Calls.History(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.writeCallError(c, err, "Failed to get calls")
		return
	}
	c.JSON(http.StatusOK, sessions)
}

type createCallRequest struct {
	CallID     string `json:"callId"`
	Direction  string `json:"direction"`
	FromNumber string `json:"fromNumber"`
	ToNumber   string `json:"toNumber"`
}

// CreateCall creates a session record and places the outbound call.
func (h Handlers) CreateCall(c *gin.Context) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	sess, err := h.Calls.Initiate(c.Request.Context(), calls.InitiateRequest{
		OwnerUserID:    uid,
		ExternalCallID: req.CallID,
		Direction:      calls.Direction(req.Direction),
		FromNumber:     req.FromNumber,
		ToNumber:       req.ToNumber,
	})
	if err != nil {
		h.writeCallError(c, err, "Failed to initiate call")
		return
	}
	c.JSON(http.StatusOK, sess)
}

// AnswerCall answers a ringing call by its public handle.
func (h Handlers) AnswerCall(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	sess, err := h.Calls.Answer(c.Request.Context(), uid, c.Param("callId"))
	if err != nil {
		h.writeCallError(c, err, "Failed to answer call")
		return
	}
	c.JSON(http.StatusOK, sess)
}

// HangupCall terminates a call by its public handle.
func (h Handlers) HangupCall(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	sess, err := h.Calls.Hangup(c.Request.Context(), uid, c.Param("callId"))
	if err != nil {
		h.writeCallError(c, err, "Failed to hangup call")
		return
	}
	c.JSON(http.StatusOK, sess)
}

type holdRequest struct {
	Hold bool `json:"hold"`
}

func (h Handlers) HoldCall(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	var req holdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Calls.SetHold(c.Request.Context(), uid, c.Param("callId"), req.Hold); err != nil {
		h.writeCallError(c, err, "Failed to change hold status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type muteRequest struct {
	Mute bool `json:"mute"`
}

func (h Handlers) MuteCall(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Calls.SetMute(c.Request.Context(), uid, c.Param("callId"), req.Mute); err != nil {
		h.writeCallError(c, err, "Failed to change mute status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type transferRequest struct {
	ToNumber string `json:"toNumber"`
}

func (h Handlers) TransferCall(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ToNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "toNumber required"})
		return
	}
	if err := h.Calls.Transfer(c.Request.Context(), uid, c.Param("callId"), req.ToNumber); err != nil {
		h.writeCallError(c, err, "Failed to transfer call")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// --- Contacts ---

func (h Handlers) ListContacts(c *gin.Context) {
	out, err := h.Contacts.ListByOwner(c.Request.Context(), c.Param("userId"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to get contacts"})
		return
	}
	c.JSON(http.StatusOK, out)
}

type createContactRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Company     string `json:"company"`
	Email       string `json:"email"`
}

func (h Handlers) CreateContact(c *gin.Context) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var req createContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	created, err := h.Contacts.Create(c.Request.Context(), contacts.Contact{
		OwnerUserID: uid,
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
		Company:     req.Company,
		Email:       req.Email,
	})
	if err != nil {
		if errors.Is(err, contacts.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "name and phoneNumber required"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create contact"})
		return
	}
	c.JSON(http.StatusOK, created)
}

// writeCallError maps call service errors onto the wire. Unknown calls
// are 404; everything else collapses to a generic response so internals
// never leak to browsers.
func (h Handlers) writeCallError(c *gin.Context, err error, generic string) {
	log := logger.FromGin(c)
	switch {
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Call not found"})
	case errors.Is(err, calls.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	case errors.Is(err, calls.ErrCallCapExceeded):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many concurrent calls"})
	default:
		log.Error("call action failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": generic})
	}
}
