package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"adearn-backend/internal/services"
)

// HeaderIssuerKey carries the shared key of a trusted backend that mints
// tokens for its users.
const HeaderIssuerKey = "X-API-Key"

type TokenRequest struct {
	UserID string `json:"userId" binding:"required"`
	Role   string `json:"role" binding:"omitempty,oneof=user admin"`
}

type AuthHandler struct {
	jwt       *services.JWTService
	ledger    *services.Ledger
	issuerKey []byte
	log       *logrus.Entry
}

func NewAuthHandler(jwt *services.JWTService, ledger *services.Ledger, issuerKey string, log *logrus.Entry) *AuthHandler {
	return &AuthHandler{jwt: jwt, ledger: ledger, issuerKey: []byte(issuerKey), log: log}
}

// IssueToken mints a token for an existing account, or an admin token, for
// a caller holding the issuer key.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	provided := []byte(c.GetHeader(HeaderIssuerKey))
	if len(h.issuerKey) == 0 || subtle.ConstantTimeCompare(provided, h.issuerKey) != 1 {
		writeError(c, h.log, services.ErrInvalidIssuerKey)
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, bindError(err))
		return
	}
	if req.Role == "" {
		req.Role = services.RoleUser
	}

	if req.Role == services.RoleUser {
		if _, err := h.ledger.GetAccount(c.Request.Context(), req.UserID); err != nil {
			writeError(c, h.log, err)
			return
		}
	}

	token, err := h.jwt.GenerateToken(req.UserID, req.Role)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"user_id":   req.UserID,
		"role":      req.Role,
		"client_ip": c.ClientIP(),
	}).Info("Token issued")

	c.JSON(http.StatusOK, gin.H{"token": token, "expiresIn": int(h.jwt.TTL().Seconds())})
}
