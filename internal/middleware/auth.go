package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"adearn-backend/internal/services"
)

const (
	ContextUserID    = "user_id"
	ContextRole      = "role"
	ContextSessionID = "session_id"
)

var (
	errMissingToken = &services.Error{Kind: services.KindForbidden, Code: "UNAUTHORIZED", Message: "Authorization header required", Status: http.StatusUnauthorized}
	errBadFormat    = &services.Error{Kind: services.KindForbidden, Code: "UNAUTHORIZED", Message: "Invalid authorization format", Status: http.StatusUnauthorized}
	errBadToken     = &services.Error{Kind: services.KindForbidden, Code: "UNAUTHORIZED", Message: "Invalid or expired token", Status: http.StatusUnauthorized}
	errForbidden    = &services.Error{Kind: services.KindForbidden, Code: "FORBIDDEN", Message: "Insufficient permissions", Status: http.StatusForbidden}
)

// AuthMiddleware accepts a Bearer token or, for WebSocket upgrades, a token
// query parameter.
func AuthMiddleware(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				Abort(c, errBadFormat)
				return
			}
			tokenString = parts[1]
		} else {
			tokenString = c.Query("token")
			if tokenString == "" {
				Abort(c, errMissingToken)
				return
			}
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			Abort(c, errBadToken)
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextSessionID, claims.SessionID)

		c.Next()
	}
}

// RequireRole must run after AuthMiddleware.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != role {
			Abort(c, errForbidden)
			return
		}
		c.Next()
	}
}

func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// SessionID is the token session of an authenticated request.
func SessionID(c *gin.Context) string {
	return c.GetString(ContextSessionID)
}
