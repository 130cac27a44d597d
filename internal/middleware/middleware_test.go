package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adearn-backend/internal/logger"
	"adearn-backend/internal/metrics"
	"adearn-backend/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func echoUser(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": UserID(c), "role": c.GetString(ContextRole)})
}

func TestAuthMiddleware(t *testing.T) {
	jwtService := services.NewJWTService("secret", time.Hour)
	router := gin.New()
	router.GET("/me", AuthMiddleware(jwtService), echoUser)
	router.GET("/admin", AuthMiddleware(jwtService), RequireRole(services.RoleAdmin), echoUser)

	userToken, err := jwtService.GenerateToken("user-1", services.RoleUser)
	require.NoError(t, err)
	adminToken, err := jwtService.GenerateToken("ops", services.RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"BearerToken", "/me", "Bearer " + userToken, http.StatusOK, "user-1"},
		{"QueryToken", "/me?token=" + userToken, "", http.StatusOK, "user-1"},
		{"NoToken", "/me", "", http.StatusUnauthorized, ""},
		{"BadScheme", "/me", "Basic abc", http.StatusUnauthorized, ""},
		{"GarbageToken", "/me", "Bearer nope", http.StatusUnauthorized, ""},
		{"UserOnAdminRoute", "/admin", "Bearer " + userToken, http.StatusForbidden, ""},
		{"AdminOnAdminRoute", "/admin", "Bearer " + adminToken, http.StatusOK, "ops"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.wantUser != "" {
				assert.Equal(t, tt.wantUser, body["user"])
			} else {
				assert.NotEmpty(t, body["code"])
			}
		})
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimitMiddleware(t *testing.T) {
	router := gin.New()
	router.POST("/ads", RateLimitMiddleware(services.NewMemoryRateLimiter(), 2, time.Minute, logger.Discard()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/ads", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, send().Code)
	assert.Equal(t, http.StatusNoContent, send().Code)

	w := send()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMITED", body["code"])
	assert.Equal(t, true, body["retryable"])
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	router := gin.New()
	router.GET("/x", RateLimitMiddleware(failingLimiter{}, 1, time.Minute, logger.Discard()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequestIDAndMetrics(t *testing.T) {
	m := metrics.NewNop()
	router := gin.New()
	router.Use(RequestID(), Logger(logger.Discard()), Metrics(m))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := w.Header().Get(HeaderRequestID)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}

func TestCORSPreflight(t *testing.T) {
	router := gin.New()
	router.Use(CORS())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggerRecordsCaller(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithOutput("adearn-test", "info", &buf)
	jwtService := services.NewJWTService("secret", time.Hour)

	router := gin.New()
	router.Use(RequestID(), Logger(log))
	router.GET("/me", AuthMiddleware(jwtService), echoUser)
	router.GET("/public", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	token, err := jwtService.GenerateToken("user-1", services.RoleUser)
	require.NoError(t, err)
	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "HTTP request", line["message"])
	assert.Equal(t, "user-1", line["user_id"])
	assert.Equal(t, claims.SessionID, line["session_id"])

	buf.Reset()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/public", nil))
	line = map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, "user_id")
	assert.NotContains(t, line, "session_id")
}
