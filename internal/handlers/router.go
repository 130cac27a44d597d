package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"adearn-backend/internal/metrics"
	"adearn-backend/internal/middleware"
	"adearn-backend/internal/services"
)

// Dependencies is everything the router wires into handlers.
type Dependencies struct {
	Store       services.Store
	Ledger      *services.Ledger
	Rewards     *services.AdRewardService
	Links       *services.LinkService
	Clicks      *services.ClickService
	Withdrawals *services.WithdrawalService
	Reports     *services.ReportService
	JWT         *services.JWTService
	Hub         *Hub

	// TokenIssuerKey enables the token endpoint when set.
	TokenIssuerKey string
	// TrustedProxies may set the client address through forwarding
	// headers. Nil trusts none.
	TrustedProxies []string

	Limiter            services.RateLimiter
	RateLimitPerMinute int

	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Log      *logrus.Entry
}

func NewRouter(d Dependencies) (*gin.Engine, error) {
	accounts := NewAccountHandler(d.Ledger, d.Rewards, d.Reports, d.Log)
	ads := NewAdHandler(d.Rewards, d.Log)
	links := NewLinkHandler(d.Links, d.Clicks, d.Log)
	withdrawals := NewWithdrawalHandler(d.Withdrawals, d.Log)
	ws := NewWebSocketHandler(d.Hub, d.Ledger, d.Log)

	router := gin.New()
	if err := router.SetTrustedProxies(d.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	router.Use(
		gin.Recovery(),
		middleware.CORS(),
		middleware.RequestID(),
		middleware.Logger(d.Log),
		middleware.Metrics(d.Metrics),
	)

	router.GET("/healthz", healthHandler(d.Store))
	if d.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}

	limited := middleware.RateLimitMiddleware(d.Limiter, d.RateLimitPerMinute, time.Minute, d.Log)

	api := router.Group("/api")
	{
		api.GET("/payment-methods", withdrawals.PaymentMethods)
		api.GET("/accounts/:id", accounts.GetAccount)
		api.GET("/top-earners", accounts.TopEarners)
		api.GET("/transactions", accounts.ListTransactions)

		api.POST("/ads", limited, ads.WatchAd)

		api.GET("/direct-links", links.ListActive)
		api.POST("/direct-links/:id/ticket", limited, links.IssueTicket)
		api.POST("/direct-links/click", limited, links.Click)

		api.POST("/withdrawals", limited, withdrawals.Create)
		api.GET("/withdrawals", withdrawals.List)
		api.DELETE("/withdrawals", limited, withdrawals.Cancel)

		api.GET("/ws", middleware.AuthMiddleware(d.JWT), ws.HandleWebSocket)

		if d.TokenIssuerKey != "" {
			auth := NewAuthHandler(d.JWT, d.Ledger, d.TokenIssuerKey, d.Log)
			api.POST("/auth/token", limited, auth.IssueToken)
		}
	}

	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(d.JWT), middleware.RequireRole(services.RoleAdmin))
	{
		admin.GET("/accounts", accounts.ListAccounts)
		admin.POST("/accounts", accounts.CreateAccount)
		admin.POST("/transactions", accounts.AdjustBalance)

		admin.GET("/withdrawals", withdrawals.ListAll)
		admin.PUT("/withdrawals/:id", withdrawals.Resolve)

		admin.GET("/links", links.ListAll)
		admin.POST("/links", links.Create)
		admin.PUT("/links/:id", links.Update)
		admin.DELETE("/links/:id", links.Delete)

		admin.GET("/clicks", links.ListClicks)
	}

	return router, nil
}

func healthHandler(store services.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
