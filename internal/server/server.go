// Package server exposes the authentication workflow as an HTTP API using gin.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"user-auth-service/internal/auth"
	"user-auth-service/internal/security"
)

// Options configures the HTTP server.
type Options struct {
	// CORSOrigins lists allowed origins. Empty disables CORS handling.
	CORSOrigins []string
	// ServiceName is reported by /health and used for tracing spans.
	ServiceName string
	// Tracing enables the otelgin middleware. Requires global providers to be set.
	Tracing bool
}

// New builds the gin engine with all routes wired to the auth service.
// tokens validates bearer access tokens on protected routes.
func New(svc *auth.Service, tokens *security.TokenProvider, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	if opts.Tracing {
		router.Use(otelgin.Middleware(opts.ServiceName))
	}

	if len(opts.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = opts.CORSOrigins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
		router.Use(cors.New(corsConfig))
	}

	h := &handler{svc: svc, serviceName: opts.ServiceName}

	router.GET("/health", h.health)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", h.register)
			authRoutes.POST("/login", h.login)
			authRoutes.POST("/refresh", h.refresh)
			authRoutes.POST("/logout", RequireAuth(tokens), h.logout)
			authRoutes.GET("/me", RequireAuth(tokens), h.me)
		}
	}
	return router
}

// NewHTTPServer wraps the engine in an http.Server with sane timeouts.
func NewHTTPServer(addr string, engine *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
