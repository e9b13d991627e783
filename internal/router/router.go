package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/retreat-reservation/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/retreat-reservation/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	// Operations that do not require an existing session (register, login,
	// refresh).  Each of these handlers generates or exchanges tokens.
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotating refresh: exchanges the refresh token for a new pair.
	g.POST("/refresh", a.Refresh)
	// Non-rotating variant: issues a fresh access token only.
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout does not require JWT authentication: a JSON body with a
	// `refresh_token` terminates that session, a bearer token without a
	// body terminates all sessions of the user.
	g.POST("/logout", a.Logout)

	// Routes requiring a valid access token.  Both roles may call them.
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("ADMIN", "MEMBER"))
	auth.GET("/me", a.Me)

	// Also map POST /v1/logout to the same handler so clients can call
	// either path with a refresh token in the body.
	e.POST("/v1/logout", a.Logout)
}

// RegisterPublic registers unauthenticated browse endpoints.  The cache
// middleware is applied per-route so that only these read-heavy paths
// are served from Redis; pass nil to disable caching.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache echo.MiddlewareFunc) {
	mws := []echo.MiddlewareFunc{}
	if cache != nil {
		mws = append(mws, cache)
	}
	// List and search active retreats (?name=, ?when=, ?page=, ?page_size=)
	e.GET("/v1/retreats", p.ListRetreats, mws...)
	// Retreat detail including the live places_remaining figure.  Never
	// cached: the capacity figure must be recomputed on every request.
	e.GET("/v1/retreats/:id", p.GetRetreat)
}
