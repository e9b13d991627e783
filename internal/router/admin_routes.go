package router

import (
	"github.com/iliyamo/retreat-reservation/internal/handler"    // admin handlers
	"github.com/iliyamo/retreat-reservation/internal/middleware" // JWT + role middlewares
	"github.com/labstack/echo/v4"
)

// RegisterAdmin registers admin-scoped endpoints under /v1.  All routes
// require a valid JWT and the ADMIN role.  Admins create retreats,
// attach date blocks, issue reserve-seat invitations, publish retreats
// and drive the wait-queue notification cycles.  The notifyCooldown
// middleware throttles repeated cycles for the same place; pass nil to
// disable throttling.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, wq *handler.WaitQueueHandler, jwtSecret string, notifyCooldown echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("ADMIN"),
	)
	g.POST("/admin/retreats", h.CreateRetreat)
	g.POST("/admin/retreats/:id/dates", h.AddDate)
	g.POST("/admin/retreats/:id/invitations", h.CreateInvitation)
	g.POST("/admin/retreats/:id/activate", h.Activate)
	g.GET("/admin/retreats/:id/wait-queue-places", h.ListPlaces)

	// One notification cycle per call.  A scheduler normally hits this
	// route once a day per circulating place; the cooldown enforces that
	// cadence against manual retries.
	if notifyCooldown != nil {
		g.POST("/wait-queue-places/:id/notify", wq.Notify, notifyCooldown)
	} else {
		g.POST("/wait-queue-places/:id/notify", wq.Notify)
	}
}
