package router

import (
	"github.com/iliyamo/retreat-reservation/internal/handler"
	"github.com/iliyamo/retreat-reservation/internal/middleware"
	"github.com/labstack/echo/v4"
)

// RegisterMember registers member-scoped endpoints under /v1.  All
// routes require a valid JWT and the MEMBER role.  Members reserve and
// cancel retreat places, join or leave wait queues and list what they
// hold.
func RegisterMember(e *echo.Echo, res *handler.ReservationHandler, wq *handler.WaitQueueHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("MEMBER"),
	)
	// Booking consumes a reserved wait-queue place when the member holds
	// one; otherwise it requires open capacity.
	g.POST("/retreats/:id/reserve", res.Reserve)
	g.DELETE("/reservations/:id", res.Cancel)
	g.GET("/my-reservations", res.ListMy)

	// Wait-queue membership per retreat plus the member's ticket list
	// with live FIFO positions.
	g.POST("/retreats/:id/wait-queue", wq.Subscribe)
	g.DELETE("/retreats/:id/wait-queue", wq.Unsubscribe)
	g.GET("/my-wait-queues", wq.ListMy)
}
