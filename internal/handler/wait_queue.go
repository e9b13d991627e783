package handler

import (
	"net/http" // HTTP status codes

	"github.com/iliyamo/retreat-reservation/internal/repository" // repository layer
	"github.com/iliyamo/retreat-reservation/internal/waitqueue"  // wait-queue engine
	"github.com/labstack/echo/v4"                                // Echo web framework
)

// WaitQueueHandler exposes the wait-queue surface: members subscribe to
// and leave a retreat's queue and list their tickets, while admins (or
// a scheduler hitting the endpoint) run notification cycles for freed
// places.
type WaitQueueHandler struct {
	Retreats *repository.RetreatRepo    // retreat existence checks
	Queue    *repository.WaitQueueStore // ticket listings
	Engine   *waitqueue.Engine          // subscribe, unsubscribe, notify
}

// NewWaitQueueHandler constructs a WaitQueueHandler and panics on nil deps.
func NewWaitQueueHandler(retreats *repository.RetreatRepo, queue *repository.WaitQueueStore, engine *waitqueue.Engine) *WaitQueueHandler {
	if retreats == nil || queue == nil || engine == nil {
		panic("nil dependency passed to NewWaitQueueHandler")
	}
	return &WaitQueueHandler{Retreats: retreats, Queue: queue, Engine: engine}
}

// Subscribe handles POST /v1/retreats/:id/wait-queue.  A member may
// hold one ticket per retreat; a second attempt returns 409.  Queue
// position follows ticket creation order.
func (h *WaitQueueHandler) Subscribe(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	retreatID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid retreat id"})
	}
	ctx := c.Request().Context()
	rt, err := h.Retreats.GetByID(ctx, retreatID)
	if err != nil {
		if err == repository.ErrRetreatNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "retreat not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if !rt.IsActive {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "retreat not found"})
	}
	ticket, err := h.Engine.Subscribe(ctx, retreatID, userID)
	if err != nil {
		if err == waitqueue.ErrAlreadyQueued {
			return c.JSON(http.StatusConflict, echo.Map{"error": "already in the wait queue"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to join wait queue"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"ticket_id":  ticket.ID,
		"retreat_id": ticket.RetreatID,
		"created_at": ticket.CreatedAt,
	})
}

// Unsubscribe handles DELETE /v1/retreats/:id/wait-queue.  Removing a
// ticket forfeits the member's position; rejoining starts over at the
// back of the queue.
func (h *WaitQueueHandler) Unsubscribe(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	retreatID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid retreat id"})
	}
	if err := h.Engine.Unsubscribe(c.Request().Context(), retreatID, userID); err != nil {
		if err == waitqueue.ErrTicketNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not in the wait queue"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to leave wait queue"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ListMy handles GET /v1/my-wait-queues.  It returns the member's
// tickets with their current FIFO position per retreat.
func (h *WaitQueueHandler) ListMy(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	tickets, err := h.Queue.ListTicketsByUser(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load wait queues"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": tickets})
}

// Notify handles POST /v1/wait-queue-places/:id/notify.  Each call runs
// one notification cycle for the place: one new offer per call while
// refunds are open, every remaining candidate at once after the refund
// deadline.  The route carries a Redis cooldown so repeated calls for
// the same place inside the window are rejected with 429.  Terminal
// conditions (place consumed, retreat started) come back with stop=true
// so a scheduler knows to drop the place from its rotation.
func (h *WaitQueueHandler) Notify(c echo.Context) error {
	placeID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid place id"})
	}
	result, err := h.Engine.Notify(c.Request().Context(), placeID)
	if err != nil {
		if err == waitqueue.ErrPlaceNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "place not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "notification cycle failed"})
	}
	return c.JSON(http.StatusOK, result)
}
