package handler

import (
	"net/http" // HTTP status codes
	"strings"  // reason trimming
	"time"     // start-time comparisons

	"github.com/iliyamo/retreat-reservation/internal/repository" // repository layer
	"github.com/iliyamo/retreat-reservation/internal/waitqueue"  // wait-queue engine
	"github.com/labstack/echo/v4"                                // Echo web framework
)

// ReservationHandler books and cancels retreat reservations on behalf of
// members.  Booking consumes a reserved wait-queue place when the user
// holds one; cancellation opens a new place and immediately runs a
// notification cycle so the freed seat starts circulating.  All methods
// assume JWT authentication has been performed by middleware.
type ReservationHandler struct {
	Retreats     *repository.RetreatRepo     // retreat lookups
	Reservations *repository.ReservationRepo // reservation persistence
	Engine       *waitqueue.Engine           // wait-queue state transitions
}

// NewReservationHandler constructs a ReservationHandler with the
// provided dependencies.  All of them must be non-nil.
func NewReservationHandler(retreats *repository.RetreatRepo, reservations *repository.ReservationRepo, engine *waitqueue.Engine) *ReservationHandler {
	if retreats == nil || reservations == nil || engine == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Retreats: retreats, Reservations: reservations, Engine: engine}
}

type reserveReq struct {
	InvitationID *uint64 `json:"invitation_id"`
}

type cancelReq struct {
	Reason string `json:"reason"`
}

// Reserve handles POST /v1/retreats/:id/reserve.  Before checking the
// open capacity it always tries to consume a reserved wait-queue place:
// a member who was offered a freed seat books through that offer, which
// marks every offer they hold and their queue tickets as used.  Without
// an offer, booking requires places_remaining > 0.  Returns 201 with
// the reservation, 409 when the retreat is full or the member already
// holds an active reservation.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	retreatID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid retreat id"})
	}
	var req reserveReq
	_ = c.Bind(&req) // body is optional

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
	if !rt.StartTime.IsZero() && !rt.StartTime.After(time.Now().UTC()) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "retreat already started"})
	}

	// Consume a reserved place first.  This is a no-op for members who
	// were never offered a freed seat.
	consumed, err := h.Engine.UseReservedPlace(ctx, retreatID, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to check reserved places"})
	}
	if !consumed {
		remaining, err := h.Engine.PlacesRemaining(ctx, retreatID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute capacity"})
		}
		if remaining <= 0 {
			return c.JSON(http.StatusConflict, echo.Map{"error": "no places remaining, join the wait queue"})
		}
	}

	tx, err := h.Reservations.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	res := &repository.Reservation{
		RetreatID:    retreatID,
		UserID:       userID,
		InvitationID: req.InvitationID,
	}
	if err := h.Reservations.CreateTx(ctx, tx, res); err != nil {
		if err == repository.ErrAlreadyReserved {
			return c.JSON(http.StatusConflict, echo.Map{"error": "already reserved for this retreat"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create reservation"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit transaction"})
	}
	committed = true
	return c.JSON(http.StatusCreated, echo.Map{
		"reservation_id": res.ID,
		"retreat_id":     retreatID,
		"via_wait_queue": consumed,
	})
}

// Cancel handles DELETE /v1/reservations/:id.  The reservation row is
// kept and deactivated with the reason and timestamp recorded.  When
// the retreat has not started, cancellation opens a wait-queue place
// and runs one notification cycle right away; notification failures are
// logged but never fail the cancellation, which was already committed.
// Returns 404 when the reservation does not exist, 403 when it belongs
// to another user and 409 when it is already cancelled or the retreat
// has started.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var req cancelReq
	_ = c.Bind(&req)
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "cancelled by member"
	}

	ctx := c.Request().Context()
	tx, err := h.Reservations.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	res, err := h.Reservations.GetForUpdateTx(ctx, tx, resID, userID)
	if err != nil {
		switch err {
		case repository.ErrReservationNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		case repository.ErrForbidden:
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load reservation"})
		}
	}
	if !res.IsActive {
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation already cancelled"})
	}
	rt, err := h.Retreats.GetByID(ctx, res.RetreatID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load retreat"})
	}
	if !rt.StartTime.IsZero() && !rt.StartTime.After(time.Now().UTC()) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "retreat already started"})
	}
	if err := h.Reservations.CancelTx(ctx, tx, resID, reason); err != nil {
		if err == repository.ErrConflict {
			return c.JSON(http.StatusConflict, echo.Map{"error": "reservation already cancelled"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel reservation"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit transaction"})
	}
	committed = true

	// The seat is free now.  Open a place for the wait queue and offer
	// it immediately instead of waiting for the next scheduled cycle.
	place, err := h.Engine.AddPlace(ctx, res.RetreatID, userID)
	if err != nil {
		c.Logger().Errorf("cancel: failed to open wait-queue place for retreat %d: %v", res.RetreatID, err)
		return c.JSON(http.StatusOK, echo.Map{"cancelled": true})
	}
	result, err := h.Engine.Notify(ctx, place.ID)
	if err != nil {
		c.Logger().Errorf("cancel: notification cycle for place %d failed: %v", place.ID, err)
		return c.JSON(http.StatusOK, echo.Map{"cancelled": true})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"cancelled": true,
		"notified":  result.Emails,
	})
}

// ListMy handles GET /v1/my-reservations.  It returns every reservation
// of the current user, active and cancelled, newest first.
func (h *ReservationHandler) ListMy(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	details, err := h.Reservations.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load reservations"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": details})
}
