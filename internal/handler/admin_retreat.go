package handler

import (
	"net/http" // HTTP status codes
	"strings"  // input trimming
	"time"     // parsing date payloads

	"github.com/iliyamo/retreat-reservation/internal/repository" // repository holds database models
	"github.com/labstack/echo/v4"                                // Echo web framework
)

// AdminHandler groups the repositories admins need to manage retreats:
// creating them, attaching date blocks, issuing reserve-seat invitations
// and publishing them.  All methods assume JWT authentication and the
// ADMIN role have been enforced by middleware.
type AdminHandler struct {
	Retreats *repository.RetreatRepo    // retreat, date and invitation persistence
	Queue    *repository.WaitQueueStore // wait-queue reads for the places listing
}

// NewAdminHandler constructs an AdminHandler and panics if a dependency is nil.
func NewAdminHandler(retreats *repository.RetreatRepo, queue *repository.WaitQueueStore) *AdminHandler {
	if retreats == nil || queue == nil {
		panic("nil repository passed to NewAdminHandler")
	}
	return &AdminHandler{Retreats: retreats, Queue: queue}
}

type createRetreatReq struct {
	Name         string `json:"name"`
	Details      string `json:"details"`
	Seats        int    `json:"seats"`
	MinDayRefund int    `json:"min_day_refund"`
}

type addDateReq struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type createInvitationReq struct {
	Name        string `json:"name"`
	NbPlaces    int    `json:"nb_places"`
	ReserveSeat bool   `json:"reserve_seat"`
}

// CreateRetreat handles POST /v1/admin/retreats.  Retreats are created
// inactive; seats and refund window are validated here, dates arrive
// through AddDate, and Activate publishes the result.
func (h *AdminHandler) CreateRetreat(c echo.Context) error {
	var req createRetreatReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	if req.Seats <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats must be positive"})
	}
	if req.MinDayRefund < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "min_day_refund cannot be negative"})
	}
	rt := &repository.Retreat{
		Name:         req.Name,
		Details:      strings.TrimSpace(req.Details),
		Seats:        req.Seats,
		MinDayRefund: req.MinDayRefund,
	}
	if err := h.Retreats.Create(c.Request().Context(), rt); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create retreat failed"})
	}
	return c.JSON(http.StatusCreated, retreatView(rt))
}

// AddDate handles POST /v1/admin/retreats/:id/dates.  A retreat may
// span several date blocks; its start time is the earliest block.
func (h *AdminHandler) AddDate(c echo.Context) error {
	retreatID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid retreat id"})
	}
	var req addDateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.StartsAt.IsZero() || req.EndsAt.IsZero() || !req.EndsAt.After(req.StartsAt) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must be after starts_at"})
	}
	id, err := h.Retreats.AddDate(c.Request().Context(), retreatID, req.StartsAt, req.EndsAt)
	if err != nil {
		if err == repository.ErrRetreatNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "retreat not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "add date failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"id":        id,
		"starts_at": req.StartsAt.UTC().Format(time.RFC3339),
		"ends_at":   req.EndsAt.UTC().Format(time.RFC3339),
	})
}

// CreateInvitation handles POST /v1/admin/retreats/:id/invitations.
// Invitations with reserve_seat set ring-fence nb_places seats out of
// general availability until invitees book through them.
func (h *AdminHandler) CreateInvitation(c echo.Context) error {
	retreatID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid retreat id"})
	}
	var req createInvitationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.NbPlaces <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "nb_places must be positive"})
	}
	inv := &repository.Invitation{
		RetreatID:   retreatID,
		Name:        strings.TrimSpace(req.Name),
		NbPlaces:    req.NbPlaces,
		ReserveSeat: req.ReserveSeat,
	}
	if err := h.Retreats.CreateInvitation(c.Request().Context(), inv); err != nil {
		if err == repository.ErrRetreatNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "retreat not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create invitation failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"id":           inv.ID,
		"retreat_id":   inv.RetreatID,
		"name":         inv.Name,
		"nb_places":    inv.NbPlaces,
		"reserve_seat": inv.ReserveSeat,
	})
}

// Activate handles POST /v1/admin/retreats/:id/activate.  Publishing
// requires a name, positive capacity and at least one date block;
// anything less returns 400 and the retreat stays hidden.
func (h *AdminHandler) Activate(c echo.Context) error {
	retreatID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid retreat id"})
	}
	err := h.Retreats.Activate(c.Request().Context(), retreatID)
	if err != nil {
		switch err {
		case repository.ErrRetreatNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"error": "retreat not found"})
		case repository.ErrRetreatIncomplete:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "retreat is missing name, seats or dates"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "activate failed"})
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// ListPlaces handles GET /v1/admin/retreats/:id/wait-queue-places.  It
// returns every place opened for the retreat, available or not, so an
// admin can see which cancellations are still circulating.
func (h *AdminHandler) ListPlaces(c echo.Context) error {
	retreatID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid retreat id"})
	}
	if _, err := h.Retreats.GetByID(c.Request().Context(), retreatID); err != nil {
		if err == repository.ErrRetreatNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "retreat not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	places, err := h.Queue.ListPlacesByRetreat(c.Request().Context(), retreatID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load places"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": places})
}

// retreatView shapes a repository.Retreat for JSON responses.  Zero
// schedule bounds (no dates yet) are rendered as null.
func retreatView(rt *repository.Retreat) echo.Map {
	view := echo.Map{
		"id":             rt.ID,
		"name":           rt.Name,
		"details":        rt.Details,
		"seats":          rt.Seats,
		"min_day_refund": rt.MinDayRefund,
		"is_active":      rt.IsActive,
		"start_time":     nil,
		"end_time":       nil,
	}
	if !rt.StartTime.IsZero() {
		view["start_time"] = rt.StartTime.UTC().Format(time.RFC3339)
	}
	if !rt.EndTime.IsZero() {
		view["end_time"] = rt.EndTime.UTC().Format(time.RFC3339)
	}
	return view
}
