package handler

import (
	"net/http" // HTTP status codes
	"strconv"  // query parameter parsing
	"strings"  // query trimming

	"github.com/iliyamo/retreat-reservation/internal/repository" // repository holds database models
	"github.com/iliyamo/retreat-reservation/internal/waitqueue"  // seat accounting
	"github.com/labstack/echo/v4"                                // Echo web framework
)

// PublicHandler serves the unauthenticated browse surface: listing and
// searching active retreats and showing a single retreat together with
// its live remaining-capacity figure.
type PublicHandler struct {
	Retreats *repository.RetreatRepo // retreat reads
	Engine   *waitqueue.Engine       // computes places remaining
}

// NewPublicHandler constructs a PublicHandler and panics on nil deps.
func NewPublicHandler(retreats *repository.RetreatRepo, engine *waitqueue.Engine) *PublicHandler {
	if retreats == nil || engine == nil {
		panic("nil dependency passed to NewPublicHandler")
	}
	return &PublicHandler{Retreats: retreats, Engine: engine}
}

// ListRetreats handles GET /v1/retreats.  Query parameters: name
// (substring filter), when (upcoming|active|any, default upcoming),
// page and page_size.  Responses are served from the Redis cache
// middleware when warm.
func (h *PublicHandler) ListRetreats(c echo.Context) error {
	q := repository.RetreatSearchQuery{
		Name:       strings.TrimSpace(c.QueryParam("name")),
		TimeFilter: strings.TrimSpace(c.QueryParam("when")),
	}
	if v, err := strconv.Atoi(c.QueryParam("page")); err == nil {
		q.Page = v
	}
	if v, err := strconv.Atoi(c.QueryParam("page_size")); err == nil {
		q.PageSize = v
	}
	items, total, err := h.Retreats.SearchUpcoming(c.Request().Context(), q)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "search failed"})
	}
	if items == nil {
		items = []repository.PublicRetreatRow{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items": items,
		"total": total,
	})
}

// GetRetreat handles GET /v1/retreats/:id.  Inactive retreats are not
// exposed publicly and answer 404.  The places_remaining figure is
// recomputed on every request; it is never stored.
func (h *PublicHandler) GetRetreat(c echo.Context) error {
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
	remaining, err := h.Engine.PlacesRemaining(ctx, retreatID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute capacity"})
	}
	view := retreatView(rt)
	view["places_remaining"] = remaining
	return c.JSON(http.StatusOK, view)
}
