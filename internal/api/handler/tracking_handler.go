package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trasealla/delivery-tracking/internal/core/ports"
	"github.com/trasealla/delivery-tracking/pkg/track"
)

// TrackingHandler handles the public tracking endpoints: anyone holding
// a tracking token may read the order and record scans; status changes
// additionally pass the state machine.
type TrackingHandler struct {
	service ports.TrackingService
}

func NewTrackingHandler(service ports.TrackingService) *TrackingHandler {
	return &TrackingHandler{service: service}
}

// Get handles GET /tracking/:token.
//
// @Summary      Resolve a tracking token into the live order view
// @Tags         tracking
// @Produce      json
// @Param        token  path      string  true  "Tracking token (e.g. TRK-7A8B9C2D)"
// @Success      200    {object}  snapshotResponse
// @Failure      404    {object}  map[string]string
// @Failure      500    {object}  map[string]string
// @Router       /tracking/{token} [get]
func (h *TrackingHandler) Get(c echo.Context) error {
	snap, err := h.service.GetSnapshot(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSnapshotResponse(snap))
}

// GetOrder handles GET /tracking/:token/order. The scan flow resolves a
// decoded token through this route; the payload is the same snapshot.
//
// @Summary      Resolve a scanned tracking token
// @Tags         tracking
// @Produce      json
// @Param        token  path      string  true  "Tracking token"
// @Success      200    {object}  snapshotResponse
// @Failure      404    {object}  map[string]string
// @Router       /tracking/{token}/order [get]
func (h *TrackingHandler) GetOrder(c echo.Context) error {
	return h.Get(c)
}

// Scan handles POST /tracking/:token/scan.
//
// @Summary      Record a scan of the order code
// @Tags         tracking
// @Accept       json
// @Produce      json
// @Param        token  path      string       true  "Tracking token"
// @Param        body   body      scanRequest  true  "Scan details"
// @Success      202    {object}  map[string]string
// @Failure      400    {object}  map[string]string
// @Failure      404    {object}  map[string]string
// @Router       /tracking/{token}/scan [post]
func (h *TrackingHandler) Scan(c echo.Context) error {
	var req scanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	err := h.service.RecordScan(c.Request().Context(), ports.ScanInput{
		TrackingToken: c.Param("token"),
		ScanType:      req.ScanType,
		Location:      coordinatesFromRequest(req.Lat, req.Lng),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "recorded"})
}

// Transition handles PATCH /tracking/:token/status.
//
// @Summary      Apply a status transition to the order
// @Tags         tracking
// @Accept       json
// @Produce      json
// @Param        token  path      string             true  "Tracking token"
// @Param        body   body      transitionRequest  true  "Transition details"
// @Success      200    {object}  snapshotResponse
// @Failure      400    {object}  map[string]string
// @Failure      404    {object}  map[string]string
// @Failure      422    {object}  map[string]string  "Transition not allowed by the state machine"
// @Router       /tracking/{token}/status [patch]
func (h *TrackingHandler) Transition(c echo.Context) error {
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	snap, err := h.service.TransitionStatus(c.Request().Context(), ports.TransitionInput{
		TrackingToken: c.Param("token"),
		Status:        track.OrderStatus(req.Status),
		Note:          req.Note,
		Location:      coordinatesFromRequest(req.Lat, req.Lng),
		CODCollected:  req.CODCollected,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, newSnapshotResponse(snap))
}
