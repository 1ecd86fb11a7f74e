package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trasealla/delivery-tracking/internal/core/ports"
	"github.com/trasealla/delivery-tracking/internal/infrastructure/queue"
)

// PositionHandler handles the authenticated agent-position endpoints.
type PositionHandler struct {
	dispatcher *queue.Dispatcher
	service    ports.PositionService
}

func NewPositionHandler(dispatcher *queue.Dispatcher, service ports.PositionService) *PositionHandler {
	return &PositionHandler{dispatcher: dispatcher, service: service}
}

type locationRequest struct {
	Lat       float64 `json:"lat" validate:"latitude"`
	Lng       float64 `json:"lng" validate:"longitude"`
	SpeedKmh  float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Heading   float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lt=360"`
	Timestamp string  `json:"timestamp,omitempty"`
}

type liveLocationResponse struct {
	Agents []positionResponse `json:"agents"`
	Count  int                `json:"count"`
}

// PushLocation handles POST /v1/agents/:agent_id/location.
//
// The sample is accepted into the sharded ingest queue and applied
// asynchronously, so bursts from a driver app flushing its offline
// buffer never block the request.
//
// @Summary      Push an agent position sample
// @Tags         agents
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        agent_id  path      string           true  "Agent ID"
// @Param        body      body      locationRequest  true  "Position sample"
// @Success      202       {object}  map[string]string
// @Failure      400       {object}  map[string]string
// @Failure      401       {object}  map[string]string
// @Failure      403       {object}  map[string]string
// @Router       /v1/agents/{agent_id}/location [post]
func (h *PositionHandler) PushLocation(c echo.Context) error {
	var req locationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	pathAgent := c.Param("agent_id")
	if claim := agentID(c); claim != "" && claim != pathAgent {
		return echo.NewHTTPError(http.StatusForbidden, "token does not match agent")
	}

	var ts time.Time
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "timestamp must be RFC 3339")
		}
		ts = parsed
	}

	h.dispatcher.Enqueue(ports.PositionInput{
		AgentID:   pathAgent,
		TenantID:  tenantID(c),
		Lat:       req.Lat,
		Lng:       req.Lng,
		SpeedKmh:  req.SpeedKmh,
		Heading:   req.Heading,
		Timestamp: ts,
	})

	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}

// LiveLocations handles GET /v1/agents/live-locations.
//
// @Summary      List the latest known position of every agent
// @Tags         agents
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  liveLocationResponse
// @Failure      401  {object}  map[string]string
// @Router       /v1/agents/live-locations [get]
func (h *PositionHandler) LiveLocations(c echo.Context) error {
	positions, err := h.service.LiveLocations(c.Request().Context(), tenantID(c))
	if err != nil {
		return err
	}

	agents := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		agents = append(agents, positionResponse{
			AgentID:   p.AgentID,
			Lat:       p.Lat,
			Lng:       p.Lng,
			SpeedKmh:  p.SpeedKmh,
			Heading:   p.Heading,
			Timestamp: p.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(http.StatusOK, liveLocationResponse{Agents: agents, Count: len(agents)})
}
