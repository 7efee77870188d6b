package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gandretiraghu/gptr-road-safety/internal/core/hazard"
	"github.com/gandretiraghu/gptr-road-safety/internal/core/service"
	"github.com/gandretiraghu/gptr-road-safety/internal/geo"
	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

// HazardQuerier serves the read side of the engine.
type HazardQuerier interface {
	ListHazards(ctx context.Context, bbox *geo.BBox, includeResolved bool) ([]hazard.HazardView, error)
	GetHistory(ctx context.Context, hazardID string) ([]models.Report, error)
	NearestHazard(ctx context.Context, loc models.GeoLocation) (service.NearestResult, error)
	Stats(ctx context.Context) (service.Stats, error)
}

type HazardHandler struct {
	q HazardQuerier
}

func NewHazardHandler(q HazardQuerier) *HazardHandler {
	return &HazardHandler{q: q}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HazardListResponse struct {
	Count   int                 `json:"count"`
	Hazards []hazard.HazardView `json:"hazards"`
}

type HistoryResponse struct {
	HazardID string          `json:"hazardId"`
	Reports  []models.Report `json:"reports"`
}

// List handles GET /v1/hazards?bbox=minLng,minLat,maxLng,maxLat&include_resolved=true.
func (h *HazardHandler) List(c *gin.Context) {
	var bbox *geo.BBox
	if raw := c.Query("bbox"); raw != "" {
		b, err := geo.ParseBBox(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		bbox = &b
	}
	includeResolved := false
	if raw := c.Query("include_resolved"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "include_resolved must be a boolean"})
			return
		}
		includeResolved = v
	}
	views, err := h.q.ListHazards(c.Request.Context(), bbox, includeResolved)
	if err != nil {
		c.JSON(errorStatus(err), ErrorResponse{Error: err.Error()})
		return
	}
	if views == nil {
		views = []hazard.HazardView{}
	}
	c.JSON(http.StatusOK, HazardListResponse{Count: len(views), Hazards: views})
}

// Nearest handles GET /v1/hazards/nearest?lat=&lng=.
func (h *HazardHandler) Nearest(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "lat and lng query parameters are required numbers"})
		return
	}
	res, err := h.q.NearestHazard(c.Request.Context(), models.GeoLocation{Lat: lat, Lng: lng})
	if err != nil {
		c.JSON(errorStatus(err), ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// History handles GET /v1/hazards/:id/history.
func (h *HazardHandler) History(c *gin.Context) {
	id := c.Param("id")
	reports, err := h.q.GetHistory(c.Request.Context(), id)
	if err != nil {
		c.JSON(errorStatus(err), ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{HazardID: id, Reports: reports})
}

// Stats handles GET /v1/stats.
func (h *HazardHandler) Stats(c *gin.Context) {
	st, err := h.q.Stats(c.Request.Context())
	if err != nil {
		c.JSON(errorStatus(err), ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}
