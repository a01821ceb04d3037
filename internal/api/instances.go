package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/klu/travelmanagement/internal/db"
	"github.com/klu/travelmanagement/internal/models"
	"github.com/klu/travelmanagement/internal/shared"
)

// listInstances handles GET /api/v1/instances
func (s *Server) listInstances(c *gin.Context) {
	page, limit := s.parsePagination(c)

	filter := shared.InstanceFilter{
		Active: shared.ParseBoolFilter(c, "active"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	instances, err := s.store.ListInstances(c.Request.Context(), filter)
	if err != nil {
		s.errorResponse(c, http.StatusInternalServerError, "Failed to list instances: "+err.Error())
		return
	}

	total, err := s.store.CountInstances(c.Request.Context(), filter.Active)
	if err != nil {
		s.errorResponse(c, http.StatusInternalServerError, "Failed to count instances: "+err.Error())
		return
	}

	if instances == nil {
		instances = []*models.Instance{}
	}

	c.JSON(http.StatusOK, models.PaginatedResponse{
		Data: instances,
		Pagination: models.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      int64(total),
			TotalPages: (total + limit - 1) / limit,
		},
	})
}

// getInstance handles GET /api/v1/instances/:id
func (s *Server) getInstance(c *gin.Context) {
	id := c.Param("id")

	instance, err := s.store.GetInstance(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		s.errorResponse(c, http.StatusNotFound, "Instance not found: "+id)
		return
	}
	if err != nil {
		s.errorResponse(c, http.StatusInternalServerError, "Failed to get instance: "+err.Error())
		return
	}

	events, err := s.store.ListEvents(c.Request.Context(), id, recentEvents)
	if err != nil {
		s.errorResponse(c, http.StatusInternalServerError, "Failed to list events: "+err.Error())
		return
	}

	detail := models.InstanceDetail{Instance: instance, Events: make([]models.LifecycleEvent, 0, len(events))}
	for _, event := range events {
		detail.Events = append(detail.Events, *event)
	}

	s.successResponse(c, detail)
}
