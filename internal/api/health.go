package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/klu/travelmanagement/internal/models"
)

// healthCheck handles GET /api/v1/health
func (s *Server) healthCheck(c *gin.Context) {
	report := s.status.Health(c.Request.Context())

	code := http.StatusOK
	if report.Status != models.StatusUp {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, models.APIResponse{
		Success: code == http.StatusOK,
		Data:    report,
	})
}

// getInfo handles GET /api/v1/info
func (s *Server) getInfo(c *gin.Context) {
	status, err := s.status.GetStatus(c.Request.Context())
	if err != nil {
		s.errorResponse(c, http.StatusInternalServerError, "Failed to get status: "+err.Error())
		return
	}

	s.successResponse(c, status)
}
