package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/landgov/parcelledger/internal/maintenance"
)

// TriggerMaintenance starts a maintenance run in the background. 409
// when one is already in flight.
func (s *Server) TriggerMaintenance(c *gin.Context) {
	if s.maintenance == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "maintenance_disabled"})
		return
	}

	if err := s.maintenance.RunAsync(); err != nil {
		if errors.Is(err, maintenance.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "maintenance_already_running"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

// ListMaintenanceRuns returns recent run reports, newest first.
func (s *Server) ListMaintenanceRuns(c *gin.Context) {
	if s.maintenance == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "maintenance_disabled"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": s.maintenance.History()})
}
