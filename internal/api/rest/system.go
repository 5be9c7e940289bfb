package rest

import (
	"net/http"
	"time"

	"github.com/KevinKickass/OpenMotionCore/internal/cycle"
	"github.com/KevinKickass/OpenMotionCore/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /health
// Liveness only: the process answers, whatever the bus does.
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"state":     s.lm.GetCurrentStatus().State,
		"timestamp": time.Now().Unix(),
	})
}

// GET /ready
// 200 only while the cyclic loop exchanges frames.
func (s *Server) readiness(c *gin.Context) {
	status := s.lm.GetCurrentStatus()
	if status.Scheduler != cycle.StateRunning.String() {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("BUS_503", "Cyclic loop is not running", gin.H{
			"state":     status.State,
			"scheduler": status.Scheduler,
			"error":     status.Error,
		}))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":     status.State,
		"scheduler": status.Scheduler,
		"slaves":    status.Slaves,
	})
}

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}

// POST /api/v1/system/shutdown
// Only stops the cyclic loop; the process shuts down once the loop has returned.
func (s *Server) shutdown(c *gin.Context) {
	s.lm.RequestStop()
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Stop of cyclic loop requested",
	})
}
