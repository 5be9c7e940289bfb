package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /api/v1/bus/slaves
func (s *Server) listSlaves(c *gin.Context) {
	slaves := s.lm.Slaves()
	c.JSON(http.StatusOK, gin.H{
		"slaves": slaves,
		"count":  len(slaves),
	})
}

// GET /api/v1/bus/stats
func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.Stats())
}

// GET /api/v1/bus/axes
func (s *Server) listAxes(c *gin.Context) {
	axes := s.lm.Axes()
	c.JSON(http.StatusOK, gin.H{
		"axes":  axes,
		"count": len(axes),
	})
}
