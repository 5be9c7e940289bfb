package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenMotionCore/internal/devices"
	"github.com/KevinKickass/OpenMotionCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TemplateSummary struct {
	ID          string               `json:"id"`
	Vendor      string               `json:"vendor"`
	Model       string               `json:"model"`
	Description string               `json:"description,omitempty"`
	Identity    types.DeviceIdentity `json:"identity"`
	Entries     int                  `json:"entries"`
	DC          bool                 `json:"dc"`
	Builtin     bool                 `json:"builtin"`
}

func summarize(t *devices.Template) TemplateSummary {
	return TemplateSummary{
		ID:          t.ID,
		Vendor:      t.Vendor,
		Model:       t.Model,
		Description: t.Description,
		Identity:    t.Identity,
		Entries:     len(t.Syncs.Entries()),
		DC:          t.DC.Enabled(),
		Builtin:     t.Builtin,
	}
}

// GET /api/v1/templates
func (s *Server) listTemplates(c *gin.Context) {
	registry := s.lm.Registry()

	builtin := make([]TemplateSummary, 0)
	for _, t := range registry.Builtin() {
		builtin = append(builtin, summarize(t))
	}

	vendors := registry.Vendors()
	total := len(builtin)
	for i := range vendors {
		total += vendors[i].Count()
	}

	s.logger.Debug("Listing templates",
		zap.Int("builtin", len(builtin)),
		zap.Int("vendors", len(vendors)))

	c.JSON(http.StatusOK, gin.H{
		"builtin": builtin,
		"vendors": vendors,
		"total":   total,
	})
}

// GET /api/v1/templates/:name
func (s *Server) getTemplate(c *gin.Context) {
	name := c.Param("name")

	t, err := s.lm.Registry().Lookup(name)
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("TEMPLATE_404", "Template not found", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"template": summarize(t),
		"syncs":    t.Syncs,
		"dc":       t.DC,
	})
}
