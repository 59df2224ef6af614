package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string `json:"status"`
	Stats       string `json:"stats"`
	StatsDriver string `json:"stats_driver"`
	QueueDepth  int    `json:"queue_depth"`
	BusyWorkers int    `json:"busy_workers"`
	Workers     int    `json:"workers"`
	Pending     int    `json:"pending_creations"`
	Environment string `json:"environment"`
}

// Health always answers 200 so the hosting platform keeps the bot alive; a
// failing stats backend shows up as "degraded".
func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Stats:       "ok",
		StatsDriver: h.probes.StatsDriver,
		Workers:     h.probes.Workers,
		Environment: h.environment,
	}
	if h.probes.PingStats != nil {
		if err := h.probes.PingStats(ctx); err != nil {
			resp.Status = "degraded"
			resp.Stats = "error"
			h.log.Error().Err(err).Msg("stats backend ping failed")
		}
	}
	resp.QueueDepth, resp.BusyWorkers = h.Load()
	if h.probes.Pending != nil {
		resp.Pending = h.probes.Pending()
	}

	c.JSON(http.StatusOK, resp)
}
