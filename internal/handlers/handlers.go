package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Probes are the live views the health endpoint reports on.
type Probes struct {
	QueueDepth  func() int
	BusyWorkers func() int
	Workers     int
	Pending     func() int
	StatsDriver string
	PingStats   func(ctx context.Context) error
}

type HandlerSet struct {
	log         zerolog.Logger
	environment string
	probes      Probes
}

func NewHandlerSet(log zerolog.Logger, environment string, probes Probes) HandlerSet {
	return HandlerSet{
		log:         log,
		environment: environment,
		probes:      probes,
	}
}

// Load reports the queue depth and busy worker count, zero when unwired.
func (h HandlerSet) Load() (queued, busy int) {
	if h.probes.QueueDepth != nil {
		queued = h.probes.QueueDepth()
	}
	if h.probes.BusyWorkers != nil {
		busy = h.probes.BusyWorkers()
	}
	return queued, busy
}

func (h HandlerSet) Register(router gin.IRouter) {
	router.GET("/", h.Health)
	router.HEAD("/", h.Health)
	router.GET("/health", h.Health)
}
