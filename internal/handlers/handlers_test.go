package handlers

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLoadReadsQueueProbes(t *testing.T) {
	set := NewHandlerSet(zerolog.Nop(), "test", Probes{
		QueueDepth:  func() int { return 5 },
		BusyWorkers: func() int { return 1 },
	})
	queued, busy := set.Load()
	assert.Equal(t, 5, queued)
	assert.Equal(t, 1, busy)

	queued, busy = NewHandlerSet(zerolog.Nop(), "test", Probes{}).Load()
	assert.Zero(t, queued)
	assert.Zero(t, busy)
}
