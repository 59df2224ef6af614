package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Expirer drops pending creations untouched since before.
type Expirer interface {
	Expire(ctx context.Context, before time.Time) int
}

// Scheduler runs the periodic sweep of abandoned creations.
type Scheduler struct {
	cron     *cron.Cron
	expirer  Expirer
	schedule string
	ttl      time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewScheduler(expirer Expirer, schedule string, ttl time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		expirer:  expirer,
		schedule: schedule,
		ttl:      ttl,
		log:      log.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.expirer == nil || s.ttl <= 0 {
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("schedule pending sweep %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Dur("ttl", s.ttl).Msg("pending sweep scheduled")
	return nil
}

// Stop halts the cron and returns a context that is done once the running
// sweep, if any, has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := s.now().Add(-s.ttl)
	if n := s.expirer.Expire(ctx, cutoff); n > 0 {
		s.log.Info().Int("expired", n).Time("cutoff", cutoff).Msg("abandoned creations swept")
	}
}
