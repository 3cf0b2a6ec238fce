package memory

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepInterval is how often the sweeper runs when no interval is set.
const DefaultSweepInterval = time.Minute

// Sweeper runs Sweep on a fixed schedule.
type Sweeper struct {
	cron *cron.Cron
}

// StartSweeper schedules Sweep every interval. hooks run after each sweep;
// the rate limiter's Prune is the usual one.
func (m *Service) StartSweeper(interval time.Duration, hooks ...func()) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if n := m.Sweep(); n > 0 {
			m.logger.Info("evicted idle sessions", "count", n)
		}
		for _, h := range hooks {
			h()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	return &Sweeper{cron: c}, nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
