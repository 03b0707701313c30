package neuralmem

import (
	"context"

	"github.com/robfig/cron/v3"
)

// MaintenanceConfig schedules the background jobs: insight refresh, the
// dirty-score sweep, and decay. Schedules use cron syntax or @every
// durations.
type MaintenanceConfig struct {
	RefreshSchedule string
	SweepSchedule   string
	DecaySchedule   string
	Decay           DecayConfig
}

var DefaultMaintenanceConfig = MaintenanceConfig{
	RefreshSchedule: "@every 10m",
	SweepSchedule:   "@every 5m",
	DecaySchedule:   "@daily",
	Decay:           DefaultDecayConfig,
}

type Maintenance struct {
	c *cron.Cron
}

// StartMaintenance runs the periodic jobs until Stop is called. Failures are
// logged and the next run proceeds as scheduled.
func (s *Store) StartMaintenance(cfg MaintenanceConfig) (*Maintenance, error) {
	if cfg.RefreshSchedule == "" {
		cfg = DefaultMaintenanceConfig
	}

	c := cron.New()

	if _, err := c.AddFunc(cfg.RefreshSchedule, func() {
		if err := s.RefreshInsights(context.Background()); err != nil {
			s.log.Warn("scheduled insight refresh failed", "error", err)
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc(cfg.SweepSchedule, func() {
		if _, err := s.RecomputeAllDirty(); err != nil {
			s.log.Warn("scheduled score sweep failed", "error", err)
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc(cfg.DecaySchedule, func() {
		if n, err := s.Decay(context.Background(), cfg.Decay); err != nil {
			s.log.Warn("scheduled decay failed", "error", err)
		} else if n > 0 {
			s.log.Info("decayed stale patterns", "count", n)
		}
	}); err != nil {
		return nil, err
	}

	c.Start()

	return &Maintenance{c: c}, nil
}

// Stop halts scheduling and waits for any in-flight job to finish.
func (m *Maintenance) Stop() {
	ctx := m.c.Stop()
	<-ctx.Done()
}
