package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/harun/toolrun/pkg/runstore"
)

// Sweeper removes settled runs older than the TTL on a cron schedule
type Sweeper struct {
	cron   *cron.Cron
	runs   *runstore.Store
	ttl    time.Duration
	logger zerolog.Logger
}

// NewSweeper schedules the sweep. schedule is a standard cron spec or a
// descriptor such as "@every 1m".
func NewSweeper(runs *runstore.Store, schedule string, ttl time.Duration, logger zerolog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		cron:   cron.New(cron.WithLogger(cronLogger{logger})),
		runs:   runs,
		ttl:    ttl,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep() }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Sweep removes expired runs now and returns how many were removed
func (s *Sweeper) Sweep() int {
	n := s.runs.Sweep(s.ttl)
	if n > 0 {
		s.logger.Info().Int("removed", n).Int("remaining", s.runs.Len()).Msg("Swept expired runs")
	}
	return n
}

// Start runs the schedule in the background
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
