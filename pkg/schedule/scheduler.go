// Package schedule drives repeated synchronization runs on a simple
// named schedule or a cron expression. Exactly one run executes at a
// time: a trigger that fires while a run is in progress is dropped
// with a warning, not queued. Occurrences missed while the process
// was down are not replayed.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"tcgrabber/pkg/config"
	"tcgrabber/pkg/logger"
)

// JobFunc is one synchronization run.
type JobFunc func(ctx context.Context)

// Scheduler owns the trigger timeline for a long-running process.
type Scheduler struct {
	job    JobFunc
	cfg    config.ScheduleConfig
	logger logger.Logger

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a scheduler around the given job.
func New(job JobFunc, cfg config.ScheduleConfig, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Scheduler{job: job, cfg: cfg, logger: log}
}

// Expression resolves the effective cron expression: an explicit cron
// expression wins over the simple schedule spec.
func (s *Scheduler) Expression() (string, error) {
	if s.cfg.CronExpression != "" {
		return s.cfg.CronExpression, nil
	}
	return TranslateSpec(s.cfg.Spec, s.logger)
}

// Start runs the scheduler until ctx is cancelled. Shutdown waits for
// any in-flight run to finish before returning.
func (s *Scheduler) Start(ctx context.Context) error {
	expr, err := s.Expression()
	if err != nil {
		return err
	}

	loc, err := s.cfg.Location()
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(expr, func() { s.trigger(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	s.logger.InfoWithFields("scheduler starting", map[string]interface{}{
		"expression": expr,
		"timezone":   loc.String(),
	})

	if s.cfg.RunOnStart {
		s.logger.Info("running initial sync")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.trigger(ctx)
		}()
	}

	c.Start()

	<-ctx.Done()
	s.logger.Info("scheduler stopping")

	// Stop firing new triggers, then wait for the in-flight run.
	stopCtx := c.Stop()
	<-stopCtx.Done()
	s.wg.Wait()

	return nil
}

// trigger runs the job unless a run is already in flight, in which
// case the trigger is dropped.
func (s *Scheduler) trigger(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous run still in progress, dropping trigger")
		return
	}
	defer s.running.Store(false)

	s.job(ctx)
}

// TranslateSpec converts a simple schedule spec into a cron
// expression. Supported: hourly, daily, weekly, "every N hours",
// "every N minutes", "every day at HH:MM". Unknown specs fall back to
// daily with a warning, matching the forgiving CLI behavior.
func TranslateSpec(spec string, log logger.Logger) (string, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	const defaultExpr = "0 2 * * *" // daily at 02:00

	lower := strings.ToLower(strings.TrimSpace(spec))
	switch lower {
	case "", "daily":
		return defaultExpr, nil
	case "hourly":
		return "0 * * * *", nil
	case "weekly":
		return "0 2 * * 0", nil
	}

	if strings.HasPrefix(lower, "every ") {
		rest := strings.TrimPrefix(lower, "every ")

		if at := strings.TrimPrefix(rest, "day at "); at != rest {
			hour, minute, err := parseClock(at)
			if err != nil {
				log.WarnWithFields("could not parse schedule, defaulting to daily", map[string]interface{}{
					"spec": spec,
				})
				return defaultExpr, nil
			}
			return fmt.Sprintf("%d %d * * *", minute, hour), nil
		}

		fields := strings.Fields(rest)
		if len(fields) == 2 {
			n, err := strconv.Atoi(fields[0])
			if err == nil && n > 0 {
				switch strings.TrimSuffix(fields[1], "s") {
				case "hour":
					return fmt.Sprintf("0 */%d * * *", n), nil
				case "minute":
					return fmt.Sprintf("*/%d * * * *", n), nil
				}
			}
		}
	}

	log.WarnWithFields("unknown schedule spec, defaulting to daily", map[string]interface{}{
		"spec": spec,
	})
	return defaultExpr, nil
}

func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", s)
	}
	return hour, minute, nil
}
