package scheduler

import (
	"context"
	"time"

	"github.com/okarpenko/autoria-scraper/internal/config"
	"github.com/okarpenko/autoria-scraper/internal/logger"
)

// Job is a named daily task fired at a fixed wall-clock time.
type Job struct {
	Name string
	At   config.Clock
	Run  func(ctx context.Context)
}

// Scheduler fires each job once per day at its configured time. A job still
// running when its next trigger arrives causes the trigger to be skipped,
// never queued.
type Scheduler struct {
	jobs []Job
	log  *logger.Logger
	stop chan struct{}
	now  func() time.Time
}

// New creates a scheduler for the given jobs.
func New(jobs []Job, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		jobs: jobs,
		log:  log.ForComponent("scheduler"),
		now:  time.Now,
	}
}

// Start launches one timer goroutine per job. Stop via ctx or Stop().
func (s *Scheduler) Start(ctx context.Context) {
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	for _, job := range s.jobs {
		go s.runJob(ctx, job, s.stop)
	}
}

// Stop halts the timer goroutines.
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.stop = nil
}

// runJob takes the stop channel as a parameter so Stop clearing s.stop does
// not race with the loop below.
func (s *Scheduler) runJob(ctx context.Context, job Job, stop <-chan struct{}) {
	running := make(chan struct{}, 1)
	for {
		wait := time.Until(NextFire(s.now(), job.At))
		timer := time.NewTimer(wait)
		s.log.Info().
			Str("job", job.Name).
			Dur("in", wait).
			Msg("next trigger scheduled")

		select {
		case <-timer.C:
			select {
			case running <- struct{}{}:
				go func() {
					defer func() { <-running }()
					s.log.Info().Str("job", job.Name).Msg("trigger fired")
					job.Run(ctx)
				}()
			default:
				s.log.Warn().Str("job", job.Name).Msg("previous invocation still running, trigger skipped")
			}
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		}
	}
}

// NextFire returns the next wall-clock occurrence of at strictly after now.
func NextFire(now time.Time, at config.Clock) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour, at.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
