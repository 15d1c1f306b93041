// Package scheduler wraps robfig/cron with the rebalancer's own
// per-job bookkeeping: the admin server's health surface needs to know
// when each cron job last ran and whether it last failed, which the
// bare cron.Cron type has no notion of.
package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one schedulable unit: the daily rebalance tick, the post-close
// snapshot, or the hourly integrity watchdog.
type Job interface {
	Run() error
	Name() string
}

// RunRecord is the last-observed outcome of one registered job.
type RunRecord struct {
	LastRun time.Time
	LastErr error
}

// Scheduler runs registered Jobs on cron schedules and remembers each
// job's most recent run for introspection.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	records map[string]RunRecord
}

// New builds a Scheduler with second-level cron precision, matching
// the 6-field schedules the supervisor registers (seconds minutes
// hours day-of-month month day-of-week).
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		log:     log.With().Str("component", "scheduler").Logger(),
		records: make(map[string]RunRecord),
	}
}

// Start begins executing registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop waits for any in-flight job to finish, then stops the cron loop.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers job on the given 6-field cron schedule (seconds
// first), e.g. "CRON_TZ=America/New_York 0 0 10 * * MON-FRI" for 10:00
// NY on weekdays. A schedule without a CRON_TZ prefix runs in the
// host's local zone.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("running job")

		err := job.Run()
		s.record(job.Name(), err)

		if err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("job failed")
		} else {
			s.log.Debug().Str("job", job.Name()).Msg("job completed")
		}
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("job registered")
	return nil
}

// RunNow executes job immediately, outside its schedule, recording the
// outcome the same way a scheduled firing would.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("running job immediately")
	err := job.Run()
	s.record(job.Name(), err)
	return err
}

func (s *Scheduler) record(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[name] = RunRecord{LastRun: time.Now(), LastErr: err}
}

// Status returns a snapshot of every job's last observed run, keyed by
// job name, for the admin server's health endpoint.
func (s *Scheduler) Status() map[string]RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]RunRecord, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}
