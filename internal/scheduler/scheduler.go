package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs background jobs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  logger.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job. Schedule uses the standard 5-field cron syntax,
// plus descriptors such as "@daily" and "@every 6h".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.RunNow(job)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately, outside its schedule. Each run gets a
// unique id so overlapping log lines can be told apart.
func (s *Scheduler) RunNow(job Job) {
	runID := uuid.NewString()
	log := s.log.With().Str("job", job.Name()).Str("run_id", runID).Logger()

	start := time.Now()
	log.Info().Msg("Running job")

	if err := job.Run(context.Background()); err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Job failed")
		return
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("Job completed")
}
