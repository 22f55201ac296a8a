package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs periodic maintenance such as the escrow audit.
type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	timeout time.Duration
}

func NewScheduler(log *zap.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(log))
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		log:     log,
		timeout: 5 * time.Minute,
	}
}

// Add registers fn under a standard five-field cron schedule.
func (s *Scheduler) Add(name, schedule string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		start := time.Now()
		if err := fn(ctx); err != nil {
			s.log.Error("Scheduled job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.log.Info("Scheduled job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return err
	}
	s.log.Info("Scheduled job", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler; the returned context is done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
