package sync

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/robfig/cron/v3"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// =============================================================================
// Scheduler - Periodic Sync
// =============================================================================

// Job is one periodic sync task.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs sync jobs on a cron schedule. A job that is still running
// when its next tick fires is skipped.
type Scheduler struct {
	cron *cron.Cron
	log  waLog.Logger

	mu     gosync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler(log waLog.Logger) *Scheduler {
	l := log.Sub("Scheduler")
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{l}))),
		log:  l,
	}
}

// Add registers jobs to run in order on spec ("@every 30m", "0 */2 * * *").
func (s *Scheduler) Add(spec string, jobs ...Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx == nil {
			return
		}
		for _, job := range jobs {
			if ctx.Err() != nil {
				return
			}
			s.log.Infof("Running periodic sync: %s", job.Name)
			if err := job.Run(ctx); err != nil {
				s.log.Warnf("Periodic sync %s failed: %v", job.Name, err)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Start starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.log.Warnf("Scheduler already running")
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.log.Infof("Starting sync scheduler...")
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	s.log.Infof("Stopping sync scheduler...")
	cancel()
	<-s.cron.Stop().Done()
	s.log.Infof("Sync scheduler stopped")
}

// cronLogger adapts waLog.Logger to cron.Logger.
type cronLogger struct {
	log waLog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("%s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorf("%s: %v %v", msg, err, keysAndValues)
}
