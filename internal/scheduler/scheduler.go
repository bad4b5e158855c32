// Package scheduler runs the pipeline passes on cron schedules. A pass that is
// still running locally is skipped, and a Redis lock keeps two processes from
// running the same pass at once.
package scheduler

import (
	"context"
	"time"

	"jobradar/internal/logger"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Task func(ctx context.Context) error

// Locker grants exclusive runs across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type entry struct {
	name string
	spec string
	task Task
	ttl  time.Duration
}

type Scheduler struct {
	cron    *cron.Cron
	locker  Locker
	log     *zap.SugaredLogger
	entries []entry
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(locker Locker, log *zap.SugaredLogger) *Scheduler {
	log = logger.OrNop(log)
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		locker: locker,
		log:    log,
	}
}

// Add registers task under name. lockTTL bounds how long a crashed run can
// hold the cross-process lock; zero means one hour.
func (s *Scheduler) Add(name, spec string, lockTTL time.Duration, task Task) error {
	if task == nil {
		return errors.Newf("scheduler: nil task %q", name)
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return errors.Wrapf(err, "scheduler: bad schedule for %q", name)
	}
	if lockTTL <= 0 {
		lockTTL = time.Hour
	}
	s.entries = append(s.entries, entry{name: name, spec: spec, task: task, ttl: lockTTL})
	return nil
}

// Start registers every task and starts the cron loop. Tasks receive a
// context derived from ctx that Stop cancels.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, e := range s.entries {
		if _, err := s.cron.AddFunc(e.spec, func() { s.RunNow(s.ctx, e.name) }); err != nil {
			return errors.Wrapf(err, "cron add %s", e.name)
		}
		s.log.Infow("scheduled", "pipeline", "scheduler", "step", e.name, "schedule", e.spec)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop, cancels running tasks and waits for them.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	<-stopped.Done()
	s.log.Infow("scheduler stopped", "pipeline", "scheduler")
}

// RunNow runs the named task once under its lock. It reports whether the task ran.
func (s *Scheduler) RunNow(ctx context.Context, name string) bool {
	var e *entry
	for i := range s.entries {
		if s.entries[i].name == name {
			e = &s.entries[i]
			break
		}
	}
	if e == nil {
		s.log.Warnw("unknown scheduled task", "pipeline", "scheduler", "step", name)
		return false
	}

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, "scheduler:"+e.name, e.ttl)
		if err != nil {
			s.log.Errorw("scheduler lock failed", "pipeline", "scheduler", "step", e.name, "error", err)
			return false
		}
		if !ok {
			s.log.Infow("skipped, held by another process", "pipeline", "scheduler", "step", e.name)
			return false
		}
		defer release()
	}

	start := time.Now()
	s.log.Infow("task started", "pipeline", "scheduler", "step", e.name)
	if err := e.task(ctx); err != nil {
		s.log.Errorw("task failed", "pipeline", "scheduler", "step", e.name, "duration", time.Since(start), "error", err)
		return true
	}
	s.log.Infow("task finished", "pipeline", "scheduler", "step", e.name, "duration", time.Since(start))
	return true
}

// Names lists registered task names in registration order.
func (s *Scheduler) Names() []string {
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.name)
	}
	return out
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}

// lockToken identifies this process's hold on a lock.
func lockToken() string {
	return uuid.NewString()
}
