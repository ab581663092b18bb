package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"flagftp/config"
)

// Runner schedules mirror tasks. A task never overlaps with itself: a run
// that fires while the previous one is still going is skipped.
type Runner struct {
	tasks  []config.Task
	mirror *Mirror
	logger *zap.Logger
	cron   *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(tasks []config.Task, mirror *Mirror, logger *zap.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{logger.Sugar()}
	return &Runner{
		tasks:  tasks,
		mirror: mirror,
		logger: logger,
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start schedules every task, runs each once right away in the background and
// starts the scheduler. Nothing is started if a schedule fails to parse.
func (r *Runner) Start() error {
	type scheduled struct {
		sched cron.Schedule
		job   cron.Job
	}
	jobs := make([]scheduled, 0, len(r.tasks))
	for _, task := range r.tasks {
		sched, err := cron.ParseStandard(task.Cron)
		if err != nil {
			return fmt.Errorf("failed to schedule task %s: %w", task.Name, err)
		}
		jobs = append(jobs, scheduled{sched: sched, job: r.job(task)})
	}

	for i, s := range jobs {
		r.cron.Schedule(s.sched, s.job)
		r.logger.Info("scheduled task", zap.String("task", r.tasks[i].Name), zap.String("cron", r.tasks[i].Cron))

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			s.job.Run()
		}()
	}
	r.cron.Start()
	return nil
}

// Stop cancels running transfers and waits for every job to return.
func (r *Runner) Stop() {
	r.cancel()
	<-r.cron.Stop().Done()
	r.wg.Wait()
}

// RunAll runs every task once, one after the other.
func (r *Runner) RunAll(ctx context.Context) error {
	var result *multierror.Error
	for _, task := range r.tasks {
		if err := ctx.Err(); err != nil {
			return multierror.Append(result, err).ErrorOrNil()
		}
		if _, err := r.mirror.RunTask(ctx, task); err != nil {
			result = multierror.Append(result, fmt.Errorf("task %s: %w", task.Name, err))
		}
	}
	return result.ErrorOrNil()
}

func (r *Runner) job(task config.Task) cron.Job {
	run := cron.FuncJob(func() {
		if _, err := r.mirror.RunTask(r.ctx, task); err != nil {
			r.logger.Error("task failed", zap.String("task", task.Name), zap.Error(err))
		}
	})
	return cron.NewChain(cron.SkipIfStillRunning(cronLogger{r.logger.Sugar()})).Then(run)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}

var _ cron.Logger = cronLogger{}
