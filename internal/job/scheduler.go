package job

import (
	"context"
	"fmt"
	"time"

	"threadspost/internal/infrastructure/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler triggers the batch jobs in-process. A job whose previous run is
// still going is skipped for that tick.
type Scheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

func NewScheduler() *Scheduler {
	log := logger.Named("Scheduler")
	cl := cronLogger{s: log.Sugar()}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		parser: parser,
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// Register adds fn under name. spec is a standard five-field expression or a
// descriptor such as "@every 1m".
func (s *Scheduler) Register(name, spec string, fn func(ctx context.Context) error) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	_, err := s.cron.AddFunc(spec, func() {
		if err := fn(s.ctx); err != nil {
			s.log.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	s.log.Info("job registered", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops triggering new runs, cancels the running ones, and waits for
// them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
