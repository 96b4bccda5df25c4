package alerts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var errInvalidInterval = errors.New("scheduler intervals must be positive")

// SchedulerConfig describes how often the engine runs.
type SchedulerConfig struct {
	Engine          *Engine
	TickInterval    time.Duration
	CleanupInterval time.Duration
	Logger          *zap.Logger
}

// RunReport is the outcome of one manual run.
type RunReport struct {
	Tick    TickReport
	Expired int64
}

// Scheduler owns the periodic alert jobs. It is started once at application
// init and stopped at shutdown.
type Scheduler struct {
	engine  *Engine
	cron    *cron.Cron
	logger  *zap.Logger
	cancel  context.CancelFunc
	baseCtx context.Context

	mu      sync.Mutex
	started bool
}

// NewScheduler registers the tick and cleanup jobs without starting them.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Engine == nil {
		return nil, errMissingServices
	}
	if cfg.TickInterval <= 0 || cfg.CleanupInterval <= 0 {
		return nil, errInvalidInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cronLog := cronLogger{logger: logger.Sugar()}
	runner := cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	baseCtx, cancel := context.WithCancel(context.Background())
	scheduler := &Scheduler{
		engine:  cfg.Engine,
		cron:    runner,
		logger:  logger,
		cancel:  cancel,
		baseCtx: baseCtx,
	}
	runner.Schedule(cron.Every(cfg.TickInterval), cron.FuncJob(scheduler.tickJob))
	runner.Schedule(cron.Every(cfg.CleanupInterval), cron.FuncJob(scheduler.cleanupJob))
	return scheduler, nil
}

// Start launches the jobs in the background. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("alert scheduler started")
}

// Stop halts scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	s.cancel()
	if !started {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("alert scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce evaluates the rules and the expiry cleanup synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) (RunReport, error) {
	report := RunReport{}
	tick, err := s.engine.Tick(ctx)
	report.Tick = tick
	if err != nil {
		return report, err
	}
	expired, err := s.engine.Cleanup(ctx)
	report.Expired = expired
	return report, err
}

func (s *Scheduler) tickJob() {
	report, err := s.engine.Tick(s.baseCtx)
	if err != nil {
		s.logger.Error(logMessageFailure, zap.String("job", "tick"), zap.Error(err))
		return
	}
	if report.Created() > 0 {
		s.logger.Info("alerts raised",
			zap.Int("livraison", report.Livraison),
			zap.Int("paiement", report.Paiement),
			zap.Int("scanned", report.Scanned),
		)
	}
}

func (s *Scheduler) cleanupJob() {
	removed, err := s.engine.Cleanup(s.baseCtx)
	if err != nil {
		s.logger.Error(logMessageFailure, zap.String("job", "cleanup"), zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("expired alerts removed", zap.Int64("count", removed))
	}
}

// cronLogger routes cron's own diagnostics through zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
