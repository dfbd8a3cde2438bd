package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler fires each registered dispatcher on its cron expression.
// Overlapping firings of one job are dropped by gocron's singleton mode;
// the dispatcher's own guard covers manual triggers.
type Scheduler struct {
	cron   gocron.Scheduler
	logger *slog.Logger

	mu          sync.Mutex
	dispatchers []*Dispatcher
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create cron scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   s,
		logger: logger.With("component", "scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Register adds a cron job that ticks d. The expression uses the standard
// five-field syntax.
func (s *Scheduler) Register(d *Dispatcher, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.cron.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			d.ProcessQueue(s.ctx)
		}),
		gocron.WithName(fmt.Sprintf("dispatch-%s", d.Kind())),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s dispatcher with %q: %w", d.Kind(), cronExpr, err)
	}

	s.dispatchers = append(s.dispatchers, d)
	s.logger.Info("dispatcher scheduled", "task_kind", d.Kind(), "cron", cronExpr)
	return nil
}

// Start recovers tasks interrupted by a previous process and starts firing
// the registered jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	dispatchers := append([]*Dispatcher(nil), s.dispatchers...)
	s.mu.Unlock()

	for _, d := range dispatchers {
		n, err := d.Queue().Recover(ctx)
		if err != nil {
			return fmt.Errorf("failed to recover %s tasks: %w", d.Kind(), err)
		}
		if n > 0 {
			s.logger.Warn("stopped tasks interrupted by restart", "task_kind", d.Kind(), "count", n)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(dispatchers))
	return nil
}

// Shutdown stops firing jobs and waits for running ticks to return.
func (s *Scheduler) Shutdown() error {
	s.logger.Info("shutting down scheduler")
	err := s.cron.Shutdown()
	s.cancel()
	if err != nil {
		return fmt.Errorf("failed to shut down cron scheduler: %w", err)
	}
	return nil
}
