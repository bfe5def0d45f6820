package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sender re-sends invitations older than interval and reports how many
// went out.
type Sender interface {
	SendReminders(ctx context.Context, interval time.Duration) (int, error)
}

// Scheduler runs the reminder pass on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	entry   cron.EntryID
	sender  Sender
	config  Config
	logger  *zap.Logger
	mu      sync.Mutex
	running bool
}

// Config for the reminder scheduler. Schedule is a six-field cron
// expression with seconds.
type Config struct {
	Schedule string
	Interval time.Duration
	Timeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Schedule: "0 0 9 * * *",
		Interval: 48 * time.Hour,
		Timeout:  10 * time.Minute,
	}
}

func NewScheduler(sender Sender, logger *zap.Logger, config Config) (*Scheduler, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("reminder interval must be positive, got %s", config.Interval)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	s := &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sender: sender,
		config: config,
		logger: logger,
	}
	entry, err := s.cron.AddFunc(config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add cron job: %w", err)
	}
	s.entry = entry
	return s, nil
}

// Start starts the cron scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("reminder scheduler already running")
	}
	s.running = true
	s.cron.Start()

	s.logger.Info("Reminder scheduler started",
		zap.String("schedule", s.config.Schedule),
		zap.Duration("interval", s.config.Interval),
		zap.Time("next_run", s.cron.Entry(s.entry).Next))
	return nil
}

// Stop waits for a running pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Reminder scheduler stopped")
}

// RunOnce performs one reminder pass. Errors are logged.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	started := time.Now()
	sent, err := s.sender.SendReminders(ctx, s.config.Interval)
	if err != nil {
		s.logger.Error("Reminder pass failed", zap.Int("sent", sent), zap.Error(err))
		return sent
	}
	s.logger.Info("Reminder pass completed",
		zap.Int("sent", sent),
		zap.Duration("took", time.Since(started)))
	return sent
}

// NextRun reports when the next pass is due. It is zero until Start.
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entry).Next
}

// ValidateSchedule validates a six-field cron expression
func ValidateSchedule(expr string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(expr)
	return err
}
