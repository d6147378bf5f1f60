package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/openwave-labs/openwave/internal/services"
	"github.com/openwave-labs/openwave/pkg/logger"
)

const (
	defaultRingTimeout = 45 * time.Second
	defaultSweepSpec   = "@every 30s"
)

// Sweeper runs background call maintenance: calls left ringing past the ring
// timeout are transitioned to missed, which is the only way that state is ever
// reached.
type Sweeper struct {
	calls       *services.CallService
	cron        *cron.Cron
	log         *zap.Logger
	ringTimeout time.Duration
	schedule    string
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(sweeper *Sweeper) {
		if c != nil {
			sweeper.cron = c
		}
	}
}

// WithRingTimeout overrides how long a call may ring before it is missed.
func WithRingTimeout(timeout time.Duration) Option {
	return func(sweeper *Sweeper) {
		if timeout > 0 {
			sweeper.ringTimeout = timeout
		}
	}
}

// WithSchedule overrides the cron specification for the sweep.
func WithSchedule(spec string) Option {
	return func(sweeper *Sweeper) {
		if spec != "" {
			sweeper.schedule = spec
		}
	}
}

// NewSweeper constructs a Sweeper with sensible defaults.
func NewSweeper(calls *services.CallService, opts ...Option) *Sweeper {
	sweeper := &Sweeper{
		calls:       calls,
		ringTimeout: defaultRingTimeout,
		schedule:    defaultSweepSpec,
		log:         logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(sweeper)
	}

	if sweeper.cron == nil {
		sweeper.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return sweeper
}

// Start registers the sweep job with the cron scheduler and launches it.
func (s *Sweeper) Start() error {
	if s.calls == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		ctx := context.Background()
		swept, err := s.calls.MarkMissedCalls(ctx, s.ringTimeout)
		if err != nil {
			s.log.Warn("missed call sweep failed", zap.Error(err))
			return
		}
		if swept > 0 {
			s.log.Info("missed call sweep", zap.Int64("calls", swept))
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes one sweep immediately. Used in tests and during graceful shutdown.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if s.calls != nil {
		if _, err := s.calls.MarkMissedCalls(ctx, s.ringTimeout); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
