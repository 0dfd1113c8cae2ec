package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"classroom/internal/sessions"
)

const provisionPathSweep = "sweep"

// Sweeper provisions sessions that start soon but still lack a meeting,
// catching what the synchronous imminent path and failed jobs left behind.
type Sweeper struct {
	provisioner *sessions.Provisioner
	window      time.Duration
	timeout     time.Duration
	log         *slog.Logger
	clock       func() time.Time
}

func NewSweeper(p *sessions.Provisioner, window time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{provisioner: p, window: window, timeout: time.Minute, log: logger, clock: time.Now}
}

// Run performs one sweep across all classes.
func (s *Sweeper) Run(ctx context.Context) (sessions.Report, error) {
	now := s.clock().UTC()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, err := s.provisioner.ProvisionPending(ctx, "", now, now.Add(s.window), provisionPathSweep)
	if err != nil {
		s.log.WarnContext(ctx, "provisioning sweep incomplete",
			slog.Int("provisioned", report.Provisioned),
			slog.Int("failed", report.Failed),
			slog.Any("error", err))
		return report, err
	}
	if report.Provisioned > 0 {
		s.log.InfoContext(ctx, "provisioning sweep", slog.Int("provisioned", report.Provisioned))
	}
	return report, nil
}

// Scheduler runs the sweep on a cron spec.
type Scheduler struct {
	cron   *cron.Cron
	sweep  *Sweeper
	spec   string
	logger *slog.Logger
}

func NewScheduler(sweep *Sweeper, spec string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	return &Scheduler{cron: c, sweep: sweep, spec: spec, logger: logger}
}

// Start registers the sweep under ctx and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { _, _ = s.sweep.Run(ctx) }); err != nil {
		return err
	}
	s.logger.Info("scheduled provisioning sweep", slog.String("schedule", s.spec))
	s.cron.Start()
	return nil
}

// Stop stops scheduling and returns a context done when running sweeps end.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
