// Package scheduler triggers the monthly pipeline from an in-process cron
// entry and serves the Prometheus scrape endpoint while it waits.
package scheduler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tigerroll/citibike/internal/pipeline"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
	exception "github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

const moduleName = "scheduler"

// Runner runs the pipeline for the month before a reference time.
type Runner interface {
	RunForReference(ctx context.Context, ref time.Time, opts pipeline.Options) (*pipeline.Summary, error)
}

// Scheduler owns one cron entry. Overlapping fires are skipped.
type Scheduler struct {
	cfg     config.ScheduleConfig
	loc     *time.Location
	runner  Runner
	opts    pipeline.Options
	metrics http.Handler
	now     func() time.Time

	cron     *cron.Cron
	schedule cron.Schedule

	mu   sync.Mutex
	base context.Context
}

// New parses the cron expression in loc. metrics may be nil, in which case no
// scrape endpoint is served.
func New(cfg config.ScheduleConfig, loc *time.Location, runner Runner, opts pipeline.Options, metricsHandler http.Handler) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	sched, err := cron.ParseStandard(cfg.Cron)
	if err != nil {
		return nil, exception.NewKindError(exception.KindConfig, moduleName, "invalid schedule.cron "+cfg.Cron, err)
	}
	s := &Scheduler{
		cfg:      cfg,
		loc:      loc,
		runner:   runner,
		opts:     opts,
		metrics:  metricsHandler,
		now:      time.Now,
		schedule: sched,
		base:     context.Background(),
	}
	cl := cronLogger{}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.cron.Schedule(sched, cron.FuncJob(s.fire))
	return s, nil
}

// Next returns the first fire time strictly after t, in the scheduler location.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// Run starts the cron loop and blocks until ctx is done. A run in progress is
// cancelled and awaited before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.base = runCtx
	s.mu.Unlock()

	var srv *http.Server
	errCh := make(chan error, 1)
	if s.metrics != nil && s.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics)
		srv = &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Infof("Serving metrics on %s/metrics", s.cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	s.cron.Start()
	logger.Infof("Scheduler started (cron %q, %s). Next run at %s", s.cfg.Cron, s.loc, s.Next(s.now()).Format(time.RFC3339))

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		err = exception.NewBatchErrorf(moduleName, "metrics server: %v", err)
	}

	cancel()
	<-s.cron.Stop().Done()
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}
	logger.Infof("Scheduler stopped")
	return err
}

// fire runs one scheduled pipeline. The fire time is the reference, so the
// target is the month before it.
func (s *Scheduler) fire() {
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()

	ref := s.now().In(s.loc)
	ctx := base
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, s.cfg.Timeout)
		defer cancel()
	}

	logger.Infof("Scheduled run triggered at %s", ref.Format(time.RFC3339))
	summary, err := s.runner.RunForReference(ctx, ref, s.opts)
	if err != nil {
		logger.Errorf("Scheduled run failed: %v", err)
		return
	}
	logger.Infof("Scheduled run for %s finished in %s", summary.Period, summary.Elapsed.Round(time.Millisecond))
}

// cronLogger routes robfig/cron's logr-style calls to the package logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debugf("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Errorf("cron: %s: %v %v", msg, err, keysAndValues)
}
