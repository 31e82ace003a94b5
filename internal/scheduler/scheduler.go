package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/karwanua/internal/environment"
	"github.com/i474232898/karwanua/internal/observability"
)

// SnapshotFetcher is the part of environment.Service the scheduler drives.
type SnapshotFetcher interface {
	FetchAndStore(ctx context.Context, loc environment.Location) error
}

// Scheduler periodically snapshots readings for tracked locations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   SnapshotFetcher
	locations []environment.Location
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a new Scheduler.
func New(locations []environment.Location, interval time.Duration, service SnapshotFetcher, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		locations: locations,
		interval:  interval,
		timeout:   30 * time.Second,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		s.logger.Info("scheduler: no tracked locations configured; nothing to schedule")
		return nil
	}

	interval := s.interval
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	_, err := s.scheduler.Every(interval).Do(func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "locations", len(s.locations), "interval", interval)
	return nil
}

// RunOnce fetches every tracked location concurrently and waits for all of them.
// It returns the number of locations that failed.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	s.logger.Debug("scheduler: running snapshot job")

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, loc := range s.locations {
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			if err := s.service.FetchAndStore(ctx, loc); err != nil {
				s.logger.Warn("scheduler: fetch failed", "location", loc.Key(), "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			if s.metrics != nil {
				s.metrics.SnapshotsStored.Inc()
			}
		}()
	}
	wg.Wait()

	if s.metrics != nil {
		s.metrics.SchedulerRuns.Inc()
	}
	s.logger.Debug("scheduler: completed snapshot job", "failed", failed)
	return failed
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
