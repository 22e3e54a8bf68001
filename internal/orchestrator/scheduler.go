package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/repolens/repolens-backend/internal/apperr"
	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/repos"
)

const (
	dailyPollInterval   = 30 * time.Second
	backlogPollInterval = 10 * time.Minute
	settingScanTime     = "scan_time"
)

// Scheduler runs the two background loops: a daily full scan fired at the
// configured wall-clock time, and a backlog sweeper that drains pending
// enrichment whenever the orchestrator is idle. Both defer to the run slot,
// so a manually triggered task simply postpones them.
type Scheduler struct {
	log      *logger.Logger
	orch     *Orchestrator
	settings repos.SettingRepo
	defTime  string

	mu      sync.Mutex
	lastRun string

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(log *logger.Logger, orch *Orchestrator, settings repos.SettingRepo, defaultScanTime string) *Scheduler {
	return &Scheduler{
		log:      log.With("component", "Scheduler"),
		orch:     orch,
		settings: settings,
		defTime:  defaultScanTime,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.dailyLoop(ctx)
		}()
		go func() {
			defer wg.Done()
			s.backlogLoop(ctx)
		}()
		wg.Wait()
	}()
	s.log.Info("Scheduler started", "daily_poll", dailyPollInterval, "backlog_poll", backlogPollInterval)
}

func (s *Scheduler) Shutdown() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Scheduler) dailyLoop(ctx context.Context) {
	ticker := time.NewTicker(dailyPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.dueAt(ctx, now) {
				continue
			}
			s.markRun(now)
			s.log.Info("Daily scan firing")
			if _, err := s.orch.RunFullScan(ctx); err != nil {
				if errors.Is(err, apperr.ErrBusy) {
					s.log.Warn("Daily scan skipped, another task is running")
					continue
				}
				s.log.Error("Daily scan failed", "error", err)
			}
		}
	}
}

// dueAt reports whether the scheduled wall-clock minute has arrived and the
// scan has not yet run today. The last-run marker is in memory only; a
// restart inside the scheduled minute fires at most one extra scan, which the
// upsert semantics make harmless.
func (s *Scheduler) dueAt(ctx context.Context, now time.Time) bool {
	scanTime, err := s.settings.Get(ctx, settingScanTime, s.defTime)
	if err != nil {
		s.log.Error("Failed to read scan time setting", "error", err)
		scanTime = s.defTime
	}
	if now.Format("15:04") != scanTime {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun != now.Format("2006-01-02")
}

func (s *Scheduler) markRun(now time.Time) {
	s.mu.Lock()
	s.lastRun = now.Format("2006-01-02")
	s.mu.Unlock()
}

func (s *Scheduler) backlogLoop(ctx context.Context) {
	ticker := time.NewTicker(backlogPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := s.orch.Status(ctx)
			if status.Running || status.Pending == 0 {
				continue
			}
			s.log.Info("Backlog sweep firing", "pending", status.Pending)
			if _, err := s.orch.RunBatchAnalysis(ctx); err != nil && !errors.Is(err, apperr.ErrBusy) {
				s.log.Error("Backlog sweep failed", "error", err)
			}
		}
	}
}
