// Package cleanup provides the background retention sweeper.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/config"
	"github.com/angelstreet/virtualpytest-sub008/pkg/devicelock"
	"github.com/angelstreet/virtualpytest-sub008/pkg/navigation"
	"github.com/angelstreet/virtualpytest-sub008/pkg/tasks"
)

// Service periodically enforces retention policies:
//   - Removes old task records past the retention window
//   - Evicts aged navigation cache entries
//   - Expires stale device locks
//
// All operations are idempotent. Any collaborator may be nil; its sweep is
// simply skipped, so server and host wire only what they own.
type Service struct {
	config *config.ExecutionConfig
	tasks  *tasks.Manager
	cache  *navigation.Cache
	locks  *devicelock.Coordinator

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service.
func NewService(cfg *config.ExecutionConfig, taskManager *tasks.Manager, cache *navigation.Cache, locks *devicelock.Coordinator) *Service {
	return &Service{
		config: cfg,
		tasks:  taskManager,
		cache:  cache,
		locks:  locks,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"task_retention", s.config.TaskRetention,
		"cache_max_age", s.config.CacheMaxAge,
		"lock_max_age", s.config.LockMaxAge,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunAll()

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunAll()
		}
	}
}

// RunAll performs one sweep across all collaborators. Exposed so callers can
// trigger an immediate sweep without waiting for the ticker.
func (s *Service) RunAll() {
	if s.tasks != nil {
		if count := s.tasks.CleanupOldTasks(s.config.TaskRetention); count > 0 {
			slog.Info("Retention: removed old tasks", "count", count)
		}
	}
	if s.cache != nil {
		if count := s.cache.Sweep(s.config.CacheMaxAge); count > 0 {
			slog.Info("Retention: evicted aged cache entries", "count", count)
		}
	}
	if s.locks != nil {
		if count := s.locks.ExpireStale(s.config.LockMaxAge); count > 0 {
			slog.Info("Retention: expired stale device locks", "count", count)
		}
	}
}
