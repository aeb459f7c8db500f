package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"inkvoice/internal/config"
	"inkvoice/internal/events"
	"inkvoice/internal/logging"
	"inkvoice/internal/notifications"
	"inkvoice/internal/queue"
	"inkvoice/internal/services"
	"inkvoice/internal/stage"
)

// StageSet bundles the concrete handlers the manager orchestrates.
type StageSet struct {
	Narration stage.Handler
	Assembly  stage.Handler
}

type lane struct {
	kind      queue.JobKind
	name      string
	handler   stage.Handler
	workers   int
	reclaimer bool
	logger    *slog.Logger
}

// Manager coordinates queue processing with one worker pool per job kind.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	hub          *events.Hub
	notifier     notifications.Service
	logger       *slog.Logger
	heartbeat    *HeartbeatMonitor
	pollInterval time.Duration

	lanes []*lane

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a workflow manager with the notifier from config.
func NewManager(cfg *config.Config, store *queue.Store, hub *events.Hub, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, hub, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier
// (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, hub *events.Hub, logger *slog.Logger, notifier notifications.Service) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		hub:          hub,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
}

// Configure registers the stage handlers. Only kinds with a handler get a
// worker pool.
func (m *Manager) Configure(stages StageSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lanes = nil
	if stages.Narration != nil {
		m.lanes = append(m.lanes, &lane{
			kind:    queue.KindNarration,
			name:    "narration",
			handler: stages.Narration,
			workers: max(1, m.cfg.Workflow.NarrationWorkers),
		})
	}
	if stages.Assembly != nil {
		m.lanes = append(m.lanes, &lane{
			kind:    queue.KindAssembly,
			name:    "assembly",
			handler: stages.Assembly,
			workers: max(1, m.cfg.Workflow.AssemblyWorkers),
		})
	}
	// One lane owns stale-job reclamation; the sweep covers every kind.
	if len(m.lanes) > 0 {
		m.lanes[0].reclaimer = true
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.lanes) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	for _, ln := range m.lanes {
		ln.logger = m.logger.With(logging.String(logging.FieldLane, ln.name))
		m.wg.Add(ln.workers)
	}
	lanes := m.lanes
	m.mu.Unlock()

	for _, ln := range lanes {
		for worker := 0; worker < ln.workers; worker++ {
			go m.runWorker(runCtx, ln, worker)
		}
	}
	return nil
}

// Stop terminates background processing, waits for workers, and releases any
// jobs still marked active back to waiting.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	ctx, cancelRelease := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelRelease()
	released, err := m.store.ReleaseActive(ctx)
	if err != nil {
		m.logger.Error("failed to release active jobs on shutdown", logging.Error(err))
		return
	}
	if released > 0 {
		m.logger.Info("released active jobs for restart", logging.Int64("count", released))
	}
}

// Running reports whether the manager has been started.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// LastError returns the most recent worker error, for status reporting.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// HealthChecks runs every configured handler's health check.
func (m *Manager) HealthChecks(ctx context.Context) []stage.Health {
	m.mu.RLock()
	lanes := m.lanes
	m.mu.RUnlock()

	checks := make([]stage.Health, 0, len(lanes))
	for _, ln := range lanes {
		checks = append(checks, ln.handler.HealthCheck(ctx))
	}
	return checks
}

func (m *Manager) runWorker(ctx context.Context, ln *lane, worker int) {
	defer m.wg.Done()
	logger := ln.logger.With(logging.String("worker", ln.name+"-"+strconv.Itoa(worker)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if ln.reclaimer && worker == 0 {
			if err := m.heartbeat.ReclaimStale(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("reclaim stale jobs failed; stuck jobs may remain", logging.Error(err))
			}
		}

		job, err := m.store.ClaimNext(ctx, ln.kind)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("failed to claim next job", logging.Error(err))
			m.waitOrShutdown(ctx, time.Duration(m.cfg.Workflow.ErrorRetryInterval)*time.Second)
			continue
		}
		if job == nil {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		if err := m.processJob(ctx, ln, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func (m *Manager) processJob(ctx context.Context, ln *lane, job *queue.Job) error {
	jobCtx := services.WithRequestID(
		services.WithLane(
			services.WithStage(
				services.WithChapterID(
					services.WithJobID(ctx, job.ID),
					job.ChapterID),
				ln.name),
			ln.name),
		uuid.NewString())
	// Handlers derive their own per-job loggers from jobCtx; the shared
	// handler is never mutated, so sibling workers stay independent.
	logger := logging.WithContext(jobCtx, ln.logger)

	start := time.Now()
	logger.Info("job started",
		logging.Int("attempt", job.Attempt),
		logging.Bool("force_regenerate", job.ForceRegenerate))
	if ln.kind == queue.KindNarration {
		m.notifier.Publish(jobCtx, notifications.EventNarrationStarted, notifications.Payload{
			"chapter_id": job.ChapterID,
		})
	}

	if err := ln.handler.Prepare(jobCtx, job); err != nil {
		m.handleFailure(jobCtx, ln, job, err)
		return err
	}
	if err := m.store.Update(jobCtx, job); err != nil {
		wrapped := fmt.Errorf("persist job preparation: %w", err)
		logger.Error("failed to persist job preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeWithHeartbeat(jobCtx, ln.handler, job)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			logger.Debug("job interrupted by shutdown")
			return execErr
		}
		m.handleFailure(jobCtx, ln, job, execErr)
		return execErr
	}

	// Handlers may finish a job themselves (cancellation sets a terminal
	// status in place); only promote jobs the handler left active.
	if job.Status == queue.StatusActive || job.Status == "" {
		job.Status = queue.StatusCompleted
	}
	job.LastHeartbeat = nil
	if err := m.store.Update(jobCtx, job); err != nil {
		wrapped := fmt.Errorf("persist job result: %w", err)
		logger.Error("failed to persist job result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	logger.Info("job finished",
		logging.String("status", string(job.Status)),
		logging.Duration("job_duration", time.Since(start)))
	if job.Status == queue.StatusCompleted {
		m.notifyCompletion(jobCtx, ln, job)
	}
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, job *queue.Job) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	execErr := handler.Execute(ctx, job)
	hbCancel()
	hbWG.Wait()
	return execErr
}

// handleFailure applies the retry policy: retryable failures below the
// attempt cap go back to the queue with a growing delay, everything else is
// terminal.
func (m *Manager) handleFailure(ctx context.Context, ln *lane, job *queue.Job, jobErr error) {
	m.setLastError(jobErr)
	logger := logging.WithContext(ctx, ln.logger)
	kind := services.ErrorKind(jobErr)
	message := jobErr.Error()

	maxAttempts := max(1, m.cfg.TTS.MaxAttempts)
	if services.IsRetryable(jobErr) && job.Attempt < maxAttempts {
		delay := time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second * time.Duration(job.Attempt)
		notBefore := time.Now().UTC().Add(delay)
		logger.Warn("job failed, retrying",
			logging.Int("attempt", job.Attempt),
			logging.Duration("retry_delay", delay),
			logging.String("error_kind", kind),
			logging.Error(jobErr))
		if err := m.store.Delay(ctx, job.ID, notBefore, message); err != nil {
			logger.Error("failed to delay job for retry", logging.Error(err))
		}
		return
	}

	step := job.ProgressMessage
	job.SetFailed(message, kind)
	logger.Error("job failed",
		logging.Int("attempt", job.Attempt),
		logging.String("error_kind", kind),
		logging.Error(jobErr))
	if err := m.store.Update(ctx, job); err != nil {
		logger.Error("failed to persist job failure", logging.Error(err))
	}

	switch ln.kind {
	case queue.KindNarration:
		m.hub.Publish(events.NarrationFailed(job.ChapterID, job.ID, message, kind))
		m.notifier.Publish(ctx, notifications.EventNarrationFailed, notifications.Payload{
			"chapter_id": job.ChapterID,
			"error":      message,
		})
	case queue.KindAssembly:
		m.hub.Publish(events.AssemblyFailed(job.ChapterID, job.ID, step, message, kind))
		m.notifier.Publish(ctx, notifications.EventAssemblyFailed, notifications.Payload{
			"chapter_id": job.ChapterID,
			"error":      message,
		})
	}
}

func (m *Manager) notifyCompletion(ctx context.Context, ln *lane, job *queue.Job) {
	payload := notifications.Payload{"chapter_id": job.ChapterID}
	switch ln.kind {
	case queue.KindNarration:
		m.notifier.Publish(ctx, notifications.EventNarrationCompleted, payload)
	case queue.KindAssembly:
		m.notifier.Publish(ctx, notifications.EventAssemblyCompleted, payload)
	}
}

func (m *Manager) waitOrShutdown(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
