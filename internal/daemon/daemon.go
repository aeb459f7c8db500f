package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"inkvoice/internal/config"
	"inkvoice/internal/events"
	"inkvoice/internal/logging"
	"inkvoice/internal/notifications"
	"inkvoice/internal/preview"
	"inkvoice/internal/queue"
	"inkvoice/internal/stage"
	"inkvoice/internal/tts"
	"inkvoice/internal/workflow"
)

// Components bundles the collaborators the daemon coordinates.
type Components struct {
	Store    *queue.Store
	Workflow *workflow.Manager
	Hub      *events.Hub
	Previews *preview.Cache
	Voices   *tts.Catalog
}

// Daemon coordinates the background pipelines and enforces single-instance
// execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	comps  Components

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	api     *apiServer
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	QueueEnabled bool
	QueueDBPath  string
	LockFilePath string
	QueueStats   map[queue.Status]int
	StageHealth  []stage.Health
	LastError    string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, comps Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || comps.Store == nil || comps.Workflow == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "inkvoice.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		comps:    comps,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, launches the workflow manager, and brings
// up the HTTP API. With the queue disabled only the API starts; submissions
// are answered with a service-unavailable response.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another inkvoice daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.cfg.Workflow.QueueEnabled {
		if err := d.comps.Workflow.Start(runCtx); err != nil {
			_ = d.lock.Unlock()
			cancel()
			d.cancel = nil
			return fmt.Errorf("start workflow: %w", err)
		}
	} else {
		d.logger.Warn("queue disabled, job submissions will be rejected")
	}

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.comps.Workflow.Stop()
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}
	d.api = srv
	if err := d.api.start(runCtx); err != nil {
		d.comps.Workflow.Stop()
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("inkvoice daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
		d.api = nil
	}
	d.comps.Workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("inkvoice daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.comps.Store != nil {
		return d.comps.Store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueEnabled: d.cfg.Workflow.QueueEnabled,
		QueueDBPath:  d.cfg.QueueDatabasePath(),
		LockFilePath: d.lockPath,
	}
	if stats, err := d.comps.Store.Stats(ctx); err == nil {
		status.QueueStats = stats
	}
	status.StageHealth = d.comps.Workflow.HealthChecks(ctx)
	if err := d.comps.Workflow.LastError(); err != nil {
		status.LastError = err.Error()
	}
	return status
}

// TestNotification sends a test push through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
