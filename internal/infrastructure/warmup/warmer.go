// Package warmup periodically recomputes orchard reports so the first
// request after a data load is served from cache.
package warmup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orchard/backend/internal/infrastructure/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrNotRunning is returned when triggering a stopped warmer
var ErrNotRunning = errors.New("warmer is not running")

// Refresher recomputes and caches the report of one orchard
type Refresher interface {
	WarmOrchard(ctx context.Context, orchardID uuid.UUID) error
}

// OrchardLister lists the orchards to warm when none are configured
type OrchardLister interface {
	ListOrchardIDs(ctx context.Context) ([]uuid.UUID, error)
}

// RunResult summarizes one warm-up pass
type RunResult struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Refreshed int           `json:"refreshed"`
	Failed    int           `json:"failed"`
}

// Warmer runs warm-up passes on a cron schedule
type Warmer struct {
	cron       *cron.Cron
	schedule   string
	timeout    time.Duration
	orchardIDs []uuid.UUID
	refresher  Refresher
	lister     OrchardLister
	logger     *zap.Logger

	mu      sync.Mutex
	entryID cron.EntryID
	running bool
	last    *RunResult
}

// NewWarmer validates the schedule and orchard ids. lister may be nil when
// orchard ids are configured.
func NewWarmer(cfg config.WarmupConfig, refresher Refresher, lister OrchardLister, logger *zap.Logger) (*Warmer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if refresher == nil {
		return nil, errors.New("warmup refresher is required")
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid warmup schedule %q: %w", cfg.Schedule, err)
	}

	ids := make([]uuid.UUID, 0, len(cfg.OrchardIDs))
	for _, raw := range cfg.OrchardIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid warmup orchard id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 && lister == nil {
		return nil, errors.New("warmup needs configured orchard ids or an orchard lister")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	cronLog := &cronLogger{logger: logger.Named("cron")}
	return &Warmer{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		schedule:   cfg.Schedule,
		timeout:    timeout,
		orchardIDs: ids,
		refresher:  refresher,
		lister:     lister,
		logger:     logger,
	}, nil
}

// Start schedules the warm-up job
func (w *Warmer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	id, err := w.cron.AddFunc(w.schedule, func() {
		w.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule warmup: %w", err)
	}
	w.entryID = id
	w.running = true
	w.cron.Start()

	w.logger.Info("Report warmer started",
		zap.String("schedule", w.schedule),
		zap.Time("next_run_at", w.cron.Entry(id).Next),
	)
	return nil
}

// Stop stops the schedule and waits for a running pass to finish or ctx to expire
func (w *Warmer) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cron.Remove(w.entryID)
	w.mu.Unlock()

	done := w.cron.Stop()
	select {
	case <-done.Done():
		w.logger.Info("Report warmer stopped")
		return nil
	case <-ctx.Done():
		w.logger.Warn("Report warmer stop timed out")
		return ctx.Err()
	}
}

// TriggerNow runs one pass in the background
func (w *Warmer) TriggerNow() error {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	go w.RunOnce(context.Background())
	return nil
}

// RunOnce warms every target orchard. Failures are logged and counted; one
// bad orchard does not stop the pass.
func (w *Warmer) RunOnce(ctx context.Context) RunResult {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	result := RunResult{StartedAt: time.Now()}
	defer func() {
		result.Duration = time.Since(result.StartedAt)
		w.mu.Lock()
		last := result
		w.last = &last
		w.mu.Unlock()
	}()

	targets, err := w.targets(ctx)
	if err != nil {
		w.logger.Error("Failed to list orchards for warmup", zap.Error(err))
		return result
	}

	for _, id := range targets {
		if ctx.Err() != nil {
			result.Failed += len(targets) - result.Refreshed - result.Failed
			w.logger.Warn("Warmup pass timed out",
				zap.Duration("timeout", w.timeout),
				zap.Int("refreshed", result.Refreshed),
			)
			break
		}
		if err := w.refresher.WarmOrchard(ctx, id); err != nil {
			result.Failed++
			w.logger.Warn("Failed to warm orchard report",
				zap.String("orchard_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		result.Refreshed++
	}

	w.logger.Info("Report warmup finished",
		zap.Int("refreshed", result.Refreshed),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(result.StartedAt)),
	)
	return result
}

func (w *Warmer) targets(ctx context.Context) ([]uuid.UUID, error) {
	if len(w.orchardIDs) > 0 {
		return w.orchardIDs, nil
	}
	return w.lister.ListOrchardIDs(ctx)
}

// Status returns the schedule state and the last pass
func (w *Warmer) Status() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := map[string]any{
		"schedule":   w.schedule,
		"is_running": w.running,
		"last_run":   w.last,
	}
	if w.running {
		status["next_run_at"] = w.cron.Entry(w.entryID).Next
	}
	return status
}

// LastRun returns the result of the most recent pass, or nil
func (w *Warmer) LastRun() *RunResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
