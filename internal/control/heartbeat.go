package control

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultHeartbeatInterval matches the active-runner window with headroom
// to spare: a runner heartbeating every 30s misses the 5-minute window
// only after ten consecutive failures.
const defaultHeartbeatInterval = 30 * time.Second

// HeartbeatLoop periodically refreshes a runner's heartbeat row until
// stopped, mirroring the teacher's leader-election retry ticker but driving
// a runner's liveness row instead of a Postgres advisory lock.
type HeartbeatLoop struct {
	store    *Store
	runnerID string
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	status   RunnerStatus
	task     string
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewHeartbeatLoop constructs a loop for runnerID. If interval is zero,
// defaultHeartbeatInterval is used.
func NewHeartbeatLoop(store *Store, runnerID string, interval time.Duration, logger *slog.Logger) *HeartbeatLoop {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HeartbeatLoop{
		store:    store,
		runnerID: runnerID,
		interval: interval,
		logger:   logger.With(slog.String("component", "heartbeat"), slog.String("runner_id", runnerID)),
		status:   RunnerRunning,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background heartbeat ticker.
func (h *HeartbeatLoop) Start(ctx context.Context) {
	go h.run(ctx)
}

// Stop halts the loop and blocks until its goroutine exits, marking the
// runner stopped.
func (h *HeartbeatLoop) Stop(ctx context.Context) {
	close(h.stopCh)
	<-h.doneCh
	if err := h.store.StopRunner(ctx, h.runnerID); err != nil {
		h.logger.Warn("failed to mark runner stopped", slog.Any("error", err))
	}
}

// SetCurrentTask updates the task id reported on the next heartbeat.
func (h *HeartbeatLoop) SetCurrentTask(taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.task = taskID
}

func (h *HeartbeatLoop) run(ctx context.Context) {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *HeartbeatLoop) beat(ctx context.Context) {
	h.mu.Lock()
	task := h.task
	status := h.status
	h.mu.Unlock()

	if err := h.store.Heartbeat(ctx, h.runnerID, status, task); err != nil {
		h.logger.Error("heartbeat failed", slog.Any("error", err))
	}
}
