// Package maintenance runs periodic cleanup of expired rate-limit windows,
// one-time-code records, and session-revocation marks. The worker is
// explicitly constructed and owned by the process entry point; nothing starts
// it as a side effect of being imported.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is one named cleanup operation. Tasks must be idempotent: safe to run
// concurrently with request traffic and safe to skip a cycle.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type Worker struct {
	interval time.Duration
	tasks    []Task
	log      zerolog.Logger

	stop    chan struct{}
	done    chan struct{}
	startMu sync.Mutex
	started bool
}

func NewWorker(interval time.Duration, log zerolog.Logger, tasks ...Task) *Worker {
	return &Worker{
		interval: interval,
		tasks:    tasks,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the cleanup loop. Calling Start twice is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.startMu.Lock()
	defer w.startMu.Unlock()
	if w.started {
		return
	}
	w.started = true

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.runOnce(ctx)
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for any in-flight cycle to finish.
func (w *Worker) Stop() {
	w.startMu.Lock()
	defer w.startMu.Unlock()
	if !w.started {
		return
	}
	close(w.stop)
	<-w.done
	w.started = false
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
}

// RunOnce executes a single cleanup cycle immediately. Exposed for tests and
// for an eager sweep at startup.
func (w *Worker) RunOnce(ctx context.Context) {
	w.runOnce(ctx)
}

func (w *Worker) runOnce(ctx context.Context) {
	for _, task := range w.tasks {
		if err := task.Run(ctx); err != nil {
			// Cleanup failures never propagate; the next cycle retries.
			w.log.Error().Err(err).Str("task", task.Name).Msg("maintenance task failed")
		}
	}
}
