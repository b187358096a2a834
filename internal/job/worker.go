package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blockso/blockso/internal/importer"
	"github.com/blockso/blockso/internal/logging"
)

// WatchlistSource lists the addresses whose history the refresh job
// re-imports.
type WatchlistSource interface {
	WatchedAddresses(ctx context.Context) ([]string, error)
}

// Worker drains the job queue, running history imports and scheduling the
// follow-up refresh from the provider's freshness hint.
type Worker struct {
	mu sync.Mutex

	queue     *Queue
	history   *importer.History
	watchlist WatchlistSource

	concurrency int
	workerSem   chan struct{}
	pollEvery   time.Duration
	fetchLimit  int

	stopCh  chan struct{}
	stopped bool
	logger  *logging.Logger
}

// NewWorker creates a queue worker. concurrency bounds how many jobs run
// at once; fetchLimit bounds how many history items a refresh pulls per
// address.
func NewWorker(queue *Queue, history *importer.History, watchlist WatchlistSource, concurrency, fetchLimit int) *Worker {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Worker{
		queue:       queue,
		history:     history,
		watchlist:   watchlist,
		concurrency: concurrency,
		workerSem:   make(chan struct{}, concurrency),
		pollEvery:   1 * time.Second,
		fetchLimit:  fetchLimit,
		stopped:     true,
		stopCh:      make(chan struct{}),
		logger:      logging.GetGlobalLogger().WithField("component", "job_worker"),
	}
}

// SetPollInterval overrides how often the worker polls the queue. Must be
// called before Start.
func (w *Worker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollEvery = d
	}
}

// Start begins draining the queue.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if !w.stopped {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	w.stopped = false
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	go w.loop(ctx)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return fmt.Errorf("worker already stopped")
	}
	close(w.stopCh)
	w.stopped = true
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if _, err := w.queue.PromoteDue(ctx, time.Now()); err != nil {
				w.logger.WithError(err).Error("Failed to promote scheduled jobs")
			}
			w.drain(ctx)
		}
	}
}

// drain starts pending jobs until the queue is empty or every worker slot
// is busy.
func (w *Worker) drain(ctx context.Context) {
	for w.processNext(ctx) {
	}
}

// processNext starts at most one pending job, reporting whether one was
// started.
func (w *Worker) processNext(ctx context.Context) bool {
	select {
	case w.workerSem <- struct{}{}:
	default:
		return false
	}

	j, err := w.queue.Dequeue(ctx)
	if err != nil {
		w.logger.WithError(err).Error("Failed to dequeue job")
		<-w.workerSem
		return false
	}
	if j == nil {
		<-w.workerSem
		return false
	}

	go func() {
		defer func() { <-w.workerSem }()

		if err := w.run(ctx, j); err != nil {
			w.logger.WithError(err).WithField("job_id", j.ID).Error("Job failed")
			if markErr := w.queue.MarkFailed(ctx, j.ID); markErr != nil {
				w.logger.WithError(markErr).WithField("job_id", j.ID).Error("Failed to mark job failed")
			}
			return
		}
		if err := w.queue.MarkFinished(ctx, j.ID); err != nil {
			w.logger.WithError(err).WithField("job_id", j.ID).Error("Failed to mark job finished")
		}
	}()
	return true
}

func (w *Worker) run(ctx context.Context, j *Job) error {
	switch j.Kind {
	case KindFetchHistory:
		return w.runFetchHistory(ctx, j)
	case KindRefreshWatched:
		return w.runRefreshWatched(ctx)
	default:
		return fmt.Errorf("unknown job kind: %s", j.Kind)
	}
}

func (w *Worker) runFetchHistory(ctx context.Context, j *Job) error {
	result, err := w.history.Import(ctx, j.Address, j.Limit)
	if err != nil {
		return err
	}

	w.logger.WithFields(map[string]interface{}{
		"address": j.Address,
		"scanned": result.Scanned,
		"created": result.Created,
	}).Info("History import finished")

	w.scheduleRefresh(ctx, result.NextUpdateAt)
	return nil
}

func (w *Worker) runRefreshWatched(ctx context.Context) error {
	addresses, err := w.watchlist.WatchedAddresses(ctx)
	if err != nil {
		return err
	}

	var nextUpdateAt time.Time
	for _, address := range addresses {
		result, err := w.history.Import(ctx, address, w.fetchLimit)
		if err != nil {
			w.logger.WithError(err).WithField("address", address).Error("Refresh import failed")
			continue
		}
		if !result.NextUpdateAt.IsZero() {
			nextUpdateAt = result.NextUpdateAt
		}
	}

	w.scheduleRefresh(ctx, nextUpdateAt)
	return nil
}

// scheduleRefresh books the next watched-profile refresh at the provider's
// freshness hint. The fixed job id keeps at most one refresh scheduled.
func (w *Worker) scheduleRefresh(ctx context.Context, nextUpdateAt time.Time) {
	if nextUpdateAt.IsZero() || !nextUpdateAt.After(time.Now()) {
		return
	}
	err := w.queue.Schedule(ctx, &Job{
		ID:   RefreshJobID,
		Kind: KindRefreshWatched,
	}, nextUpdateAt)
	if err != nil {
		w.logger.WithError(err).Error("Failed to schedule refresh job")
	}
}
