package job

import (
	"context"

	"github.com/blockso/blockso/internal/chain"
	"github.com/blockso/blockso/internal/types"
)

// WatchChecker reports whether an address is already watched by the
// real-time webhook.
type WatchChecker interface {
	IsWatched(ctx context.Context, address string) (bool, error)
}

// FetchGate decides whether a history fetch should run for an address.
// A fetch is redundant when the address is watched in real time, when a
// fetch is already pending, or when one has finished before.
type FetchGate struct {
	watched WatchChecker
	queue   *Queue
}

// NewFetchGate creates a fetch gate.
func NewFetchGate(watched WatchChecker, queue *Queue) *FetchGate {
	return &FetchGate{watched: watched, queue: queue}
}

// ShouldFetch reports whether a history fetch for the address would do new
// work.
func (g *FetchGate) ShouldFetch(ctx context.Context, address string) (bool, error) {
	normalized, err := chain.Normalize(address)
	if err != nil {
		return false, err
	}

	watched, err := g.watched.IsWatched(ctx, normalized)
	if err != nil {
		return false, err
	}
	if watched {
		return false, nil
	}

	queued, err := g.queue.IsQueued(ctx, normalized)
	if err != nil {
		return false, err
	}
	if queued {
		return false, nil
	}

	finished, err := g.queue.IsFinished(ctx, normalized)
	if err != nil {
		return false, err
	}
	if finished {
		return false, nil
	}

	return true, nil
}

// Status reports the lifecycle state of the history fetch for an address.
func (g *FetchGate) Status(ctx context.Context, address string) (types.JobStatus, error) {
	normalized, err := chain.Normalize(address)
	if err != nil {
		return "", err
	}
	return g.queue.Status(ctx, normalized)
}

// EnqueueIfNeeded enqueues a history fetch when the gate allows it. The
// normalized address doubles as the job id, so concurrent callers cannot
// race two fetches for one address. Reports whether a job was enqueued.
func (g *FetchGate) EnqueueIfNeeded(ctx context.Context, address string, limit int) (bool, error) {
	normalized, err := chain.Normalize(address)
	if err != nil {
		return false, err
	}

	ok, err := g.ShouldFetch(ctx, normalized)
	if err != nil || !ok {
		return false, err
	}

	return g.queue.Enqueue(ctx, &Job{
		ID:      normalized,
		Kind:    KindFetchHistory,
		Address: normalized,
		Limit:   limit,
	})
}
