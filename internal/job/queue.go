package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blockso/blockso/internal/logging"
	"github.com/blockso/blockso/internal/storage"
	"github.com/blockso/blockso/internal/types"
	"github.com/redis/go-redis/v9"
)

// Job kinds.
const (
	// KindFetchHistory imports the transaction history of one address.
	KindFetchHistory = "fetch_history"
	// KindRefreshWatched re-imports every watched profile.
	KindRefreshWatched = "refresh_watched"
)

// RefreshJobID is the fixed id of the scheduled refresh job. Using one id
// means at most one refresh is ever pending.
const RefreshJobID = "covalent-refresh"

// Redis keys backing the queue.
const (
	keyPending   = "blockso:jobs:pending"
	keyData      = "blockso:jobs:data"
	keyQueued    = "blockso:jobs:queued"
	keyFinished  = "blockso:jobs:finished"
	keyScheduled = "blockso:jobs:scheduled"
)

// Job is one unit of queued work. For history fetches the id is the
// normalized address, which makes the queue reject duplicate fetches.
type Job struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Address    string    `json:"address,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Queue is a Redis-backed job queue with id-level deduplication, a
// finished-job registry, and delayed (scheduled) jobs.
type Queue struct {
	store  *storage.RedisStore
	logger *logging.Logger
}

// NewQueue creates a queue on the given Redis store.
func NewQueue(store *storage.RedisStore) *Queue {
	return &Queue{
		store:  store,
		logger: logging.GetGlobalLogger().WithField("component", "job_queue"),
	}
}

// Enqueue adds a job unless one with the same id is already pending or
// running. Reports whether the job was accepted.
func (q *Queue) Enqueue(ctx context.Context, j *Job) (bool, error) {
	if j.ID == "" {
		return false, fmt.Errorf("job id is required")
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now().UTC()
	}

	client := q.store.Client()

	added, err := client.SAdd(ctx, keyQueued, j.ID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to register job: %w", err)
	}
	if added == 0 {
		return false, nil
	}

	payload, err := json.Marshal(j)
	if err != nil {
		client.SRem(ctx, keyQueued, j.ID)
		return false, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := client.TxPipeline()
	pipe.HSet(ctx, keyData, j.ID, payload)
	pipe.RPush(ctx, keyPending, j.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		client.SRem(ctx, keyQueued, j.ID)
		return false, fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.logger.WithFields(map[string]interface{}{
		"job_id": j.ID,
		"kind":   j.Kind,
	}).Info("Enqueued job")
	return true, nil
}

// Schedule stores a job to be promoted into the pending queue at runAt.
// Scheduling an id again moves its run time.
func (q *Queue) Schedule(ctx context.Context, j *Job, runAt time.Time) error {
	if j.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	client := q.store.Client()
	pipe := client.TxPipeline()
	pipe.HSet(ctx, keyData, j.ID, payload)
	pipe.ZAdd(ctx, keyScheduled, redis.Z{Score: float64(runAt.Unix()), Member: j.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}

	q.logger.WithFields(map[string]interface{}{
		"job_id": j.ID,
		"run_at": runAt.UTC().Format(time.RFC3339),
	}).Info("Scheduled job")
	return nil
}

// PromoteDue moves scheduled jobs whose run time has passed into the
// pending queue. Returns the number of jobs promoted.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	client := q.store.Client()

	ids, err := client.ZRangeByScore(ctx, keyScheduled, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read scheduled jobs: %w", err)
	}

	promoted := 0
	for _, id := range ids {
		if err := client.ZRem(ctx, keyScheduled, id).Err(); err != nil {
			return promoted, fmt.Errorf("failed to remove scheduled job: %w", err)
		}

		added, err := client.SAdd(ctx, keyQueued, id).Result()
		if err != nil {
			return promoted, fmt.Errorf("failed to register job: %w", err)
		}
		if added == 0 {
			continue
		}
		if err := client.RPush(ctx, keyPending, id).Err(); err != nil {
			return promoted, fmt.Errorf("failed to enqueue promoted job: %w", err)
		}
		promoted++
	}

	return promoted, nil
}

// Dequeue pops the next pending job without blocking. Returns nil when the
// queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	client := q.store.Client()

	id, err := client.LPop(ctx, keyPending).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop job: %w", err)
	}

	payload, err := client.HGet(ctx, keyData, id).Result()
	if errors.Is(err, redis.Nil) {
		// Data lost, drop the registration so the id can be enqueued again.
		client.SRem(ctx, keyQueued, id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job data: %w", err)
	}

	var j Job
	if err := json.Unmarshal([]byte(payload), &j); err != nil {
		client.SRem(ctx, keyQueued, id)
		client.HDel(ctx, keyData, id)
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &j, nil
}

// MarkFinished moves a job into the finished registry.
func (q *Queue) MarkFinished(ctx context.Context, id string) error {
	client := q.store.Client()
	pipe := client.TxPipeline()
	pipe.SRem(ctx, keyQueued, id)
	pipe.SAdd(ctx, keyFinished, id)
	pipe.HDel(ctx, keyData, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark job finished: %w", err)
	}
	return nil
}

// MarkFailed removes a failed job so the same id can be enqueued again.
func (q *Queue) MarkFailed(ctx context.Context, id string) error {
	client := q.store.Client()
	pipe := client.TxPipeline()
	pipe.SRem(ctx, keyQueued, id)
	pipe.HDel(ctx, keyData, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// IsQueued reports whether a job with the given id is pending or running.
func (q *Queue) IsQueued(ctx context.Context, id string) (bool, error) {
	ok, err := q.store.Client().SIsMember(ctx, keyQueued, id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check queued registry: %w", err)
	}
	return ok, nil
}

// IsFinished reports whether a job with the given id has completed.
func (q *Queue) IsFinished(ctx context.Context, id string) (bool, error) {
	ok, err := q.store.Client().SIsMember(ctx, keyFinished, id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check finished registry: %w", err)
	}
	return ok, nil
}

// Status reports the lifecycle state of a job id. The empty status means
// the id is not currently tracked (never enqueued, or failed and released).
func (q *Queue) Status(ctx context.Context, id string) (types.JobStatus, error) {
	finished, err := q.IsFinished(ctx, id)
	if err != nil {
		return "", err
	}
	if finished {
		return types.JobStatusFinished, nil
	}

	queued, err := q.IsQueued(ctx, id)
	if err != nil {
		return "", err
	}
	if !queued {
		return "", nil
	}

	// Registered but no longer on the pending list means a worker has
	// picked the job up.
	_, err = q.store.Client().LPos(ctx, keyPending, id, redis.LPosArgs{}).Result()
	if errors.Is(err, redis.Nil) {
		return types.JobStatusStarted, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to check pending list: %w", err)
	}
	return types.JobStatusQueued, nil
}

// PendingCount returns the number of jobs waiting in the queue.
func (q *Queue) PendingCount(ctx context.Context) (int64, error) {
	n, err := q.store.Client().LLen(ctx, keyPending).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}
