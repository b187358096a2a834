package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWatchChecker struct {
	watched map[string]bool
}

func (c *fakeWatchChecker) IsWatched(ctx context.Context, address string) (bool, error) {
	return c.watched[address], nil
}

const gateAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func setupTestGate(t *testing.T, watched ...string) (*FetchGate, *Queue) {
	t.Helper()

	queue, _ := setupTestQueue(t)
	checker := &fakeWatchChecker{watched: make(map[string]bool)}
	for _, a := range watched {
		checker.watched[a] = true
	}
	return NewFetchGate(checker, queue), queue
}

func TestShouldFetch_NewAddress(t *testing.T) {
	gate, _ := setupTestGate(t)

	ok, err := gate.ShouldFetch(context.Background(), gateAddress)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestShouldFetch_WatchedAddress(t *testing.T) {
	gate, _ := setupTestGate(t, gateAddress)

	ok, err := gate.ShouldFetch(context.Background(), gateAddress)
	require.NoError(t, err)
	assert.False(t, ok, "watched addresses already receive real-time activity")
}

func TestShouldFetch_RejectsMalformedAddress(t *testing.T) {
	gate, _ := setupTestGate(t)

	_, err := gate.ShouldFetch(context.Background(), "not-an-address")
	assert.Error(t, err)
}

func TestEnqueueIfNeeded(t *testing.T) {
	gate, _ := setupTestGate(t)
	ctx := context.Background()

	enqueued, err := gate.EnqueueIfNeeded(ctx, gateAddress, 100)
	require.NoError(t, err)
	assert.True(t, enqueued)

	// A pending fetch suppresses further ones.
	ok, err := gate.ShouldFetch(ctx, gateAddress)
	require.NoError(t, err)
	assert.False(t, ok)

	enqueued, err = gate.EnqueueIfNeeded(ctx, gateAddress, 100)
	require.NoError(t, err)
	assert.False(t, enqueued)
}

func TestEnqueueIfNeeded_NormalizesCasing(t *testing.T) {
	gate, queue := setupTestGate(t)
	ctx := context.Background()

	enqueued, err := gate.EnqueueIfNeeded(ctx, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", 100)
	require.NoError(t, err)
	assert.True(t, enqueued)

	// Same address in different casing maps to the same job id.
	enqueued, err = gate.EnqueueIfNeeded(ctx, "0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", 100)
	require.NoError(t, err)
	assert.False(t, enqueued)

	j, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, gateAddress, j.Address)
}

func TestShouldFetch_FinishedAddressStaysFetched(t *testing.T) {
	gate, queue := setupTestGate(t)
	ctx := context.Background()

	enqueued, err := gate.EnqueueIfNeeded(ctx, gateAddress, 100)
	require.NoError(t, err)
	assert.True(t, enqueued)

	j, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)
	require.NoError(t, queue.MarkFinished(ctx, j.ID))

	ok, err := gate.ShouldFetch(ctx, gateAddress)
	require.NoError(t, err)
	assert.False(t, ok, "a completed fetch must not repeat")
}

func TestShouldFetch_FailedFetchCanRetry(t *testing.T) {
	gate, queue := setupTestGate(t)
	ctx := context.Background()

	_, err := gate.EnqueueIfNeeded(ctx, gateAddress, 100)
	require.NoError(t, err)

	j, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, j)
	require.NoError(t, queue.MarkFailed(ctx, j.ID))

	ok, err := gate.ShouldFetch(ctx, gateAddress)
	require.NoError(t, err)
	assert.True(t, ok)
}
