package progress

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTracker(t *testing.T) (*Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewTracker(rdb, 0, zap.NewNop()), mr
}

func TestTracker_Snapshot(t *testing.T) {
	tracker, mr := newTestTracker(t)
	ctx := context.Background()

	tracker.Start(ctx, "b1", 3)
	tracker.SetStatus(ctx, "b1", StatusDispatching)
	tracker.RecordImage(ctx, "b1", ImageSummary{Index: 2, Provider: "seedream", Outcome: OutcomeInline})
	tracker.RecordImage(ctx, "b1", ImageSummary{Index: 0, Provider: "gemini", Outcome: OutcomeStored, FileID: "f1"})
	tracker.RecordImage(ctx, "b1", ImageSummary{Index: 1, Provider: "gemini", Outcome: OutcomeError, ErrorCode: "GEMINI_TIMEOUT"})

	snap, err := tracker.Snapshot(ctx, "b1")
	require.NoError(t, err)

	assert.Equal(t, StatusDispatching, snap.Status)
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 2, snap.Completed)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 1, snap.Degraded)
	assert.False(t, snap.UpdatedAt.IsZero())

	require.Len(t, snap.Images, 3)
	assert.Equal(t, 0, snap.Images[0].Index)
	assert.Equal(t, "f1", snap.Images[0].FileID)
	assert.Equal(t, "GEMINI_TIMEOUT", snap.Images[1].ErrorCode)
	assert.Equal(t, OutcomeInline, snap.Images[2].Outcome)

	assert.Equal(t, DefaultTTL, mr.TTL(batchKey("b1")))
	assert.Equal(t, DefaultTTL, mr.TTL(imagesKey("b1")))
}

func TestTracker_StartResetsPreviousRun(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	tracker.Start(ctx, "b1", 1)
	tracker.RecordImage(ctx, "b1", ImageSummary{Index: 0, Outcome: OutcomeError})
	tracker.Start(ctx, "b1", 2)

	snap, err := tracker.Snapshot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Failed)
	assert.Empty(t, snap.Images)
	assert.Equal(t, StatusLoading, snap.Status)
}

func TestTracker_SnapshotNotFound(t *testing.T) {
	tracker, mr := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.Snapshot(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	tracker.Start(ctx, "b2", 1)
	mr.FastForward(2 * time.Hour)
	_, err = tracker.Snapshot(ctx, "b2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTracker_Subscribe(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, closeFn, err := tracker.Subscribe(ctx, "b3")
	require.NoError(t, err)
	defer closeFn()

	tracker.SetStatus(ctx, "b3", StatusAdapting)
	tracker.RecordImage(ctx, "b3", ImageSummary{Index: 4, Provider: "gemini", Outcome: OutcomeStored})

	first := <-events
	assert.Equal(t, "status", first.Type)
	assert.Equal(t, StatusAdapting, first.Status)

	second := <-events
	assert.Equal(t, "image", second.Type)
	require.NotNil(t, second.Image)
	assert.Equal(t, 4, second.Image.Index)
}

func TestTracker_NilIsNoop(t *testing.T) {
	var tracker *Tracker
	ctx := context.Background()

	tracker.Start(ctx, "b", 1)
	tracker.SetStatus(ctx, "b", StatusCompleted)
	tracker.RecordImage(ctx, "b", ImageSummary{})

	_, err := tracker.Snapshot(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
}
