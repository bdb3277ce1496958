package command

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/parking-simulator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type depthGauge struct {
	mu   sync.Mutex
	last int
}

func (d *depthGauge) SetQueueDepth(depth int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = depth
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()

	for i := range 5 {
		_, err := q.Enqueue(Remove(fmt.Sprintf("V%d", i)))
		require.NoError(t, err)
	}

	batch := q.Drain()
	require.Len(t, batch, 5)
	for i, cmd := range batch {
		assert.Equal(t, fmt.Sprintf("V%d", i), cmd.Vehicle.ID)
		assert.NotEmpty(t, cmd.ID)
		assert.False(t, cmd.EnqueuedAt.IsZero())
	}
	assert.Empty(t, q.Drain())
}

func TestQueueDoesNotMergeDuplicates(t *testing.T) {
	q := NewQueue()
	for range 3 {
		_, err := q.Enqueue(RefreshView())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, q.Len())
}

func TestQueueKeepsCallerSuppliedFields(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewQueue(WithClock(func() time.Time { return at }))

	stored, err := q.Enqueue(Command{ID: "fixed", Kind: KindReset})
	require.NoError(t, err)
	assert.Equal(t, "fixed", stored.ID)
	assert.Equal(t, at, stored.EnqueuedAt)
}

func TestPendingDoesNotConsume(t *testing.T) {
	q := NewQueue()
	_, _ = q.Enqueue(RefreshStats())

	pending := q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, KindRefreshStats, pending[0].Kind)
	assert.Equal(t, 1, q.Len())
}

func TestCloseAbandonsAndRejects(t *testing.T) {
	gauge := &depthGauge{}
	q := NewQueue(WithDepthRecorder(gauge))
	_, _ = q.Enqueue(Spawn())
	_, _ = q.Enqueue(RemoveRandom())

	abandoned := q.Close()
	assert.Len(t, abandoned, 2)
	assert.True(t, q.Closed())
	assert.Equal(t, 0, gauge.last)

	_, err := q.Enqueue(Spawn())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestConcurrentProducersPreservePerProducerOrder(t *testing.T) {
	gauge := &depthGauge{}
	q := NewQueue(WithDepthRecorder(gauge))

	const producers, perProducer = 8, 200
	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				_, err := q.Enqueue(Allocate(fmt.Sprintf("P%d", p), model.Vehicle{ID: fmt.Sprintf("%d", i)}, 0))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	batch := q.Drain()
	require.Len(t, batch, producers*perProducer)

	next := make(map[string]int)
	for _, cmd := range batch {
		want := fmt.Sprintf("%d", next[cmd.SpaceID])
		require.Equal(t, want, cmd.Vehicle.ID, "producer %s out of order", cmd.SpaceID)
		next[cmd.SpaceID]++
	}
}

func TestRespondNeverBlocks(t *testing.T) {
	reply := make(chan Result, 1)
	cmd := Remove("V1").WithReply(reply)

	assert.True(t, cmd.Respond(Result{Kind: KindRemove}))
	assert.False(t, cmd.Respond(Result{Kind: KindRemove}), "full channel should drop")
	assert.False(t, Remove("V2").Respond(Result{}), "no reply channel")
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "allocate", KindAllocate.String())
	assert.Equal(t, "remove_random", KindRemoveRandom.String())
	assert.Equal(t, "unknown", Kind(99).String())
	assert.True(t, KindObserve.Mutating())
	assert.False(t, KindRefreshView.Mutating())
}
