package entity_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rhythmhub/internal/entity"
)

type thing struct {
	n int
}

func TestAcquireCreateIfMissing(t *testing.T) {
	store := entity.NewStore[thing]()

	_, err := store.Acquire(1, false)
	assert.ErrorIs(t, err, entity.ErrNotTracked)

	u, err := store.Acquire(1, true)
	require.NoError(t, err)
	assert.Nil(t, u.Value())

	u.SetValue(&thing{n: 42})
	u.Release()

	u2, err := store.Acquire(1, false)
	require.NoError(t, err)
	require.NotNil(t, u2.Value())
	assert.Equal(t, 42, u2.Value().n)
	u2.Release()
}

func TestAcquireTimesOut(t *testing.T) {
	store := entity.NewStoreWithTimeout[thing](50 * time.Millisecond)

	u, err := store.Acquire(1, true)
	require.NoError(t, err)
	defer u.Release()

	_, err = store.Acquire(1, true)
	assert.ErrorIs(t, err, entity.ErrLockTimeout)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	store := entity.NewStore[thing]()

	u, err := store.Acquire(1, true)
	require.NoError(t, err)
	u.SetValue(&thing{n: 1})

	done := make(chan int)
	go func() {
		u2, err := store.Acquire(1, false)
		require.NoError(t, err)
		defer u2.Release()
		done <- u2.Value().n
	}()

	time.Sleep(20 * time.Millisecond)
	u.Value().n = 7
	u.Release()

	assert.Equal(t, 7, <-done)
}

func TestDestroyRemovesEntity(t *testing.T) {
	store := entity.NewStore[thing]()

	u, err := store.Acquire(1, true)
	require.NoError(t, err)
	u.SetValue(&thing{n: 1})
	u.Release()

	require.NoError(t, store.Destroy(1))
	assert.Equal(t, 0, store.Len())

	_, err = store.Acquire(1, false)
	assert.ErrorIs(t, err, entity.ErrNotTracked)

	// Destroying again is a no-op.
	require.NoError(t, store.Destroy(1))
}

func TestWaiterObservesDestroy(t *testing.T) {
	store := entity.NewStore[thing]()

	u, err := store.Acquire(1, true)
	require.NoError(t, err)
	u.SetValue(&thing{n: 1})

	errCh := make(chan error)
	go func() {
		_, err := store.Acquire(1, false)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	u.Destroy()

	assert.ErrorIs(t, <-errCh, entity.ErrNotTracked)
}

func TestWaiterRecreatesAfterDestroy(t *testing.T) {
	store := entity.NewStore[thing]()

	u, err := store.Acquire(1, true)
	require.NoError(t, err)
	u.SetValue(&thing{n: 1})

	done := make(chan *thing)
	go func() {
		u2, err := store.Acquire(1, true)
		require.NoError(t, err)
		defer u2.Release()
		done <- u2.Value()
	}()

	time.Sleep(20 * time.Millisecond)
	u.Destroy()

	// The create-if-missing waiter gets a fresh, empty slot.
	assert.Nil(t, <-done)
	assert.Equal(t, 1, store.Len())
}

func TestUsageDestroyReleasesLock(t *testing.T) {
	store := entity.NewStore[thing]()

	u, err := store.Acquire(1, true)
	require.NoError(t, err)
	u.Destroy()
	// Double release after destroy must not panic or double-unlock.
	u.Release()

	u2, err := store.Acquire(1, true)
	require.NoError(t, err)
	u2.Release()
}

func TestSnapshotToleratesConcurrentUse(t *testing.T) {
	store := entity.NewStore[thing]()

	for i := int64(0); i < 10; i++ {
		u, err := store.Acquire(i, true)
		require.NoError(t, err)
		u.SetValue(&thing{n: int(i)})
		u.Release()
	}

	u, err := store.Acquire(3, false)
	require.NoError(t, err)
	defer u.Release()

	// Snapshot must not block on the held lock.
	snap := store.Snapshot()
	assert.Len(t, snap, 10)
	require.NotNil(t, snap[3])
	assert.Equal(t, 3, snap[3].n)
}

func TestConcurrentAcquireSerializesMutation(t *testing.T) {
	store := entity.NewStore[thing]()

	u, err := store.Acquire(1, true)
	require.NoError(t, err)
	u.SetValue(&thing{})
	u.Release()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				u, err := store.Acquire(1, false)
				require.NoError(t, err)
				u.Value().n++
				u.Release()
			}
		}()
	}
	wg.Wait()

	u, err = store.Acquire(1, false)
	require.NoError(t, err)
	defer u.Release()
	assert.Equal(t, workers*perWorker, u.Value().n)
}
