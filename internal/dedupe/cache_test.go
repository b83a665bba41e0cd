// ABOUTME: Tests for the idempotency replay cache
// ABOUTME: Validates replay, TTL expiration, eviction, error handling and concurrent duplicates

package dedupe

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetMissing(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	defer cache.Close()

	_, ok := cache.Get("never-seen-key")
	assert.False(t, ok)
}

func TestCache_PutThenGet(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	defer cache.Close()

	cache.Put("k", "v1")
	v, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	cache.Put("k", "v2")
	v, _ = cache.Get("k")
	assert.Equal(t, "v2", v)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_Expired(t *testing.T) {
	cache := New[int](10*time.Millisecond, 100)
	defer cache.Close()

	cache.Put("expiring-key", 1)
	_, ok := cache.Get("expiring-key")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = cache.Get("expiring-key")
	assert.False(t, ok)

	cache.runCleanup()
	assert.Equal(t, 0, cache.Len())
}

func TestCache_EvictsOldest(t *testing.T) {
	cache := New[int](5*time.Minute, 2)
	defer cache.Close()

	cache.Put("a", 1)
	cache.Put("b", 2)
	cache.Put("a", 10) // refresh moves a to the back
	cache.Put("c", 3)

	_, ok := cache.Get("b")
	assert.False(t, ok, "b was the oldest")
	_, ok = cache.Get("a")
	assert.True(t, ok)
	_, ok = cache.Get("c")
	assert.True(t, ok)
}

func TestCache_DoReplays(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	defer cache.Close()

	calls := 0
	fn := func() (string, error) {
		calls++
		return "exchange", nil
	}

	v, replayed, err := cache.Do("temp-1", fn)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "exchange", v)

	v, replayed, err = cache.Do("temp-1", fn)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, "exchange", v)
	assert.Equal(t, 1, calls)
}

func TestCache_DoDoesNotCacheErrors(t *testing.T) {
	cache := New[string](5*time.Minute, 100)
	defer cache.Close()

	_, _, err := cache.Do("k", func() (string, error) { return "", errors.New("agent down") })
	assert.Error(t, err)

	v, replayed, err := cache.Do("k", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "ok", v)
}

func TestCache_DoEmptyKeyAlwaysRuns(t *testing.T) {
	cache := New[int](5*time.Minute, 100)
	defer cache.Close()

	var calls int
	for range 3 {
		_, replayed, err := cache.Do("", func() (int, error) { calls++; return calls, nil })
		require.NoError(t, err)
		assert.False(t, replayed)
	}
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, cache.Len())
}

func TestCache_DoConcurrentDuplicatesShareExecution(t *testing.T) {
	cache := New[int](5*time.Minute, 100)
	defer cache.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]int, 10)

	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := cache.Do("same", func() (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestCache_CloseIdempotent(t *testing.T) {
	cache := New[int](time.Minute, 10)
	cache.Close()
	cache.Close()
}
