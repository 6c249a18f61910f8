package futures

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteOnce(t *testing.T) {
	f, complete := New[int]()
	assert.False(t, f.Test())

	complete(7, nil)
	assert.True(t, f.Test())
	v, err := f.Wait()
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	// The first completion wins; later ones are discarded.
	complete(13, errors.New("late"))
	v, err = f.Wait()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestWaitBlocksUntilComplete(t *testing.T) {
	f, complete := New[string]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		complete("done", nil)
	}()
	v, err := f.Wait()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestDone(t *testing.T) {
	f, complete := New[int]()
	select {
	case <-f.Done():
		t.Fatal("future reported done before completion")
	default:
	}
	complete(1, nil)
	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("future never reported done")
	}
}

func TestThenBeforeCompletion(t *testing.T) {
	f, complete := New[int]()
	var mu sync.Mutex
	var got []int
	f.Then(func(v int, err error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v)
	})
	complete(3, nil)
	f.Then(func(v int, err error) {
		// Already completed: runs immediately on this goroutine.
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v+1)
	})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{3, 4}, got)
}

func TestThenRunsExactlyOnce(t *testing.T) {
	f, complete := New[int]()
	calls := 0
	f.Then(func(int, error) { calls++ })
	complete(1, nil)
	complete(2, nil)
	assert.Equal(t, 1, calls)
}

func TestErrorPropagation(t *testing.T) {
	boom := errors.New("boom")
	f := ReadyErr[int](boom)
	v, err := f.Wait()
	assert.Equal(t, 0, v)
	assert.ErrorIs(t, err, boom)

	var thenErr error
	f.Then(func(_ int, err error) { thenErr = err })
	assert.ErrorIs(t, thenErr, boom)
}

func TestReady(t *testing.T) {
	f := Ready("x")
	assert.True(t, f.Test())
	v, err := f.Wait()
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	void := ReadyVoid()
	assert.True(t, void.Test())
}
