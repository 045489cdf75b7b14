package queue

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylink-labs/acarsrouter/pkg/message"
)

func TestNew_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Cap())
	assert.Equal(t, DefaultCapacity, New(-3).Cap())
	assert.Equal(t, 5, New(5).Cap())
}

func TestTryPush_FullFailsFast(t *testing.T) {
	q := New(2)

	require.NoError(t, q.TryPush(message.New(map[string]any{"n": 1})))
	require.NoError(t, q.TryPush(message.New(map[string]any{"n": 2})))

	err := q.TryPush(message.New(map[string]any{"n": 3}))
	assert.True(t, errors.Is(err, ErrFull))
	assert.Equal(t, 2, q.Len())

	// FIFO order is preserved
	assert.Equal(t, 1, (<-q.C()).Value().(map[string]any)["n"])
	assert.Equal(t, 2, (<-q.C()).Value().(map[string]any)["n"])
}

func TestClose(t *testing.T) {
	q := New(4)
	require.NoError(t, q.TryPush(message.New(map[string]any{"n": 1})))

	q.Close()
	q.Close() // idempotent
	assert.True(t, q.Closed())

	err := q.TryPush(message.New(map[string]any{"n": 2}))
	assert.True(t, errors.Is(err, ErrClosed))

	// buffered messages are still delivered, then the channel reports closed
	msg, ok := <-q.C()
	assert.True(t, ok)
	assert.Equal(t, 1, msg.Value().(map[string]any)["n"])
	_, ok = <-q.C()
	assert.False(t, ok)
}

func TestTryPush_ConcurrentWithClose(t *testing.T) {
	q := New(8)
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				err := q.TryPush(message.New(map[string]any{"j": j}))
				if err != nil && !errors.Is(err, ErrFull) && !errors.Is(err, ErrClosed) {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}()
	}
	go func() {
		for range q.C() {
		}
	}()

	q.Close()
	wg.Wait()
}
