package egress

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_InsertRemove(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.Len())

	r.Insert("10.0.0.1:1000", make(chan []byte, 1))
	r.Insert("10.0.0.2:1000", make(chan []byte, 1))
	assert.Equal(t, 2, r.Len())

	r.Remove("10.0.0.1:1000")
	assert.Equal(t, 1, r.Len())

	r.Remove("unknown:1")
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_BroadcastSkipsFullPeers(t *testing.T) {
	r := NewRegistry()
	fast := make(chan []byte, 2)
	slow := make(chan []byte, 1)
	r.Insert("fast:1", fast)
	r.Insert("slow:1", slow)

	delivered, dropped := r.Broadcast([]byte("one"))
	assert.Equal(t, 2, delivered)
	assert.Empty(t, dropped)

	delivered, dropped = r.Broadcast([]byte("two"))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, []string{"slow:1"}, dropped)

	require.Len(t, fast, 2)
	assert.Equal(t, []byte("one"), <-fast)
	assert.Equal(t, []byte("two"), <-fast)
	require.Len(t, slow, 1)
	assert.Equal(t, []byte("one"), <-slow)
}

func TestRegistry_BroadcastWithoutPeers(t *testing.T) {
	delivered, dropped := NewRegistry().Broadcast([]byte("x"))
	assert.Zero(t, delivered)
	assert.Empty(t, dropped)
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := fmt.Sprintf("peer:%d", i)
			r.Insert(addr, make(chan []byte, 4))
			r.Broadcast([]byte("x"))
			r.Remove(addr)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}
