package egress

import "sync"

// Registry tracks the outbound channel of every connected broadcast
// client, keyed by the client's remote address.
type Registry struct {
	mu    sync.Mutex
	peers map[string]chan []byte
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]chan []byte)}
}

// Insert registers ch for addr, replacing any previous entry.
func (r *Registry) Insert(addr string, ch chan []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[addr] = ch
}

// Remove unregisters addr. Removing an unknown address is a no-op.
func (r *Registry) Remove(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, addr)
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Broadcast offers payload to every peer without blocking. It returns how
// many peers accepted it and the addresses whose channel was full; those
// peers miss this payload only.
func (r *Registry) Broadcast(payload []byte) (delivered int, dropped []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for addr, ch := range r.peers {
		select {
		case ch <- payload:
			delivered++
		default:
			dropped = append(dropped, addr)
		}
	}
	return delivered, dropped
}
