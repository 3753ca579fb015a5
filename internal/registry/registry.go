package registry

import (
	"hash/fnv"
	"runtime"
	"sync"
)

type shard struct {
	mu      sync.RWMutex
	handles map[string]*Handle
}

// Registry maps usernames to live handles.
// Usernames are spread over shards so unrelated users never share a lock.
type Registry struct {
	shards []*shard
}

type Option func(*Registry)

// WithShards sets the shard count. Values below 1 are ignored.
func WithShards(n int) Option {
	return func(r *Registry) {
		if n < 1 {
			return
		}
		r.shards = newShards(n)
	}
}

// New builds one shard per CPU unless told otherwise.
func New(opts ...Option) *Registry {
	r := &Registry{shards: newShards(runtime.NumCPU())}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range n {
		shards[i] = &shard{handles: make(map[string]*Handle)}
	}
	return shards
}

func (r *Registry) shardFor(username string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

// Register inserts h, replacing whatever handle held the username before.
// The replaced handle is not closed; its own session still owns it.
func (r *Registry) Register(h *Handle) {
	if h == nil {
		return
	}
	s := r.shardFor(h.username)
	s.mu.Lock()
	s.handles[h.username] = h
	s.mu.Unlock()
}

// Unregister removes h only if it is still the registered handle for its
// username. It reports whether an entry was removed.
func (r *Registry) Unregister(h *Handle) bool {
	if h == nil {
		return false
	}
	s := r.shardFor(h.username)
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.handles[h.username]; !ok || cur != h {
		return false
	}
	delete(s.handles, h.username)
	return true
}

func (r *Registry) Lookup(username string) (*Handle, bool) {
	s := r.shardFor(username)
	s.mu.RLock()
	h, ok := s.handles[username]
	s.mu.RUnlock()
	return h, ok
}

// Len counts registered usernames across all shards.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.handles)
		s.mu.RUnlock()
	}
	return n
}

// Snapshot returns the currently registered handles. Shards are read one at a
// time, so the result is not an atomic view of the whole registry.
func (r *Registry) Snapshot() []*Handle {
	out := make([]*Handle, 0, r.Len())
	for _, s := range r.shards {
		s.mu.RLock()
		for _, h := range s.handles {
			out = append(out, h)
		}
		s.mu.RUnlock()
	}
	return out
}
