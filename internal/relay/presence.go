package relay

import (
	"sync"

	"github.com/MeiCorl/mall-relay/internal/metrics"
)

// Sender is the outbound half of a merchant connection.
type Sender interface {
	Send(data []byte) error
}

// Registry is the single source of truth for which merchants are currently
// reachable. It is shared by every connection lifecycle and the bus
// listener; all operations are atomic under one mutex.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]Sender
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]Sender)}
}

// Register unconditionally installs the session for a merchant id,
// replacing any prior entry. The prior session is returned for logging; it
// is not closed here. An orphaned session fails its next send, which is
// tolerated.
func (r *Registry) Register(id int64, s Sender) Sender {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.sessions[id]
	r.sessions[id] = s
	if prev == nil {
		metrics.OnlineMerchants.Inc()
	}
	return prev
}

// Unregister removes the entry for id only when it still points at s, so a
// replaced connection's late cleanup never evicts its successor. Calling it
// twice is a no-op the second time. Reports whether an entry was removed.
func (r *Registry) Unregister(id int64, s Sender) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sessions[id]
	if !ok || cur != s {
		return false
	}
	delete(r.sessions, id)
	metrics.OnlineMerchants.Dec()
	return true
}

// IsOnline reports whether a merchant has a registered live connection.
func (r *Registry) IsOnline(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	return ok
}

// Lookup returns the registered session for a merchant, if any.
func (r *Registry) Lookup(id int64) (Sender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// OnlineIDs returns the ids of all merchants with a registered connection.
func (r *Registry) OnlineIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of online merchants.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
