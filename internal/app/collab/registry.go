package collab

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"taskflow/internal/app/user"
	"taskflow/internal/pkg/errs"
)

// connEntry is the registry state of one live connection.
type connEntry struct {
	sender      Sender
	identity    *user.Identity
	limiter     *rate.Limiter
	connectedAt time.Time
}

// Registry tracks every live connection and the identity bound to it, with an index from
// user id to that user's connections. All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	conns  map[ConnID]*connEntry
	byUser map[string]map[ConnID]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[ConnID]*connEntry),
		byUser: make(map[string]map[ConnID]struct{}),
	}
}

// Add records a freshly accepted, unauthenticated connection. A nil limiter means the
// connection's inbound events are not rate limited.
func (r *Registry) Add(id ConnID, sender Sender, limiter *rate.Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[id] = &connEntry{
		sender:      sender,
		limiter:     limiter,
		connectedAt: time.Now(),
	}
}

// Bind records identity for id. Authentication is one-shot: binding a different user to an
// already bound connection fails with ErrAlreadyBound, binding the same user again is a
// no-op. Binding an unknown connection fails with ErrConnectionNotFound.
func (r *Registry) Bind(id ConnID, identity user.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.conns[id]
	if !ok {
		return errs.NewError(errs.ErrConnectionNotFound)
	}

	if entry.identity != nil {
		if entry.identity.ID == identity.ID {
			return nil
		}
		return errs.NewError(errs.ErrAlreadyBound)
	}

	bound := identity
	entry.identity = &bound

	set, ok := r.byUser[identity.ID]
	if !ok {
		set = make(map[ConnID]struct{})
		r.byUser[identity.ID] = set
	}
	set[id] = struct{}{}

	return nil
}

// Unbind removes all state for id and returns what was stored. It is idempotent: only the
// first call for a connection reports removed = true.
func (r *Registry) Unbind(id ConnID) (sender Sender, identity *user.Identity, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.conns[id]
	if !ok {
		return nil, nil, false
	}

	delete(r.conns, id)

	if entry.identity != nil {
		if set, ok := r.byUser[entry.identity.ID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byUser, entry.identity.ID)
			}
		}
	}

	return entry.sender, entry.identity, true
}

// RemoveUnauthenticated removes id only if no identity has been bound to it yet, and
// reports whether it did. The check and the removal are atomic with respect to Bind.
func (r *Registry) RemoveUnauthenticated(id ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.conns[id]
	if !ok || entry.identity != nil {
		return false
	}

	delete(r.conns, id)
	return true
}

// ConnectionsFor returns the live connections bound to userID, sorted, possibly empty.
func (r *Registry) ConnectionsFor(userID string) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	out := make([]ConnID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// IdentityOf returns the identity bound to id.
func (r *Registry) IdentityOf(id ConnID) (user.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.conns[id]
	if !ok || entry.identity == nil {
		return user.Identity{}, false
	}

	return *entry.identity, true
}

// Sender returns the transport endpoint of id.
func (r *Registry) Sender(id ConnID) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.conns[id]
	if !ok {
		return nil, false
	}

	return entry.sender, true
}

// Has reports whether id is a live connection.
func (r *Registry) Has(id ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.conns[id]
	return ok
}

// Allow spends one token of id's inbound budget. Unknown connections are refused.
func (r *Registry) Allow(id ConnID) bool {
	r.mu.RLock()
	entry, ok := r.conns[id]
	r.mu.RUnlock()

	if !ok {
		return false
	}

	if entry.limiter == nil {
		return true
	}

	return entry.limiter.Allow()
}

// IDs returns every live connection id.
func (r *Registry) IDs() []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConnID, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}

	return out
}

// Counts returns the number of live connections and of distinct bound users.
func (r *Registry) Counts() (connections, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns), len(r.byUser)
}
