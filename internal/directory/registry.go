// Package directory keeps the in-process view of users and their active leases.
// It is fed by the hosting system (login events, lease state reports) and
// queried by the reconciliation engine.
package directory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/kailas-cloud/credits/internal/domain/lease"
	"github.com/kailas-cloud/credits/internal/domain/user"
)

// ErrNoStopper is returned by Stop when no stop transport is configured.
var ErrNoStopper = errors.New("directory: no lease stopper configured")

// Stopper asks the compute fabric to terminate a lease.
type Stopper interface {
	StopLease(ctx context.Context, l lease.Lease) error
}

type entry struct {
	identity user.Identity
	leases   map[string]lease.Lease
	// removed holds ids kept as stopped leases until the engine has pruned
	// their bill entries.
	removed map[string]struct{}
}

func newEntry(id user.Identity) *entry {
	return &entry{identity: id, leases: make(map[string]lease.Lease), removed: make(map[string]struct{})}
}

// Registry is a concurrency-safe directory of users and leases.
type Registry struct {
	mu      sync.RWMutex
	users   map[string]*entry
	stopper Stopper
}

// New creates an empty registry. stopper may be nil (Stop then fails).
func New(stopper Stopper) *Registry {
	return &Registry{users: make(map[string]*entry), stopper: stopper}
}

// Register records or refreshes a user identity. Known leases are kept.
func (r *Registry) Register(id user.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[id.Name]
	if !ok {
		e = newEntry(id)
		r.users[id.Name] = e
	}
	groups := make([]string, len(id.Groups))
	copy(groups, id.Groups)
	id.Groups = groups
	e.identity = id
}

// Identity returns the registered identity of a user.
func (r *Registry) Identity(name string) (user.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.users[name]
	if !ok {
		return user.Identity{}, false
	}
	return e.identity, true
}

// HasUser reports whether the user is known to this process.
func (r *Registry) HasUser(name string) bool {
	_, ok := r.Identity(name)
	return ok
}

// Users returns the names of all registered users, sorted.
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.users))
	for name := range r.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Leases returns a snapshot of a user's leases ordered by id.
// ok is false when the user has no in-process entry.
func (r *Registry) Leases(name string) ([]lease.Lease, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.users[name]
	if !ok {
		return nil, false
	}
	out := make([]lease.Lease, 0, len(e.leases))
	for _, l := range e.leases {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, true
}

// UpsertLease stores the latest state of a lease. An unknown owner is
// registered with an identity carrying only its name.
func (r *Registry) UpsertLease(l lease.Lease) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[l.Owner()]
	if !ok {
		e = newEntry(user.Identity{Name: l.Owner()})
		r.users[l.Owner()] = e
	}
	e.leases[l.ID()] = l
	delete(e.removed, l.ID())
}

// RemoveLease marks a lease as gone. It stays listed as stopped until
// Forget drops it, so the next tick can prune its bill entry.
// Reports whether the lease was known.
func (r *Registry) RemoveLease(owner, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[owner]
	if !ok {
		return false
	}
	l, ok := e.leases[id]
	if !ok {
		return false
	}
	if _, gone := e.removed[id]; gone {
		return false
	}
	e.leases[id] = l.Stopped()
	e.removed[id] = struct{}{}
	return true
}

// Forget drops removed leases whose bill entries have been pruned.
// Ids that were upserted again since removal are kept.
func (r *Registry) Forget(owner string, ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[owner]
	if !ok {
		return
	}
	for _, id := range ids {
		if _, gone := e.removed[id]; !gone {
			continue
		}
		delete(e.removed, id)
		delete(e.leases, id)
	}
}

// Stop forwards a termination request to the configured Stopper.
func (r *Registry) Stop(ctx context.Context, l lease.Lease) error {
	if r.stopper == nil {
		return ErrNoStopper
	}
	return r.stopper.StopLease(ctx, l)
}
