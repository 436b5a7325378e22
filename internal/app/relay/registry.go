/*
Package relay contains the core logic of the message relay.

This file defines the Registry, the set of currently-live connections keyed by
username. All mutation and lookup goes through the Registry's lock; callers
never touch the underlying map.
*/
package relay

import (
	"sort"
	"sync"

	"github.com/Tzinov15/messaging-app-backend/internal/app/identity"
)

// Registry is the lock-guarded set of live connections, keyed by username.
type Registry struct {
	// mu protects access to the clients map.
	mu sync.RWMutex

	// clients maps a username to its live connection.
	clients map[string]*Client
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

// Add registers c under its username and returns the previous connection that
// held the same username, if any. The caller decides what to do with the
// replaced connection.
func (r *Registry) Add(c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	username := c.Identity().Username
	prev := r.clients[username]
	r.clients[username] = c

	if prev == c {
		return nil
	}
	return prev
}

// Remove deregisters c. It is idempotent, and pointer-matched so that a stale
// connection can never evict the connection that replaced it. It reports
// whether an entry was actually removed.
func (r *Registry) Remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	username := c.Identity().Username
	if current, ok := r.clients[username]; ok && current == c {
		delete(r.clients, username)
		return true
	}
	return false
}

// Find returns the live connection for the given username, or nil if absent.
func (r *Registry) Find(username string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.clients[username]
}

// Snapshot returns the set of live connections at call time. Later registry
// mutations do not affect an already-taken snapshot.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

// Usernames returns the sorted usernames of all live connections.
// Used by the administrative status endpoint.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.clients))
	for username := range r.clients {
		names = append(names, username)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Roster projects the current registry contents to participant identities and
// appends the synthetic SERVER entry, which is always present.
func (r *Registry) Roster() []identity.Identity {
	r.mu.RLock()
	roster := make([]identity.Identity, 0, len(r.clients)+1)
	for _, c := range r.clients {
		roster = append(roster, c.Identity())
	}
	r.mu.RUnlock()

	roster = append(roster, identity.ServerIdentity())
	return roster
}
