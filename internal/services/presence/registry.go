package presence

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Registry maps live connections to users and back.
//
// A user id is a key of byUser if and only if at least one of its connections
// is a key of byConn, so len(byUser) is the online user count. Both maps are
// guarded by one lock.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]int
	byUser map[int]map[string]struct{}
}

// Departure describes the effect of removing a connection.
type Departure struct {
	UserID int
	// LastConnection is true when the user has no remaining connection and
	// dropped out of the online set.
	LastConnection bool
}

func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]int),
		byUser: make(map[int]map[string]struct{}),
	}
}

// Register binds connID to userID. Registering the same pair again is a no-op.
// A connection re-announcing as another user is moved to that user.
func (r *Registry) Register(userID int, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[connID]; ok && prev != userID {
		r.detach(prev, connID)
	}

	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.byUser[userID] = conns
	}
	conns[connID] = struct{}{}
	r.byConn[connID] = userID
}

// Unregister removes connID. It reports false and changes nothing when the
// connection was never registered or was already removed.
func (r *Registry) Unregister(connID string) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connID]
	if !ok {
		return Departure{}, false
	}
	delete(r.byConn, connID)

	return Departure{UserID: userID, LastConnection: r.detach(userID, connID)}, true
}

// detach removes connID from the user's set and drops the user when the set
// empties. Reports whether the user was dropped. Caller holds mu.
func (r *Registry) detach(userID int, connID string) bool {
	conns, ok := r.byUser[userID]
	if !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, userID)
		return true
	}
	return false
}

// OnlineUserIDs returns a snapshot of online users in ascending order.
func (r *Registry) OnlineUserIDs() []int {
	r.mu.RLock()
	ids := lo.Keys(r.byUser)
	r.mu.RUnlock()

	sort.Ints(ids)
	return ids
}

func (r *Registry) IsOnline(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byUser[userID]
	return ok
}

// ConnectionCount returns how many live connections userID has.
func (r *Registry) ConnectionCount(userID int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byUser[userID])
}

// UserFor returns the user a connection announced as.
func (r *Registry) UserFor(connID string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.byConn[connID]
	return userID, ok
}

// Len is the number of online users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byUser)
}
