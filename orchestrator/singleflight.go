package orchestrator

import "sync"

// userLocks serializes request processing per user. A second request for a
// user whose turn is still in flight is rejected immediately rather than
// queued, so concurrent duplicates can never each observe the same prior
// state.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// Acquire tries to take the user's lock without blocking. On success it
// returns a release func; on failure (a turn is in flight) it returns
// ok=false.
func (u *userLocks) Acquire(userID string) (release func(), ok bool) {
	u.mu.Lock()
	l := u.locks[userID]
	if l == nil {
		l = &userLock{}
		u.locks[userID] = l
	}
	l.refs++
	u.mu.Unlock()

	if !l.mu.TryLock() {
		u.put(userID, l)
		return nil, false
	}
	return func() {
		l.mu.Unlock()
		u.put(userID, l)
	}, true
}

// put drops one reference and evicts the lock entry once unused.
func (u *userLocks) put(userID string, l *userLock) {
	u.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(u.locks, userID)
	}
	u.mu.Unlock()
}
